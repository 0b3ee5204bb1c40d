package audio

import "bytes"

// Chunker buffers PCM data and emits it in fixed-size chunks, so audio
// from an arbitrary source can be streamed in bounded messages.
type Chunker struct {
	chunkSize int
	buffer    *bytes.Buffer
}

// NewChunker creates a chunker emitting chunks of chunkSize bytes.
func NewChunker(chunkSize int) *Chunker {
	return &Chunker{
		chunkSize: chunkSize,
		buffer:    bytes.NewBuffer(nil),
	}
}

// Write adds data to the buffer and returns every complete chunk now
// available.
func (c *Chunker) Write(data []byte) ([][]byte, error) {
	if _, err := c.buffer.Write(data); err != nil {
		return nil, err
	}
	var chunks [][]byte
	for c.buffer.Len() >= c.chunkSize {
		chunk := make([]byte, c.chunkSize)
		n, err := c.buffer.Read(chunk)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk[:n])
	}
	return chunks, nil
}

// Flush returns any buffered remainder shorter than a full chunk.
func (c *Chunker) Flush() []byte {
	if c.buffer.Len() == 0 {
		return nil
	}
	rest := make([]byte, c.buffer.Len())
	c.buffer.Read(rest)
	return rest
}

// Reset discards any buffered data.
func (c *Chunker) Reset() {
	c.buffer.Reset()
}
