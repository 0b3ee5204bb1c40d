// Package audio provides the small amount of audio plumbing the CLI
// needs: WAV header inspection and fixed-size PCM chunking.
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WAVInfo is the format information parsed from a WAV file header.
type WAVInfo struct {
	AudioFormat   uint16
	NumChannels   int
	SampleRate    int
	BitsPerSample int
	// DataSize is the declared size of the data chunk in bytes. Streaming
	// writers often leave this at a placeholder value.
	DataSize uint32
}

// Encoding maps the WAV sample format onto the raw encoding names the
// realtime API accepts.
func (w WAVInfo) Encoding() string {
	switch {
	case w.AudioFormat == 3 && w.BitsPerSample == 32:
		return "pcm_f32le"
	case w.BitsPerSample == 16:
		return "pcm_s16le"
	default:
		return ""
	}
}

// Duration returns the audio length in seconds, or 0 when the data size is
// not meaningful.
func (w WAVInfo) Duration() float64 {
	bytesPerSecond := w.SampleRate * w.NumChannels * w.BitsPerSample / 8
	if bytesPerSecond == 0 || w.DataSize == 0xFFFFFFFF-36 {
		return 0
	}
	return float64(w.DataSize) / float64(bytesPerSecond)
}

// ReadWAVHeader parses a RIFF/WAVE header from r, leaving the reader
// positioned at the start of the sample data. Chunks other than fmt and
// data are skipped.
func ReadWAVHeader(r io.Reader) (*WAVInfo, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, fmt.Errorf("failed to read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a WAV file")
	}

	info := &WAVInfo{}
	sawFmt := false
	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(r, chunkHeader[:]); err != nil {
			return nil, fmt.Errorf("failed to read chunk header: %w", err)
		}
		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, fmt.Errorf("fmt chunk too small: %d bytes", chunkSize)
			}
			fmtData := make([]byte, chunkSize)
			if _, err := io.ReadFull(r, fmtData); err != nil {
				return nil, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			info.AudioFormat = binary.LittleEndian.Uint16(fmtData[0:2])
			info.NumChannels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(fmtData[14:16]))
			sawFmt = true
		case "data":
			if !sawFmt {
				return nil, fmt.Errorf("data chunk before fmt chunk")
			}
			info.DataSize = chunkSize
			return info, nil
		default:
			if _, err := io.CopyN(io.Discard, r, int64(chunkSize)); err != nil {
				return nil, fmt.Errorf("failed to skip %s chunk: %w", chunkID, err)
			}
		}
	}
}
