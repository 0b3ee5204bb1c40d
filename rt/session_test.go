package rt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/speechmatics/speechmatics-go"
)

// mockServer speaks just enough of the realtime protocol to exercise a
// Session: it acknowledges audio, answers StartRecognition and reacts to
// EndOfStream. The start and end-of-stream behaviours are pluggable so
// individual tests can inject errors.
type mockServer struct {
	t   *testing.T
	srv *httptest.Server

	onStart       func(conn *websocket.Conn)
	onEndOfStream func(conn *websocket.Conn)

	mu             sync.Mutex
	binaryCount    int
	lastSeqNo      int64
	setConfigCount int
}

func newMockServer(t *testing.T) *mockServer {
	ms := &mockServer{t: t}
	ms.onStart = func(conn *websocket.Conn) {
		ms.sendJSON(conn, map[string]any{
			"message": "RecognitionStarted",
			"id":      "test-session",
			"language_pack_info": map[string]any{
				"word_delimiter": " ",
			},
		})
	}
	ms.onEndOfStream = func(conn *websocket.Conn) {
		ms.sendJSON(conn, map[string]any{
			"message": "AddTranscript",
			"metadata": map[string]any{
				"transcript": "hello world.",
			},
		})
		ms.sendJSON(conn, map[string]any{"message": "EndOfTranscript"})
	}

	upgrader := websocket.Upgrader{}
	ms.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		ms.serve(conn)
	}))
	t.Cleanup(ms.srv.Close)
	return ms
}

func (ms *mockServer) serve(conn *websocket.Conn) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType == websocket.BinaryMessage {
			ms.mu.Lock()
			ms.binaryCount++
			seq := ms.binaryCount
			ms.mu.Unlock()
			ms.sendJSON(conn, map[string]any{"message": "AudioAdded", "seq_no": seq})
			continue
		}

		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			ms.t.Errorf("bad client message: %v", err)
			return
		}
		switch msg["message"] {
		case "StartRecognition":
			ms.onStart(conn)
		case "EndOfStream":
			if seq, ok := msg["last_seq_no"].(float64); ok {
				ms.mu.Lock()
				ms.lastSeqNo = int64(seq)
				ms.mu.Unlock()
			}
			ms.onEndOfStream(conn)
		case "SetRecognitionConfig":
			ms.mu.Lock()
			ms.setConfigCount++
			ms.mu.Unlock()
		}
	}
}

func (ms *mockServer) sendJSON(conn *websocket.Conn, v any) {
	if err := conn.WriteJSON(v); err != nil {
		ms.t.Logf("mock server write: %v", err)
	}
}

func (ms *mockServer) url() string {
	return "ws" + strings.TrimPrefix(ms.srv.URL, "http")
}

func (ms *mockServer) stats() (binaryCount int, lastSeqNo int64) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.binaryCount, ms.lastSeqNo
}

func testSettings(url string) speechmatics.ConnectionSettings {
	return speechmatics.ConnectionSettings{
		URL:               url,
		SSLMode:           speechmatics.SSLModeNone,
		MessageBufferSize: 8,
		SemaphoreTimeout:  2 * time.Second,
	}
}

func TestSessionRun(t *testing.T) {
	ms := newMockServer(t)
	session := NewSession(testSettings(ms.url()))

	var mu sync.Mutex
	var finals []string
	session.AddEventHandler(MessageAddTranscript, func(msg *ServerMessage) error {
		mu.Lock()
		finals = append(finals, msg.Metadata.Transcript)
		mu.Unlock()
		return nil
	})

	audio := bytes.NewReader(make([]byte, 10000))
	err := session.Run(context.Background(), audio, speechmatics.TranscriptionConfig{Language: "en"}, speechmatics.AudioFormat{
		Encoding:   "pcm_s16le",
		SampleRate: 16000,
		ChunkSize:  4096,
	})
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if got := session.State(); got != StateClosed {
		t.Errorf("state = %s, want %s", got, StateClosed)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(finals) != 1 || finals[0] != "hello world." {
		t.Errorf("finals = %v, want [hello world.]", finals)
	}

	// 10000 bytes in 4096 chunks is three sends, and the EndOfStream
	// message must carry that count.
	binaryCount, lastSeqNo := ms.stats()
	if binaryCount != 3 {
		t.Errorf("binary messages = %d, want 3", binaryCount)
	}
	if lastSeqNo != 3 {
		t.Errorf("last_seq_no = %d, want 3", lastSeqNo)
	}
}

func TestSessionUpdateTranscriptionConfig(t *testing.T) {
	ms := newMockServer(t)
	session := NewSession(testSettings(ms.url()))

	// Update the config as soon as recognition starts; the change must go
	// out as a SetRecognitionConfig message before the next audio chunk.
	session.AddEventHandler(MessageRecognitionStarted, func(msg *ServerMessage) error {
		session.UpdateTranscriptionConfig(speechmatics.TranscriptionConfig{
			Language:       "en",
			EnablePartials: true,
		})
		return nil
	})

	audio := bytes.NewReader(make([]byte, 100))
	if err := session.Run(context.Background(), audio, speechmatics.TranscriptionConfig{Language: "en"}, speechmatics.AudioFormat{}); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.setConfigCount != 1 {
		t.Errorf("SetRecognitionConfig messages = %d, want 1", ms.setConfigCount)
	}
}

func TestSessionAudioAddedReleasesSlot(t *testing.T) {
	ms := newMockServer(t)
	settings := testSettings(ms.url())
	// With a single slot every send must wait for the previous chunk's
	// AudioAdded, so finishing at all proves the acks release slots.
	settings.MessageBufferSize = 1
	session := NewSession(settings)

	audio := bytes.NewReader(make([]byte, 3*4096))
	err := session.Run(context.Background(), audio, speechmatics.TranscriptionConfig{Language: "en"}, speechmatics.AudioFormat{
		Encoding:   "pcm_s16le",
		SampleRate: 16000,
		ChunkSize:  4096,
	})
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	binaryCount, lastSeqNo := ms.stats()
	if binaryCount != 3 || lastSeqNo != 3 {
		t.Errorf("binary = %d, last_seq_no = %d, want 3 and 3", binaryCount, lastSeqNo)
	}
}

func TestSessionLanguagePackInfo(t *testing.T) {
	ms := newMockServer(t)
	session := NewSession(testSettings(ms.url()))

	audio := bytes.NewReader([]byte("audio"))
	if err := session.Run(context.Background(), audio, speechmatics.TranscriptionConfig{Language: "en"}, speechmatics.AudioFormat{}); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	pack := session.LanguagePackInfo()
	if pack == nil || pack.WordDelimiter != " " {
		t.Errorf("language pack info = %+v, want word delimiter from RecognitionStarted", pack)
	}
}

func TestSessionValidatesConfigBeforeDialing(t *testing.T) {
	session := NewSession(testSettings("ws://127.0.0.1:1"))
	err := session.Run(context.Background(), bytes.NewReader(nil), speechmatics.TranscriptionConfig{}, speechmatics.AudioFormat{})

	var validationErr *speechmatics.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("Run() = %v, want ValidationError", err)
	}
	if got := session.State(); got != StateIdle {
		t.Errorf("state = %s, want %s", got, StateIdle)
	}
}

func TestSessionRunsOnlyOnce(t *testing.T) {
	ms := newMockServer(t)
	session := NewSession(testSettings(ms.url()))

	config := speechmatics.TranscriptionConfig{Language: "en"}
	if err := session.Run(context.Background(), bytes.NewReader([]byte("x")), config, speechmatics.AudioFormat{}); err != nil {
		t.Fatalf("first Run() = %v", err)
	}
	if err := session.Run(context.Background(), bytes.NewReader([]byte("x")), config, speechmatics.AudioFormat{}); err == nil {
		t.Error("second Run() succeeded, want error")
	}
}

func TestSessionConfigurationError(t *testing.T) {
	ms := newMockServer(t)
	ms.onStart = func(conn *websocket.Conn) {
		ms.sendJSON(conn, map[string]any{
			"message": "Error",
			"type":    "invalid_config",
			"reason":  "unsupported language",
		})
	}
	session := NewSession(testSettings(ms.url()))

	err := session.Run(context.Background(), bytes.NewReader([]byte("x")), speechmatics.TranscriptionConfig{Language: "xx"}, speechmatics.AudioFormat{})
	var configErr *speechmatics.ConfigurationError
	if !errors.As(err, &configErr) {
		t.Fatalf("Run() = %v, want ConfigurationError", err)
	}
	if got := session.State(); got != StateErrored {
		t.Errorf("state = %s, want %s", got, StateErrored)
	}
}

func TestSessionTranscriptionError(t *testing.T) {
	ms := newMockServer(t)
	started := ms.onStart
	ms.onStart = func(conn *websocket.Conn) {
		started(conn)
		ms.sendJSON(conn, map[string]any{
			"message": "Error",
			"type":    "internal_error",
			"reason":  "something broke",
		})
	}
	session := NewSession(testSettings(ms.url()))

	err := session.Run(context.Background(), neverEndingReader{}, speechmatics.TranscriptionConfig{Language: "en"}, speechmatics.AudioFormat{})
	var transcriptionErr *speechmatics.TranscriptionError
	if !errors.As(err, &transcriptionErr) {
		t.Fatalf("Run() = %v, want TranscriptionError", err)
	}
	if got := session.State(); got != StateErrored {
		t.Errorf("state = %s, want %s", got, StateErrored)
	}
}

func TestSessionSuppressedErrorKeepsStreaming(t *testing.T) {
	ms := newMockServer(t)
	started := ms.onStart
	ms.onStart = func(conn *websocket.Conn) {
		started(conn)
		ms.sendJSON(conn, map[string]any{
			"message": "Error",
			"type":    "transient",
			"reason":  "ignorable",
		})
	}
	session := NewSession(testSettings(ms.url()))

	suppressed := false
	session.AddMiddleware(MessageError, func(msg *ServerMessage) error {
		suppressed = true
		msg.Suppress()
		return nil
	})

	err := session.Run(context.Background(), bytes.NewReader([]byte("audio")), speechmatics.TranscriptionConfig{Language: "en"}, speechmatics.AudioFormat{})
	if err != nil {
		t.Fatalf("Run() = %v, want nil after suppressing the error", err)
	}
	if !suppressed {
		t.Error("middleware never ran")
	}
	if got := session.State(); got != StateClosed {
		t.Errorf("state = %s, want %s", got, StateClosed)
	}
}

func TestSessionForceEnd(t *testing.T) {
	ms := newMockServer(t)
	started := ms.onStart
	ms.onStart = func(conn *websocket.Conn) {
		started(conn)
		ms.sendJSON(conn, map[string]any{
			"message": "AddPartialTranscript",
			"metadata": map[string]any{
				"transcript": "hel",
			},
		})
	}
	session := NewSession(testSettings(ms.url()))

	session.AddEventHandler(MessageAddPartialTranscript, func(msg *ServerMessage) error {
		return speechmatics.ErrForceEndSession
	})

	// The reader never ends; only the forced end terminates the session.
	err := session.Run(context.Background(), neverEndingReader{}, speechmatics.TranscriptionConfig{Language: "en"}, speechmatics.AudioFormat{})
	if err != nil {
		t.Fatalf("Run() = %v, want nil after forced end", err)
	}
	if got := session.State(); got != StateClosed {
		t.Errorf("state = %s, want %s", got, StateClosed)
	}
}

func TestSessionStop(t *testing.T) {
	ms := newMockServer(t)
	session := NewSession(testSettings(ms.url()))

	done := make(chan error, 1)
	go func() {
		done <- session.Run(context.Background(), neverEndingReader{}, speechmatics.TranscriptionConfig{Language: "en"}, speechmatics.AudioFormat{})
	}()

	time.Sleep(100 * time.Millisecond)
	session.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v, want nil after Stop", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop")
	}
	if got := session.State(); got != StateClosed {
		t.Errorf("state = %s, want %s", got, StateClosed)
	}
}

func TestSessionContextCancel(t *testing.T) {
	ms := newMockServer(t)
	ms.onEndOfStream = func(conn *websocket.Conn) {
		// Never answer; the session must not hang on cancellation.
	}
	session := NewSession(testSettings(ms.url()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- session.Run(ctx, neverEndingReader{}, speechmatics.TranscriptionConfig{Language: "en"}, speechmatics.AudioFormat{})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session did not unwind after cancellation")
	}
}

func TestParseServerMessage(t *testing.T) {
	msg, err := parseServerMessage([]byte(`{"message":"AudioAdded","seq_no":7}`))
	if err != nil {
		t.Fatal(err)
	}
	if msg.Message != MessageAudioAdded || msg.SeqNo != 7 {
		t.Errorf("parsed %+v, want AudioAdded seq 7", msg)
	}

	if _, err := parseServerMessage([]byte(`{"seq_no":7}`)); err == nil {
		t.Error("message without a type parsed, want error")
	}
	if _, err := parseServerMessage([]byte(`not json`)); err == nil {
		t.Error("invalid JSON parsed, want error")
	}
}

// neverEndingReader produces audio forever, slowly enough not to flood the
// mock server.
type neverEndingReader struct{}

func (neverEndingReader) Read(p []byte) (int, error) {
	time.Sleep(5 * time.Millisecond)
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}
