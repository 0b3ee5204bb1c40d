package rt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/speechmatics/speechmatics-go"
	"github.com/speechmatics/speechmatics-go/audio"
)

// State is the lifecycle state of a Session.
type State string

const (
	StateIdle        State = "idle"
	StateConnecting  State = "connecting"
	StateConfiguring State = "configuring"
	StateStreaming   State = "streaming"
	StateDraining    State = "draining"
	StateClosed      State = "closed"
	StateErrored     State = "errored"
)

// DrainTimeout bounds how long the session waits for EndOfTranscript after
// the end-of-stream message has been sent.
const DrainTimeout = 30 * time.Second

// errSessionDone signals the consumer loop that EndOfTranscript arrived.
var errSessionDone = errors.New("end of transcript")

// Session manages one recognition session end-to-end: connect, configure,
// stream audio, receive incremental results, terminate. A Session is good
// for a single Run; create a new one per recognition session. Parallelism
// across simultaneous sessions is the caller's responsibility.
type Session struct {
	// FromCLI marks requests as originating from the command line tool.
	// Set before Run.
	FromCLI bool

	settings speechmatics.ConnectionSettings
	registry *Registry
	logger   *log.Logger
	id       string

	mu          sync.Mutex
	state       State
	config      *speechmatics.TranscriptionConfig
	configDirty bool
	langPack    *speechmatics.LanguagePackInfo

	conn    *websocket.Conn
	writeMu sync.Mutex

	recognitionStarted chan struct{}
	startedOnce        sync.Once
	closing            chan struct{}
	closingOnce        sync.Once
	ackSlots           chan struct{}
	seqNo              atomic.Int64
}

// NewSession creates a session client from the given connection settings.
func NewSession(settings speechmatics.ConnectionSettings) *Session {
	settings.ApplyDefaults()
	id := uuid.NewString()
	s := &Session{
		settings:           settings,
		registry:           NewRegistry(),
		logger:             log.Default().With("session", id),
		id:                 id,
		state:              StateIdle,
		recognitionStarted: make(chan struct{}),
		closing:            make(chan struct{}),
		ackSlots:           make(chan struct{}, settings.MessageBufferSize),
	}
	for i := 0; i < settings.MessageBufferSize; i++ {
		s.ackSlots <- struct{}{}
	}
	return s
}

// ID returns the client-generated session identifier used in logs.
func (s *Session) ID() string { return s.id }

// Registry exposes the event handler registry. Populate it before calling
// Run; registration during active streaming is unsupported.
func (s *Session) Registry() *Registry { return s.registry }

// AddEventHandler registers a handler for a server message type.
func (s *Session) AddEventHandler(t ServerMessageType, h Handler) error {
	return s.registry.AddEventHandler(t, h)
}

// AddMiddleware registers a middleware for a server message type.
func (s *Session) AddMiddleware(t ServerMessageType, m Middleware) error {
	return s.registry.AddMiddleware(t, m)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// LanguagePackInfo returns the language pack details from the
// RecognitionStarted message, or nil before it has been received.
func (s *Session) LanguagePackInfo() *speechmatics.LanguagePackInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.langPack
}

// UpdateTranscriptionConfig replaces the session configuration. The next
// audio chunk is preceded by a SetRecognitionConfig message carrying the
// new configuration. A no-op if the config is unchanged.
func (s *Session) UpdateTranscriptionConfig(config speechmatics.TranscriptionConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.config != nil && reflect.DeepEqual(*s.config, config) {
		return
	}
	s.config = &config
	s.configDirty = true
}

// Stop requests that the running session close early. The client sends an
// end-of-stream message and drains, best effort; Stop does not wait.
func (s *Session) Stop() {
	s.closingOnce.Do(func() { close(s.closing) })
}

// Run opens the connection, starts recognition and streams audio from the
// reader until it is exhausted, dispatching incoming messages to the
// registered handlers. It blocks until the session reaches Closed or
// Errored. Transport errors are not retried; the caller owns retry policy.
func (s *Session) Run(ctx context.Context, input io.Reader, config speechmatics.TranscriptionConfig, format speechmatics.AudioFormat) error {
	if err := config.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("session is %s: a Session can only run once", state)
	}
	s.state = StateConnecting
	s.config = &config
	s.configDirty = false
	s.mu.Unlock()

	conn, err := s.connect(ctx, config.Language)
	if err != nil {
		s.setState(StateErrored)
		return err
	}
	s.conn = conn
	defer conn.Close()

	s.setState(StateConfiguring)
	start := startRecognitionMessage{
		Message:             MessageStartRecognition,
		AudioFormat:         format,
		TranscriptionConfig: &config,
		TranslationConfig:   config.TranslationConfig,
		AudioEventsConfig:   config.AudioEventsConfig,
	}
	if err := s.writeJSON(start); err != nil {
		s.setState(StateErrored)
		return fmt.Errorf("failed to send StartRecognition: %w", err)
	}
	s.logger.Debug("sent StartRecognition", "language", config.Language)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.keepAlive(runCtx)

	producerRes := make(chan error, 1)
	go func() {
		producerRes <- s.produceLoop(runCtx, input, format)
	}()

	consumerRes := make(chan error, 1)
	go func() {
		consumerRes <- s.consumeLoop()
	}()

	runErr := s.supervise(ctx, producerRes, consumerRes)
	if runErr != nil {
		s.setState(StateErrored)
		return runErr
	}
	s.setState(StateClosed)
	return nil
}

// supervise waits for the producer and consumer to finish and decides the
// session outcome. The consumer owns drain handling; the producer reports
// send-side failures.
func (s *Session) supervise(ctx context.Context, producerRes, consumerRes chan error) error {
	var producerErr error
	producerDone := false
	for {
		select {
		case <-ctx.Done():
			// Best-effort close; in-flight server messages may be lost.
			s.Stop()
			_ = s.sendEndOfStream()
			s.conn.Close()
			<-consumerRes
			return ctx.Err()

		case err := <-producerRes:
			producerDone = true
			producerRes = nil
			if err != nil {
				producerErr = err
				s.conn.Close()
				<-consumerRes
				return producerErr
			}
			// Producer drained normally; the consumer finishes the session.

		case err := <-consumerRes:
			if err != nil {
				s.Stop()
				s.conn.Close()
				if !producerDone {
					<-producerRes
				}
				return err
			}
			s.Stop()
			s.conn.Close()
			if !producerDone {
				<-producerRes
			}
			return nil
		}
	}
}

// connect dials the realtime endpoint. The language code is appended to
// the URL path and the sm-sdk parameter identifies the client version.
func (s *Session) connect(ctx context.Context, language string) (*websocket.Conn, error) {
	u, err := url.Parse(s.settings.URL)
	if err != nil {
		return nil, &speechmatics.ConnectionError{URL: s.settings.URL, Err: err}
	}
	lang := strings.TrimSpace(language)
	if !strings.HasSuffix(u.Path, lang) {
		if strings.HasSuffix(u.Path, "/") {
			u.Path += lang
		} else {
			u.Path += "/" + lang
		}
	}
	q := u.Query()
	q.Set("sm-sdk", speechmatics.SDKTag(s.FromCLI))
	u.RawQuery = q.Encode()

	header := http.Header{}
	token := s.settings.AuthToken
	if s.settings.GenerateTempToken && token != "" {
		token, err = speechmatics.GetTempToken(ctx, s.settings)
		if err != nil {
			return nil, fmt.Errorf("failed to generate temporary token: %w", err)
		}
	}
	if token != "" {
		header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: s.settings.ConnectTimeout,
		TLSClientConfig:  s.settings.TLS(),
	}
	s.logger.Debug("connecting", "url", u.String())
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (HTTP %d)", err, resp.StatusCode)
		}
		return nil, &speechmatics.ConnectionError{URL: u.String(), Err: err}
	}
	return conn, nil
}

// produceLoop streams audio in bounded chunks once recognition has
// started, then sends EndOfStream. Short reads are accumulated into
// full-size chunks so pipes and sockets do not produce undersized
// messages. Before each chunk it flushes any pending configuration update
// and acquires an acknowledgement slot so no more than MessageBufferSize
// chunks are in flight.
func (s *Session) produceLoop(ctx context.Context, input io.Reader, format speechmatics.AudioFormat) error {
	select {
	case <-s.recognitionStarted:
	case <-s.closing:
		return s.sendEndOfStream()
	case <-ctx.Done():
		return ctx.Err()
	}

	chunker := audio.NewChunker(format.EffectiveChunkSize())
	buf := make([]byte, format.EffectiveChunkSize())
	for {
		select {
		case <-s.closing:
			return s.sendEndOfStream()
		default:
		}

		n, err := input.Read(buf)
		if n > 0 {
			chunks, chunkErr := chunker.Write(buf[:n])
			if chunkErr != nil {
				return chunkErr
			}
			for _, chunk := range chunks {
				if sendErr := s.sendAudio(ctx, chunk); sendErr != nil {
					return sendErr
				}
			}
		}
		if err == io.EOF {
			if rest := chunker.Flush(); len(rest) > 0 {
				if sendErr := s.sendAudio(ctx, rest); sendErr != nil {
					return sendErr
				}
			}
			return s.sendEndOfStream()
		}
		if err != nil {
			return fmt.Errorf("failed to read audio: %w", err)
		}
	}
}

func (s *Session) sendAudio(ctx context.Context, data []byte) error {
	if msg := s.takeConfigUpdate(); msg != nil {
		if err := s.writeJSON(msg); err != nil {
			return fmt.Errorf("failed to send SetRecognitionConfig: %w", err)
		}
		s.logger.Debug("sent SetRecognitionConfig")
	}

	select {
	case <-s.ackSlots:
	case <-s.closing:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.settings.SemaphoreTimeout):
		return &speechmatics.TimeoutError{
			Op:      "waiting for audio acknowledgement",
			Elapsed: s.settings.SemaphoreTimeout.String(),
		}
	}

	s.seqNo.Add(1)
	s.writeMu.Lock()
	err := s.conn.WriteMessage(websocket.BinaryMessage, data)
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to send audio: %w", err)
	}
	return nil
}

// takeConfigUpdate returns a SetRecognitionConfig message if the config
// was updated since the last send, clearing the dirty flag.
func (s *Session) takeConfigUpdate() *setRecognitionConfigMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.configDirty {
		return nil
	}
	s.configDirty = false
	return &setRecognitionConfigMessage{
		Message:             MessageSetRecognitionConfig,
		TranscriptionConfig: s.config,
		TranslationConfig:   s.config.TranslationConfig,
		AudioEventsConfig:   s.config.AudioEventsConfig,
	}
}

// sendEndOfStream transitions to Draining: the server will flush any
// remaining transcript and reply with EndOfTranscript.
func (s *Session) sendEndOfStream() error {
	s.mu.Lock()
	if s.state == StateDraining {
		s.mu.Unlock()
		return nil
	}
	s.state = StateDraining
	s.mu.Unlock()

	msg := endOfStreamMessage{Message: MessageEndOfStream, LastSeqNo: s.seqNo.Load()}
	if err := s.writeJSON(msg); err != nil {
		return fmt.Errorf("failed to send EndOfStream: %w", err)
	}
	s.logger.Debug("sent EndOfStream", "last_seq_no", msg.LastSeqNo)
	s.conn.SetReadDeadline(time.Now().Add(DrainTimeout))
	return nil
}

// consumeLoop reads server messages and dispatches them until the session
// ends. It returns nil on a clean end (EndOfTranscript, a drain timeout or
// a normal close) and an error otherwise.
func (s *Session) consumeLoop() error {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.State() == StateDraining {
				var netErr net.Error
				if errors.As(err, &netErr) && netErr.Timeout() {
					s.logger.Warn("timed out waiting for EndOfTranscript")
					return nil
				}
			}
			select {
			case <-s.closing:
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info("connection closed by server")
				return nil
			}
			return &speechmatics.ConnectionError{URL: s.settings.URL, Err: err}
		}

		msg, err := parseServerMessage(data)
		if err != nil {
			return err
		}
		if err := s.handleMessage(msg); err != nil {
			if errors.Is(err, errSessionDone) {
				return nil
			}
			if errors.Is(err, speechmatics.ErrForceEndSession) {
				s.logger.Warn("session ended forcefully by an event handler")
				s.Stop()
				if err := s.sendEndOfStream(); err != nil {
					s.logger.Warn("force end", "err", err)
					return nil
				}
				continue
			}
			return err
		}
	}
}

// handleMessage dispatches a server message to the registry, then applies
// the client's own handling for the message type. A suppressed message
// skips the default handling.
func (s *Session) handleMessage(msg *ServerMessage) error {
	if err := s.registry.Dispatch(msg); err != nil {
		return err
	}
	if msg.Suppressed() {
		return nil
	}

	switch msg.Message {
	case MessageRecognitionStarted:
		s.mu.Lock()
		s.langPack = msg.LanguagePackInfo
		if s.state == StateConfiguring {
			s.state = StateStreaming
		}
		s.mu.Unlock()
		s.startedOnce.Do(func() { close(s.recognitionStarted) })
		s.logger.Info("recognition started", "id", msg.ID)

	case MessageAudioAdded:
		select {
		case s.ackSlots <- struct{}{}:
		default:
			// More acks than sends; nothing to release.
		}

	case MessageEndOfTranscript:
		s.logger.Debug("received EndOfTranscript")
		return errSessionDone

	case MessageWarning:
		s.logger.Warn(msg.Reason)

	case MessageInfo:
		s.logger.Info(msg.Reason)

	case MessageError:
		if s.State() == StateConfiguring {
			return &speechmatics.ConfigurationError{Reason: msg.Reason}
		}
		return &speechmatics.TranscriptionError{Reason: msg.Reason}
	}
	return nil
}

func (s *Session) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *Session) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(s.settings.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.settings.PongTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.logger.Debug("failed to send ping", "err", err)
				return
			}
		}
	}
}
