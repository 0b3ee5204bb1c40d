package speechmatics

import (
	"crypto/tls"
	"time"
)

const (
	// BatchSelfServiceURL is the self-service batch endpoint for
	// non-enterprise customers.
	BatchSelfServiceURL = "https://asr.api.speechmatics.com/v2"

	// RTSelfServiceURL is the self-service realtime endpoint for
	// non-enterprise customers. The language code is appended to the path
	// when a session is opened.
	RTSelfServiceURL = "wss://eu2.rt.speechmatics.com/v2"

	// ManagementPlatformURL is the endpoint used to generate temporary
	// API keys when GenerateTempToken is set.
	ManagementPlatformURL = "https://mp.speechmatics.com/v1"
)

const (
	DefaultConnectTimeout    = 15 * time.Second
	DefaultPingInterval      = 30 * time.Second
	DefaultPongTimeout       = 60 * time.Second
	DefaultSemaphoreTimeout  = 120 * time.Second
	DefaultMessageBufferSize = 512
)

// SSLMode selects how the TLS context for a connection is built.
type SSLMode string

const (
	// SSLModeRegular expects a valid certificate chain.
	SSLModeRegular SSLMode = "regular"
	// SSLModeInsecure allows self-signed certificates.
	SSLModeInsecure SSLMode = "insecure"
	// SSLModeNone disables TLS entirely (ws:// and http:// endpoints).
	SSLModeNone SSLMode = "none"
)

// ConnectionSettings holds everything needed to reach a transcription
// endpoint: the URL, credentials and the various timeouts. A settings value
// is treated as immutable once a session or batch client has been created
// from it.
type ConnectionSettings struct {
	// URL of the endpoint, e.g. wss://eu2.rt.speechmatics.com/v2 for
	// realtime or https://asr.api.speechmatics.com/v2 for batch.
	URL string

	// AuthToken is the API key sent as a bearer token.
	AuthToken string

	// GenerateTempToken exchanges AuthToken for a short-lived key via the
	// management platform before connecting. Used by SaaS accounts.
	GenerateTempToken bool

	// SSLMode selects the TLS behaviour. TLSConfig, when non-nil, takes
	// precedence.
	SSLMode   SSLMode
	TLSConfig *tls.Config

	// ConnectTimeout bounds the dial and websocket handshake.
	ConnectTimeout time.Duration

	// PingInterval and PongTimeout control websocket keepalive.
	PingInterval time.Duration
	PongTimeout  time.Duration

	// MessageBufferSize is the maximum number of unacknowledged AddAudio
	// messages in flight before the sender blocks waiting for AudioAdded.
	MessageBufferSize int

	// SemaphoreTimeout bounds how long the sender will wait for an
	// acknowledgement slot before giving up the session.
	SemaphoreTimeout time.Duration
}

// DefaultRealTimeSettings returns settings pointing at the self-service
// realtime endpoint.
func DefaultRealTimeSettings(authToken string) ConnectionSettings {
	return ConnectionSettings{
		URL:               RTSelfServiceURL,
		AuthToken:         authToken,
		SSLMode:           SSLModeRegular,
		ConnectTimeout:    DefaultConnectTimeout,
		PingInterval:      DefaultPingInterval,
		PongTimeout:       DefaultPongTimeout,
		MessageBufferSize: DefaultMessageBufferSize,
		SemaphoreTimeout:  DefaultSemaphoreTimeout,
	}
}

// DefaultBatchSettings returns settings pointing at the self-service batch
// endpoint.
func DefaultBatchSettings(authToken string) ConnectionSettings {
	s := DefaultRealTimeSettings(authToken)
	s.URL = BatchSelfServiceURL
	return s
}

// ApplyDefaults fills any zero-valued timeout or buffer field in place.
// Constructors call this so that a hand-built ConnectionSettings literal
// behaves sensibly.
func (s *ConnectionSettings) ApplyDefaults() {
	if s.ConnectTimeout == 0 {
		s.ConnectTimeout = DefaultConnectTimeout
	}
	if s.PingInterval == 0 {
		s.PingInterval = DefaultPingInterval
	}
	if s.PongTimeout == 0 {
		s.PongTimeout = DefaultPongTimeout
	}
	if s.MessageBufferSize == 0 {
		s.MessageBufferSize = DefaultMessageBufferSize
	}
	if s.SemaphoreTimeout == 0 {
		s.SemaphoreTimeout = DefaultSemaphoreTimeout
	}
	if s.SSLMode == "" {
		s.SSLMode = SSLModeRegular
	}
}

// TLS returns the tls.Config implied by the settings, or nil when TLS is
// disabled.
func (s *ConnectionSettings) TLS() *tls.Config {
	if s.TLSConfig != nil {
		return s.TLSConfig
	}
	switch s.SSLMode {
	case SSLModeInsecure:
		return &tls.Config{InsecureSkipVerify: true}
	case SSLModeNone:
		return nil
	default:
		return &tls.Config{}
	}
}
