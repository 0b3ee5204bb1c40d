// Package rt implements the realtime transcription session client. A
// Session owns one websocket connection to the service, streams audio up in
// bounded chunks and dispatches incoming server messages to registered
// handlers.
package rt

import (
	"encoding/json"
	"fmt"

	"github.com/speechmatics/speechmatics-go"
)

// ClientMessageType names a message sent from client to server.
type ClientMessageType string

const (
	MessageStartRecognition     ClientMessageType = "StartRecognition"
	MessageAddAudio             ClientMessageType = "AddAudio"
	MessageEndOfStream          ClientMessageType = "EndOfStream"
	MessageSetRecognitionConfig ClientMessageType = "SetRecognitionConfig"
)

// ServerMessageType names a message sent from server to client.
type ServerMessageType string

const (
	MessageRecognitionStarted    ServerMessageType = "RecognitionStarted"
	MessageAudioAdded            ServerMessageType = "AudioAdded"
	MessageAddPartialTranscript  ServerMessageType = "AddPartialTranscript"
	MessageAddTranscript         ServerMessageType = "AddTranscript"
	MessageAddPartialTranslation ServerMessageType = "AddPartialTranslation"
	MessageAddTranslation        ServerMessageType = "AddTranslation"
	MessageInfo                  ServerMessageType = "Info"
	MessageWarning               ServerMessageType = "Warning"
	MessageError                 ServerMessageType = "Error"
	MessageEndOfTranscript       ServerMessageType = "EndOfTranscript"
)

// AllMessages registers a handler or middleware for every server message
// type.
const AllMessages ServerMessageType = "all"

// serverMessageTypes is the set of valid types, in protocol order.
var serverMessageTypes = []ServerMessageType{
	MessageRecognitionStarted,
	MessageAudioAdded,
	MessageAddPartialTranscript,
	MessageAddTranscript,
	MessageAddPartialTranslation,
	MessageAddTranslation,
	MessageInfo,
	MessageWarning,
	MessageError,
	MessageEndOfTranscript,
}

type startRecognitionMessage struct {
	Message             ClientMessageType                 `json:"message"`
	AudioFormat         speechmatics.AudioFormat          `json:"audio_format"`
	TranscriptionConfig *speechmatics.TranscriptionConfig `json:"transcription_config"`
	TranslationConfig   *speechmatics.TranslationConfig   `json:"translation_config,omitempty"`
	AudioEventsConfig   *speechmatics.AudioEventsConfig   `json:"audio_events_config,omitempty"`
}

type setRecognitionConfigMessage struct {
	Message             ClientMessageType                 `json:"message"`
	TranscriptionConfig *speechmatics.TranscriptionConfig `json:"transcription_config"`
	TranslationConfig   *speechmatics.TranslationConfig   `json:"translation_config,omitempty"`
	AudioEventsConfig   *speechmatics.AudioEventsConfig   `json:"audio_events_config,omitempty"`
}

type endOfStreamMessage struct {
	Message   ClientMessageType `json:"message"`
	LastSeqNo int64             `json:"last_seq_no"`
}

// TranscriptMetadata summarizes one transcript message.
type TranscriptMetadata struct {
	Transcript string  `json:"transcript"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
}

// ServerMessage is the decoded envelope of an incoming server message. The
// fields populated depend on the message type; Raw always carries the
// original JSON for anything not modelled here.
type ServerMessage struct {
	Message ServerMessageType `json:"message"`

	// Reason, Type and Code describe Info, Warning and Error messages.
	Reason string `json:"reason,omitempty"`
	Type   string `json:"type,omitempty"`
	Code   int    `json:"code,omitempty"`

	// SeqNo is set on AudioAdded acknowledgements.
	SeqNo int64 `json:"seq_no,omitempty"`

	// ID is the server-assigned session identifier from
	// RecognitionStarted.
	ID string `json:"id,omitempty"`

	// Metadata and Results are set on transcript and translation messages.
	Metadata *TranscriptMetadata `json:"metadata,omitempty"`
	Results  json.RawMessage     `json:"results,omitempty"`

	// Language identifies the target language of translation messages.
	Language string `json:"language,omitempty"`

	// LanguagePackInfo is set on RecognitionStarted.
	LanguagePackInfo *speechmatics.LanguagePackInfo `json:"language_pack_info,omitempty"`

	Raw json.RawMessage `json:"-"`

	suppressed bool
}

// Suppress marks the message as handled. Remaining middleware and handlers
// are skipped and the client takes no default action for it; in particular
// a suppressed Error message does not terminate the session.
func (m *ServerMessage) Suppress() { m.suppressed = true }

// Suppressed reports whether Suppress has been called.
func (m *ServerMessage) Suppressed() bool { return m.suppressed }

// TranscriptResults decodes the results of an AddTranscript or
// AddPartialTranscript message.
func (m *ServerMessage) TranscriptResults() ([]speechmatics.ResultToken, error) {
	if len(m.Results) == 0 {
		return nil, nil
	}
	var tokens []speechmatics.ResultToken
	if err := json.Unmarshal(m.Results, &tokens); err != nil {
		return nil, fmt.Errorf("failed to decode transcript results: %w", err)
	}
	return tokens, nil
}

// TranslationResults decodes the results of an AddTranslation or
// AddPartialTranslation message.
func (m *ServerMessage) TranslationResults() ([]speechmatics.TranslationResult, error) {
	if len(m.Results) == 0 {
		return nil, nil
	}
	var results []speechmatics.TranslationResult
	if err := json.Unmarshal(m.Results, &results); err != nil {
		return nil, fmt.Errorf("failed to decode translation results: %w", err)
	}
	return results, nil
}

// parseServerMessage decodes an incoming JSON frame into a ServerMessage.
func parseServerMessage(data []byte) (*ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode server message: %w", err)
	}
	if msg.Message == "" {
		return nil, fmt.Errorf("server message missing message field")
	}
	msg.Raw = append(json.RawMessage(nil), data...)
	return &msg, nil
}
