package speechmatics

import (
	"encoding/json"
	"strings"
)

// OperatingPoint is a named accuracy/latency tradeoff profile.
type OperatingPoint string

const (
	OperatingPointStandard OperatingPoint = "standard"
	OperatingPointEnhanced OperatingPoint = "enhanced"
)

// Diarization modes accepted by the service.
const (
	DiarizationNone          = "none"
	DiarizationSpeaker       = "speaker"
	DiarizationSpeakerChange = "speaker_change"
	DiarizationChannel       = "channel"
)

// AdditionalVocabEntry is a custom dictionary entry, optionally with
// pronunciation hints.
type AdditionalVocabEntry struct {
	Content    string   `json:"content"`
	SoundsLike []string `json:"sounds_like,omitempty"`
}

// PunctuationOverrides tunes advanced punctuation.
type PunctuationOverrides struct {
	PermittedMarks []string `json:"permitted_marks,omitempty"`
	Sensitivity    float64  `json:"sensitivity,omitempty"`
}

// SpeakerDiarizationConfig tunes speaker diarization.
type SpeakerDiarizationConfig struct {
	SpeakerSensitivity float64 `json:"speaker_sensitivity,omitempty"`
}

// TranslationConfig requests translation of the transcript into one or more
// target languages.
type TranslationConfig struct {
	TargetLanguages []string `json:"target_languages"`
	EnablePartials  bool     `json:"enable_partials,omitempty"`
}

// AudioEventsConfig requests detection of non-speech audio events.
type AudioEventsConfig struct {
	Types []string `json:"types,omitempty"`
}

// TranscriptionConfig is the declarative description of a recognition
// session. It is serialized verbatim into the StartRecognition message (or
// the batch job config) and is frozen for the lifetime of a session once
// sent; the only sanctioned way to change it mid-session is an explicit
// SetRecognitionConfig message.
type TranscriptionConfig struct {
	Language                 string                    `json:"language"`
	Domain                   string                    `json:"domain,omitempty"`
	OutputLocale             string                    `json:"output_locale,omitempty"`
	OperatingPoint           OperatingPoint            `json:"operating_point,omitempty"`
	AdditionalVocab          []AdditionalVocabEntry    `json:"additional_vocab,omitempty"`
	Diarization              string                    `json:"diarization,omitempty"`
	SpeakerDiarizationConfig *SpeakerDiarizationConfig `json:"speaker_diarization_config,omitempty"`
	SpeakerChangeSensitivity float64                   `json:"speaker_change_sensitivity,omitempty"`
	EnablePartials           bool                      `json:"enable_partials,omitempty"`
	EnableEntities           bool                      `json:"enable_entities,omitempty"`
	MaxDelay                 float64                   `json:"max_delay,omitempty"`
	MaxDelayMode             string                    `json:"max_delay_mode,omitempty"`
	PunctuationOverrides     *PunctuationOverrides     `json:"punctuation_overrides,omitempty"`
	NBestLimit               int                       `json:"n_best_limit,omitempty"`

	// TranslationConfig and AudioEventsConfig ride alongside the
	// transcription config in the start message rather than inside it, so
	// they are excluded from the transcription_config JSON object itself.
	TranslationConfig *TranslationConfig `json:"-"`
	AudioEventsConfig *AudioEventsConfig `json:"-"`
}

// Validate checks the config for problems that can be detected without a
// network round trip.
func (c *TranscriptionConfig) Validate() error {
	if strings.TrimSpace(c.Language) == "" {
		return &ValidationError{Field: "language", Reason: "must not be blank"}
	}
	if c.OperatingPoint != "" &&
		c.OperatingPoint != OperatingPointStandard &&
		c.OperatingPoint != OperatingPointEnhanced {
		return &ValidationError{
			Field:  "operating_point",
			Reason: "must be standard or enhanced",
		}
	}
	return nil
}

// AudioFormat describes the audio carried over a realtime session. A zero
// value means "file": the server sniffs the container format itself.
type AudioFormat struct {
	// Encoding of raw audio, e.g. pcm_s16le, pcm_f32le or mulaw. Empty
	// means file mode.
	Encoding   string
	SampleRate int

	// ChunkSize is the number of bytes sent per AddAudio message. It is a
	// client-side streaming parameter and never goes on the wire.
	ChunkSize int
}

const (
	DefaultSampleRate = 44100
	DefaultChunkSize  = 4096
)

// MarshalJSON emits the wire shape of the audio_format field: {"type":
// "file"} for container audio, or type raw with encoding and sample rate.
// ChunkSize is a client-side parameter and never appears on the wire.
func (f AudioFormat) MarshalJSON() ([]byte, error) {
	type wire struct {
		Type       string `json:"type"`
		Encoding   string `json:"encoding,omitempty"`
		SampleRate int    `json:"sample_rate,omitempty"`
	}
	if f.Encoding == "" {
		return json.Marshal(wire{Type: "file"})
	}
	sr := f.SampleRate
	if sr == 0 {
		sr = DefaultSampleRate
	}
	return json.Marshal(wire{Type: "raw", Encoding: f.Encoding, SampleRate: sr})
}

// EffectiveChunkSize returns the configured chunk size or the default.
func (f AudioFormat) EffectiveChunkSize() int {
	if f.ChunkSize > 0 {
		return f.ChunkSize
	}
	return DefaultChunkSize
}
