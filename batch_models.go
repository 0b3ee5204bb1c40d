package speechmatics

import (
	"strings"
	"time"
)

// FetchData asks the service to fetch the audio itself instead of receiving
// an upload. Mutually exclusive with an uploaded file.
type FetchData struct {
	URL         string            `json:"url"`
	AuthHeaders map[string]string `json:"auth_headers,omitempty"`
}

// NotificationConfigEntry registers a callback the service invokes when the
// job reaches a terminal state.
type NotificationConfigEntry struct {
	URL         string            `json:"url"`
	Contents    []string          `json:"contents,omitempty"`
	Method      string            `json:"method,omitempty"`
	AuthHeaders map[string]string `json:"auth_headers,omitempty"`
}

// SummarizationConfig requests a summary of the transcript.
type SummarizationConfig struct {
	ContentType   string `json:"content_type,omitempty"`
	SummaryLength string `json:"summary_length,omitempty"`
	SummaryType   string `json:"summary_type,omitempty"`
}

// SentimentAnalysisConfig requests sentiment analysis. It currently carries
// no options; its presence enables the feature.
type SentimentAnalysisConfig struct{}

// TopicDetectionConfig requests topic detection.
type TopicDetectionConfig struct {
	Topics []string `json:"topics,omitempty"`
}

// AutoChaptersConfig requests automatic chaptering. Presence enables it.
type AutoChaptersConfig struct{}

// BatchTranscriptionConfig is the batch variant of TranscriptionConfig. The
// realtime fields are embedded; the rest only make sense for asynchronous
// jobs.
type BatchTranscriptionConfig struct {
	TranscriptionConfig

	FetchData               *FetchData                `json:"-"`
	NotificationConfig      []NotificationConfigEntry `json:"-"`
	SummarizationConfig     *SummarizationConfig      `json:"summarization_config,omitempty"`
	SentimentAnalysisConfig *SentimentAnalysisConfig  `json:"sentiment_analysis_config,omitempty"`
	TopicDetectionConfig    *TopicDetectionConfig     `json:"topic_detection_config,omitempty"`
	AutoChaptersConfig      *AutoChaptersConfig       `json:"auto_chapters_config,omitempty"`
}

// JobConfig is the top-level object submitted with a batch job.
type JobConfig struct {
	Type                string                    `json:"type"`
	TranscriptionConfig *BatchTranscriptionConfig `json:"transcription_config,omitempty"`
	FetchData           *FetchData                `json:"fetch_data,omitempty"`
	NotificationConfig  []NotificationConfigEntry `json:"notification_config,omitempty"`
	TranslationConfig   *TranslationConfig        `json:"translation_config,omitempty"`
	AudioEventsConfig   *AudioEventsConfig        `json:"audio_events_config,omitempty"`
}

// NewJobConfig lifts a BatchTranscriptionConfig into the JobConfig envelope,
// hoisting the fields that live at the top level of the submission payload.
func NewJobConfig(config BatchTranscriptionConfig) JobConfig {
	return JobConfig{
		Type:                "transcription",
		TranscriptionConfig: &config,
		FetchData:           config.FetchData,
		NotificationConfig:  config.NotificationConfig,
		TranslationConfig:   config.TranslationConfig,
		AudioEventsConfig:   config.AudioEventsConfig,
	}
}

// JobStatus is the lifecycle state of a batch job as reported by the
// service. The client never mutates a job's status itself.
type JobStatus string

const (
	JobStatusRunning  JobStatus = "running"
	JobStatusDone     JobStatus = "done"
	JobStatusRejected JobStatus = "rejected"
	JobStatusDeleted  JobStatus = "deleted"
	JobStatusExpired  JobStatus = "expired"
)

// Terminal reports whether the job has reached a state it can never leave.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusDone, JobStatusRejected, JobStatusDeleted, JobStatusExpired:
		return true
	}
	return false
}

// JobDetails is a job record as returned by the batch API.
type JobDetails struct {
	ID        string     `json:"id"`
	Status    JobStatus  `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	DataName  string     `json:"data_name"`
	Duration  int        `json:"duration"`
	Config    *JobConfig `json:"config,omitempty"`
	Errors    []JobError `json:"errors,omitempty"`
}

// JobError is a per-job diagnostic attached to rejected jobs.
type JobError struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// TranscriptFormat selects the rendering of a finished transcript.
type TranscriptFormat string

const (
	FormatTxt    TranscriptFormat = "txt"
	FormatSRT    TranscriptFormat = "srt"
	FormatJSONV2 TranscriptFormat = "json-v2"
)

// NormalizeFormat maps user-supplied format aliases onto the canonical
// TranscriptFormat values. json and json_v2 are accepted as aliases for
// json-v2.
func NormalizeFormat(format string) (TranscriptFormat, error) {
	switch strings.ToLower(format) {
	case "txt":
		return FormatTxt, nil
	case "srt":
		return FormatSRT, nil
	case "json", "json_v2", "json-v2":
		return FormatJSONV2, nil
	}
	return "", &ValidationError{
		Field:  "format",
		Reason: "valid formats are json-v2, json_v2, json, txt, srt",
	}
}
