package cli

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/speechmatics/speechmatics-go"
)

func TestParseAdditionalVocab(t *testing.T) {
	cases := []struct {
		in      string
		want    speechmatics.AdditionalVocabEntry
		wantErr bool
	}{
		{
			in:   "gnocchi",
			want: speechmatics.AdditionalVocabEntry{Content: "gnocchi"},
		},
		{
			in: "gnocchi:nyohki,nokey",
			want: speechmatics.AdditionalVocabEntry{
				Content:    "gnocchi",
				SoundsLike: []string{"nyohki", "nokey"},
			},
		},
		{
			in:   "word:",
			want: speechmatics.AdditionalVocabEntry{Content: "word"},
		},
		{in: "a:b:c", wantErr: true},
		{in: ":sounds", wantErr: true},
	}

	for _, tc := range cases {
		got, err := parseAdditionalVocab(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseAdditionalVocab(%q) = %+v, want error", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseAdditionalVocab(%q) error: %v", tc.in, err)
			continue
		}
		if got.Content != tc.want.Content || len(got.SoundsLike) != len(tc.want.SoundsLike) {
			t.Errorf("parseAdditionalVocab(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestCheckSchemeAgainstSSLMode(t *testing.T) {
	cases := []struct {
		url     string
		mode    speechmatics.SSLMode
		wantErr bool
	}{
		{url: "wss://eu2.rt.speechmatics.com/v2", mode: speechmatics.SSLModeRegular},
		{url: "https://asr.api.speechmatics.com/v2", mode: speechmatics.SSLModeInsecure},
		{url: "ws://localhost:9000", mode: speechmatics.SSLModeNone},
		{url: "ws://localhost:9000", mode: speechmatics.SSLModeRegular, wantErr: true},
		{url: "http://localhost:9000", mode: speechmatics.SSLModeInsecure, wantErr: true},
		{url: "wss://eu2.rt.speechmatics.com/v2", mode: speechmatics.SSLModeNone, wantErr: true},
	}
	for _, tc := range cases {
		err := checkSchemeAgainstSSLMode(tc.url, tc.mode)
		if (err != nil) != tc.wantErr {
			t.Errorf("checkSchemeAgainstSSLMode(%q, %s) = %v, wantErr %t", tc.url, tc.mode, err, tc.wantErr)
		}
	}
}

func TestOpenTranscribeInput(t *testing.T) {
	raw := flagRawEncoding
	defer func() { flagRawEncoding = raw }()
	flagRawEncoding = ""

	content := []byte("RIFFnot really a wav, sniffing must not consume it")
	path := filepath.Join(t.TempDir(), "input.wav")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	input, err := openTranscribeInput(path)
	if err != nil {
		t.Fatalf("openTranscribeInput() = %v", err)
	}
	got, err := io.ReadAll(input)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Errorf("read %d bytes, want the full file from the start", len(got))
	}
	if err := input.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}

	stdin, err := openTranscribeInput("-")
	if err != nil {
		t.Fatalf("openTranscribeInput(-) = %v", err)
	}
	if err := stdin.Close(); err != nil {
		t.Errorf("Close() on stdin wrapper = %v", err)
	}

	if _, err := openTranscribeInput(filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Error("missing file opened, want error")
	}
}

func TestDescribeError(t *testing.T) {
	unauthorized := &speechmatics.HTTPStatusError{StatusCode: 401}
	if got := describeError(unauthorized); !strings.Contains(got, "auth token") {
		t.Errorf("describeError(401) = %q, want auth token hint", got)
	}

	badRequest := &speechmatics.HTTPStatusError{StatusCode: 400, Body: "bad config"}
	if got := describeError(badRequest); !strings.Contains(got, "bad config") {
		t.Errorf("describeError(400) = %q, want the response body", got)
	}

	notFound := &speechmatics.JobNotFoundError{JobID: "job123"}
	if got := describeError(notFound); !strings.Contains(got, "job123") {
		t.Errorf("describeError(not found) = %q, want the job id", got)
	}
}
