package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/speechmatics/speechmatics-go"
	"github.com/speechmatics/speechmatics-go/audio"
	"github.com/speechmatics/speechmatics-go/rt"
)

var (
	flagLang                     string
	flagOutputLocale             string
	flagOperatingPoint           string
	flagDiarization              string
	flagSpeakerChangeSensitivity float64
	flagSpeakerChangeToken       bool
	flagEnablePartials           bool
	flagEnableEntities           bool
	flagMaxDelay                 float64
	flagMaxDelayMode             string
	flagAdditionalVocab          []string
	flagPunctuationMarks         string
	flagPunctuationSensitivity   float64
	flagTranslationLangs         []string
	flagRawEncoding              string
	flagSampleRate               int
	flagChunkSize                int
	flagBufferSize               int
)

var partialStyle = lipgloss.NewStyle().Faint(true)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe FILEPATH...",
	Short: "Transcribe audio in real time and print results to the console",
	Long: "Transcribe an audio file or stream in real time and output the " +
		"results to the console. Pass - to read audio from stdin.",
	Args: cobra.MinimumNArgs(1),
	RunE: runTranscribe,
}

var rtCmd = &cobra.Command{
	Use:   "rt",
	Short: "Real-time commands",
}

func init() {
	addTranscriptionFlags(transcribeCmd)

	rtTranscribeCmd := &cobra.Command{
		Use:   "transcribe FILEPATH...",
		Short: transcribeCmd.Short,
		Long:  transcribeCmd.Long,
		Args:  cobra.MinimumNArgs(1),
		RunE:  runTranscribe,
	}
	addTranscriptionFlags(rtTranscribeCmd)
	rtCmd.AddCommand(rtTranscribeCmd)

	RootCmd.AddCommand(transcribeCmd)
	RootCmd.AddCommand(rtCmd)
}

func addTranscriptionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagLang, "lang", "en", "Language ISO code, e.g. en, fr, de")
	cmd.Flags().StringVar(&flagOutputLocale, "output-locale", "", "Locale of the transcript output, e.g. en-US")
	cmd.Flags().StringVar(&flagOperatingPoint, "operating-point", "", "Operating point: standard or enhanced")
	cmd.Flags().StringVar(&flagDiarization, "diarization", "", "Diarization mode: none, speaker or speaker_change")
	cmd.Flags().Float64Var(&flagSpeakerChangeSensitivity, "speaker-change-sensitivity", 0, "Sensitivity for speaker change detection (0.0 to 1.0)")
	cmd.Flags().BoolVar(&flagSpeakerChangeToken, "speaker-change-token", false, "Include a <sc> token in output where a speaker change was detected")
	cmd.Flags().BoolVar(&flagEnablePartials, "enable-partials", false, "Print partial transcripts as audio is processed")
	cmd.Flags().BoolVar(&flagEnableEntities, "enable-entities", false, "Enable entity detection")
	cmd.Flags().Float64Var(&flagMaxDelay, "max-delay", 0, "Maximum delay in seconds between finals")
	cmd.Flags().StringVar(&flagMaxDelayMode, "max-delay-mode", "", "Max delay mode: fixed or flexible")
	cmd.Flags().StringSliceVar(&flagAdditionalVocab, "additional-vocab", nil, "Additional vocab entries, content:sounds_like,sounds_like")
	cmd.Flags().StringVar(&flagPunctuationMarks, "punctuation-permitted-marks", "", "Space separated list of permitted punctuation marks")
	cmd.Flags().Float64Var(&flagPunctuationSensitivity, "punctuation-sensitivity", 0, "Sensitivity level for advanced punctuation")
	cmd.Flags().StringSliceVar(&flagTranslationLangs, "translation-langs", nil, "Target languages for translation")
	cmd.Flags().StringVar(&flagRawEncoding, "raw", "", "Input is raw audio with this encoding, e.g. pcm_s16le")
	cmd.Flags().IntVar(&flagSampleRate, "sample-rate", speechmatics.DefaultSampleRate, "Sample rate for raw audio")
	cmd.Flags().IntVar(&flagChunkSize, "chunk-size", speechmatics.DefaultChunkSize, "Audio bytes sent per message")
	cmd.Flags().IntVar(&flagBufferSize, "buffer-size", speechmatics.DefaultMessageBufferSize, "Maximum unacknowledged audio messages in flight")
}

// transcriptionConfigFromFlags assembles the session config from the
// command line.
func transcriptionConfigFromFlags() (speechmatics.TranscriptionConfig, error) {
	config := speechmatics.TranscriptionConfig{
		Language:                 flagLang,
		OutputLocale:             flagOutputLocale,
		OperatingPoint:           speechmatics.OperatingPoint(flagOperatingPoint),
		Diarization:              flagDiarization,
		SpeakerChangeSensitivity: flagSpeakerChangeSensitivity,
		EnablePartials:           flagEnablePartials,
		EnableEntities:           flagEnableEntities,
		MaxDelay:                 flagMaxDelay,
		MaxDelayMode:             flagMaxDelayMode,
	}

	for _, item := range flagAdditionalVocab {
		entry, err := parseAdditionalVocab(item)
		if err != nil {
			return config, err
		}
		config.AdditionalVocab = append(config.AdditionalVocab, entry)
	}

	if flagPunctuationMarks != "" || flagPunctuationSensitivity != 0 {
		config.PunctuationOverrides = &speechmatics.PunctuationOverrides{
			Sensitivity: flagPunctuationSensitivity,
		}
		if flagPunctuationMarks != "" {
			config.PunctuationOverrides.PermittedMarks = strings.Fields(flagPunctuationMarks)
		}
	}

	if len(flagTranslationLangs) > 0 {
		config.TranslationConfig = &speechmatics.TranslationConfig{
			TargetLanguages: flagTranslationLangs,
			EnablePartials:  flagEnablePartials,
		}
	}
	return config, nil
}

// parseAdditionalVocab parses one vocab item in the form
// content:sounds_like,sounds_like.
func parseAdditionalVocab(item string) (speechmatics.AdditionalVocabEntry, error) {
	parts := strings.Split(item, ":")
	if len(parts) > 2 {
		return speechmatics.AdditionalVocabEntry{}, fmt.Errorf(
			"can't have more than one separator (:) in additional vocab: %q", item)
	}
	if parts[0] == "" {
		return speechmatics.AdditionalVocabEntry{}, fmt.Errorf(
			"additional vocab must at least have content in: %q", item)
	}
	entry := speechmatics.AdditionalVocabEntry{Content: parts[0]}
	if len(parts) == 2 {
		for _, sounds := range strings.Split(parts[1], ",") {
			if sounds != "" {
				entry.SoundsLike = append(entry.SoundsLike, sounds)
			}
		}
	}
	return entry, nil
}

func audioFormatFromFlags() speechmatics.AudioFormat {
	return speechmatics.AudioFormat{
		Encoding:   flagRawEncoding,
		SampleRate: flagSampleRate,
		ChunkSize:  flagChunkSize,
	}
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	settings, err := connectionSettings(modeRealTime)
	if err != nil {
		return err
	}
	settings.MessageBufferSize = flagBufferSize

	config, err := transcriptionConfigFromFlags()
	if err != nil {
		return err
	}
	format := audioFormatFromFlags()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	for _, path := range args {
		input, err := openTranscribeInput(path)
		if err != nil {
			return err
		}

		session := rt.NewSession(settings)
		session.FromCLI = true
		addPrintingHandlers(session, flagEnablePartials, flagSpeakerChangeToken)

		runErr := session.Run(ctx, input, config, format)
		input.Close()
		if runErr != nil {
			return runErr
		}
	}
	return nil
}

// openTranscribeInput opens one audio argument, with - meaning stdin. File
// inputs have their WAV header sniffed for logging, then rewound so the
// whole file is streamed. The caller closes the returned reader after each
// session.
func openTranscribeInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if flagRawEncoding == "" {
		if info, err := audio.ReadWAVHeader(file); err == nil {
			log.Debug("wav input", "encoding", info.Encoding(),
				"sample_rate", info.SampleRate, "duration", info.Duration())
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			file.Close()
			return nil, err
		}
	}
	return file, nil
}

// addPrintingHandlers registers handlers that print transcripts as they
// arrive. Partials overwrite the current line on stderr; finals go to
// stdout.
func addPrintingHandlers(session *rt.Session, enablePartials, speakerChangeToken bool) {
	if enablePartials {
		session.AddEventHandler(rt.MessageAddPartialTranscript, func(msg *rt.ServerMessage) error {
			if msg.Metadata != nil {
				fmt.Fprint(os.Stderr, partialStyle.Render(msg.Metadata.Transcript)+"\r")
			}
			return nil
		})
	}

	session.AddEventHandler(rt.MessageAddTranscript, func(msg *rt.ServerMessage) error {
		if msg.Metadata == nil || msg.Metadata.Transcript == "" {
			return nil
		}
		transcript := msg.Metadata.Transcript
		if speakerChangeToken {
			transcript = strings.ReplaceAll(transcript, "\n", "\n<sc>\n")
		}
		fmt.Println(transcript)
		return nil
	})

	session.AddEventHandler(rt.MessageAddTranslation, func(msg *rt.ServerMessage) error {
		results, err := msg.TranslationResults()
		if err != nil {
			log.Warn("could not decode translation", "err", err)
			return nil
		}
		if text := speechmatics.ConvertTranslationsToTxt(results); text != "" {
			fmt.Printf("[%s] %s\n", msg.Language, text)
		}
		return nil
	})

	session.AddEventHandler(rt.MessageEndOfTranscript, func(msg *rt.ServerMessage) error {
		if enablePartials {
			fmt.Fprintln(os.Stderr)
		}
		return nil
	})
}
