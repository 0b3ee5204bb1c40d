// Package cli implements the speechmatics command line tool: realtime
// transcription, batch job management and local configuration.
package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/speechmatics/speechmatics-go"
	"github.com/speechmatics/speechmatics-go/cliconfig"
)

var (
	flagURL               string
	flagAuthToken         string
	flagSSLMode           string
	flagProfile           string
	flagGenerateTempToken bool
	flagVerbosity         int
)

var RootCmd = &cobra.Command{
	Use:   "speechmatics",
	Short: "Transcribe audio in real time or in batch via the Speechmatics API",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch flagVerbosity {
		case 0:
			log.SetLevel(log.WarnLevel)
		case 1:
			log.SetLevel(log.InfoLevel)
		default:
			log.SetLevel(log.DebugLevel)
		}
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&flagURL, "url", "", "Endpoint URL (wss:// for realtime, https:// for batch)")
	RootCmd.PersistentFlags().StringVar(&flagAuthToken, "auth-token", "", "API auth token")
	RootCmd.PersistentFlags().StringVar(&flagSSLMode, "ssl-mode", "regular", "SSL mode: regular, insecure or none")
	RootCmd.PersistentFlags().StringVar(&flagProfile, "profile", cliconfig.DefaultProfile, "Config file profile to use")
	RootCmd.PersistentFlags().BoolVar(&flagGenerateTempToken, "generate-temp-token", false, "Exchange the auth token for a temporary one before connecting")
	RootCmd.PersistentFlags().CountVarP(&flagVerbosity, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")

	viper.SetEnvPrefix("SPEECHMATICS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	viper.BindPFlag("auth-token", RootCmd.PersistentFlags().Lookup("auth-token"))
	viper.BindPFlag("url", RootCmd.PersistentFlags().Lookup("url"))
}

// usageMode selects whether settings resolve against the realtime endpoint
// or the batch one.
type usageMode int

const (
	modeRealTime usageMode = iota
	modeBatch
)

// connectionSettings resolves ConnectionSettings from flags, environment
// and the profile config file, in that order of precedence.
func connectionSettings(mode usageMode) (speechmatics.ConnectionSettings, error) {
	var settings speechmatics.ConnectionSettings

	profile, err := (&cliconfig.File{}).LoadProfile(flagProfile)
	if err != nil {
		return settings, err
	}

	token := viper.GetString("auth-token")
	if token == "" && profile != nil {
		token = profile.AuthToken
	}

	if mode == modeBatch {
		settings = speechmatics.DefaultBatchSettings(token)
		if profile != nil && profile.BatchURL != "" {
			settings.URL = profile.BatchURL
		}
	} else {
		settings = speechmatics.DefaultRealTimeSettings(token)
		if profile != nil && profile.RealtimeURL != "" {
			settings.URL = profile.RealtimeURL
		}
	}
	if url := viper.GetString("url"); url != "" {
		settings.URL = url
	}

	settings.GenerateTempToken = flagGenerateTempToken
	if !flagGenerateTempToken && profile != nil {
		settings.GenerateTempToken = profile.GenerateTempToken
	}

	switch flagSSLMode {
	case "regular", "insecure", "none":
		settings.SSLMode = speechmatics.SSLMode(flagSSLMode)
	default:
		return settings, fmt.Errorf("unknown ssl-mode %q: expected regular, insecure or none", flagSSLMode)
	}

	if err := checkSchemeAgainstSSLMode(settings.URL, settings.SSLMode); err != nil {
		return settings, err
	}
	return settings, nil
}

// checkSchemeAgainstSSLMode rejects combinations like a wss:// URL with
// ssl-mode none, which would silently do something other than asked.
func checkSchemeAgainstSSLMode(url string, mode speechmatics.SSLMode) error {
	lower := strings.ToLower(url)
	secure := strings.HasPrefix(lower, "wss://") || strings.HasPrefix(lower, "https://")
	plain := strings.HasPrefix(lower, "ws://") || strings.HasPrefix(lower, "http://")
	if plain && mode != speechmatics.SSLModeNone {
		return fmt.Errorf("ssl-mode %q is incompatible with an unencrypted URL: use wss:// or https://, or --ssl-mode none", mode)
	}
	if secure && mode == speechmatics.SSLModeNone {
		return fmt.Errorf("ssl-mode none is incompatible with an encrypted URL: use ws:// or http://")
	}
	return nil
}

// Run executes the CLI, mapping typed errors onto human-readable messages
// and a non-zero exit status.
func Run() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", describeError(err))
		os.Exit(1)
	}
}

// describeError turns the library's error taxonomy into messages suited
// for the terminal.
func describeError(err error) string {
	var statusErr *speechmatics.HTTPStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case 401:
			return "authentication failed: check your auth token (401)"
		case 400:
			return fmt.Sprintf("the service rejected the request (400): %s", statusErr.Body)
		}
	}
	var notFound *speechmatics.JobNotFoundError
	if errors.As(err, &notFound) {
		return notFound.Error() + ": it may have been deleted or expired"
	}
	return err.Error()
}
