package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/speechmatics/speechmatics-go/cliconfig"
)

var (
	flagSetAuthToken         string
	flagSetRealtimeURL       string
	flagSetBatchURL          string
	flagSetGenerateTempToken bool
	flagUnsetKeys            []string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the stored configuration file",
	Long: "Manage the configuration stored at ~/.speechmatics/config. Values " +
		"are grouped by profile; --profile selects which one to edit.",
}

func init() {
	set := &cobra.Command{
		Use:   "set",
		Short: "Store values in the configuration file",
		RunE:  runConfigSet,
	}
	set.Flags().StringVar(&flagSetAuthToken, "auth-token", "", "API key to store")
	set.Flags().StringVar(&flagSetRealtimeURL, "realtime-url", "", "Realtime endpoint URL to store")
	set.Flags().StringVar(&flagSetBatchURL, "batch-url", "", "Batch endpoint URL to store")
	set.Flags().BoolVar(&flagSetGenerateTempToken, "generate-temp-token", false, "Always exchange the API key for a temporary token")

	unset := &cobra.Command{
		Use:   "unset KEY...",
		Short: "Remove values from the configuration file",
		Long: "Remove values from the configuration file. Keys: " +
			strings.Join(knownConfigKeys(), ", ") + ".",
		Args: cobra.MinimumNArgs(1),
		RunE: runConfigUnset,
	}

	configCmd.AddCommand(set, unset)
	RootCmd.AddCommand(configCmd)
}

func knownConfigKeys() []string {
	return []string{
		cliconfig.KeyAuthToken,
		cliconfig.KeyRealtimeURL,
		cliconfig.KeyBatchURL,
		cliconfig.KeyGenerateTempToken,
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	values := map[string]any{}
	if cmd.Flags().Changed("auth-token") {
		values[cliconfig.KeyAuthToken] = flagSetAuthToken
	}
	if cmd.Flags().Changed("realtime-url") {
		values[cliconfig.KeyRealtimeURL] = flagSetRealtimeURL
	}
	if cmd.Flags().Changed("batch-url") {
		values[cliconfig.KeyBatchURL] = flagSetBatchURL
	}
	if cmd.Flags().Changed("generate-temp-token") {
		values[cliconfig.KeyGenerateTempToken] = flagSetGenerateTempToken
	}
	if len(values) == 0 {
		return fmt.Errorf("nothing to set, pass at least one of the value flags")
	}

	file := &cliconfig.File{}
	return file.Set(flagProfile, values)
}

func runConfigUnset(cmd *cobra.Command, args []string) error {
	known := map[string]bool{}
	for _, key := range knownConfigKeys() {
		known[key] = true
	}
	for _, key := range args {
		if !known[key] {
			return fmt.Errorf("unknown configuration key %q, expected one of: %s",
				key, strings.Join(knownConfigKeys(), ", "))
		}
	}

	file := &cliconfig.File{}
	return file.Unset(flagProfile, args)
}
