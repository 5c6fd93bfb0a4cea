package cli

import (
	"fmt"
	"slices"
	"sort"

	"github.com/spf13/cobra"

	"github.com/audiovideoron/distillyzer/internal/adapters/driven/config/file"
	"github.com/audiovideoron/distillyzer/internal/config"
	"github.com/audiovideoron/distillyzer/internal/core/domain"
	"github.com/audiovideoron/distillyzer/internal/logger"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read and change settings",
	Long: `Reads and writes the TOML config file. Keys use dot notation, for
example embedding.model or chunk.size. Environment variables named DZ_ plus
the key in upper case (DZ_EMBEDDING_MODEL) override the file.`,
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print a setting",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Change a setting",
	Long:  `Stores a setting. Numbers and booleans are stored with their type.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset [key]",
	Short: "Remove a setting so the default applies",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigUnset,
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every stored setting",
	Args:  cobra.NoArgs,
	RunE:  runConfigList,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configGetCmd, configSetCmd, configUnsetCmd, configListCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func requireConfigStore() error {
	if configStore == nil {
		return fmt.Errorf("config store %w", errNotConfigured)
	}
	return nil
}

func warnUnknownKey(key string) {
	if !config.IsKnownKey(key) {
		logger.Warn("%q is not a known setting", key)
	}
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	if err := requireConfigStore(); err != nil {
		return err
	}
	v, ok := configStore.Get(args[0])
	if !ok {
		return fmt.Errorf("%w: %s is not set", domain.ErrNotFound, args[0])
	}
	fmt.Fprintln(cmd.OutOrStdout(), v)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if err := requireConfigStore(); err != nil {
		return err
	}
	warnUnknownKey(args[0])
	if err := configStore.Set(args[0], file.ParseValue(args[1])); err != nil {
		return fmt.Errorf("set %s: %w", args[0], err)
	}
	shown := args[1]
	if isSecret(args[0]) {
		shown = maskSecret(shown)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], shown)
	return nil
}

func runConfigUnset(cmd *cobra.Command, args []string) error {
	if err := requireConfigStore(); err != nil {
		return err
	}
	if err := configStore.Unset(args[0]); err != nil {
		return fmt.Errorf("unset %s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s removed\n", args[0])
	return nil
}

func runConfigList(cmd *cobra.Command, _ []string) error {
	if err := requireConfigStore(); err != nil {
		return err
	}
	keys := configStore.Keys()
	if len(keys) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No settings stored; defaults apply.")
		return nil
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, _ := configStore.Get(k)
		if isSecret(k) {
			v = maskSecret(fmt.Sprint(v))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", k, v)
	}
	return nil
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	if err := requireConfigStore(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), configStore.Path())
	return nil
}

var secretKeys = []string{
	config.KeyEmbedAPIKey, config.KeyLLMAPIKey, config.KeyTranscribeAPIKey,
	config.KeyGitHubToken, config.KeyYouTubeAPIKey, config.KeyDatabaseURL,
}

func isSecret(key string) bool {
	return slices.Contains(secretKeys, key)
}

// maskSecret keeps the first and last four characters of long values.
func maskSecret(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
