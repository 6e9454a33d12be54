// Package cmd implements the goalctl command line.
package cmd

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"goalbreaker/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "goalctl",
	Short: "Break goals down into plans with several models at once",
	Long: `goalctl asks one or more models to break a goal into steps, lets you
drill into any step, edit earlier messages as new versions and swap models.
Conversations are cached locally and saved to the goals backend.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is $HOME/.config/goalbreaker/config.yaml)")
	flags.String("api-url", "", "goals backend base URL")
	flags.String("user", "", "user id conversations are saved under")
	flags.String("token", "", "bearer token for the backend")
	flags.String("cache", "", "local cache database path")
	flags.Duration("save-debounce", 0, "quiet period before a conversation is saved")
	flags.StringSlice("fallback-pool", nil, "models tried when one fails (default: catalog pool)")
	flags.String("log-dir", "", "write logs to timestamped files in this directory")
	flags.BoolP("verbose", "v", false, "debug logging")

	for key, flag := range map[string]string{
		"config":        "config",
		"api_url":       "api-url",
		"user_id":       "user",
		"token":         "token",
		"cache_path":    "cache",
		"save_debounce": "save-debounce",
		"fallback_pool": "fallback-pool",
		"log_dir":       "log-dir",
		"verbose":       "verbose",
	} {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}
}

func initConfig() {
	// GOALBREAKER_* values from the environment (or .env) are the defaults
	env := config.LoadClient()
	viper.SetDefault("api_url", env.APIURL)
	viper.SetDefault("user_id", env.UserID)
	viper.SetDefault("token", env.Token)
	viper.SetDefault("cache_path", env.CachePath)
	viper.SetDefault("save_debounce", env.SaveDebounce)
	viper.SetDefault("fallback_pool", env.FallbackPool)
	viper.SetDefault("log_dir", env.LogDir)

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			viper.AddConfigPath(filepath.Join(dir, "goalbreaker"))
		}
		viper.AddConfigPath("$HOME/.config/goalbreaker")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("GOALBREAKER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// clientConfig resolves flags, config file and environment into one config
func clientConfig() *config.ClientConfig {
	return &config.ClientConfig{
		APIURL:       viper.GetString("api_url"),
		UserID:       viper.GetString("user_id"),
		Token:        viper.GetString("token"),
		CachePath:    viper.GetString("cache_path"),
		SaveDebounce: viper.GetDuration("save_debounce"),
		FallbackPool: viper.GetStringSlice("fallback_pool"),
		LogDir:       viper.GetString("log_dir"),
	}
}
