package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// searched for config.yaml on linux
	defCfgPath = "/etc/tunerproxy/"
	// TUNERPROXY_PORT, TUNERPROXY_CACHE_TTL, ...
	envPrefix = "TUNERPROXY"
)

var rootCmd = &cobra.Command{
	Use:     "tunerproxy",
	Short:   "Network tuner emulator CLI.",
	Long:    `Presents regions of a streaming backend as network TV tuners.`,
	Version: "1.0.0",
}

// called after the watched config file changed
var onConfigChange []func()

func init() {
	var cfgFile string
	var logging logConfig

	cobra.OnInitialize(func() {
		if err := readConfiguration(cfgFile); err != nil {
			// logging is not configured yet
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		logging.Set()
		logging.apply()

		file := viper.ConfigFileUsed()
		if file == "" {
			log.Warn().Msg("preflight complete without config file")
			return
		}

		viper.OnConfigChange(func(e fsnotify.Event) {
			log.Info().Str("op", e.Op.String()).Msg("config file reloaded")

			for _, reload := range onConfigChange {
				reload()
			}
		})
		viper.WatchConfig()

		log.Info().Str("config", file).Msg("preflight complete with config file")
	})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration file path")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	_ = logging.Init(rootCmd)
}

func Execute() error {
	return rootCmd.Execute()
}

func configPaths() []string {
	var paths []string
	if runtime.GOOS == "linux" {
		paths = append(paths, defCfgPath)
	}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "tunerproxy"))
	}
	return append(paths, ".")
}

// readConfiguration loads an explicit file or the first config.* found in
// configPaths. Only a missing explicit file is an error.
func readConfiguration(cfgFile string) error {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("fatal error config file: %w", err)
		}
		return nil
	}

	viper.SetConfigName("config")
	for _, path := range configPaths() {
		viper.AddConfigPath(path)
	}

	err := viper.ReadInConfig()
	if _, notFound := err.(viper.ConfigFileNotFoundError); err != nil && !notFound {
		return fmt.Errorf("unable to read config file: %w", err)
	}
	return nil
}
