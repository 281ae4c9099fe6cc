package cmd

import (
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

type logConfig struct {
	Level string
	// human readable output on stderr
	Console bool
	// JSON lines on stderr, ignored together with Console
	JSON    bool
	NoColor bool
	// rotated log file, disabled when empty
	File       string
	MaxAge     int // days
	MaxSize    int // megabytes
	MaxBackups int // files
}

func (logConfig) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().String("log.level", "info", "log level: trace, debug, info, warn, error")
	if err := viper.BindPFlag("log.level", cmd.PersistentFlags().Lookup("log.level")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("log.console", true, "human readable log on stderr")
	if err := viper.BindPFlag("log.console", cmd.PersistentFlags().Lookup("log.console")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("log.json", false, "JSON log on stderr when console logging is off")
	if err := viper.BindPFlag("log.json", cmd.PersistentFlags().Lookup("log.json")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("log.nocolor", false, "disable colors in console log")
	if err := viper.BindPFlag("log.nocolor", cmd.PersistentFlags().Lookup("log.nocolor")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("log.file", "", "also write the log to this file, rotated on SIGHUP")
	if err := viper.BindPFlag("log.file", cmd.PersistentFlags().Lookup("log.file")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("log.maxage", 0, "days to keep rotated log files")
	if err := viper.BindPFlag("log.maxage", cmd.PersistentFlags().Lookup("log.maxage")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("log.maxsize", 100, "megabytes before the log file is rotated")
	if err := viper.BindPFlag("log.maxsize", cmd.PersistentFlags().Lookup("log.maxsize")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("log.maxbackups", 0, "rotated log files to keep")
	if err := viper.BindPFlag("log.maxbackups", cmd.PersistentFlags().Lookup("log.maxbackups")); err != nil {
		return err
	}

	return nil
}

func (c *logConfig) Set() {
	c.Level = viper.GetString("log.level")
	c.Console = viper.GetBool("log.console")
	c.JSON = viper.GetBool("log.json")
	c.NoColor = viper.GetBool("log.nocolor")
	c.File = viper.GetString("log.file")
	c.MaxAge = viper.GetInt("log.maxage")
	c.MaxSize = viper.GetInt("log.maxsize")
	c.MaxBackups = viper.GetInt("log.maxbackups")
}

func (c *logConfig) writers() []io.Writer {
	var writers []io.Writer

	switch {
	case c.Console:
		writers = append(writers, zerolog.ConsoleWriter{
			Out:     os.Stderr,
			NoColor: c.NoColor,
		})
	case c.JSON:
		writers = append(writers, os.Stderr)
	}

	if c.File != "" {
		file := &lumberjack.Logger{
			Filename:   c.File,
			MaxAge:     c.MaxAge,
			MaxSize:    c.MaxSize,
			MaxBackups: c.MaxBackups,
		}

		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		go func() {
			for range hup {
				if err := file.Rotate(); err != nil {
					log.Err(err).Str("file", c.File).Msg("unable to rotate log file")
				}
			}
		}()

		writers = append(writers, file)
	}

	return writers
}

// apply replaces the global logger.
func (c *logConfig) apply() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(io.MultiWriter(c.writers()...))

	level, err := zerolog.ParseLevel(c.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
		log.Warn().Str("log-level", c.Level).Msg("unknown log level, using info")
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("level", level.String()).
		Bool("console", c.Console).
		Bool("json", c.JSON).
		Str("file", c.File).
		Int("maxage", c.MaxAge).
		Int("maxsize", c.MaxSize).
		Int("maxbackups", c.MaxBackups).
		Msg("logging configured")
}
