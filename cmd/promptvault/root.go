package main

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/thebtf/promptvault/internal/config"
)

var (
	cfgFile    string
	debug      bool
	jsonOutput bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "promptvault",
	Short: "Prompt library indexer",
	Long: `promptvault keeps a SQLite index of a directory of prompt documents.

Each prompt lives in its own directory with a prompt.md body and a
metadata.yml sidecar. Variables declared in the sidecar can hold literal
values, fragment references ($fragment:category/name) or env references
($env:NAME) that are resolved on demand.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(config.DefaultLogLevel, "")

		var err error
		if cfgFile != "" {
			cfg, err = config.LoadFile(cfgFile)
		} else {
			if err := config.EnsureAll(); err != nil {
				log.Warn().Err(err).Msg("Failed to ensure data directory")
			}
			cfg, err = config.Load()
		}
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load config, using defaults")
			cfg = config.Default()
		}

		setupLogging(cfg.LogLevel, cfg.LogFile)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "settings file (default: ~/.promptvault/settings.json)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")

	rootCmd.AddCommand(
		syncCmd,
		cleanupCmd,
		listCmd,
		showCmd,
		searchCmd,
		resolveCmd,
		varCmd,
		envCmd,
		fragmentsCmd,
		refreshCmd,
		favoriteCmd,
		historyCmd,
		watchCmd,
		serveCmd,
		versionCmd,
	)
}

// setupLogging writes console logs to stderr so stdout stays clean for
// command output. When logFile is set, JSON logs also go to a rotating file.
func setupLogging(level, logFile string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if debug {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true}
	if logFile != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     30, // days
			Compress:   true,
		})
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}
