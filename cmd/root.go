package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kozaktomas/phenotype-matcher/internal/config"
	"github.com/kozaktomas/phenotype-matcher/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "phenotype-matcher",
	Short: "Match facial images against a reference phenotype corpus",
	Long: `Phenotype Matcher classifies an uploaded facial image against a fixed corpus
of reference phenotypes. It combines an embedding nearest-neighbour search with
optional anthropometric measurements and a vision-language classifier, and
degrades gracefully when an optional signal is unavailable.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig reads the environment and builds the logger for a command.
func loadConfig(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	cfg := config.Load()
	if level, err := cmd.Flags().GetString("log-level"); err == nil && level != "" {
		cfg.Log.Level = level
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
