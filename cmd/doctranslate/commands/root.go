package commands

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/adverant/nexus/doctranslate-worker/internal/config"
	"github.com/adverant/nexus/doctranslate-worker/internal/logging"
)

var (
	cfgFile     string
	envFile     string
	logLevel    string
	bestEffort  bool
	pageWorkers int
	lineWorkers int
	targetLang  string
)

var rootCmd = &cobra.Command{
	Use:   "doctranslate",
	Short: "Translate scanned document pages in place",
	Long: `doctranslate recognizes the text lines of page images, translates each line
while protecting glossary terms, paints the translation over the original line
and assembles the translated pages into one PDF.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "env file with credentials")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&bestEffort, "best-effort", false, "keep going past failed pages")
	rootCmd.PersistentFlags().IntVar(&pageWorkers, "page-workers", 0, "pages processed concurrently (default from config)")
	rootCmd.PersistentFlags().IntVar(&lineWorkers, "line-workers", 0, "lines translated concurrently per page (default from config)")
	rootCmd.PersistentFlags().StringVarP(&targetLang, "to", "t", "", "target language code (default from config)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the env file, config file and flag overrides, then
// configures logging. Logs go to stderr so stdout stays usable for output.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env-file") {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") || os.Getenv("LOG_LEVEL") == "" {
		cfg.LogLevel = logLevel
	}
	if targetLang != "" {
		cfg.Translator.TargetLanguage = targetLang
	}
	if bestEffort {
		cfg.Pipeline.BestEffort = true
	}
	if pageWorkers > 0 {
		cfg.Pipeline.PageConcurrency = pageWorkers
	}
	if lineWorkers > 0 {
		cfg.Pipeline.LineConcurrency = lineWorkers
	}

	if err := logging.ConfigureOutput(cfg.LogLevel, "console", "stderr"); err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	return cfg, nil
}
