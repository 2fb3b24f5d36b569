package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var textOutFile string

var textCmd = &cobra.Command{
	Use:   "text <file|->",
	Short: "Translate a plain text file line by line",
	Long:  "Translate a plain text file line by line, keeping blank lines and the line count. Use - to read stdin.",
	Args:  cobra.ExactArgs(1),
	RunE:  runText,
}

func init() {
	textCmd.Flags().StringVarP(&textOutFile, "out", "o", "", "output file (default stdout)")
	rootCmd.AddCommand(textCmd)
}

func runText(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	var out io.Writer = cmd.OutOrStdout()
	if textOutFile != "" {
		f, err := os.Create(textOutFile)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	p, closeFn, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	return p.Text.TranslateStream(ctx, in, out)
}
