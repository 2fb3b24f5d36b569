package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/adverant/nexus/doctranslate-worker/internal/config"
	"github.com/adverant/nexus/doctranslate-worker/internal/pipeline"
	"github.com/adverant/nexus/doctranslate-worker/internal/processor"
	"github.com/adverant/nexus/doctranslate-worker/internal/storage"
)

var translateOutDir string

var translateCmd = &cobra.Command{
	Use:   "translate <image>...",
	Short: "Translate page images into a directory",
	Long: `Translate one or more page images, in order, as one document. The output
directory receives translated_page_N.png, translated_page_N.txt and
translated_document.pdf.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTranslate,
}

func init() {
	translateCmd.Flags().StringVarP(&translateOutDir, "out", "o", "translated", "output directory")
	rootCmd.AddCommand(translateCmd)
}

func runTranslate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	pages, err := readPages(args)
	if err != nil {
		return err
	}

	p, closeFn, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	out, err := storage.NewDirStore(translateOutDir)
	if err != nil {
		return err
	}
	proc, err := processor.NewDocumentProcessor(&processor.ProcessorConfig{
		Documents:   p.Documents,
		Store:       out,
		MaxFileSize: cfg.MaxFileSize,
	})
	if err != nil {
		return err
	}

	res, err := proc.ProcessDocument(ctx, &processor.ProcessRequest{
		JobID:          uuid.NewString(),
		TargetLanguage: cfg.Translator.TargetLanguage,
		Pages:          pages,
	})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Translated %d page(s), %d line(s) in %dms\n", res.PageCount-len(res.FailedPages), res.LineCount, res.ProcessingTimeMs)
	if len(res.FailedPages) > 0 {
		fmt.Fprintf(w, "Failed pages: %v\n", res.FailedPages)
	}
	if res.Artifacts != nil && res.Artifacts.Document != nil {
		fmt.Fprintf(w, "Document: %s\n", res.Artifacts.Document.Key)
	}
	return nil
}

func readPages(paths []string) ([][]byte, error) {
	pages := make([][]byte, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read page: %w", err)
		}
		pages = append(pages, data)
	}
	return pages, nil
}

// buildPipeline connects the pipeline, using Redis for the translation
// cache when the config asks for it.
func buildPipeline(cfg *config.Config) (*pipeline.Pipeline, func(), error) {
	opts := pipeline.Options{}
	closeFn := func() {}
	if cfg.Translator.CacheInRedis {
		redisOpt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse Redis URL: %w", err)
		}
		rdb := redis.NewClient(redisOpt)
		opts.Redis = rdb
		closeFn = func() { rdb.Close() }
	}
	p, err := pipeline.New(cfg, opts)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return p, closeFn, nil
}
