package processor

import (
	"context"
	stderrors "errors"
	"fmt"
	"image"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/adverant/nexus/doctranslate-worker/internal/errors"
	"github.com/adverant/nexus/doctranslate-worker/internal/logging"
	"github.com/adverant/nexus/doctranslate-worker/internal/models"
	"github.com/adverant/nexus/doctranslate-worker/internal/render"
)

// DocumentOptions configures a DocumentAssembler.
type DocumentOptions struct {
	// PageConcurrency bounds how many pages are processed at once.
	PageConcurrency int
	// BestEffort keeps going past failed pages instead of aborting the
	// document on the first one.
	BestEffort bool
	Logger     *logging.Logger
}

// DocumentAssembler applies a PageProcessor to every page of a document
// and assembles the translated pages into one PDF.
type DocumentAssembler struct {
	pages       *PageProcessor
	concurrency int
	bestEffort  bool
	logger      *logging.Logger
}

// NewDocumentAssembler creates a document assembler
func NewDocumentAssembler(pages *PageProcessor, opts DocumentOptions) (*DocumentAssembler, error) {
	if pages == nil {
		return nil, fmt.Errorf("page processor is required")
	}
	if opts.PageConcurrency < 1 {
		opts.PageConcurrency = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger("DocumentAssembler")
	}
	return &DocumentAssembler{
		pages:       pages,
		concurrency: opts.PageConcurrency,
		bestEffort:  opts.BestEffort,
		logger:      logger,
	}, nil
}

// BestEffort reports whether failed pages are tolerated.
func (d *DocumentAssembler) BestEffort() bool {
	return d.bestEffort
}

// ForJob returns an assembler for one job's target language and mode.
// Every collaborator is shared with d.
func (d *DocumentAssembler) ForJob(targetLanguage string, bestEffort bool) *DocumentAssembler {
	c := *d
	c.bestEffort = d.bestEffort || bestEffort
	if targetLanguage != "" && targetLanguage != d.pages.lines.target {
		pages := *d.pages
		lines := *d.pages.lines
		lines.target = targetLanguage
		pages.lines = &lines
		c.pages = &pages
	}
	return &c
}

// ProcessDocument processes images in order and returns one Page per
// image, in input order.
//
// By default the first failing page aborts the document: pages not yet
// started are skipped and no document is returned. In best-effort mode
// every page is attempted, failed pages carry their error in Page.Err,
// and the returned error joins all page errors.
func (d *DocumentAssembler) ProcessDocument(ctx context.Context, images []image.Image) (*models.Document, error) {
	if d.bestEffort {
		return d.processBestEffort(ctx, images)
	}

	pages := make([]*models.Page, len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, img := range images {
		if gctx.Err() != nil {
			break
		}
		i, img := i, img
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			page, err := d.pages.ProcessPage(gctx, i, img)
			if err != nil {
				return err
			}
			pages[i] = page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		d.logger.Error("Document aborted", "pages", len(images), "error", err)
		return nil, err
	}
	// parent context cancelled before every page was scheduled
	for i, p := range pages {
		if p == nil {
			return nil, errors.NewProcessingTimeoutError("", 0, ctx.Err()).AtPage(i + 1)
		}
	}
	return &models.Document{Pages: pages}, nil
}

func (d *DocumentAssembler) processBestEffort(ctx context.Context, images []image.Image) (*models.Document, error) {
	pages := make([]*models.Page, len(images))
	pageErrs := make([]error, len(images))

	var wg sync.WaitGroup
	sem := make(chan struct{}, d.concurrency)
	for i, img := range images {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, img image.Image) {
			defer wg.Done()
			defer func() { <-sem }()
			page, err := d.pages.ProcessPage(ctx, i, img)
			if err != nil {
				pageErrs[i] = err
				page = &models.Page{Index: i, OriginalImage: img, Err: err}
			}
			pages[i] = page
		}(i, img)
	}
	wg.Wait()

	doc := &models.Document{Pages: pages}
	err := stderrors.Join(pageErrs...)
	if err != nil {
		d.logger.Warn("Document finished with failed pages",
			"pages", len(images),
			"failed", doc.FailedPages())
	}
	return doc, err
}

// Assemble writes translated page images as one PDF, in order.
func (d *DocumentAssembler) Assemble(w io.Writer, images []image.Image) error {
	return render.AssemblePDF(w, images)
}

// AssembleDocument writes the successful pages of doc as one PDF.
func (d *DocumentAssembler) AssembleDocument(w io.Writer, doc *models.Document) error {
	if doc == nil {
		return errors.NewAssembleError("no document to assemble", nil)
	}
	return render.AssemblePDF(w, doc.TranslatedImages())
}
