/**
 * Tesseract OCR - local line recognition
 *
 * Offline alternative to the Azure Read client. Requires libtesseract,
 * which is why it lives apart from the pure-Go pipeline packages.
 */

package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"
	"time"

	"github.com/otiai10/gosseract/v2"

	"github.com/adverant/nexus/doctranslate-worker/internal/errors"
	"github.com/adverant/nexus/doctranslate-worker/internal/logging"
	"github.com/adverant/nexus/doctranslate-worker/internal/metrics"
	"github.com/adverant/nexus/doctranslate-worker/internal/models"
)

const engineName = "tesseract"

// Config holds Tesseract configuration
type Config struct {
	Languages []string
}

// Recognizer extracts text lines with bounding boxes.
type Recognizer struct {
	languages []string
	logger    *logging.Logger
}

// NewRecognizer creates a Tesseract recognizer
func NewRecognizer(cfg Config) *Recognizer {
	langs := cfg.Languages
	if len(langs) == 0 {
		langs = []string{"eng"}
	}
	return &Recognizer{
		languages: langs,
		logger:    logging.NewLogger("TesseractOCR"),
	}
}

// Recognize runs Tesseract over img and returns one TextLine per detected
// text line, in Tesseract's layout order.
func (r *Recognizer) Recognize(ctx context.Context, img image.Image) ([]models.TextLine, error) {
	if img == nil {
		return nil, errors.NewOCRServiceError("no image to recognize", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.NewOCRServiceError("cancelled before OCR", err)
	}
	startTime := time.Now()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errors.NewOCRServiceError("failed to encode page", err)
	}

	// Clients are not safe for concurrent use; one per page.
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(r.languages...); err != nil {
		return nil, errors.NewOCRServiceError("failed to set languages", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, errors.NewOCRServiceError("failed to set image", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		metrics.RecordOCRRequest(engineName, "failed")
		return nil, errors.NewOCRServiceError(fmt.Sprintf("tesseract OCR failed (%s)", strings.Join(r.languages, "+")), err)
	}

	// Tesseract reports image coordinates relative to the encoded PNG,
	// whose origin is always (0,0).
	lines := make([]models.TextLine, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		lines = append(lines, models.TextLine{Text: text, BoundingBox: rectPolygon(b.Box)})
	}

	metrics.RecordOCRRequest(engineName, "succeeded")
	r.logger.Info("OCR complete",
		"lines", len(lines),
		"duration", time.Since(startTime).String())
	return lines, nil
}

// rectPolygon lists the corners clockwise from the top-left, the same
// shape the Read API returns.
func rectPolygon(r image.Rectangle) []float64 {
	x0, y0 := float64(r.Min.X), float64(r.Min.Y)
	x1, y1 := float64(r.Max.X), float64(r.Max.Y)
	return []float64{x0, y0, x1, y0, x1, y1, x0, y1}
}
