package models

import (
	"image"
	"math"
	"strings"
)

// TextLine is one recognized line of text. BoundingBox holds the corner
// points with x and y interleaved, normally 8 numbers.
type TextLine struct {
	Text        string    `json:"text"`
	BoundingBox []float64 `json:"boundingBox"`
}

// BoundingBox is the axis-aligned envelope of a TextLine polygon.
type BoundingBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// Envelope returns the min/max envelope of the polygon. ok is false when
// the polygon has no complete point.
func (l TextLine) Envelope() (BoundingBox, bool) {
	return EnvelopeOf(l.BoundingBox)
}

// EnvelopeOf computes the envelope of interleaved x/y coordinates. A
// trailing odd value is ignored.
func EnvelopeOf(points []float64) (BoundingBox, bool) {
	if len(points) < 2 {
		return BoundingBox{}, false
	}
	box := BoundingBox{
		Left:   math.Inf(1),
		Top:    math.Inf(1),
		Right:  math.Inf(-1),
		Bottom: math.Inf(-1),
	}
	for i := 0; i+1 < len(points); i += 2 {
		x, y := points[i], points[i+1]
		if math.IsNaN(x) || math.IsNaN(y) {
			return BoundingBox{}, false
		}
		box.Left = math.Min(box.Left, x)
		box.Right = math.Max(box.Right, x)
		box.Top = math.Min(box.Top, y)
		box.Bottom = math.Max(box.Bottom, y)
	}
	return box, true
}

// Width of the box.
func (b BoundingBox) Width() float64 { return b.Right - b.Left }

// Height of the box.
func (b BoundingBox) Height() float64 { return b.Bottom - b.Top }

// Empty reports whether the box covers no area.
func (b BoundingBox) Empty() bool {
	return b.Right <= b.Left || b.Bottom <= b.Top
}

// Clamp restricts the box to [0,width]x[0,height]. A box entirely outside
// the image comes back empty.
func (b BoundingBox) Clamp(width, height int) BoundingBox {
	w, h := float64(width), float64(height)
	return BoundingBox{
		Left:   clamp(b.Left, 0, w),
		Top:    clamp(b.Top, 0, h),
		Right:  clamp(b.Right, 0, w),
		Bottom: clamp(b.Bottom, 0, h),
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// TranslatedLine pairs a translation with the box of the line it replaces.
type TranslatedLine struct {
	Source TextLine    `json:"source"`
	Text   string      `json:"text"`
	Box    BoundingBox `json:"box"`
	// Placed is false when the source polygon was degenerate; the line is
	// kept for the page text but not drawn.
	Placed bool `json:"placed"`
}

// Page is the result of processing one input image.
type Page struct {
	Index           int              `json:"index"`
	OriginalImage   image.Image      `json:"-"`
	TranslatedImage image.Image      `json:"-"`
	Lines           []TranslatedLine `json:"lines"`
	Err             error            `json:"-"`
}

// TranslatedText joins the translated lines in OCR order.
func (p *Page) TranslatedText() string {
	parts := make([]string, len(p.Lines))
	for i, l := range p.Lines {
		parts[i] = l.Text
	}
	return strings.Join(parts, "\n")
}

// OK reports whether the page finished without error.
func (p *Page) OK() bool {
	return p.Err == nil && p.TranslatedImage != nil
}

// Document is an ordered sequence of pages.
type Document struct {
	Pages []*Page
}

// TranslatedImages returns the translated image of every successful page,
// in page order.
func (d *Document) TranslatedImages() []image.Image {
	var out []image.Image
	for _, p := range d.Pages {
		if p.OK() {
			out = append(out, p.TranslatedImage)
		}
	}
	return out
}

// FailedPages returns the 1-based numbers of pages that failed.
func (d *Document) FailedPages() []int {
	var out []int
	for _, p := range d.Pages {
		if !p.OK() {
			out = append(out, p.Index+1)
		}
	}
	return out
}

// LineCount is the number of translated lines across all pages.
func (d *Document) LineCount() int {
	n := 0
	for _, p := range d.Pages {
		n += len(p.Lines)
	}
	return n
}
