/**
 * Overlay renderer
 *
 * Paints a near-opaque white box over each recognized line and draws the
 * translation at the box's top-left corner. Lines are drawn in the order
 * given, so a later line covers an earlier one where boxes overlap.
 */

package render

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"

	"github.com/adverant/nexus/doctranslate-worker/internal/errors"
	"github.com/adverant/nexus/doctranslate-worker/internal/logging"
	"github.com/adverant/nexus/doctranslate-worker/internal/models"
)

const minFitFontSize = 6

// OverlayConfig configures the renderer.
type OverlayConfig struct {
	FontPath        string
	FontSize        float64
	BackgroundAlpha int
	FitText         bool
}

// Overlay draws translated text over a copy of a page image.
type Overlay struct {
	font       fontSource
	size       float64
	background color.NRGBA
	foreground color.Color
	fit        bool
}

// NewOverlay creates a renderer. A missing or unparseable preferred font
// is logged and replaced by a built-in one.
func NewOverlay(cfg OverlayConfig, logger *logging.Logger) *Overlay {
	if cfg.FontSize <= 0 {
		cfg.FontSize = 20
	}
	if cfg.BackgroundAlpha <= 0 || cfg.BackgroundAlpha > 255 {
		cfg.BackgroundAlpha = 230
	}

	src, err := resolveFont(cfg.FontPath)
	if err != nil {
		logger.Warn("Preferred font unavailable, using fallback",
			"font", cfg.FontPath,
			"fallback", src.name,
			"error", err)
	}

	return &Overlay{
		font:       src,
		size:       cfg.FontSize,
		background: color.NRGBA{R: 255, G: 255, B: 255, A: uint8(cfg.BackgroundAlpha)},
		foreground: color.Black,
		fit:        cfg.FitText,
	}
}

// FontName reports the font actually in use.
func (o *Overlay) FontName() string {
	return o.font.name
}

// Render returns a new image; src is never modified. Boxes are clamped to
// the image and lines whose box is empty after clamping are skipped.
func (o *Overlay) Render(src image.Image, lines []models.TranslatedLine) (image.Image, error) {
	if src == nil {
		return nil, errors.NewRenderError("no source image", nil)
	}
	b := src.Bounds()
	if b.Empty() {
		return nil, errors.NewRenderError("source image has no pixels", nil)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), src, b.Min, draw.Src)

	dc := gg.NewContextForRGBA(canvas)
	face := o.font.face(o.size)

	for _, line := range lines {
		if !line.Placed {
			continue
		}
		box := line.Box.Clamp(b.Dx(), b.Dy())
		if box.Empty() {
			continue
		}

		dc.SetColor(o.background)
		dc.DrawRectangle(box.Left, box.Top, box.Width(), box.Height())
		dc.Fill()

		if line.Text == "" {
			continue
		}

		f := face
		if o.fit && o.font.scalable() {
			f = o.fitFace(dc, line.Text, box)
		}
		dc.SetFontFace(f)
		dc.SetColor(o.foreground)
		dc.DrawStringAnchored(line.Text, box.Left, box.Top, 0, 1)
	}

	return dc.Image(), nil
}

// fitFace returns the largest face, no bigger than the configured size,
// at which text fits inside box.
func (o *Overlay) fitFace(dc *gg.Context, text string, box models.BoundingBox) font.Face {
	fits := func(size float64) (font.Face, bool) {
		f := o.font.face(size)
		dc.SetFontFace(f)
		w, h := dc.MeasureString(text)
		return f, w <= box.Width() && h <= box.Height()
	}

	if f, ok := fits(o.size); ok {
		return f
	}

	lo, hi := float64(minFitFontSize), o.size
	best := o.font.face(lo)
	for hi-lo > 0.5 {
		mid := (lo + hi) / 2
		if f, ok := fits(mid); ok {
			best, lo = f, mid
		} else {
			hi = mid
		}
	}
	return best
}
