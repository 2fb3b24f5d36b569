package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/adverant/nexus/doctranslate-worker/internal/errors"
)

func init() {
	// keep pdfcpu from creating a config directory under $HOME
	api.DisableConfigDir()
}

// ColorMode is the canonical pixel format of an assembled document.
type ColorMode int

const (
	ColorRGB ColorMode = iota
	ColorGray
)

func (m ColorMode) String() string {
	if m == ColorGray {
		return "gray"
	}
	return "rgb"
}

// ColorModeOf reports the mode an image would be assembled in.
func ColorModeOf(img image.Image) ColorMode {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return ColorGray
	}
	if img.ColorModel() == color.GrayModel || img.ColorModel() == color.Gray16Model {
		return ColorGray
	}
	return ColorRGB
}

// Normalize converts img to mode with its origin at (0,0). RGB output is
// opaque; transparent pixels are flattened onto white.
func Normalize(img image.Image, mode ColorMode) image.Image {
	b := img.Bounds()
	r := image.Rect(0, 0, b.Dx(), b.Dy())
	if mode == ColorGray {
		out := image.NewGray(r)
		draw.Draw(out, r, image.White, image.Point{}, draw.Src)
		draw.Draw(out, r, img, b.Min, draw.Over)
		return out
	}
	out := image.NewRGBA(r)
	draw.Draw(out, r, image.White, image.Point{}, draw.Src)
	draw.Draw(out, r, img, b.Min, draw.Over)
	return out
}

// AssemblePDF writes images as consecutive pages of one PDF, each page
// sized to its image. The first image's colour mode is applied to all.
func AssemblePDF(w io.Writer, images []image.Image) error {
	if len(images) == 0 {
		return errors.NewAssembleError("no pages to assemble", nil)
	}
	for i, img := range images {
		if img == nil || img.Bounds().Empty() {
			return errors.NewAssembleError(fmt.Sprintf("page %d has no image", i+1), nil).AtPage(i + 1)
		}
	}

	mode := ColorModeOf(images[0])
	readers := make([]io.Reader, len(images))
	for i, img := range images {
		data, err := EncodePNG(Normalize(img, mode))
		if err != nil {
			return errors.NewAssembleError("failed to encode page", err).AtPage(i + 1)
		}
		readers[i] = bytes.NewReader(data)
	}

	imp := pdfcpu.DefaultImportConfig()
	if err := api.ImportImages(nil, w, readers, imp, model.NewDefaultConfiguration()); err != nil {
		return errors.NewAssembleError("failed to build PDF", err)
	}
	return nil
}

// AssemblePDFBytes is AssemblePDF into memory.
func AssemblePDFBytes(images []image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := AssemblePDF(&buf, images); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
