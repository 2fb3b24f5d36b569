package render

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/adverant/nexus/doctranslate-worker/internal/errors"
)

// Decode decodes a page image in any registered format and returns the
// format name.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", errors.NewUnsupportedFormatError("", "empty")
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		pe := errors.NewUnsupportedFormatError("", "unknown image format")
		pe.Cause = err
		return nil, "", pe
	}
	return img, format, nil
}

// EncodePNG encodes img losslessly.
func EncodePNG(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, errors.NewRenderError("no image to encode", nil)
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, errors.NewRenderError("failed to encode PNG", err)
	}
	return buf.Bytes(), nil
}
