package models

import (
	"errors"
	"image"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeOfAxisAlignedBox(t *testing.T) {
	line := TextLine{Text: "Hello", BoundingBox: []float64{10, 10, 50, 10, 50, 30, 10, 30}}

	box, ok := line.Envelope()
	require.True(t, ok)
	assert.Equal(t, BoundingBox{Left: 10, Top: 10, Right: 50, Bottom: 30}, box)
	assert.Equal(t, 40.0, box.Width())
	assert.Equal(t, 20.0, box.Height())
}

func TestEnvelopeOfRotatedPolygon(t *testing.T) {
	// corners listed clockwise from the bottom-left of a skewed line
	box, ok := EnvelopeOf([]float64{12, 40, 8, 11, 60, 4, 64, 33})
	require.True(t, ok)
	assert.Equal(t, BoundingBox{Left: 8, Top: 4, Right: 64, Bottom: 40}, box)
}

func TestEnvelopeIsOrdered(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		pts := make([]float64, 8)
		for j := range pts {
			pts[j] = r.Float64()*2000 - 500
		}
		box, ok := EnvelopeOf(pts)
		require.True(t, ok)
		assert.LessOrEqual(t, box.Left, box.Right)
		assert.LessOrEqual(t, box.Top, box.Bottom)
	}
}

func TestEnvelopeRejectsDegenerateInput(t *testing.T) {
	_, ok := EnvelopeOf(nil)
	assert.False(t, ok)
	_, ok = EnvelopeOf([]float64{3})
	assert.False(t, ok)
}

func TestClamp(t *testing.T) {
	box := BoundingBox{Left: -5, Top: 10, Right: 120, Bottom: 300}.Clamp(100, 200)
	assert.Equal(t, BoundingBox{Left: 0, Top: 10, Right: 100, Bottom: 200}, box)

	outside := BoundingBox{Left: 150, Top: 10, Right: 180, Bottom: 30}.Clamp(100, 200)
	assert.True(t, outside.Empty())
}

func TestPageTranslatedText(t *testing.T) {
	p := &Page{Lines: []TranslatedLine{{Text: "Halo"}, {Text: "Dunia"}}}
	assert.Equal(t, "Halo\nDunia", p.TranslatedText())
}

func TestDocumentHelpers(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	doc := &Document{Pages: []*Page{
		{Index: 0, TranslatedImage: img, Lines: []TranslatedLine{{Text: "a"}}},
		{Index: 1, Err: errors.New("boom")},
		{Index: 2, TranslatedImage: img, Lines: []TranslatedLine{{Text: "b"}, {Text: "c"}}},
	}}

	assert.Len(t, doc.TranslatedImages(), 2)
	assert.Equal(t, []int{2}, doc.FailedPages())
	assert.Equal(t, 3, doc.LineCount())
}
