package pdfconv

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dropicx/docworker/internal/domain"
)

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF([]byte("%PDF-1.7\n...")))
	assert.False(t, IsPDF([]byte("\x89PNG\r\n")))
	assert.False(t, IsPDF(nil))
}

func TestRasterizeRejectsGarbage(t *testing.T) {
	_, err := Rasterize(context.Background(), []byte("not a pdf at all"))
	require.Error(t, err)
	assert.Equal(t, domain.ErrorTypeDecoding, domain.TypeOf(err))
}

func TestEncodePNGRoundTrip(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x + y) * 16)})
		}
	}

	data, err := EncodePNG(Page{Number: 1, Image: img, Width: 8, Height: 8})
	require.NoError(t, err)
	assert.Greater(t, len(data), 0)
	assert.Equal(t, []byte("\x89PNG"), data[:4])
}
