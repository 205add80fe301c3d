package quality

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dropicx/docworker/internal/domain"
)

func TestCombineScores_Formula(t *testing.T) {
	cases := []struct {
		blur, contrast, want float64
	}{
		{0.0, 0.0, 0.0},
		{1.0, 1.0, 1.0},
		{0.20, 0.80, 0.44},
		{0.90, 0.60, 0.78},
		{0.5, 0.5, 0.5},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, CombineScores(tc.blur, tc.contrast), 1e-9)
	}
}

func TestNewAssessment_ThresholdIsInclusive(t *testing.T) {
	// blur=0.5, contrast=0.5 combine to exactly 0.50.
	a := NewAssessment(0.5, 0.5, 0.50)
	assert.True(t, a.Admitted)
	assert.Empty(t, a.Issues)
}

func TestNewAssessment_ClampsInputs(t *testing.T) {
	a := NewAssessment(1.7, -0.3, 0.50)
	assert.Equal(t, 1.0, a.BlurScore)
	assert.Equal(t, 0.0, a.ContrastScore)
	assert.InDelta(t, 0.6, a.QualityScore, 1e-9)
}

func TestNewAssessment_RejectionScenario(t *testing.T) {
	// blur=0.20, contrast=0.80 -> 0.44, below the 0.50 default.
	a := NewAssessment(0.20, 0.80, 0.50)
	assert.False(t, a.Admitted)
	assert.InDelta(t, 0.44, a.QualityScore, 1e-9)
	assert.Contains(t, a.Issues, IssuePoorImageQuality)
	assert.Contains(t, a.Issues, IssueLowBlur)
	assert.NotEmpty(t, a.Suggestions)
}

func TestNewAssessment_AdmissionScenario(t *testing.T) {
	// blur=0.90, contrast=0.60 -> 0.78, admitted.
	a := NewAssessment(0.90, 0.60, 0.50)
	assert.True(t, a.Admitted)
	assert.InDelta(t, 0.78, a.QualityScore, 1e-9)
	assert.Empty(t, a.Issues)
	assert.Empty(t, a.Suggestions)
}

func TestBand_Boundaries(t *testing.T) {
	assert.Equal(t, "very poor", Band(0.29))
	assert.Equal(t, "poor", Band(0.30))
	assert.Equal(t, "poor", Band(0.49))
	assert.Equal(t, "acceptable", Band(0.50))
	assert.Equal(t, "acceptable", Band(0.69))
	assert.Equal(t, "good", Band(0.70))
	assert.Equal(t, "good", Band(0.85))
	assert.Equal(t, "excellent", Band(0.86))
}

// checkerboard is about as sharp and high-contrast as an image gets.
func checkerboard(size int) image.Image {
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if (x+y)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

func flatGray(size int) image.Image {
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetGray(x, y, color.Gray{Y: 128})
		}
	}
	return img
}

func TestAssess_SharpBeatsFlat(t *testing.T) {
	assessor := NewAssessor(StaticThreshold(0.50))

	sharp := assessor.Assess(checkerboard(64))
	flat := assessor.Assess(flatGray(64))

	assert.Greater(t, sharp.BlurScore, flat.BlurScore)
	assert.Greater(t, sharp.ContrastScore, flat.ContrastScore)
	assert.True(t, sharp.Admitted)
	assert.False(t, flat.Admitted)
	assert.Contains(t, flat.Issues, IssuePoorImageQuality)
}

func TestAssess_Deterministic(t *testing.T) {
	assessor := NewAssessor(StaticThreshold(0.50))
	img := checkerboard(32)

	first := assessor.Assess(img)
	second := assessor.Assess(img)
	assert.Equal(t, first, second)
}

func TestAssessReader_DecodesPNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, checkerboard(32)))

	assessor := NewAssessor(StaticThreshold(0.50))
	a, err := assessor.AssessReader(&buf)
	require.NoError(t, err)
	assert.True(t, a.Admitted)
}

func TestAssessReader_DecodingErrorIsNotALowQualityVerdict(t *testing.T) {
	assessor := NewAssessor(StaticThreshold(0.50))
	_, err := assessor.AssessReader(strings.NewReader("not an image"))
	require.Error(t, err)
	assert.Equal(t, domain.ErrorTypeDecoding, domain.TypeOf(err))
}

func TestNewAssessor_DefaultThreshold(t *testing.T) {
	assessor := NewAssessor(nil)
	a := assessor.Assess(flatGray(16))
	assert.Equal(t, DefaultMinThreshold, a.MinThreshold)
}
