// Package quality implements the admission gate for scanned document
// images: a blur measure, a contrast measure, and the combined score that
// decides whether a page is fit for downstream extraction.
package quality

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"

	"github.com/Dropicx/docworker/internal/domain"
)

// Score weights and banding boundaries. The weights are part of the
// admission contract: quality = 0.6*blur + 0.4*contrast.
const (
	blurWeight     = 0.6
	contrastWeight = 0.4

	// DefaultMinThreshold admits documents when no operator override is set.
	DefaultMinThreshold = 0.50

	// referenceLaplacianVariance is the Laplacian response variance of a
	// sharp, well-lit document scan. Variances at or above it map to a
	// blur score of 1.
	referenceLaplacianVariance = 0.015
)

// Issue codes surfaced on rejection.
const (
	IssuePoorImageQuality = "poor_image_quality"
	IssueLowBlur          = "low_blur_detection"
	IssueLowContrast      = "low_contrast"
)

// Assessment is the result of the quality gate for one image.
type Assessment struct {
	BlurScore     float64  `json:"blur_score"`
	ContrastScore float64  `json:"contrast_score"`
	QualityScore  float64  `json:"quality_score"`
	MinThreshold  float64  `json:"min_threshold"`
	Admitted      bool     `json:"admitted"`
	Band          string   `json:"band"`
	Issues        []string `json:"issues,omitempty"`
	Suggestions   []string `json:"suggestions,omitempty"`
}

// CombineScores applies the weighted quality formula, clamped to [0,1].
func CombineScores(blur, contrast float64) float64 {
	return clamp01(blurWeight*blur + contrastWeight*contrast)
}

// Band labels a quality score for reporting. It never affects admission.
func Band(score float64) string {
	switch {
	case score < 0.30:
		return "very poor"
	case score < 0.50:
		return "poor"
	case score < 0.70:
		return "acceptable"
	case score <= 0.85:
		return "good"
	default:
		return "excellent"
	}
}

// NewAssessment derives the full verdict from the two sub-scores and the
// configured threshold. Issues and suggestions are derived from the
// scores, never set independently.
func NewAssessment(blur, contrast, threshold float64) Assessment {
	blur = clamp01(blur)
	contrast = clamp01(contrast)
	score := CombineScores(blur, contrast)

	a := Assessment{
		BlurScore:     blur,
		ContrastScore: contrast,
		QualityScore:  score,
		MinThreshold:  threshold,
		Admitted:      score >= threshold,
		Band:          Band(score),
	}

	if a.Admitted {
		return a
	}

	a.Issues = append(a.Issues, IssuePoorImageQuality)
	if blurWeight*blur <= contrastWeight*contrast {
		// Blur is the dominant cause of the rejection.
		a.Issues = append(a.Issues, IssueLowBlur)
		a.Suggestions = append(a.Suggestions,
			"hold the camera steady or place the document on a flat surface",
			"capture the photo at a higher resolution",
		)
	}
	if contrast < 0.5 {
		a.Issues = append(a.Issues, IssueLowContrast)
		a.Suggestions = append(a.Suggestions,
			"improve the lighting and avoid shadows across the page",
		)
	}
	if len(a.Suggestions) == 0 {
		a.Suggestions = append(a.Suggestions,
			"rescan the document at a higher resolution with even lighting",
		)
	}

	return a
}

// Assessor computes quality assessments against a configured threshold.
// The threshold is shared process-wide configuration, read once per
// admission decision.
type Assessor struct {
	threshold ThresholdSource
}

// ThresholdSource supplies the current minimum quality threshold.
type ThresholdSource interface {
	MinThreshold() float64
}

// StaticThreshold is a fixed threshold value.
type StaticThreshold float64

// MinThreshold returns the fixed value.
func (t StaticThreshold) MinThreshold() float64 { return float64(t) }

// NewAssessor creates an assessor reading its threshold from src.
func NewAssessor(src ThresholdSource) *Assessor {
	if src == nil {
		src = StaticThreshold(DefaultMinThreshold)
	}
	return &Assessor{threshold: src}
}

// Assess scores a decoded raster image. Pure: no state is read beyond the
// threshold snapshot and nothing is mutated.
func (a *Assessor) Assess(img image.Image) Assessment {
	gray := toGray(img)
	blur := blurScore(gray)
	contrast := contrastScore(gray)
	return NewAssessment(blur, contrast, a.threshold.MinThreshold())
}

// AssessReader decodes an image stream (JPEG or PNG) and scores it.
// A stream that cannot be decoded is a DecodingError, not a low-quality
// verdict.
func (a *Assessor) AssessReader(r io.Reader) (Assessment, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return Assessment{}, domain.DecodingError("image could not be decoded", err)
	}
	return a.Assess(img), nil
}

// grayImage is a luminance plane with values in [0,1].
type grayImage struct {
	w, h int
	pix  []float64
}

func toGray(img image.Image) *grayImage {
	bounds := img.Bounds()
	g := &grayImage{
		w:   bounds.Dx(),
		h:   bounds.Dy(),
		pix: make([]float64, bounds.Dx()*bounds.Dy()),
	}
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, gr, b, _ := img.At(x, y).RGBA()
			// Rec. 601 luma on 16-bit channel values.
			g.pix[i] = (0.299*float64(r) + 0.587*float64(gr) + 0.114*float64(b)) / 65535.0
			i++
		}
	}
	return g
}

func (g *grayImage) at(x, y int) float64 {
	return g.pix[y*g.w+x]
}

// blurScore measures sharpness as the variance of a 4-neighbour Laplacian
// response, normalized so a crisp scan reaches 1. Low variance means few
// strong edges, which is what a blurred page looks like.
func blurScore(g *grayImage) float64 {
	if g.w < 3 || g.h < 3 {
		return 0
	}

	n := 0
	mean := 0.0
	m2 := 0.0
	for y := 1; y < g.h-1; y++ {
		for x := 1; x < g.w-1; x++ {
			lap := 4*g.at(x, y) - g.at(x-1, y) - g.at(x+1, y) - g.at(x, y-1) - g.at(x, y+1)
			n++
			delta := lap - mean
			mean += delta / float64(n)
			m2 += delta * (lap - mean)
		}
	}

	variance := m2 / float64(n)
	return clamp01(variance / referenceLaplacianVariance)
}

// contrastScore measures the usable dynamic range of the intensity
// histogram. The 1st and 99th percentiles are used instead of min/max so
// a handful of hot pixels cannot fake good contrast.
func contrastScore(g *grayImage) float64 {
	if len(g.pix) == 0 {
		return 0
	}

	const bins = 256
	var hist [bins]int
	for _, v := range g.pix {
		idx := int(v * (bins - 1))
		if idx < 0 {
			idx = 0
		} else if idx >= bins {
			idx = bins - 1
		}
		hist[idx]++
	}

	total := len(g.pix)
	lowCut := total / 100
	highCut := total - lowCut

	low, high := 0, bins-1
	cum := 0
	for i := 0; i < bins; i++ {
		cum += hist[i]
		if cum >= lowCut {
			low = i
			break
		}
	}
	cum = 0
	for i := 0; i < bins; i++ {
		cum += hist[i]
		if cum >= highCut {
			high = i
			break
		}
	}

	if high <= low {
		return 0
	}
	return clamp01(float64(high-low) / float64(bins-1))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
