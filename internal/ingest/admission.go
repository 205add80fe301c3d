// Package ingest turns an uploaded file into assessed, rasterized pages
// ready for the pipeline. PDFs and single-page image scans take the same
// path from here on.
package ingest

import (
	"bytes"
	"context"
	"image"

	"github.com/Dropicx/docworker/internal/domain"
	"github.com/Dropicx/docworker/internal/pdfconv"
	"github.com/Dropicx/docworker/internal/quality"
)

// Admission is the quality gate outcome for one upload.
type Admission struct {
	// Pages holds PNG-encoded page images in document order.
	Pages [][]byte
	// Assessment is the admission verdict. For multi-page documents
	// this is the worst page: one unreadable page blocks the run.
	Assessment quality.Assessment
	// PageAssessments has one entry per page, in order.
	PageAssessments []quality.Assessment
}

// Prepare decodes the upload, assesses every page, and returns the
// admission outcome. Undecodable input is a DecodingError, not a
// low-quality verdict.
func Prepare(ctx context.Context, data []byte, assessor *quality.Assessor) (*Admission, error) {
	if pdfconv.IsPDF(data) {
		return preparePDF(ctx, data, assessor)
	}
	return prepareImage(data, assessor)
}

func preparePDF(ctx context.Context, data []byte, assessor *quality.Assessor) (*Admission, error) {
	pages, err := pdfconv.Rasterize(ctx, data)
	if err != nil {
		return nil, err
	}

	adm := &Admission{}
	for i, page := range pages {
		encoded, err := pdfconv.EncodePNG(page)
		if err != nil {
			return nil, err
		}
		adm.Pages = append(adm.Pages, encoded)

		assessment := assessor.Assess(page.Image)
		adm.PageAssessments = append(adm.PageAssessments, assessment)
		if i == 0 || assessment.QualityScore < adm.Assessment.QualityScore {
			adm.Assessment = assessment
		}
	}
	return adm, nil
}

func prepareImage(data []byte, assessor *quality.Assessor) (*Admission, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domain.DecodingError("decode image", err)
	}

	bounds := img.Bounds()
	encoded, err := pdfconv.EncodePNG(pdfconv.Page{
		Number: 1,
		Image:  img,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	})
	if err != nil {
		return nil, err
	}

	assessment := assessor.Assess(img)
	return &Admission{
		Pages:           [][]byte{encoded},
		Assessment:      assessment,
		PageAssessments: []quality.Assessment{assessment},
	}, nil
}
