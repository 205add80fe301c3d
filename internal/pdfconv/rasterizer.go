// Package pdfconv rasterizes uploaded PDF documents into page images for
// quality assessment and text extraction.
package pdfconv

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/gen2brain/go-fitz"

	"github.com/Dropicx/docworker/internal/domain"
)

// Page is a single rasterized PDF page.
type Page struct {
	Number int
	Image  image.Image
	Width  int
	Height int
}

// IsPDF reports whether data starts with the PDF magic bytes.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// Rasterize renders every page of the PDF held in data. An unreadable or
// empty document is a decoding error, the same admission failure class as
// an undecodable image upload.
func Rasterize(ctx context.Context, data []byte) ([]Page, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, domain.DecodingError("open pdf", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, domain.DecodingError("pdf has no pages", nil)
	}

	pages := make([]Page, 0, pageCount)
	for pageNum := 0; pageNum < pageCount; pageNum++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		img, err := doc.Image(pageNum)
		if err != nil {
			return nil, domain.DecodingError(fmt.Sprintf("render page %d", pageNum+1), err)
		}

		bounds := img.Bounds()
		pages = append(pages, Page{
			Number: pageNum + 1,
			Image:  img,
			Width:  bounds.Dx(),
			Height: bounds.Dy(),
		})
	}

	return pages, nil
}

// EncodePNG serializes a rasterized page for transport to the OCR service.
func EncodePNG(page Page) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, page.Image); err != nil {
		return nil, fmt.Errorf("encode page %d: %w", page.Number, err)
	}
	return buf.Bytes(), nil
}
