package receipt

import (
	"fmt"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"votevault/pkg/context"
	"votevault/pkg/metrics"
)

// PDFReader scans receipts written by PDFWriter.
type PDFReader struct{}

func NewPDFReader() *PDFReader {
	return &PDFReader{}
}

func (r *PDFReader) Read(ctx *context.OperationContext, location string) (*Receipt, error) {
	var rc *Receipt
	err := ctx.Recorder.Record("ReadReceiptPDF", metrics.MDiskRead, func() error {
		file, err := os.Open(location)
		if err != nil {
			return fmt.Errorf("could not open file %s: %w", location, err)
		}
		defer file.Close()

		// pdfcpu extracts the raw embedded JPEG from the PDF wrapper.
		pages, err := api.ExtractImagesRaw(file, nil, nil)
		if err != nil {
			return fmt.Errorf("could not extract images from PDF %s: %w", location, err)
		}
		for _, imgs := range pages {
			for _, img := range imgs {
				rc, err = decodeQRFrom(img)
				if err != nil {
					return fmt.Errorf("failed to decode receipt in %s: %w", location, err)
				}
				return nil
			}
		}
		return fmt.Errorf("no images found in %s", location)
	})
	return rc, err
}
