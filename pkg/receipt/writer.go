package receipt

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/jung-kurt/gofpdf"
	"votevault/pkg/context"
	"votevault/pkg/metrics"
)

const pdfPointsPerMM = 2.8346

// Writer hands a receipt to the voter and returns where it can be read back.
type Writer interface {
	Write(ctx *context.OperationContext, r *Receipt) (string, error)
}

// Reader loads a receipt from a location returned by a Writer.
type Reader interface {
	Read(ctx *context.OperationContext, location string) (*Receipt, error)
}

// --- MemoryWriter ---

// MemoryWriter keeps serialized receipts in memory, keyed by vote hash.
// It implements both Writer and Reader.
type MemoryWriter struct {
	mu    sync.RWMutex
	store map[string][]byte
}

func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{store: make(map[string][]byte)}
}

func (w *MemoryWriter) Write(ctx *context.OperationContext, r *Receipt) (string, error) {
	data, err := r.Serialize()
	if err != nil {
		return "", err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.store[r.VoteHash] = data
	return r.VoteHash, nil
}

func (w *MemoryWriter) Read(ctx *context.OperationContext, location string) (*Receipt, error) {
	w.mu.RLock()
	data, ok := w.store[location]
	w.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no receipt stored for %s", location)
	}
	r := new(Receipt)
	if err := r.Deserialize(data); err != nil {
		return nil, err
	}
	return r, nil
}

// --- PDFWriter ---

// PDFWriter renders each receipt as a QR code in a single-page PDF under dir.
type PDFWriter struct {
	dir string
}

func NewPDFWriter(dir string) *PDFWriter {
	return &PDFWriter{dir: dir}
}

func (w *PDFWriter) Write(ctx *context.OperationContext, r *Receipt) (string, error) {
	var path string
	err := ctx.Recorder.Record("WriteReceiptPDF", metrics.MDiskWrite, func() error {
		img, err := EncodeQR(r)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(w.dir, 0755); err != nil {
			return fmt.Errorf("failed to create receipt directory: %w", err)
		}
		name := r.VoteHash
		if len(name) > 16 {
			name = name[:16]
		}
		path = filepath.Join(w.dir, fmt.Sprintf("receipt_%s.pdf", name))
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create file %s: %w", path, err)
		}
		defer file.Close()

		if err := writeImageToPDF(img, file); err != nil {
			return fmt.Errorf("failed to write image to PDF %s: %w", path, err)
		}
		return nil
	})
	return path, err
}

// writeImageToPDF embeds an image into a new PDF and writes it to w.
func writeImageToPDF(img image.Image, w io.Writer) error {
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return fmt.Errorf("jpeg encoding failed: %w", err)
	}

	widthMM := float64(img.Bounds().Dx()) / pdfPointsPerMM
	heightMM := float64(img.Bounds().Dy()) / pdfPointsPerMM
	pageSize := gofpdf.SizeType{Wd: widthMM, Ht: heightMM}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{UnitStr: "mm", Size: pageSize})
	pdf.AddPageFormat("P", pageSize)

	options := gofpdf.ImageOptions{ImageType: "JPEG", ReadDpi: true}
	pdf.RegisterImageOptionsReader("receipt.jpg", options, buf)
	pdf.ImageOptions("receipt.jpg", 0, 0, widthMM, heightMM, false, options, 0, "")

	return pdf.Output(w)
}
