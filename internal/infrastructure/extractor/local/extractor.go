// Package local extracts text from document bodies in-process and hands
// scans and images to an OCR service.
package local

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/formly/internal/core/domain"
	"github.com/kirillkom/formly/internal/core/ports"
)

// MinPDFTextChars is the text-layer size below which a PDF is treated as a scan.
const MinPDFTextChars = 100

type kind int

const (
	kindUnsupported kind = iota
	kindText
	kindCSV
	kindSpreadsheet
	kindPDF
	kindImage
)

var mimeKinds = map[string]kind{
	"text/plain":      kindText,
	"text/markdown":   kindText,
	"text/csv":        kindCSV,
	"application/csv": kindCSV,
	"application/pdf": kindPDF,
	"image/png":       kindImage,
	"image/jpeg":      kindImage,
	"image/jpg":       kindImage,
	"image/tiff":      kindImage,
	"image/heic":      kindImage,
	"image/heif":      kindImage,

	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": kindSpreadsheet,
}

// Supported reports whether the MIME type is in the accepted input set.
func Supported(mimeType string) bool {
	return mimeKinds[normalizeMime(mimeType)] != kindUnsupported
}

type Extractor struct {
	ocr ports.TextExtractor
}

// NewExtractor returns a composite extractor; ocr may be nil, in which
// case images and scanned PDFs are rejected as unsupported.
func NewExtractor(ocr ports.TextExtractor) *Extractor {
	return &Extractor{ocr: ocr}
}

func (e *Extractor) Extract(ctx context.Context, payload domain.FilePayload) (string, error) {
	mimeType := normalizeMime(payload.MimeType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = normalizeMime(http.DetectContentType(payload.Data))
	}

	switch mimeKinds[mimeType] {
	case kindText:
		if !utf8.Valid(payload.Data) {
			return "", domain.WrapError(domain.ErrUnsupportedFormat, "extract text", fmt.Errorf("%s body is not valid utf-8", mimeType))
		}
		return strings.TrimSpace(string(payload.Data)), nil
	case kindCSV:
		return csvText(payload.Data)
	case kindSpreadsheet:
		return spreadsheetText(payload.Data)
	case kindPDF:
		text, err := pdfText(payload.Data)
		if err == nil && len([]rune(text)) >= MinPDFTextChars {
			return text, nil
		}
		if err != nil {
			slog.Info("pdf_text_layer_unreadable", "error", err)
		}
		return e.viaOCR(ctx, domain.FilePayload{Data: payload.Data, MimeType: mimeType, Size: payload.Size})
	case kindImage:
		return e.viaOCR(ctx, domain.FilePayload{Data: payload.Data, MimeType: mimeType, Size: payload.Size})
	default:
		return "", domain.WrapError(domain.ErrUnsupportedFormat, "extract text", fmt.Errorf("mime type %q", payload.MimeType))
	}
}

func (e *Extractor) viaOCR(ctx context.Context, payload domain.FilePayload) (string, error) {
	if e.ocr == nil {
		return "", domain.WrapError(domain.ErrUnsupportedFormat, "extract text", fmt.Errorf("no ocr service for %s", payload.MimeType))
	}
	return e.ocr.Extract(ctx, payload)
}

func csvText(data []byte) (string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var b strings.Builder
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", domain.WrapError(domain.ErrUnsupportedFormat, "extract csv", err)
		}
		b.WriteString(strings.Join(record, " | "))
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String()), nil
}

func spreadsheetText(data []byte) (string, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", domain.WrapError(domain.ErrUnsupportedFormat, "open spreadsheet", err)
	}
	defer book.Close()

	var b strings.Builder
	for _, sheet := range book.GetSheetList() {
		rows, err := book.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		fmt.Fprintf(&b, "## %s\n", sheet)
		for _, row := range rows {
			b.WriteString(strings.Join(row, " | "))
			b.WriteString("\n")
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// pdfText reads the text layer. The parser panics on some malformed files.
func pdfText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func normalizeMime(raw string) string {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return raw
	}
	return mediaType
}

// MimeByExtension maps a file name to a MIME type in the supported set.
func MimeByExtension(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".heic"):
		return "image/heic"
	case strings.HasSuffix(lower, ".heif"):
		return "image/heif"
	case strings.HasSuffix(lower, ".tif"), strings.HasSuffix(lower, ".tiff"):
		return "image/tiff"
	case strings.HasSuffix(lower, ".csv"):
		return "text/csv"
	case strings.HasSuffix(lower, ".md"):
		return "text/markdown"
	}
	idx := strings.LastIndex(lower, ".")
	if idx < 0 {
		return "application/octet-stream"
	}
	if t := mime.TypeByExtension(lower[idx:]); t != "" {
		return normalizeMime(t)
	}
	return "application/octet-stream"
}
