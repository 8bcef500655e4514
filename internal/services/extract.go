package services

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"studygen/internal/apierr"
	"studygen/internal/logger"
	"studygen/internal/models"
)

// documentSeparator is placed between the texts of consecutive documents.
const documentSeparator = "\n\n"

// ExtractorService turns stored documents into plain text.
type ExtractorService struct {
	log *logger.Logger
}

func NewExtractorService(log *logger.Logger) *ExtractorService {
	return &ExtractorService{log: log.With("component", "Extractor")}
}

// Extract returns the text of the file at path. Unsupported formats yield
// an empty string and no error.
func (s *ExtractorService) Extract(path string, format models.DocumentFormat) (string, error) {
	switch format {
	case models.FormatPDF:
		return extractPDFText(path)
	case models.FormatText:
		return extractPlainText(path)
	case models.FormatWordDocument:
		return extractDocxText(path)
	case models.FormatSlideDeck:
		return extractPptxText(path)
	default:
		s.log.Warn("skipping unsupported document format", "path", path, "format", format)
		return "", nil
	}
}

// ExtractAll concatenates the text of docs in order, separated by a blank line.
func (s *ExtractorService) ExtractAll(ctx context.Context, docs []*models.Document) (string, error) {
	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := s.Extract(doc.StoredPath, doc.Format)
		if err != nil {
			return "", apierr.Extraction(fmt.Errorf("extract %s: %w", doc.OriginalName, err)).WithFile(doc.OriginalName)
		}
		s.log.Debug("extracted document", "id", doc.ID, "format", doc.Format, "chars", len(text))
		parts = append(parts, text)
	}
	return strings.Join(parts, documentSeparator), nil
}

func extractPDFText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		// nil lets the reader resolve this page's own font resources
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("read pdf page %d: %w", i, err)
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

func extractPlainText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read text file: %w", err)
	}
	return strings.ToValidUTF8(string(data), ""), nil
}
