package services

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"studygen/internal/apierr"
	"studygen/internal/logger"
	"studygen/internal/models"
)

const (
	// TimestampLayout formats generation timestamps in titles and filenames.
	TimestampLayout = "20060102_150405"

	maxTitleLength = 100
	headingMarker  = "###"

	exportFont      = "Helvetica"
	headingFontSize = 14
	headingRowMM    = 10
	bodyFontSize    = 10
	bodyRowMM       = 5
)

type BlockKind int

const (
	BlockBody BlockKind = iota
	BlockHeading
)

// Block is one rendered line of an export.
type Block struct {
	Kind BlockKind
	Text string
}

// Layout splits text into export blocks. Lines starting with ### become
// headings with the marker removed; blank lines are dropped.
func Layout(text string) []Block {
	var blocks []Block
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, headingMarker):
			blocks = append(blocks, Block{
				Kind: BlockHeading,
				Text: strings.TrimSpace(strings.ReplaceAll(line, headingMarker, "")),
			})
		case strings.TrimSpace(line) != "":
			blocks = append(blocks, Block{Kind: BlockBody, Text: line})
		}
	}
	return blocks
}

var (
	unsafeTitleChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)
	titleDotRuns     = regexp.MustCompile(`\.{2,}`)
)

// SanitizeTitle makes title safe for use in a filename. It may return "".
func SanitizeTitle(title string) string {
	title = strings.ReplaceAll(strings.TrimSpace(title), " ", "_")
	title = unsafeTitleChars.ReplaceAllString(title, "_")
	title = strings.TrimLeft(title, ".")
	// Resolve refuses names containing "..".
	title = titleDotRuns.ReplaceAllString(title, "_")
	if len(title) > maxTitleLength {
		title = title[:maxTitleLength]
	}
	return title
}

// ExportFilename returns <title>_<timestamp>.pdf for an already sanitized title.
func ExportFilename(title string, ts time.Time) string {
	return fmt.Sprintf("%s_%s.pdf", title, ts.Format(TimestampLayout))
}

// ExportService renders generated text into downloadable PDFs.
type ExportService struct {
	exportDir    string
	publicPrefix string
	log          *logger.Logger
}

func NewExportService(exportDir, publicPrefix string, log *logger.Logger) *ExportService {
	return &ExportService{
		exportDir:    exportDir,
		publicPrefix: strings.TrimRight(publicPrefix, "/"),
		log:          log.With("component", "Exporter"),
	}
}

// Export renders text under a filename derived from title and ts and returns
// where it was written and the URL it is served at.
func (s *ExportService) Export(text, title string, ts time.Time) (*models.ExportedDocument, error) {
	name := ExportFilename(title, ts)
	path, err := s.Render(text, filepath.Join(s.exportDir, name))
	if err != nil {
		return nil, apierr.Export(err).WithFile(name)
	}
	name = filepath.Base(path)
	s.log.Info("exported document", "file", name)
	return &models.ExportedDocument{
		Filename: name,
		Path:     path,
		URL:      s.publicPrefix + "/download/" + name,
	}, nil
}

// Render writes text as an A4 PDF. An existing file is never overwritten: a
// numeric suffix is added instead, and the path actually written is returned.
func (s *ExportService) Render(text, outputPath string) (string, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetFont(exportFont, "", bodyFontSize)
	for _, b := range Layout(text) {
		switch b.Kind {
		case BlockHeading:
			pdf.SetFont(exportFont, "B", headingFontSize)
			pdf.CellFormat(0, headingRowMM, tr(b.Text), "", 1, "L", false, 0, "")
			pdf.SetFont(exportFont, "", bodyFontSize)
		default:
			pdf.MultiCell(0, bodyRowMM, tr(b.Text), "", "L", false)
		}
	}
	if err := pdf.Error(); err != nil {
		return "", fmt.Errorf("layout pdf: %w", err)
	}

	f, path, err := createExclusive(outputPath)
	if err != nil {
		return "", err
	}
	if err := pdf.Output(f); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write pdf: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close pdf: %w", err)
	}
	return path, nil
}

const maxExclusiveAttempts = 100

func createExclusive(path string) (*os.File, string, error) {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	candidate := path
	for i := 1; i <= maxExclusiveAttempts; i++ {
		f, err := os.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("create %s: %w", candidate, err)
		}
		candidate = stem + "_" + strconv.Itoa(i) + ext
	}
	return nil, "", fmt.Errorf("create %s: too many existing files", path)
}

// Resolve returns the path of a previously exported file. Names that are not
// a plain file name are treated as missing.
func (s *ExportService) Resolve(name string) (string, error) {
	if name == "" || name == "." || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return "", apierr.NotFound("file %s not found", name)
	}
	path := filepath.Join(s.exportDir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", apierr.NotFound("file %s not found", name)
	}
	return path, nil
}
