package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"studygen/internal/apierr"
	"studygen/internal/logger"
	"studygen/internal/models"
)

// ProgressCallback is called as a generation moves through its stages.
type ProgressCallback func(step, message string, current, total int)

// StudyService coordinates upload resolution, extraction, generation and export.
type StudyService struct {
	documents  *DocumentService
	extractor  *ExtractorService
	generation *GenerationService
	exporter   *ExportService
	timeout    time.Duration
	log        *logger.Logger
}

func NewStudyService(
	documents *DocumentService,
	extractor *ExtractorService,
	generation *GenerationService,
	exporter *ExportService,
	timeout time.Duration,
	log *logger.Logger,
) *StudyService {
	return &StudyService{
		documents:  documents,
		extractor:  extractor,
		generation: generation,
		exporter:   exporter,
		timeout:    timeout,
		log:        log.With("component", "Study"),
	}
}

// Upload stores one uploaded file and returns its transport view.
func (s *StudyService) Upload(ctx context.Context, name string, src io.Reader) (*models.UploadedFile, error) {
	doc, err := s.documents.Create(ctx, name, src)
	if err != nil {
		return nil, err
	}
	s.log.Info("stored upload", "id", doc.ID, "name", doc.OriginalName, "bytes", doc.Size)
	return &models.UploadedFile{ID: doc.ID, Name: doc.OriginalName, Path: doc.StoredPath}, nil
}

func (s *StudyService) Generate(ctx context.Context, ids []string, req models.GenerationRequest) (*models.StudyResult, error) {
	return s.GenerateWithProgress(ctx, ids, req, nil)
}

// GenerateWithProgress runs the full pipeline for previously uploaded files.
// The request is validated before any file is read.
func (s *StudyService) GenerateWithProgress(ctx context.Context, ids []string, req models.GenerationRequest, progress ProgressCallback) (*models.StudyResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, apierr.Invalid("%v", err)
	}
	ids = cleanIDs(ids)
	if len(ids) == 0 {
		return nil, apierr.Invalid("no file IDs provided")
	}

	docs, err := s.documents.ResolveAll(ids)
	if err != nil {
		return nil, err
	}
	return s.GenerateFromDocuments(ctx, docs, req, progress)
}

// GenerateFromDocuments runs extraction, generation and export for docs.
func (s *StudyService) GenerateFromDocuments(ctx context.Context, docs []*models.Document, req models.GenerationRequest, progress ProgressCallback) (*models.StudyResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, apierr.Invalid("%v", err)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	report(progress, "extract", fmt.Sprintf("Extracting text from %d document(s)", len(docs)), 1, 3)
	text, err := s.extractor.ExtractAll(ctx, docs)
	if err != nil {
		return nil, apierr.From(err)
	}

	report(progress, "generate", fmt.Sprintf("Generating %s content", req.Type), 2, 3)
	result, err := s.generation.Generate(ctx, req, text)
	if err != nil {
		return nil, err
	}

	report(progress, "export", "Rendering PDF", 3, 3)
	stamp := result.Timestamp.Format(TimestampLayout)
	title := req.Title
	fileTitle := SanitizeTitle(title)
	if fileTitle == "" {
		fileTitle = fmt.Sprintf("%s_%s", req.Type, stamp)
	}
	if title == "" {
		title = fileTitle
	}
	exported, err := s.exporter.Export(result.Content, fileTitle, result.Timestamp)
	if err != nil {
		return nil, err
	}

	var quizID *string
	if req.Type == models.ContentMCQ {
		id := uuid.NewString()
		quizID = &id
	}
	s.log.Info("generated study material",
		"type", req.Type,
		"documents", len(docs),
		"solutions", len(result.Variants),
		"file", exported.Filename,
	)
	return &models.StudyResult{
		Content: result.Content,
		PDFURL:  exported.URL,
		Title:   title,
		QuizID:  quizID,
	}, nil
}

// ResolveExport returns the path of an exported PDF by file name.
func (s *StudyService) ResolveExport(name string) (string, error) {
	return s.exporter.Resolve(name)
}

func cleanIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func report(progress ProgressCallback, step, message string, current, total int) {
	if progress != nil {
		progress(step, message, current, total)
	}
}
