package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"studygen/internal/apierr"
	"studygen/internal/models"
)

// DocumentService is the flat-file upload store. Each upload is written to
// <uploadDir>/<id>_<name>, and ids are resolved by filename prefix.
type DocumentService struct {
	uploadDir string
}

func NewDocumentService(uploadDir string) *DocumentService {
	return &DocumentService{uploadDir: uploadDir}
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func (s *DocumentService) Create(ctx context.Context, original string, src io.Reader) (*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, apierr.Upload(fmt.Errorf("ensure upload dir: %w", err))
	}

	id := uuid.NewString()
	storedPath := filepath.Join(s.uploadDir, id+"_"+safeUploadName(original))
	out, err := os.OpenFile(storedPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, apierr.Upload(fmt.Errorf("create file: %w", err)).WithFile(original)
	}
	defer out.Close()

	size, err := io.Copy(out, src)
	if err != nil {
		_ = os.Remove(storedPath)
		return nil, apierr.Upload(fmt.Errorf("error uploading file %s: %w", original, err)).WithFile(original)
	}

	return &models.Document{
		ID:           id,
		OriginalName: original,
		StoredPath:   storedPath,
		Format:       models.FormatFromPath(original),
		Size:         size,
		UploadedAt:   time.Now().UTC(),
	}, nil
}

// Resolve finds the stored file whose name starts with id.
func (s *DocumentService) Resolve(id string) (*models.Document, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return nil, apierr.NotFound("file with ID %s not found", id)
	}

	entries, err := os.ReadDir(s.uploadDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apierr.NotFound("file with ID %s not found", id)
		}
		return nil, fmt.Errorf("list uploads: %w", err)
	}

	var matches []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), id) {
			matches = append(matches, entry.Name())
		}
	}
	if len(matches) == 0 {
		return nil, apierr.NotFound("file with ID %s not found", id)
	}
	sort.Strings(matches)
	name := matches[0]
	storedPath := filepath.Join(s.uploadDir, name)

	info, err := os.Stat(storedPath)
	if err != nil {
		return nil, fmt.Errorf("stat upload %s: %w", name, err)
	}

	original := name
	if i := strings.IndexByte(name, '_'); i >= 0 && i < len(name)-1 {
		original = name[i+1:]
	}
	return &models.Document{
		ID:           id,
		OriginalName: original,
		StoredPath:   storedPath,
		Format:       models.FormatFromPath(name),
		Size:         info.Size(),
		UploadedAt:   info.ModTime().UTC(),
	}, nil
}

// ResolveAll resolves ids in order, failing on the first unknown id.
func (s *DocumentService) ResolveAll(ids []string) ([]*models.Document, error) {
	docs := make([]*models.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := s.Resolve(id)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func safeUploadName(original string) string {
	name := filepath.Base(strings.ReplaceAll(original, `\`, "/"))
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if name == "" || name == "_" {
		return "upload"
	}
	return name
}
