package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"studygen/internal/apierr"
	"studygen/internal/logger"
	"studygen/internal/models"
	"studygen/internal/services"
)

const (
	maxMultipartMemory = 8 << 20 // 8 MB
	maxJSONBodyBytes   = 1 << 20
)

// Options configures the HTTP surface.
type Options struct {
	MaxUploadBytes int64
	// PathPrefix mounts every route a second time under this prefix.
	PathPrefix     string
	AllowedOrigins []string
}

type Server struct {
	mux   *http.ServeMux
	study *services.StudyService
	opts  Options
	log   *logger.Logger
}

func NewServer(study *services.StudyService, opts Options, log *logger.Logger) *Server {
	s := &Server{
		mux:   http.NewServeMux(),
		study: study,
		opts:  opts,
		log:   log.With("component", "HTTP"),
	}
	s.routes()
	return s
}

// Handler returns the routes served at the root and under the path prefix,
// wrapped in CORS and request logging.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	if prefix := strings.TrimRight(s.opts.PathPrefix, "/"); prefix != "" {
		outer := http.NewServeMux()
		outer.Handle(prefix+"/", http.StripPrefix(prefix, s.mux))
		outer.Handle("/", s.mux)
		h = outer
	}
	return requestLogger(s.log, withCORS(s.opts.AllowedOrigins, h))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/upload", s.handleUpload)
	s.mux.HandleFunc("/generate", s.handleGenerate)
	s.mux.HandleFunc("/download/", s.handleDownload)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Study AI API is running"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	if s.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, apierr.CodeInvalidRequest,
				fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, apierr.CodeInvalidRequest, "invalid multipart form")
		return
	}
	if form := r.MultipartForm; form != nil {
		defer form.RemoveAll()
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, apierr.CodeInvalidRequest, "no files uploaded")
		return
	}

	uploaded := make([]models.UploadedFile, 0, len(files))
	for _, file := range files {
		out, err := s.storeUpload(r, file)
		if err != nil {
			s.writeAPIError(w, r, err)
			return
		}
		uploaded = append(uploaded, *out)
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": uploaded})
}

func (s *Server) storeUpload(r *http.Request, file *multipart.FileHeader) (*models.UploadedFile, error) {
	src, err := file.Open()
	if err != nil {
		return nil, apierr.Upload(fmt.Errorf("open file %s: %w", file.Filename, err)).WithFile(file.Filename)
	}
	defer src.Close()
	return s.study.Upload(r.Context(), file.Filename, src)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req models.GenerationRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, apierr.CodeInvalidRequest, "invalid request body")
		return
	}

	result, err := s.study.Generate(r.Context(), parseFileIDs(r.URL.Query()["file_ids"]), req)
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, http.MethodGet, http.MethodHead)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/download/")
	path, err := s.study.ResolveExport(name)
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		s.writeAPIError(w, r, apierr.NotFound("file %s not found", name))
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// parseFileIDs accepts both file_ids=a,b and repeated file_ids parameters.
func parseFileIDs(values []string) []string {
	var ids []string
	for _, v := range values {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// writeAPIError logs the full error and writes its client-safe form.
func (s *Server) writeAPIError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apierr.From(err)
	fields := []interface{}{
		"method", r.Method,
		"path", r.URL.Path,
		"status", apiErr.Status,
		"code", apiErr.Code,
		"error", err.Error(),
	}
	if apiErr.Status >= 500 {
		s.log.Error("request failed", fields...)
	} else {
		s.log.Warn("request rejected", fields...)
	}
	writeError(w, apiErr.Status, apiErr.Code, apierr.ClientMessage(apiErr))
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}
