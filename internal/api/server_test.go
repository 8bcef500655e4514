package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studygen/internal/apierr"
	"studygen/internal/logger"
	"studygen/internal/models"
	"studygen/internal/services"
)

type stubCompleter struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
}

func (c *stubCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	return c.reply, c.err
}

type testEnv struct {
	server    *httptest.Server
	llm       *stubCompleter
	exportDir string
}

func newTestEnv(t *testing.T, llm *stubCompleter, maxUpload int64) *testEnv {
	t.Helper()
	dir := t.TempDir()
	exportDir := filepath.Join(dir, "exports")
	require.NoError(t, os.MkdirAll(exportDir, 0o755))

	log := logger.Nop()
	prompts, err := services.NewPromptBuilder()
	require.NoError(t, err)
	study := services.NewStudyService(
		services.NewDocumentService(filepath.Join(dir, "uploads")),
		services.NewExtractorService(log),
		services.NewGenerationService(llm, prompts, 3, log),
		services.NewExportService(exportDir, "/api", log),
		time.Minute,
		log,
	)
	srv := NewServer(study, Options{MaxUploadBytes: maxUpload, PathPrefix: "/api", AllowedOrigins: []string{"*"}}, log)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, llm: llm, exportDir: exportDir}
}

func (e *testEnv) upload(t *testing.T, path string, files map[string]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(e.server.URL+path, mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) generate(t *testing.T, query string, req any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(req)
	require.NoError(t, err)
	resp, err := http.Post(e.server.URL+"/api/generate?"+query, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func TestRootAndHealth(t *testing.T) {
	env := newTestEnv(t, &stubCompleter{}, 0)

	for _, path := range []string{"/", "/api/"} {
		resp, err := http.Get(env.server.URL + path)
		require.NoError(t, err)
		var body map[string]string
		decodeBody(t, resp, &body)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, "Study AI API is running", body["message"], path)
	}

	resp, err := http.Get(env.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestSummaryEndToEnd(t *testing.T) {
	env := newTestEnv(t, &stubCompleter{reply: "### Summary\nThe sky is blue."}, 0)

	up := env.upload(t, "/api/upload", map[string]string{"notes.txt": "The sky is blue."})
	require.Equal(t, http.StatusOK, up.StatusCode)
	var uploaded struct {
		Files []models.UploadedFile `json:"files"`
	}
	decodeBody(t, up, &uploaded)
	require.Len(t, uploaded.Files, 1)
	assert.Equal(t, "notes.txt", uploaded.Files[0].Name)
	assert.NotEmpty(t, uploaded.Files[0].ID)

	resp := env.generate(t, "file_ids="+uploaded.Files[0].ID, map[string]any{
		"type":              "summary",
		"numberOfQuestions": 10,
		"difficulty":        "medium",
		"numberOfSolutions": 1,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var result map[string]any
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Contains(t, result, "quizId")
	assert.Nil(t, result["quizId"])
	assert.Equal(t, "### Summary\nThe sky is blue.", result["content"])
	assert.Regexp(t, regexp.MustCompile(`^summary_\d{8}_\d{6}$`), result["title"])
	assert.Regexp(t, regexp.MustCompile(`^/api/download/summary_\d{8}_\d{6}_\d{8}_\d{6}\.pdf$`), result["pdf_url"])

	pdfURL := result["pdf_url"].(string)
	dl, err := http.Get(env.server.URL + pdfURL)
	require.NoError(t, err)
	defer dl.Body.Close()
	assert.Equal(t, http.StatusOK, dl.StatusCode)
	assert.Equal(t, "application/pdf", dl.Header.Get("Content-Type"))
	assert.Contains(t, dl.Header.Get("Content-Disposition"), "attachment")
	data, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))

	// The same export is reachable without the prefix.
	bare, err := http.Get(env.server.URL + strings.TrimPrefix(pdfURL, "/api"))
	require.NoError(t, err)
	bare.Body.Close()
	assert.Equal(t, http.StatusOK, bare.StatusCode)
}

func TestDottedTitleExportIsDownloadable(t *testing.T) {
	env := newTestEnv(t, &stubCompleter{reply: "### Intro\nDots everywhere."}, 0)

	up := env.upload(t, "/api/upload", map[string]string{"notes.txt": "text"})
	require.Equal(t, http.StatusOK, up.StatusCode)
	var uploaded struct {
		Files []models.UploadedFile `json:"files"`
	}
	decodeBody(t, up, &uploaded)
	require.Len(t, uploaded.Files, 1)

	resp := env.generate(t, "file_ids="+uploaded.Files[0].ID, models.GenerationRequest{
		Title:             "Chapter 1... Intro",
		Type:              models.ContentSummary,
		NumberOfQuestions: 10,
		Difficulty:        models.DifficultyMedium,
		NumberOfSolutions: 1,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result models.StudyResult
	decodeBody(t, resp, &result)
	assert.Equal(t, "Chapter 1... Intro", result.Title)
	assert.Regexp(t, regexp.MustCompile(`^/api/download/Chapter_1__Intro_\d{8}_\d{6}\.pdf$`), result.PDFURL)

	dl, err := http.Get(env.server.URL + result.PDFURL)
	require.NoError(t, err)
	defer dl.Body.Close()
	assert.Equal(t, http.StatusOK, dl.StatusCode)
	data, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestGenerateMCQReturnsQuizID(t *testing.T) {
	env := newTestEnv(t, &stubCompleter{reply: "### Question 1\nQ?\nA) a\nB) b\nC) c\nD) d\n**Answer: B**"}, 0)

	up := env.upload(t, "/upload", map[string]string{"notes.txt": "text"})
	var uploaded struct {
		Files []models.UploadedFile `json:"files"`
	}
	decodeBody(t, up, &uploaded)

	resp := env.generate(t, "file_ids="+uploaded.Files[0].ID, models.GenerationRequest{
		Title:             "Chapter 1",
		Type:              models.ContentMCQ,
		NumberOfQuestions: 1,
		Difficulty:        models.DifficultyHard,
		NumberOfSolutions: 3,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result models.StudyResult
	decodeBody(t, resp, &result)
	require.NotNil(t, result.QuizID)
	assert.Equal(t, "Chapter 1", result.Title)
	assert.True(t, strings.HasPrefix(result.PDFURL, "/api/download/Chapter_1_"), result.PDFURL)
	assert.Equal(t, 3, strings.Count(result.Content, "### Solution "))
	assert.Len(t, env.llm.prompts, 3)
}

func TestGenerateErrors(t *testing.T) {
	env := newTestEnv(t, &stubCompleter{reply: "x"}, 0)

	tests := []struct {
		name   string
		query  string
		body   any
		status int
		code   string
		msg    string
	}{
		{name: "no ids", query: "", body: map[string]any{"type": "summary"}, status: 400, code: apierr.CodeInvalidRequest, msg: "no file IDs provided"},
		{name: "unknown id", query: "file_ids=nope", body: map[string]any{"type": "summary"}, status: 404, code: apierr.CodeFileNotFound, msg: "file with ID nope not found"},
		{name: "bad type", query: "file_ids=nope", body: map[string]any{"type": "essay"}, status: 400, code: apierr.CodeInvalidRequest},
		{name: "bad body", query: "file_ids=nope", body: "not an object", status: 400, code: apierr.CodeInvalidRequest, msg: "invalid request body"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := env.generate(t, tc.query, tc.body)
			assert.Equal(t, tc.status, resp.StatusCode)
			var body errorBody
			decodeBody(t, resp, &body)
			assert.Equal(t, tc.code, body.Code)
			if tc.msg != "" {
				assert.Equal(t, tc.msg, body.Error)
			}
		})
	}
	assert.Empty(t, env.llm.prompts)
}

func TestGenerateProviderFailureIsSanitized(t *testing.T) {
	env := newTestEnv(t, &stubCompleter{err: apierr.Generation(http.StatusBadGateway, errors.New("upstream said: secret internal detail"))}, 0)

	up := env.upload(t, "/upload", map[string]string{"notes.txt": "text"})
	var uploaded struct {
		Files []models.UploadedFile `json:"files"`
	}
	decodeBody(t, up, &uploaded)

	resp := env.generate(t, "file_ids="+uploaded.Files[0].ID, map[string]any{"type": "assignment"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	var body errorBody
	decodeBody(t, resp, &body)
	assert.Equal(t, apierr.CodeGenerationFailed, body.Code)
	assert.Equal(t, "generation failed: provider temporarily unavailable", body.Error)
}

func TestExtractionFailureNamesOnlyTheFile(t *testing.T) {
	env := newTestEnv(t, &stubCompleter{reply: "x"}, 0)

	up := env.upload(t, "/upload", map[string]string{"broken.docx": "not a zip archive"})
	require.Equal(t, http.StatusOK, up.StatusCode)
	var uploaded struct {
		Files []models.UploadedFile `json:"files"`
	}
	decodeBody(t, up, &uploaded)
	require.Len(t, uploaded.Files, 1)

	resp := env.generate(t, "file_ids="+uploaded.Files[0].ID, map[string]any{"type": "summary"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body errorBody
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, apierr.CodeExtractionFailed, body.Code)
	assert.Equal(t, "text extraction failed: broken.docx", body.Error)
	assert.NotContains(t, string(raw), filepath.Dir(env.exportDir))
	assert.Empty(t, env.llm.prompts)
}

func TestUploadRequiresFiles(t *testing.T) {
	env := newTestEnv(t, &stubCompleter{}, 0)

	resp := env.upload(t, "/upload", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body errorBody
	decodeBody(t, resp, &body)
	assert.Equal(t, "no files uploaded", body.Error)
}

func TestUploadTooLarge(t *testing.T) {
	env := newTestEnv(t, &stubCompleter{}, 1024)

	resp := env.upload(t, "/upload", map[string]string{"big.txt": strings.Repeat("x", 4096)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestDownloadRejectsTraversal(t *testing.T) {
	env := newTestEnv(t, &stubCompleter{}, 0)
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(env.exportDir), "secret.pdf"), []byte("%PDF"), 0o644))

	for _, path := range []string{"/download/missing.pdf", "/download/..%2Fsecret.pdf", "/api/download/%2E%2E%2Fsecret.pdf"} {
		resp, err := http.Get(env.server.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, &stubCompleter{}, 0)

	resp, err := http.Get(env.server.URL + "/generate")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, http.MethodPost, resp.Header.Get("Allow"))
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, &stubCompleter{}, 0)

	req, err := http.NewRequest(http.MethodOptions, env.server.URL+"/api/generate", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestParseFileIDs(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, parseFileIDs([]string{"a, b", "", "c,"}))
	assert.Nil(t, parseFileIDs(nil))
}
