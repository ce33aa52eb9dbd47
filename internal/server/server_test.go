package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mike-a-ellis/docubot/internal/docubot"
	"github.com/mike-a-ellis/docubot/internal/document"
	"github.com/mike-a-ellis/docubot/internal/indexer"
	"github.com/mike-a-ellis/docubot/internal/storage"
)

// fakeBot records calls and returns canned results.
type fakeBot struct {
	mu        sync.Mutex
	predicted []string
	uploads   []string
	contents  []string
	ingests   int
	answer    string
	askErr    error
	ingestErr error
	status    docubot.IndexStatus
	statusErr error
}

func (f *fakeBot) Predict(_ context.Context, query string, upload *docubot.Upload) docubot.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.predicted = append(f.predicted, query)
	if upload != nil {
		body, _ := io.ReadAll(upload.Body)
		f.uploads = append(f.uploads, upload.Name)
		f.contents = append(f.contents, string(body))
		if !document.IsSupported(upload.Name) {
			return docubot.ErrorResponse(document.ErrUnsupportedFormat)
		}
	}
	answer := f.answer
	return docubot.Response{Status: http.StatusOK, Result: &answer}
}

func (f *fakeBot) Ingest(_ context.Context, name string, r io.Reader) (*indexer.IngestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingests++
	f.uploads = append(f.uploads, name)
	if f.ingestErr != nil {
		return nil, f.ingestErr
	}
	return &indexer.IngestResult{Path: name, Documents: 1, Chunks: 1}, nil
}

func (f *fakeBot) Ask(_ context.Context, query string) (string, error) {
	if f.askErr != nil {
		return "", f.askErr
	}
	return f.answer, nil
}

func (f *fakeBot) Status(context.Context) (docubot.IndexStatus, error) {
	return f.status, f.statusErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func multipartBody(t *testing.T, fields map[string]string, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileName != "" {
		part, err := w.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestPredict_QueryOnly(t *testing.T) {
	bot := &fakeBot{answer: "Paris."}
	h := New(bot, testLogger(), nil)

	req := httptest.NewRequest(http.MethodPost, "/predict?query=capital", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, map[string]any{"result": "Paris."}, decodeBody(t, rec))
	assert.Equal(t, []string{"capital"}, bot.predicted)
	assert.Empty(t, bot.uploads)
}

func TestPredict_PassesUploadThrough(t *testing.T) {
	bot := &fakeBot{answer: "Paris."}
	h := New(bot, testLogger(), nil)

	body, ct := multipartBody(t, nil, "facts.txt", "The capital of France is Paris.")
	req := httptest.NewRequest(http.MethodPost, "/predict?query=capital", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"facts.txt"}, bot.uploads)
	assert.Equal(t, []string{"The capital of France is Paris."}, bot.contents)
}

func TestPredict_UnsupportedUploadIs406(t *testing.T) {
	bot := &fakeBot{}
	h := New(bot, testLogger(), nil)

	body, ct := multipartBody(t, nil, "slides.pptx", "binary")
	req := httptest.NewRequest(http.MethodPost, "/predict?query=q", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotAcceptable, rec.Code)
	got := decodeBody(t, rec)
	assert.Equal(t, float64(http.StatusNotAcceptable), got["status_code"])
	assert.Equal(t, docubot.MsgUnsupported, got["detail"])
}

func TestPredict_MissingQueryIs422(t *testing.T) {
	bot := &fakeBot{}
	h := New(bot, testLogger(), nil)

	req := httptest.NewRequest(http.MethodPost, "/predict", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, bot.predicted)
}

func TestPredict_WrongMethod(t *testing.T) {
	h := New(&fakeBot{}, testLogger(), nil)

	req := httptest.NewRequest(http.MethodGet, "/predict?query=q", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORS(t *testing.T) {
	h := New(&fakeBot{answer: "ok"}, testLogger(), nil)

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/predict?query=q", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("other origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/predict?query=q", nil)
		req.Header.Set("Origin", "http://evil.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
		req.Header.Set("Origin", "http://localhost:8080")
		req.Header.Set("Access-Control-Request-Method", "POST")
		req.Header.Set("Access-Control-Request-Headers", "Content-Type, X-Custom")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
		assert.Equal(t, "Content-Type, X-Custom", rec.Header().Get("Access-Control-Allow-Headers"))
	})
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		bot := &fakeBot{status: docubot.IndexStatus{Name: "docubot", State: storage.StatePopulated}}
		rec := httptest.NewRecorder()
		New(bot, testLogger(), nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, storage.StatePopulated.String(), resp.Index)
		assert.NotEmpty(t, resp.Timestamp)
	})

	t.Run("unhealthy", func(t *testing.T) {
		bot := &fakeBot{statusErr: errors.New("connection refused")}
		rec := httptest.NewRecorder()
		New(bot, testLogger(), nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "unhealthy", resp.Status)
		assert.Equal(t, "disconnected", resp.Index)
	})
}

func TestMCPMount(t *testing.T) {
	mcp := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := New(&fakeBot{}, testLogger(), &Options{MCP: mcp})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestUI_PageSetsSessionCookie(t *testing.T) {
	h := New(&fakeBot{}, testLogger(), nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), `accept=".txt,.doc,.pdf,.csv"`)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, sessionCookie, rec.Result().Cookies()[0].Name)
	assert.Equal(t, int(sessionTTL/time.Second), rec.Result().Cookies()[0].MaxAge)
}

func TestUI_IngestsSameFileOncePerSession(t *testing.T) {
	bot := &fakeBot{answer: "The capital is **Paris**."}
	h := New(bot, testLogger(), nil)

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	cookie := first.Result().Cookies()[0]

	submit := func(content string) *httptest.ResponseRecorder {
		body, ct := multipartBody(t, map[string]string{"query": "capital?"}, "facts.txt", content)
		req := httptest.NewRequest(http.MethodPost, "/ui", body)
		req.Header.Set("Content-Type", ct)
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := submit("The capital of France is Paris.")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<strong>Paris</strong>")
	assert.Contains(t, rec.Body.String(), "Document prepared.")

	rec = submit("The capital of France is Paris.")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Document already prepared.")
	assert.Equal(t, 1, bot.ingests)

	submit("The capital of Italy is Rome.")
	assert.Equal(t, 2, bot.ingests)
}

func TestUI_ShowsFriendlyErrors(t *testing.T) {
	bot := &fakeBot{askErr: storage.ErrIndexEmpty}
	h := New(bot, testLogger(), nil)

	body, ct := multipartBody(t, map[string]string{"query": "anything"}, "", "")
	req := httptest.NewRequest(http.MethodPost, "/ui", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), docubot.MsgNoIndex))
	assert.Equal(t, 0, bot.ingests)
}

func TestUI_UnsupportedUpload(t *testing.T) {
	bot := &fakeBot{ingestErr: document.ErrUnsupportedFormat}
	h := New(bot, testLogger(), nil)

	body, ct := multipartBody(t, map[string]string{"query": "q"}, "deck.pptx", "x")
	req := httptest.NewRequest(http.MethodPost, "/ui", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotAcceptable, rec.Code)
	assert.Contains(t, rec.Body.String(), docubot.MsgUnsupported)
}
