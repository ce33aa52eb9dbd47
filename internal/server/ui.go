package server

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"

	"github.com/mike-a-ellis/docubot/internal/docubot"
	"github.com/mike-a-ellis/docubot/internal/document"
)

const sessionCookie = "docubot_session"

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Docubot</title>
<style>
  *, *::before, *::after { box-sizing: border-box; margin: 0; padding: 0; }
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; background: #0f172a; color: #e2e8f0; min-height: 100vh; display: flex; align-items: flex-start; justify-content: center; padding-top: 4rem; }
  .card { max-width: 720px; width: 90%; background: #1e293b; border-radius: 12px; padding: 2.5rem; box-shadow: 0 25px 50px rgba(0,0,0,0.4); }
  h1 { font-size: 1.75rem; margin-bottom: 1.75rem; color: #f8fafc; text-align: center; }
  .section { margin-bottom: 1.5rem; }
  .section-title { font-size: 0.75rem; text-transform: uppercase; letter-spacing: 0.1em; color: #64748b; margin-bottom: 0.5rem; }
  input[type=text] { width: 100%; padding: 0.6rem 0.8rem; border-radius: 8px; border: 1px solid #334155; background: #0f172a; color: #e2e8f0; }
  button { margin-top: 1rem; padding: 0.6rem 1.4rem; border: 0; border-radius: 8px; background: #38bdf8; color: #0f172a; font-weight: 600; cursor: pointer; }
  .answer { background: #0f172a; border: 1px solid #334155; border-radius: 8px; padding: 1rem; line-height: 1.6; }
  .error { color: #f87171; }
  .notice { color: #94a3b8; font-size: 0.9rem; }
</style>
</head>
<body>
<div class="card">
  <h1>Docubot</h1>
  <form method="post" action="/ui" enctype="multipart/form-data">
    <div class="section">
      <div class="section-title">Choose a file</div>
      <input type="file" name="file" accept="{{.Accept}}">
      {{with .Notice}}<p class="notice">{{.}}</p>{{end}}
    </div>
    <div class="section">
      <div class="section-title">Ask your question</div>
      <input type="text" name="query" value="{{.Query}}" placeholder="Can you give me a brief summary?">
    </div>
    <button type="submit">Ask</button>
  </form>
  {{with .Error}}<div class="section"><p class="error">{{.}}</p></div>{{end}}
  {{with .Answer}}<div class="section"><div class="section-title">Answer</div><div class="answer">{{.}}</div></div>{{end}}
</div>
</body>
</html>`))

type pageData struct {
	Accept string
	Query  string
	Notice string
	Error  string
	Answer template.HTML
}

// ui serves the interactive page. Each browser session remembers the hash of the
// last file it ingested and does not ingest the same bytes twice.
type ui struct {
	bot      Chatbot
	logger   *slog.Logger
	markdown goldmark.Markdown
	sessions *sessionStore
}

func newUI(bot Chatbot, logger *slog.Logger) *ui {
	return &ui{
		bot:      bot,
		logger:   logger,
		markdown: goldmark.New(),
		sessions: newSessionStore(sessionTTL, maxSessions),
	}
}

func (u *ui) page(w http.ResponseWriter, r *http.Request) {
	u.session(w, r)
	u.render(w, http.StatusOK, pageData{})
}

func (u *ui) submit(w http.ResponseWriter, r *http.Request) {
	session := u.session(w, r)
	data := pageData{}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil && err != http.ErrNotMultipart {
		data.Error = err.Error()
		u.render(w, http.StatusBadRequest, data)
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	data.Query = strings.TrimSpace(r.FormValue("query"))

	if file, header, err := r.FormFile("file"); err == nil {
		defer file.Close()
		notice, err := u.ingestOnce(r, session, header.Filename, file)
		if err != nil {
			data.Error = docubot.UserMessage(err)
			u.render(w, docubot.ErrorResponse(err).Status, data)
			return
		}
		data.Notice = notice
	}

	if data.Query == "" {
		u.render(w, http.StatusOK, data)
		return
	}

	answer, err := u.bot.Ask(r.Context(), data.Query)
	if err != nil {
		data.Error = docubot.UserMessage(err)
		u.render(w, docubot.ErrorResponse(err).Status, data)
		return
	}

	var buf bytes.Buffer
	if err := u.markdown.Convert([]byte(answer), &buf); err != nil {
		u.logger.Warn("Could not render answer as markdown", "error", err)
		data.Answer = template.HTML(template.HTMLEscapeString(answer))
	} else {
		data.Answer = template.HTML(buf.String())
	}
	u.render(w, http.StatusOK, data)
}

// ingestOnce ingests the upload unless this session already ingested the same bytes.
func (u *ui) ingestOnce(r *http.Request, session, name string, file io.Reader) (string, error) {
	content, err := io.ReadAll(file)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(content)
	digest := hex.EncodeToString(sum[:])

	if u.sessions.Seen(session, digest) {
		return "Document already prepared.", nil
	}

	if _, err := u.bot.Ingest(r.Context(), name, bytes.NewReader(content)); err != nil {
		return "", err
	}

	u.sessions.Remember(session, digest)
	return "Document prepared.", nil
}

// session returns the caller's session id, issuing a cookie on first visit.
func (u *ui) session(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(sessionTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func (u *ui) render(w http.ResponseWriter, status int, data pageData) {
	exts := make([]string, len(document.SupportedExtensions))
	for i, e := range document.SupportedExtensions {
		exts[i] = "." + e
	}
	data.Accept = strings.Join(exts, ",")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplate.Execute(w, data); err != nil {
		u.logger.Error("Error while rendering page", "error", err)
	}
}
