package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mike-a-ellis/docubot/internal/docubot"
)

// NewPredictHandler serves POST /predict?query=... with an optional multipart "file".
func NewPredictHandler(bot Chatbot, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("query")
		if query == "" {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"status_code": http.StatusUnprocessableEntity,
				"detail":      "query parameter is required",
			})
			return
		}

		var upload *docubot.Upload
		if isMultipart(r) {
			if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
				logger.Error("Error while reading upload", "error", err)
				writeJSON(w, http.StatusBadRequest, map[string]string{"Error": err.Error()})
				return
			}
			defer r.MultipartForm.RemoveAll()

			file, header, err := r.FormFile("file")
			switch {
			case errors.Is(err, http.ErrMissingFile):
			case err != nil:
				writeJSON(w, http.StatusBadRequest, map[string]string{"Error": err.Error()})
				return
			default:
				defer file.Close()
				upload = &docubot.Upload{Name: header.Filename, Body: file}
			}
		}

		resp := bot.Predict(r.Context(), query, upload)
		writeJSON(w, resp.Status, resp.Body())
	}
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
