package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/BoardPipe/internal/models"
)

// internalErrorBody is written verbatim when a reply cannot be encoded.
const internalErrorBody = `{"status":"error","message":"internal error"}`

// reportRun is the result of POST /reports/{name}.
type reportRun struct {
	Job    string   `json:"job"`
	ChatID int64    `json:"chat_id"`
	Args   []string `json:"args,omitempty"`
}

// respond encodes body before touching the headers, so an encoding failure still becomes a 500.
func respond(w http.ResponseWriter, status int, body models.APIResponse) {
	data, err := json.Marshal(body)
	if err != nil {
		slog.Error("api.respond: failed to encode reply", "status", status, "error", err)
		status, data = http.StatusInternalServerError, []byte(internalErrorBody)
	}
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Warn("api.respond: failed to write reply", "status", status, "error", err)
	}
}

func respondOK(w http.ResponseWriter, result any) {
	respond(w, http.StatusOK, models.Success(result))
}

func respondError(w http.ResponseWriter, status int, format string, args ...any) {
	respond(w, status, models.Error(fmt.Sprintf(format, args...)))
}
