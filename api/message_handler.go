package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/postmaster/id"
)

// enqueue accepts either a JSON EnqueueRequest or a raw message/rfc822
// body with the priority in the query string.
func (a *API) enqueue(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxPayloadBytes)

	var (
		raw      []byte
		priority int
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")) //nolint:errcheck // empty type falls through to JSON
	if mediaType == "message/rfc822" {
		p, err := intQuery(r, "priority", 0)
		if err != nil {
			a.badRequest(w, err.Error())
			return
		}
		raw, err = io.ReadAll(body)
		if err != nil {
			a.badRequest(w, fmt.Sprintf("read body: %v", err))
			return
		}
		priority = p
	} else {
		var req EnqueueRequest
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			a.badRequest(w, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		raw, priority = []byte(req.Raw), req.Priority
	}
	if len(raw) == 0 {
		a.badRequest(w, "message is empty")
		return
	}

	m, err := a.eng.Enqueue(r.Context(), raw, priority)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusAccepted, newMessageResponse(m))
}

func (a *API) withdraw(w http.ResponseWriter, r *http.Request) {
	msgID, err := id.ParseMessageID(chi.URLParam(r, "messageId"))
	if err != nil {
		a.badRequest(w, fmt.Sprintf("invalid message ID: %v", err))
		return
	}
	if err := a.eng.Withdraw(r.Context(), msgID); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
