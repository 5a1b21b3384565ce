package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/postmaster/dlq"
	"github.com/xraph/postmaster/id"
)

// defaultPurgeAge applies when purge is called without older_than.
const defaultPurgeAge = 30 * 24 * time.Hour

func (a *API) listDLQ(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		a.badRequest(w, err.Error())
		return
	}
	offset, err := intQuery(r, "offset", 0)
	if err != nil {
		a.badRequest(w, err.Error())
		return
	}

	entries, err := a.eng.DLQService().DLQStore().ListDLQ(r.Context(), dlq.ListOpts{
		Limit:  defaultLimit(limit),
		Offset: offset,
	})
	if err != nil {
		a.writeError(w, r, fmt.Errorf("list dlq: %w", err))
		return
	}
	if entries == nil {
		entries = []*dlq.Entry{}
	}
	a.writeJSON(w, http.StatusOK, entries)
}

func (a *API) getDLQ(w http.ResponseWriter, r *http.Request) {
	entryID, err := id.ParseDLQID(chi.URLParam(r, "entryId"))
	if err != nil {
		a.badRequest(w, fmt.Sprintf("invalid DLQ entry ID: %v", err))
		return
	}

	entry, err := a.eng.DLQService().DLQStore().GetDLQ(r.Context(), entryID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, entry)
}

func (a *API) replayDLQ(w http.ResponseWriter, r *http.Request) {
	entryID, err := id.ParseDLQID(chi.URLParam(r, "entryId"))
	if err != nil {
		a.badRequest(w, fmt.Sprintf("invalid DLQ entry ID: %v", err))
		return
	}

	m, err := a.eng.DLQService().Replay(r.Context(), entryID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, newMessageResponse(m))
}

func (a *API) purgeDLQ(w http.ResponseWriter, r *http.Request) {
	age := defaultPurgeAge
	if v := r.URL.Query().Get("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			a.badRequest(w, fmt.Sprintf("invalid older_than %q", v))
			return
		}
		age = d
	}

	count, err := a.eng.DLQService().DLQStore().PurgeDLQ(r.Context(), time.Now().UTC().Add(-age))
	if err != nil {
		a.writeError(w, r, fmt.Errorf("purge dlq: %w", err))
		return
	}
	a.writeJSON(w, http.StatusOK, PurgeDLQResponse{Purged: count})
}

func (a *API) dlqCount(w http.ResponseWriter, r *http.Request) {
	count, err := a.eng.DLQService().DLQStore().CountDLQ(r.Context())
	if err != nil {
		a.writeError(w, r, fmt.Errorf("count dlq: %w", err))
		return
	}
	a.writeJSON(w, http.StatusOK, DLQCountResponse{Count: count})
}
