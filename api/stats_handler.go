package api

import (
	"net/http"
)

func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	count, err := a.eng.DLQService().DLQStore().CountDLQ(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, StatsResponse{
		Mode:     a.eng.Mode().String(),
		Stats:    a.eng.Stats(),
		DLQCount: count,
	})
}

// health reports 200 while the store answers. A degraded scheduler is
// still healthy: it keeps delivering from memory.
func (a *API) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "ok",
		Mode:     a.eng.Mode().String(),
		Degraded: a.eng.Stats().Degraded,
	}
	if err := a.eng.Ping(r.Context()); err != nil {
		resp.Status = "unavailable"
		resp.Error = err.Error()
		a.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	a.writeJSON(w, http.StatusOK, resp)
}
