package httpapi

import (
	"net/http"
	"time"

	"github.com/product-estimator/estimator/internal/view"
)

// handleAdmin serves the operator routes:
//
//	GET    /v1/admin/status   store and document counters
//	POST   /v1/admin/render   rebuild every region from storage
//	DELETE /v1/admin/storage  clear the persisted record
func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request, parts []string) {
	correlationID := getCorrelationID(r)
	if s.cfg.AdminSecret == "" {
		writeError(w, http.StatusNotFound, "not_found", "route not found", correlationID)
		return
	}
	var scope, route string
	switch {
	case len(parts) == 3 && parts[2] == "status" && r.Method == http.MethodGet:
		scope, route = scopeAdminRead, "status"
	case len(parts) == 3 && parts[2] == "render" && r.Method == http.MethodPost:
		scope, route = scopeAdminWrite, "render"
	case len(parts) == 3 && parts[2] == "storage" && r.Method == http.MethodDelete:
		scope, route = scopeAdminWrite, "clear"
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found", correlationID)
		return
	}
	token, authErr := authorizeOperator(r.Header.Get("Authorization"), s.cfg.AdminSecret, scope, time.Now().UTC())
	if authErr != nil {
		writeError(w, authErr.status, authErr.code, authErr.message, correlationID)
		return
	}

	switch route {
	case "status":
		s.handleAdminStatus(w)
	case "render":
		if err := s.reconciler.RenderAll(); err != nil {
			writeError(w, http.StatusInternalServerError, "render_failed", err.Error(), correlationID)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"regions": len(s.reconciler.Document().Regions())})
	case "clear":
		s.logf("storage cleared by %s", token.Operator)
		s.coord.Store().Clear()
		s.render(s.reconciler.RenderAll())
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleAdminStatus(w http.ResponseWriter) {
	root := s.coord.Store().Load()
	rooms := 0
	for _, e := range root.Estimates.Values() {
		if e != nil {
			rooms += e.Rooms.Len()
		}
	}
	depth := 0
	if s.cfg.MirrorDepth != nil {
		depth = s.cfg.MirrorDepth()
	}
	doc := s.reconciler.Document()
	writeJSON(w, http.StatusOK, map[string]any{
		"estimates":        root.Estimates.Len(),
		"rooms":            rooms,
		"customerDetails":  root.CustomerDetails != nil,
		"mountedRegions":   len(doc.Regions()),
		"estimatesMounted": doc.Mounted(view.EstimatesRegion),
		"loadingVisible":   s.loading.Visible(),
		"mirrorQueueDepth": depth,
		"modalOpen":        s.isModalOpen(),
	})
}
