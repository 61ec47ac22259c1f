package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/nerrad567/idiotic-core/internal/audit"
)

// ActivityLister queries the activity log. *audit.SQLiteRepository implements it.
type ActivityLister interface {
	List(ctx context.Context, filter audit.Filter) (*audit.ListResult, error)
}

// handleListActivity returns activity log entries, newest first.
//
// Query parameters:
//   - action: connected, disconnected, executed, failed
//   - entity_type: device or routine
//   - entity_id: device id or routine name
//   - limit, offset: paging (limit defaults to 50, max 200)
func (s *Server) handleListActivity(w http.ResponseWriter, r *http.Request) {
	if s.activity == nil {
		writeNotFound(w, "activity log not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, name+" must be an integer")
			return
		}
		*dst = n
	}

	res, err := s.activity.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing activity failed", "error", err)
		writeInternalError(w, "failed to list activity")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
