package api

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/stocklog/stocklog/internal/model"
	"github.com/stocklog/stocklog/internal/store"
)

// ChangeLogHandler handles the read-only change-log endpoints. The log is
// append-only: no create, update or delete routes exist for it.
type ChangeLogHandler struct {
	DB *sql.DB
}

// List handles GET /api/logs. Non-administrators see only entries they made.
func (h *ChangeLogHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	filter := store.ChangeLogFilter{}
	if !claims.IsAdmin {
		filter.ActorID = claims.UserID
	}
	if item := r.URL.Query().Get("item"); item != "" {
		id, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid item id")
			return
		}
		filter.ItemID = id
	}

	logs, err := store.ListChangeLogs(r.Context(), h.DB, filter)
	if err != nil {
		storeError(w, err, "failed to list change logs")
		return
	}
	if logs == nil {
		logs = []model.ChangeLog{}
	}
	jsonResponse(w, http.StatusOK, logs)
}

// Get handles GET /api/logs/{id}.
func (h *ChangeLogHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid change log id")
		return
	}

	entry, err := store.GetChangeLog(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, err, "failed to get change log")
		return
	}

	claims := GetClaims(r.Context())
	if entry == nil || (!claims.IsAdmin && entry.ChangedBy != claims.UserID) {
		jsonError(w, http.StatusNotFound, "change log not found")
		return
	}

	jsonResponse(w, http.StatusOK, entry)
}
