package api

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/stocklog/stocklog/internal/imaging"
	"github.com/stocklog/stocklog/internal/model"
	"github.com/stocklog/stocklog/internal/store"
)

// ItemsHandler handles inventory item endpoints.
type ItemsHandler struct {
	DB *sql.DB
}

type itemRequest struct {
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	Quantity          int64           `json:"quantity"`
	Price             decimal.Decimal `json:"price"`
	LowStockThreshold *int64          `json:"low_stock_threshold"`
	CategoryID        *int64          `json:"category_id"`

	// Reason is only read on updates; it justifies the change in the log.
	Reason string `json:"reason"`
}

type adjustRequest struct {
	ChangeQuantity int64  `json:"change_quantity"`
	Reason         string `json:"reason"`
}

func (req *itemRequest) input() store.ItemInput {
	return store.ItemInput{
		Name:              req.Name,
		Description:       req.Description,
		Quantity:          req.Quantity,
		Price:             req.Price,
		LowStockThreshold: req.LowStockThreshold,
		CategoryID:        req.CategoryID,
	}
}

// parseItemFilter builds the listing filter from query parameters, scoping
// non-administrators to their own items.
func parseItemFilter(r *http.Request) (store.ItemFilter, error) {
	claims := GetClaims(r.Context())
	q := r.URL.Query()

	filter := store.ItemFilter{Search: q.Get("search")}

	if !claims.IsAdmin {
		filter.OwnerID = claims.UserID
	} else if owner := q.Get("owner"); owner != "" {
		id, err := strconv.ParseInt(owner, 10, 64)
		if err != nil {
			return filter, &store.ValidationError{Field: "owner", Message: "invalid owner id"}
		}
		filter.OwnerID = id
	}

	if category := q.Get("category"); category != "" {
		id, err := strconv.ParseInt(category, 10, 64)
		if err != nil {
			return filter, &store.ValidationError{Field: "category", Message: "invalid category id"}
		}
		filter.CategoryID = id
	}

	for _, bound := range []struct {
		param string
		dst   **decimal.Decimal
	}{
		{"min_price", &filter.MinPrice},
		{"max_price", &filter.MaxPrice},
	} {
		if v := q.Get(bound.param); v != "" {
			d, err := decimal.NewFromString(v)
			if err != nil {
				return filter, &store.ValidationError{Field: bound.param, Message: "invalid price"}
			}
			*bound.dst = &d
		}
	}

	switch sort := q.Get("sort"); sort {
	case "", "quantity", "price":
		filter.SortBy = sort
	default:
		return filter, &store.ValidationError{Field: "sort", Message: "sort must be quantity or price"}
	}
	filter.SortDesc = q.Get("order") == "desc"

	return filter, nil
}

// List handles GET /api/items.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseItemFilter(r)
	if err != nil {
		storeError(w, err, "failed to list items")
		return
	}

	items, err := store.ListItems(r.Context(), h.DB, filter)
	if err != nil {
		storeError(w, err, "failed to list items")
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// LowStock handles GET /api/items/low-stock.
func (h *ItemsHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	var ownerID int64
	if !claims.IsAdmin {
		ownerID = claims.UserID
	}

	items, err := store.ListLowStock(r.Context(), h.DB, ownerID)
	if err != nil {
		storeError(w, err, "failed to list low-stock items")
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// Create handles POST /api/items. The creating account becomes the owner.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req itemRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := store.CreateItem(r.Context(), h.DB, req.input(), claims.UserID)
	if err != nil {
		storeError(w, err, "failed to create item")
		return
	}

	jsonResponse(w, http.StatusCreated, item)
}

// loadItem fetches the item for a {id} route. Reads are open to any
// authenticated user; mutation handlers additionally enforce owner-or-admin.
func (h *ItemsHandler) loadItem(w http.ResponseWriter, r *http.Request) *model.Item {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return nil
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, err, "failed to get item")
		return nil
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return nil
	}
	return item
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	item := h.loadItem(w, r)
	if item == nil {
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Update handles PUT /api/items/{id}. A successful update that moves
// quantity or price (or carries a reason for other tracked changes) commits
// together with exactly one change-log entry.
func (h *ItemsHandler) Update(w http.ResponseWriter, r *http.Request) {
	item := h.loadItem(w, r)
	if item == nil {
		return
	}

	claims := GetClaims(r.Context())
	if !model.CanModifyItem(claims.UserID, claims.IsAdmin, item) {
		jsonError(w, http.StatusForbidden, "only the owner or an administrator may modify this item")
		return
	}

	var req itemRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, entry, err := store.UpdateItem(r.Context(), h.DB, item.ID, req.input(), claims.UserID, req.Reason)
	if err != nil {
		storeError(w, err, "failed to update item")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"item":       updated,
		"change_log": entry,
	})
}

// Adjust handles POST /api/items/{id}/adjust, applying a signed quantity
// delta with a reason.
func (h *ItemsHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	item := h.loadItem(w, r)
	if item == nil {
		return
	}

	claims := GetClaims(r.Context())
	if !model.CanModifyItem(claims.UserID, claims.IsAdmin, item) {
		jsonError(w, http.StatusForbidden, "only the owner or an administrator may modify this item")
		return
	}

	var req adjustRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, entry, err := store.AdjustItemQuantity(r.Context(), h.DB, item.ID, req.ChangeQuantity, claims.UserID, req.Reason)
	if err != nil {
		storeError(w, err, "failed to adjust item quantity")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"item":       updated,
		"change_log": entry,
	})
}

// Delete handles DELETE /api/items/{id}. Change-log entries cascade with
// the item.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	item := h.loadItem(w, r)
	if item == nil {
		return
	}

	claims := GetClaims(r.Context())
	if !model.CanModifyItem(claims.UserID, claims.IsAdmin, item) {
		jsonError(w, http.StatusForbidden, "only the owner or an administrator may delete this item")
		return
	}

	if err := store.DeleteItem(r.Context(), h.DB, item.ID); err != nil {
		storeError(w, err, "failed to delete item")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "item deleted"})
}

// GetLogs handles GET /api/items/{id}/logs.
func (h *ItemsHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	item := h.loadItem(w, r)
	if item == nil {
		return
	}

	logs, err := store.ListChangeLogs(r.Context(), h.DB, store.ChangeLogFilter{ItemID: item.ID})
	if err != nil {
		storeError(w, err, "failed to list item changes")
		return
	}
	if logs == nil {
		logs = []model.ChangeLog{}
	}
	jsonResponse(w, http.StatusOK, logs)
}

// UploadImage handles PUT /api/items/{id}/image.
func (h *ItemsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	item := h.loadItem(w, r)
	if item == nil {
		return
	}

	claims := GetClaims(r.Context())
	if !model.CanModifyItem(claims.UserID, claims.IsAdmin, item) {
		jsonError(w, http.StatusForbidden, "only the owner or an administrator may modify this item")
		return
	}

	// Limit to 5 MB.
	r.Body = http.MaxBytesReader(w, r.Body, 5<<20)

	if err := r.ParseMultipartForm(5 << 20); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	processed, err := imaging.Process(file)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := store.SetItemImage(r.Context(), h.DB, item.ID, processed.Data, processed.MIME); err != nil {
		storeError(w, err, "failed to save image")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "image uploaded"})
}

// GetImage handles GET /api/items/{id}/image.
func (h *ItemsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	item := h.loadItem(w, r)
	if item == nil {
		return
	}

	data, mime, err := store.GetItemImage(r.Context(), h.DB, item.ID)
	if err != nil {
		storeError(w, err, "failed to get image")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no image")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}
