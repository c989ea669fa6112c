package handler

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/rl1809/stock-shipments/internal/core/domain"
	"github.com/rl1809/stock-shipments/internal/core/service"
)

const (
	idempotencyHeader = "Idempotency-Key"
	shipmentIDHeader  = "X-Shipment-ID"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HTTPHandler struct {
	shipments *service.ShipmentService
	items     *service.ItemService
	store     Pinger
	logger    zerolog.Logger
}

// ShipmentHTTPRequest is the JSON form of POST /shipment/add. Ids, quantities
// and price may be sent as strings or numbers.
type ShipmentHTTPRequest struct {
	ItemIDs    rawList  `json:"id"`
	Quantities rawList  `json:"quantity"`
	Price      rawValue `json:"price"`
}

type ItemHTTPRequest struct {
	ID          rawValue `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Quantity    rawValue `json:"quantity"`
}

type ErrorHTTPResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ItemsHTTPResponse struct {
	Items []domain.Item `json:"items"`
}

type ShipmentsHTTPResponse struct {
	Shipments []domain.Shipment `json:"shipments"`
}

func NewHTTPHandler(shipments *service.ShipmentService, items *service.ItemService, store Pinger, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{shipments: shipments, items: items, store: store, logger: logger}
}

func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.HealthCheck)

	mux.HandleFunc("GET /shipment/add", h.ShipmentForm)
	mux.HandleFunc("POST /shipment/add", h.AddShipment)
	mux.HandleFunc("GET /shipment/list", h.ListShipments)
	mux.HandleFunc("GET /api/shipment/list", h.ListShipments)
	mux.HandleFunc("GET /api/shipment/{id}", h.GetShipment)

	mux.HandleFunc("GET /item/list", h.ListItems)
	mux.HandleFunc("GET /api/item/list", h.ListItems)
	mux.HandleFunc("POST /item/add", h.AddItem)
	mux.HandleFunc("GET /item/edit", h.GetItem)
	mux.HandleFunc("POST /item/edit", h.EditItem)
	mux.HandleFunc("POST /item/delete", h.DeleteItem)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ShipmentForm lists the items a shipment can be built from.
func (h *HTTPHandler) ShipmentForm(w http.ResponseWriter, r *http.Request) {
	items, err := h.shipments.AvailableItems(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ItemsHTTPResponse{Items: items})
}

func (h *HTTPHandler) AddShipment(w http.ResponseWriter, r *http.Request) {
	req := service.ShipmentRequest{IdempotencyKey: r.Header.Get(idempotencyHeader)}

	jsonBody := isJSON(r)
	if jsonBody {
		var body ShipmentHTTPRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			h.writeError(w, r, domain.Malformed("invalid request body: %v", err))
			return
		}
		req.ItemIDs = body.ItemIDs
		req.Quantities = body.Quantities
		req.Price = string(body.Price)
	} else {
		if err := r.ParseForm(); err != nil {
			h.writeError(w, r, domain.Malformed("invalid form: %v", err))
			return
		}
		req.ItemIDs = formList(r, "id")
		req.Quantities = formList(r, "quantity")
		req.Price = r.PostForm.Get("price")
	}

	shipment, err := h.shipments.AddShipment(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set(shipmentIDHeader, shipment.ID.String())
	if !jsonBody {
		http.Redirect(w, r, "/shipment/list", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusCreated, shipment)
}

func (h *HTTPHandler) ListShipments(w http.ResponseWriter, r *http.Request) {
	shipments, err := h.shipments.ListShipments(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ShipmentsHTTPResponse{Shipments: shipments})
}

func (h *HTTPHandler) GetShipment(w http.ResponseWriter, r *http.Request) {
	shipment, err := h.shipments.GetShipment(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shipment)
}

func (h *HTTPHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.items.ListItems(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ItemsHTTPResponse{Items: items})
}

func (h *HTTPHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	_, in, jsonBody, err := readItem(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	item, err := h.items.CreateItem(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if !jsonBody {
		http.Redirect(w, r, "/item/list", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *HTTPHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.items.GetItem(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *HTTPHandler) EditItem(w http.ResponseWriter, r *http.Request) {
	id, in, jsonBody, err := readItem(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	item, err := h.items.UpdateItem(r.Context(), id, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if !jsonBody {
		http.Redirect(w, r, "/item/list", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *HTTPHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id, _, jsonBody, err := readItem(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.items.DeleteItem(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}

	if !jsonBody {
		http.Redirect(w, r, "/item/list", http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// readItem decodes an item from a JSON body or a form. The id may also come
// from the query string.
func readItem(r *http.Request) (id string, in service.ItemInput, jsonBody bool, err error) {
	if isJSON(r) {
		var body ItemHTTPRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return "", in, true, domain.Malformed("invalid request body: %v", err)
		}
		id = string(body.ID)
		if id == "" {
			id = r.URL.Query().Get("id")
		}
		return id, service.ItemInput{
			Name:        body.Name,
			Description: body.Description,
			Quantity:    string(body.Quantity),
		}, true, nil
	}

	if err := r.ParseForm(); err != nil {
		return "", in, false, domain.Malformed("invalid form: %v", err)
	}
	return r.Form.Get("id"), service.ItemInput{
		Name:        r.PostForm.Get("name"),
		Description: r.PostForm.Get("description"),
		Quantity:    r.PostForm.Get("quantity"),
	}, false, nil
}

// formList reads a repeated form field sent either as name[] or name.
func formList(r *http.Request, name string) []string {
	if values, ok := r.PostForm[name+"[]"]; ok {
		return values
	}
	return r.PostForm[name]
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}

	event := h.logger.Warn()
	if status >= http.StatusInternalServerError {
		event = h.logger.Error()
	}
	event.Err(err).Str("method", r.Method).Str("path", r.URL.Path).Str("code", code).Msg("request failed")

	writeJSON(w, status, ErrorHTTPResponse{Success: false, Code: code, Message: message})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrMalformedRequest):
		return http.StatusBadRequest, "malformed_request"
	case errors.Is(err, domain.ErrItemNotFound):
		return http.StatusNotFound, "item_not_found"
	case errors.Is(err, domain.ErrShipmentNotFound):
		return http.StatusNotFound, "shipment_not_found"
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusUnprocessableEntity, "insufficient_stock"
	case errors.Is(err, domain.ErrCommitConflict):
		return http.StatusConflict, "commit_conflict"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict, "duplicate_request"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// rawValue accepts a JSON string, number or null and keeps its text.
type rawValue string

func (v *rawValue) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	switch {
	case text == "null":
		*v = ""
	case strings.HasPrefix(text, `"`):
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = rawValue(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return errors.WithMessage(err, "expected a string or a number")
		}
		*v = rawValue(n.String())
	}
	return nil
}

// rawList accepts a JSON array of strings or numbers.
type rawList []string

func (l *rawList) UnmarshalJSON(data []byte) error {
	var values []rawValue
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	*l = out
	return nil
}
