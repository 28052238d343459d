// Package handler is the thin HTTP layer over the service. It maps the
// service error kinds onto status codes: NotFound -> 404, invalid input
// (including a rejected add-to-cart) -> 400, anything else -> 500.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"marketplace/service"
	"marketplace/store"
)

const sessionHeader = "X-Session-ID"

type Handler struct {
	svc service.ServiceInterface
}

func NewHandler(svc service.ServiceInterface) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	// Products
	r.HandleFunc("/api/products", h.ListProducts).Methods("GET")
	r.HandleFunc("/api/products", h.CreateProduct).Methods("POST")
	r.HandleFunc("/api/products/{id}", h.GetProduct).Methods("GET")
	r.HandleFunc("/api/products/{id}/stock", h.UpdateStock).Methods("PUT")

	// Carts
	r.HandleFunc("/api/carts", h.CreateCart).Methods("POST")
	r.HandleFunc("/api/carts/session", h.GetCartBySession).Methods("GET")
	r.HandleFunc("/api/carts/session/add-product", h.AddProductBySession).Methods("POST")
	r.HandleFunc("/api/carts/{id}", h.GetCart).Methods("GET")
	r.HandleFunc("/api/carts/{id}/add-product", h.AddProduct).Methods("POST")

	// Checkout
	r.HandleFunc("/api/carts/{id}/checkout", h.Checkout).Methods("DELETE")
}

// --- request shapes ---

type createProductReq struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
}

type addProductReq struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

type updateStockReq struct {
	Stock int `json:"stock"`
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeServiceErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidArgument):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrTxContention):
		writeErr(w, http.StatusConflict, err.Error())
	default:
		writeErr(w, http.StatusInternalServerError, err.Error())
	}
}

func pathID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	return id, err == nil
}

// --- products ---

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.ListProducts(r.Context())
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid product ID, expected a UUID")
		return
	}
	p, err := h.svc.GetProduct(r.Context(), id)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	p, err := h.svc.CreateProduct(r.Context(), req.Name, req.Description, req.Price, req.Stock)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid product ID, expected a UUID")
		return
	}
	var req updateStockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.svc.UpdateStock(r.Context(), id, req.Stock); err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- carts ---

func (h *Handler) CreateCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.svc.CreateCart(r.Context())
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cart)
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid cart ID, expected a UUID")
		return
	}
	cart, err := h.svc.GetCart(r.Context(), id)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (h *Handler) GetCartBySession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		writeErr(w, http.StatusBadRequest, sessionHeader+" header is required")
		return
	}
	cart, err := h.svc.GetOrCreateCartBySession(r.Context(), sessionID)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (h *Handler) AddProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid cart ID, expected a UUID")
		return
	}
	h.addProductToCart(w, r, id)
}

func (h *Handler) AddProductBySession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		writeErr(w, http.StatusBadRequest, sessionHeader+" header is required")
		return
	}
	cart, err := h.svc.GetOrCreateCartBySession(r.Context(), sessionID)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	h.addProductToCart(w, r, cart.ID)
}

func (h *Handler) addProductToCart(w http.ResponseWriter, r *http.Request, cartID uuid.UUID) {
	req := addProductReq{Quantity: 1}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ProductID == uuid.Nil {
		writeErr(w, http.StatusBadRequest, "product_id is required")
		return
	}
	cart, err := h.svc.AddItem(r.Context(), cartID, req.ProductID, req.Quantity)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// --- checkout ---

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid cart ID, expected a UUID")
		return
	}
	result, err := h.svc.Checkout(r.Context(), id)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	if result.Success {
		writeJSON(w, http.StatusOK, result)
		return
	}
	writeJSON(w, http.StatusBadRequest, result)
}
