package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

// HTTPHandler is the thin JSON layer over the ledger core. Authentication is
// an upstream concern: the gateway injects the already-authenticated user id
// in the X-User-ID header.
type HTTPHandler struct {
	service *service.TransactionService
}

func NewHTTPHandler(svc *service.TransactionService) *HTTPHandler {
	return &HTTPHandler{service: svc}
}

func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("POST /api/transactions", h.CreateTransaction)
	mux.HandleFunc("GET /api/transactions", h.ListTransactions)
	mux.HandleFunc("PUT /api/transactions/{id}", h.UpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", h.DeleteTransaction)
	mux.HandleFunc("GET /api/products", h.ListProducts)
}

type transactionRequest struct {
	ProductID       string `json:"product_id"`
	Type            string `json:"type"`
	Quantity        int    `json:"quantity"`
	TransactionDate string `json:"transaction_date"`
}

type productResponse struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

type transactionResponse struct {
	ID              string           `json:"id"`
	UserID          string           `json:"user_id"`
	ProductID       string           `json:"product_id"`
	Type            string           `json:"type"`
	Quantity        int              `json:"quantity"`
	Price           decimal.Decimal  `json:"price"`
	TotalAmount     decimal.Decimal  `json:"total_amount"`
	TransactionDate string           `json:"transaction_date"`
	Product         *productResponse `json:"product,omitempty"`
}

type apiResponse struct {
	Success      bool                  `json:"success"`
	Message      string                `json:"message,omitempty"`
	Transaction  *transactionResponse  `json:"transaction,omitempty"`
	Transactions []transactionResponse `json:"transactions,omitempty"`
	Products     []productResponse     `json:"products,omitempty"`
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}

	rec, err := h.service.RecordTransaction(r.Context(), userID, in)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, apiResponse{
		Success:     true,
		Message:     "transaction recorded",
		Transaction: h.transactionResponse(r, *rec),
	})
}

func (h *HTTPHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}

	rec, err := h.service.UpdateTransaction(r.Context(), r.PathValue("id"), userID, in)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, apiResponse{
		Success:     true,
		Message:     "transaction updated",
		Transaction: h.transactionResponse(r, *rec),
	})
}

func (h *HTTPHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteTransaction(r.Context(), r.PathValue("id"), userID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "transaction deleted"})
}

func (h *HTTPHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	recs, err := h.service.ListTransactions(r.Context(), userID, domain.TransactionType(r.URL.Query().Get("type")))
	if err != nil {
		writeError(w, err)
		return
	}

	products := h.productIndex(r)
	out := make([]transactionResponse, 0, len(recs))
	for _, rec := range recs {
		resp := newTransactionResponse(rec)
		if p, ok := products[rec.ProductID]; ok {
			resp.Product = &p
		}
		out = append(out, resp)
	}

	writeJSON(w, http.StatusOK, apiResponse{Success: true, Transactions: out})
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, newProductResponse(p))
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Products: out})
}

func (h *HTTPHandler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, apiResponse{Success: false, Message: "missing user identity"})
		return "", false
	}
	return userID, true
}

func (h *HTTPHandler) decodeInput(w http.ResponseWriter, r *http.Request) (service.TransactionInput, bool) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Message: "invalid request body"})
		return service.TransactionInput{}, false
	}

	in := service.TransactionInput{
		ProductID: req.ProductID,
		Type:      domain.TransactionType(req.Type),
		Quantity:  req.Quantity,
	}
	if req.TransactionDate != "" {
		date, err := domain.ParseDay(req.TransactionDate)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Message: "transaction_date must be YYYY-MM-DD"})
			return service.TransactionInput{}, false
		}
		in.Date = date
	}
	return in, true
}

func (h *HTTPHandler) transactionResponse(r *http.Request, rec domain.Transaction) *transactionResponse {
	resp := newTransactionResponse(rec)
	if p, err := h.service.GetProduct(r.Context(), rec.ProductID); err == nil && p != nil {
		pr := newProductResponse(*p)
		resp.Product = &pr
	}
	return &resp
}

func (h *HTTPHandler) productIndex(r *http.Request) map[string]productResponse {
	out := make(map[string]productResponse)
	products, err := h.service.ListProducts(r.Context())
	if err != nil {
		// The list itself still goes out, just without product embeds.
		log.Printf("failed to load products for response: %v", err)
		return out
	}
	for _, p := range products {
		out[p.ID] = newProductResponse(p)
	}
	return out
}

func newTransactionResponse(rec domain.Transaction) transactionResponse {
	return transactionResponse{
		ID:              rec.ID,
		UserID:          rec.UserID,
		ProductID:       rec.ProductID,
		Type:            string(rec.Type),
		Quantity:        rec.Quantity,
		Price:           rec.Price,
		TotalAmount:     rec.TotalAmount,
		TransactionDate: domain.FormatDay(rec.Date),
	}
}

func newProductResponse(p domain.Product) productResponse {
	return productResponse{ID: p.ID, Name: p.Name, Price: p.Price, Quantity: p.Quantity}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, service.ErrValidation):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, service.ErrInsufficientStock),
		errors.Is(err, service.ErrInsufficientLedgerQuantity),
		errors.Is(err, service.ErrNoCostBasis):
		status = http.StatusUnprocessableEntity
		message = err.Error()
	case errors.Is(err, service.ErrDateConflict),
		errors.Is(err, service.ErrUserBusy):
		status = http.StatusConflict
		message = err.Error()
	}

	writeJSON(w, status, apiResponse{Success: false, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
