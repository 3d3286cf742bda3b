package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ledgerworks/stockroom/internal/core/domain"
	"github.com/ledgerworks/stockroom/internal/core/service"
)

const clerkHeader = "X-Clerk-Id"

type HTTPHandler struct {
	sales         *service.SaleService
	catalog       *service.CatalogService
	reports       *service.ReportService
	commitTimeout time.Duration
	log           *zap.Logger
}

func NewHTTPHandler(sales *service.SaleService, catalog *service.CatalogService, reports *service.ReportService, commitTimeout time.Duration, log *zap.Logger) *HTTPHandler {
	return &HTTPHandler{
		sales:         sales,
		catalog:       catalog,
		reports:       reports,
		commitTimeout: commitTimeout,
		log:           log,
	}
}

type SaleHTTPRequest struct {
	RequestID string         `json:"request_id,omitempty"`
	Location  string         `json:"location,omitempty"`
	Items     map[string]int `json:"items"`
}

type SaleLineHTTPResponse struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

type SaleHTTPResponse struct {
	Success   bool                   `json:"success"`
	SaleID    string                 `json:"sale_id,omitempty"`
	Total     string                 `json:"total,omitempty"`
	Lines     []SaleLineHTTPResponse `json:"lines,omitempty"`
	Message   string                 `json:"message,omitempty"`
	ProductID string                 `json:"product_id,omitempty"`
	Shortfall int                    `json:"shortfall,omitempty"`
}

type AdjustHTTPRequest struct {
	ProductID string `json:"product_id"`
	Location  string `json:"location,omitempty"`
	Delta     int    `json:"delta"`
}

type AddProductHTTPRequest struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	CostPrice    string `json:"cost_price"`
	SellingPrice string `json:"selling_price"`
	Category     string `json:"category,omitempty"`
}

type StatusHTTPResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type StockViewHTTPResponse struct {
	ProductID    string `json:"product_id"`
	Location     string `json:"location"`
	Quantity     int    `json:"quantity"`
	SellingPrice string `json:"selling_price"`
}

func (h *HTTPHandler) CreateSale(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SaleHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, SaleHTTPResponse{Success: false, Message: "invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(h.clerkContext(r), h.commitTimeout)
	defer cancel()

	result, err := h.sales.Commit(ctx, req.RequestID, req.Items, req.Location)
	if err != nil {
		h.writeSaleError(w, err)
		return
	}

	resp := SaleHTTPResponse{
		Success: true,
		SaleID:  result.SaleID,
		Total:   result.Total.StringFixed(2),
		Lines:   make([]SaleLineHTTPResponse, 0, len(result.Lines)),
	}
	for _, line := range result.Lines {
		resp.Lines = append(resp.Lines, SaleLineHTTPResponse{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice.StringFixed(2),
			LineTotal: line.LineTotal.StringFixed(2),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) writeSaleError(w http.ResponseWriter, err error) {
	var invalidCart *domain.InvalidCartError
	var insufficient *domain.InsufficientStockError

	switch {
	case errors.As(err, &invalidCart):
		writeJSON(w, http.StatusBadRequest, SaleHTTPResponse{Success: false, Message: invalidCart.Error()})
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusConflict, SaleHTTPResponse{
			Success:   false,
			Message:   insufficient.Error(),
			ProductID: insufficient.ProductID,
			Shortfall: insufficient.Shortfall(),
		})
	case errors.Is(err, domain.ErrDuplicateRequest):
		writeJSON(w, http.StatusConflict, SaleHTTPResponse{Success: false, Message: "duplicate request"})
	case errors.Is(err, domain.ErrContentionTimeout):
		writeJSON(w, http.StatusServiceUnavailable, SaleHTTPResponse{Success: false, Message: "ledger busy, retry the sale"})
	default:
		h.log.Error("sale commit failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, SaleHTTPResponse{Success: false, Message: "internal error"})
	}
}

func (h *HTTPHandler) AdjustInventory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AdjustHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, StatusHTTPResponse{Success: false, Message: "invalid request body"})
		return
	}
	if req.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, StatusHTTPResponse{Success: false, Message: "product_id is required"})
		return
	}

	if err := h.sales.Adjust(h.clerkContext(r), req.ProductID, req.Location, req.Delta); err != nil {
		if errors.Is(err, domain.ErrContentionTimeout) {
			writeJSON(w, http.StatusServiceUnavailable, StatusHTTPResponse{Success: false, Message: "ledger busy, retry the adjustment"})
			return
		}
		h.log.Error("inventory adjust failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, StatusHTTPResponse{Success: false, Message: "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, StatusHTTPResponse{Success: true, Message: "inventory updated"})
}

func (h *HTTPHandler) AddProduct(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AddProductHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, StatusHTTPResponse{Success: false, Message: "invalid request body"})
		return
	}

	cost, err := decimal.NewFromString(req.CostPrice)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, StatusHTTPResponse{Success: false, Message: "invalid cost_price"})
		return
	}
	selling, err := decimal.NewFromString(req.SellingPrice)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, StatusHTTPResponse{Success: false, Message: "invalid selling_price"})
		return
	}

	_, err = h.catalog.AddProduct(h.clerkContext(r), domain.Product{
		ID:           req.ID,
		Name:         req.Name,
		Description:  req.Description,
		CostPrice:    cost,
		SellingPrice: selling,
		Category:     req.Category,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrProductExists):
			writeJSON(w, http.StatusConflict, StatusHTTPResponse{Success: false, Message: "product id already exists"})
		case errors.Is(err, domain.ErrInvalidProduct):
			writeJSON(w, http.StatusBadRequest, StatusHTTPResponse{Success: false, Message: err.Error()})
		default:
			h.log.Error("product add failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, StatusHTTPResponse{Success: false, Message: "internal error"})
		}
		return
	}

	writeJSON(w, http.StatusCreated, StatusHTTPResponse{Success: true, Message: "product added"})
}

func (h *HTTPHandler) InventoryReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	views, err := h.reports.InventorySnapshot(r.Context())
	if err != nil {
		h.log.Error("inventory report failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, StatusHTTPResponse{Success: false, Message: "internal error"})
		return
	}

	rows := make([]StockViewHTTPResponse, 0, len(views))
	for _, v := range views {
		rows = append(rows, StockViewHTTPResponse{
			ProductID:    v.ProductID,
			Location:     v.Location,
			Quantity:     v.Quantity,
			SellingPrice: v.SellingPrice.StringFixed(2),
		})
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) clerkContext(r *http.Request) context.Context {
	return domain.WithClerk(r.Context(), r.Header.Get(clerkHeader))
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
