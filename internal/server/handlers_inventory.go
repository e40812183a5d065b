package server

import (
	"net/http"
	"strconv"

	"motoshop/internal/domain"
	"motoshop/internal/settlement"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	receipts, err := s.svc.Receipts(r.Context(), branchOf(r), limit, offset)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if receipts == nil {
		receipts = []domain.InventoryReceipt{}
	}
	writeJSON(w, http.StatusOK, receipts)
}

// handleCreateReceipt books a supplier delivery into stock
func (s *Server) handleCreateReceipt(w http.ResponseWriter, r *http.Request) {
	var in settlement.ReceiptInput
	if !decodeJSON(w, r, &in) {
		return
	}
	in.BranchID = branchOf(r)

	receipt, err := s.svc.CreateReceipt(r.Context(), in)
	if err != nil {
		var result interface{}
		if receipt != nil {
			result = receipt
		}
		s.writeError(w, r, err, result)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// handleDeleteReceipt rolls a receipt back out of stock and the ledger
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteReceipt(r.Context(), branchOf(r), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type stockResponse struct {
	PartID   string `json:"partId"`
	BranchID string `json:"branchId"`
	Quantity int    `json:"quantity"`
}

func (s *Server) handleGetStock(w http.ResponseWriter, r *http.Request) {
	branch := branchOf(r)
	partID := chi.URLParam(r, "partId")

	qty, err := s.svc.Stock(r.Context(), partID, branch)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, stockResponse{PartID: partID, BranchID: branch, Quantity: qty})
}
