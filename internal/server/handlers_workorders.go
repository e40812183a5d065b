package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"motoshop/internal/domain"
	"motoshop/internal/repository"
	"motoshop/internal/settlement"
	"motoshop/internal/templates"

	"github.com/go-chi/chi/v5"
)

// handleListWorkOrders lists work orders of the caller's branch
func (s *Server) handleListWorkOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	orders, err := s.svc.ListWorkOrders(r.Context(), repository.WorkOrderFilter{
		BranchID: branchOf(r),
		Status:   q.Get("status"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if orders == nil {
		orders = []domain.WorkOrder{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// handleWorkOrderSummary counts work orders per status
func (s *Server) handleWorkOrderSummary(w http.ResponseWriter, r *http.Request) {
	counts, err := s.svc.StatusCounts(r.Context(), branchOf(r))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handleGetWorkOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.svc.GetWorkOrder(r.Context(), branchOf(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleWorkOrderHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.svc.WorkOrderHistory(r.Context(), branchOf(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if history == nil {
		history = []domain.WorkOrderStatusHistory{}
	}
	writeJSON(w, http.StatusOK, history)
}

// handleCreateWorkOrder creates a work order and applies its payments
func (s *Server) handleCreateWorkOrder(w http.ResponseWriter, r *http.Request) {
	var in settlement.WorkOrderInput
	if !decodeJSON(w, r, &in) {
		return
	}
	in.ID = ""
	s.saveWorkOrder(w, r, in)
}

// handleUpdateWorkOrder saves a full edit of an existing work order
func (s *Server) handleUpdateWorkOrder(w http.ResponseWriter, r *http.Request) {
	var in settlement.WorkOrderInput
	if !decodeJSON(w, r, &in) {
		return
	}
	in.ID = chi.URLParam(r, "id")
	s.saveWorkOrder(w, r, in)
}

func (s *Server) saveWorkOrder(w http.ResponseWriter, r *http.Request, in settlement.WorkOrderInput) {
	in.BranchID = branchOf(r)

	res, err := s.svc.SaveWorkOrder(r.Context(), in)
	if err != nil {
		var result interface{}
		if res != nil {
			result = res
		}
		s.writeError(w, r, err, result)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

type refundRequest struct {
	Reason string `json:"reason"`
}

// handleRefund cancels a work order and pays back what the customer paid
func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	order, err := s.svc.Refund(r.Context(), branchOf(r), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		var result interface{}
		if order != nil {
			result = order
		}
		s.writeError(w, r, err, result)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleDeleteWorkOrder(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteWorkOrder(r.Context(), branchOf(r), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// trackingURL is the public status link printed as a QR code on invoices
func (s *Server) trackingURL(order *domain.WorkOrder) string {
	return fmt.Sprintf("%s/api/tracking/%s/%s", s.config.PublicURL,
		url.PathEscape(order.BranchID), url.PathEscape(order.ID))
}

// handleInvoice renders the printable invoice of a work order
func (s *Server) handleInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, err := s.svc.GetWorkOrder(ctx, branchOf(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}

	link := s.trackingURL(order)
	qr, err := templates.QRCodeDataURI(link)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}

	data := templates.Invoice{
		Title:       "Hóa đơn " + order.ID,
		Business:    s.business(r),
		Order:       order,
		Subtotal:    settlement.Subtotal(order.LaborCost, order.Parts, order.Services),
		TrackingURL: link,
		QRCode:      qr,
		PrintedAt:   time.Now(),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.Render(w, templates.InvoicePage, data); err != nil {
		s.requestLog(r).WithError(err).Error("invoice render failed")
		http.Error(w, "Error rendering invoice", http.StatusInternalServerError)
	}
}

// handleWorkOrderQR returns the tracking QR code as a PNG
func (s *Server) handleWorkOrderQR(w http.ResponseWriter, r *http.Request) {
	order, err := s.svc.GetWorkOrder(r.Context(), branchOf(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}

	png, err := templates.QRCodePNG(s.trackingURL(order))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(png)
}

type trackingView struct {
	ID                 string    `json:"id"`
	Status             string    `json:"status"`
	StatusLabel        string    `json:"statusLabel"`
	PaymentStatus      string    `json:"paymentStatus"`
	PaymentStatusLabel string    `json:"paymentStatusLabel"`
	VehicleModel       string    `json:"vehicleModel,omitempty"`
	LicensePlate       string    `json:"licensePlate,omitempty"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// handleTracking is the public status page behind the invoice QR code. It
// shows no customer details.
func (s *Server) handleTracking(w http.ResponseWriter, r *http.Request) {
	order, err := s.svc.GetWorkOrder(r.Context(), chi.URLParam(r, "branch"), chi.URLParam(r, "id"))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.requestLog(r).WithError(err).Error("tracking lookup failed")
		}
		writeErrorStatus(w, http.StatusNotFound, "NOT_FOUND", "No work order with this code.")
		return
	}

	writeJSON(w, http.StatusOK, trackingView{
		ID:                 order.ID,
		Status:             order.Status,
		StatusLabel:        domain.WorkOrderStatusLabel(order.Status),
		PaymentStatus:      order.PaymentStatus,
		PaymentStatusLabel: domain.PaymentStatusLabel(order.PaymentStatus),
		VehicleModel:       order.VehicleModel,
		LicensePlate:       order.LicensePlate,
		UpdatedAt:          order.UpdatedAt,
	})
}
