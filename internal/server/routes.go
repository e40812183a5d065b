package server

import (
	"net/http"
	"time"

	"motoshop/internal/domain"

	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all application routes
func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)
		r.Get("/tracking/{branch}/{id}", s.handleTracking)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/auth/me", s.handleMe)

			// Work orders: everyone reads
			r.Get("/work-orders", s.handleListWorkOrders)
			r.Get("/work-orders/summary", s.handleWorkOrderSummary)
			r.Get("/work-orders/{id}", s.handleGetWorkOrder)
			r.Get("/work-orders/{id}/history", s.handleWorkOrderHistory)
			r.Get("/work-orders/{id}/invoice", s.handleInvoice)
			r.Get("/work-orders/{id}/qr", s.handleWorkOrderQR)

			// Vehicles and maintenance warnings
			r.Get("/vehicles", s.handleCustomerVehicles)
			r.Get("/vehicles/{id}/maintenance", s.handleVehicleMaintenance)

			r.Get("/stock/{partId}", s.handleGetStock)
			r.Get("/payment-sources", s.handleListPaymentSources)

			// Settlement: cashier and admin
			r.Group(func(r chi.Router) {
				r.Use(s.roleMiddleware(domain.RoleCashier))

				r.Post("/work-orders", s.handleCreateWorkOrder)
				r.Put("/work-orders/{id}", s.handleUpdateWorkOrder)

				r.Post("/vehicles", s.handleRegisterVehicle)

				r.Get("/receipts", s.handleListReceipts)
				r.Post("/receipts", s.handleCreateReceipt)

				r.Get("/debts", s.handleListCustomerDebts)
				r.Post("/debts/{id}/payments", s.handlePayDebt)
				r.Get("/supplier-debts", s.handleListSupplierDebts)

				r.Get("/ledger", s.handleLedger)
			})

			// Admin only
			r.Group(func(r chi.Router) {
				r.Use(s.roleMiddleware(domain.RoleAdmin))

				r.Post("/work-orders/{id}/refund", s.handleRefund)
				r.Delete("/work-orders/{id}", s.handleDeleteWorkOrder)
				r.Delete("/receipts/{id}", s.handleDeleteReceipt)
				r.Get("/ledger/export", s.handleLedgerExport)
				r.Post("/payment-sources", s.handleCreatePaymentSource)
				r.Get("/settings/business", s.handleGetBusiness)
				r.Put("/settings/business", s.handleUpdateBusiness)
			})
		})
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
