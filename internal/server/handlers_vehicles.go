package server

import (
	"net/http"
	"strings"

	"motoshop/internal/domain"
	"motoshop/internal/maintenance"

	"github.com/go-chi/chi/v5"
)

// handleCustomerVehicles lists the vehicles of ?phone=
func (s *Server) handleCustomerVehicles(w http.ResponseWriter, r *http.Request) {
	phone := r.URL.Query().Get("phone")
	if strings.TrimSpace(phone) == "" {
		s.writeError(w, r, domain.NewValidationError(domain.CodeInvalidPhone, "phone"), nil)
		return
	}

	vehicles, err := s.svc.CustomerVehicles(r.Context(), branchOf(r), phone)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if vehicles == nil {
		vehicles = []domain.Vehicle{}
	}
	writeJSON(w, http.StatusOK, vehicles)
}

type vehicleRequest struct {
	CustomerName  string `json:"customerName"`
	CustomerPhone string `json:"customerPhone"`
	Model         string `json:"model"`
	LicensePlate  string `json:"licensePlate"`
	CurrentKm     int    `json:"currentKm"`
}

func (s *Server) handleRegisterVehicle(w http.ResponseWriter, r *http.Request) {
	var req vehicleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	v := &domain.Vehicle{
		BranchID:      branchOf(r),
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CustomerPhone: req.CustomerPhone,
		Model:         strings.TrimSpace(req.Model),
		LicensePlate:  strings.ToUpper(strings.TrimSpace(req.LicensePlate)),
		CurrentKm:     req.CurrentKm,
	}
	if err := s.svc.RegisterVehicle(r.Context(), v); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

type maintenanceResponse struct {
	Vehicle  *domain.Vehicle       `json:"vehicle"`
	Warnings []maintenance.Warning `json:"warnings"`
}

// handleVehicleMaintenance returns due and overdue maintenance for a vehicle
func (s *Server) handleVehicleMaintenance(w http.ResponseWriter, r *http.Request) {
	v, warnings, err := s.svc.VehicleMaintenance(r.Context(), branchOf(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if warnings == nil {
		warnings = []maintenance.Warning{}
	}
	writeJSON(w, http.StatusOK, maintenanceResponse{Vehicle: v, Warnings: warnings})
}
