package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"motoshop/internal/domain"
	"motoshop/internal/report"
	"motoshop/internal/settlement"
	"motoshop/internal/templates"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// Settings that override the business header from the config file. They are
// stored per branch as "<branch>.<name>".
const (
	settingBusinessName    = "business_name"
	settingBusinessAddress = "business_address"
	settingBusinessPhone   = "business_phone"
)

func settingKey(branch, name string) string {
	return branch + "." + name
}

// handleListCustomerDebts lists customer debts; ?open=true hides settled ones
func (s *Server) handleListCustomerDebts(w http.ResponseWriter, r *http.Request) {
	debts, err := s.svc.CustomerDebts(r.Context(), branchOf(r), r.URL.Query().Get("open") == "true")
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if debts == nil {
		debts = []domain.CustomerDebt{}
	}
	writeJSON(w, http.StatusOK, debts)
}

func (s *Server) handleListSupplierDebts(w http.ResponseWriter, r *http.Request) {
	debts, err := s.svc.SupplierDebts(r.Context(), branchOf(r))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if debts == nil {
		debts = []domain.SupplierDebt{}
	}
	writeJSON(w, http.StatusOK, debts)
}

type debtPaymentRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	PaymentSourceID string          `json:"paymentSourceId"`
}

// handlePayDebt records a customer paying off (part of) a debt
func (s *Server) handlePayDebt(w http.ResponseWriter, r *http.Request) {
	var req debtPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	debt, err := s.svc.PayDebt(r.Context(), settlement.DebtPaymentInput{
		BranchID:        branchOf(r),
		DebtID:          chi.URLParam(r, "id"),
		Amount:          req.Amount,
		PaymentSourceID: req.PaymentSourceID,
	})
	if err != nil {
		var result interface{}
		if debt != nil {
			result = debt
		}
		s.writeError(w, r, err, result)
		return
	}
	writeJSON(w, http.StatusOK, debt)
}

// ledgerPeriod reads ?from=YYYY-MM-DD&to=YYYY-MM-DD (both days included, in
// the shop's time zone). Without them the current month is used.
func (s *Server) ledgerPeriod(r *http.Request) (time.Time, time.Time, error) {
	loc := s.config.Location()
	now := time.Now().In(loc)
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	to := from.AddDate(0, 1, 0)

	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		d, err := time.ParseInLocation("2006-01-02", v, loc)
		if err != nil {
			return from, to, fmt.Errorf("invalid from date %q", v)
		}
		from = d
	}
	if v := q.Get("to"); v != "" {
		d, err := time.ParseInLocation("2006-01-02", v, loc)
		if err != nil {
			return from, to, fmt.Errorf("invalid to date %q", v)
		}
		to = d.AddDate(0, 0, 1)
	}
	if !to.After(from) {
		return from, to, fmt.Errorf("the period ends before it starts")
	}
	return from, to, nil
}

type ledgerResponse struct {
	From    time.Time                `json:"from"`
	To      time.Time                `json:"to"`
	Entries []domain.CashTransaction `json:"entries"`
	Income  decimal.Decimal          `json:"income"`
	Expense decimal.Decimal          `json:"expense"`
	Net     decimal.Decimal          `json:"net"`
}

// handleLedger lists the cash book of a period with its totals
func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.ledgerPeriod(r)
	if err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "INVALID_PERIOD", err.Error())
		return
	}

	entries, err := s.svc.Ledger(r.Context(), branchOf(r), from, to)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if entries == nil {
		entries = []domain.CashTransaction{}
	}
	totals := report.SumLedger(entries)
	writeJSON(w, http.StatusOK, ledgerResponse{
		From: from, To: to, Entries: entries,
		Income: totals.Income, Expense: totals.Expense, Net: totals.Net,
	})
}

// handleLedgerExport downloads the cash book of a period as .xlsx
func (s *Server) handleLedgerExport(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.ledgerPeriod(r)
	if err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "INVALID_PERIOD", err.Error())
		return
	}

	ctx := r.Context()
	branch := branchOf(r)
	entries, err := s.svc.Ledger(ctx, branch, from, to)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	sources, err := s.svc.PaymentSources(ctx, branch)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	names := make(map[string]string, len(sources))
	for _, src := range sources {
		names[src.ID] = src.Name
	}

	filename := fmt.Sprintf("so-quy_%s_%s_%s.xlsx", branch, from.Format("20060102"), to.AddDate(0, 0, -1).Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := report.WriteLedger(w, entries, names, s.config.Location()); err != nil {
		s.requestLog(r).WithError(err).Error("ledger export failed")
	}
}

func (s *Server) handleListPaymentSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.svc.PaymentSources(r.Context(), branchOf(r))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if sources == nil {
		sources = []domain.PaymentSource{}
	}
	writeJSON(w, http.StatusOK, sources)
}

type paymentSourceRequest struct {
	Name    string          `json:"name"`
	Kind    string          `json:"kind"`
	Balance decimal.Decimal `json:"balance"`
}

// handleCreatePaymentSource opens a cash drawer, bank account or e-wallet
func (s *Server) handleCreatePaymentSource(w http.ResponseWriter, r *http.Request) {
	var req paymentSourceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	src := &domain.PaymentSource{
		Name:     req.Name,
		Kind:     strings.TrimSpace(req.Kind),
		Balance:  req.Balance,
		BranchID: branchOf(r),
	}
	if err := s.svc.CreatePaymentSource(r.Context(), src); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, src)
}

// business returns the invoice header: config values overridden by settings
func (s *Server) business(r *http.Request) templates.Business {
	b := templates.Business{
		Name:    s.config.Business.Name,
		Address: s.config.Business.Address,
		Phone:   s.config.Business.Phone,
	}
	branch := branchOf(r)
	overrides := map[string]*string{
		settingKey(branch, settingBusinessName):    &b.Name,
		settingKey(branch, settingBusinessAddress): &b.Address,
		settingKey(branch, settingBusinessPhone):   &b.Phone,
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}

	values, err := s.repos.Settings.GetMany(r.Context(), keys...)
	if err != nil {
		s.requestLog(r).WithError(err).Warn("could not read business settings")
		return b
	}
	for k, field := range overrides {
		if v := values[k]; v != "" {
			*field = v
		}
	}
	return b
}

type businessBody struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

func (s *Server) handleGetBusiness(w http.ResponseWriter, r *http.Request) {
	b := s.business(r)
	writeJSON(w, http.StatusOK, businessBody{Name: b.Name, Address: b.Address, Phone: b.Phone})
}

// handleUpdateBusiness stores the invoice header of the branch; empty fields
// fall back to the config file
func (s *Server) handleUpdateBusiness(w http.ResponseWriter, r *http.Request) {
	var req businessBody
	if !decodeJSON(w, r, &req) {
		return
	}

	branch := branchOf(r)
	values := map[string]string{
		settingKey(branch, settingBusinessName):    strings.TrimSpace(req.Name),
		settingKey(branch, settingBusinessAddress): strings.TrimSpace(req.Address),
		settingKey(branch, settingBusinessPhone):   strings.TrimSpace(req.Phone),
	}
	if err := s.repos.Settings.SetMany(r.Context(), values); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	s.handleGetBusiness(w, r)
}
