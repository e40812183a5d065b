package settlement

import (
	"regexp"
	"strings"

	"motoshop/internal/domain"

	"github.com/shopspring/decimal"
)

var phonePattern = regexp.MustCompile(`^[0-9]{10,11}$`)

var phoneSeparators = strings.NewReplacer(" ", "", ".", "", "-", "", "\t", "")

// NormalizePhone strips the separators customers type into phone numbers.
// The result is the customer key for debts.
func NormalizePhone(phone string) string {
	return phoneSeparators.Replace(strings.TrimSpace(phone))
}

// validate normalizes in and checks it. It performs no I/O.
func (in *WorkOrderInput) validate() error {
	in.BranchID = strings.TrimSpace(in.BranchID)
	if in.BranchID == "" {
		return domain.NewValidationError(domain.CodeBranchRequired, "branchId")
	}

	in.CustomerName = strings.TrimSpace(in.CustomerName)
	if in.CustomerName == "" {
		return domain.NewValidationError(domain.CodeCustomerNameRequired, "customerName")
	}
	in.CustomerPhone = NormalizePhone(in.CustomerPhone)
	if !phonePattern.MatchString(in.CustomerPhone) {
		return domain.NewValidationError(domain.CodeInvalidPhone, "customerPhone")
	}

	if in.Status != "" && !domain.IsEditableStatus(in.Status) {
		return domain.NewValidationError(domain.CodeInvalidStatus, "status")
	}
	if in.Mileage < 0 {
		return domain.NewValidationError(domain.CodeInvalidAmount, "mileage")
	}

	if in.Discount.IsNegative() {
		return domain.NewValidationError(domain.CodeInvalidDiscount, "discount")
	}
	for _, a := range []struct {
		field  string
		amount decimal.Decimal
	}{
		{"laborCost", in.LaborCost},
		{"depositAmount", in.DepositAmount},
		{"additionalPayment", in.AdditionalPayment},
	} {
		if a.amount.IsNegative() {
			return domain.NewValidationError(domain.CodeInvalidAmount, a.field)
		}
	}

	for _, p := range in.Parts {
		if p.Quantity <= 0 {
			return domain.NewValidationError(domain.CodeInvalidQuantity, "parts")
		}
		if p.Price.IsNegative() || p.CostPrice.IsNegative() {
			return domain.NewValidationError(domain.CodeInvalidAmount, "parts")
		}
	}
	for _, s := range in.Services {
		if s.Quantity <= 0 {
			return domain.NewValidationError(domain.CodeInvalidQuantity, "services")
		}
		if s.Price.IsNegative() || s.CostPrice.IsNegative() {
			return domain.NewValidationError(domain.CodeInvalidAmount, "services")
		}
	}

	in.PaymentSourceID = strings.TrimSpace(in.PaymentSourceID)
	if (in.DepositAmount.IsPositive() || in.AdditionalPayment.IsPositive()) && in.PaymentSourceID == "" {
		return domain.NewValidationError(domain.CodePaymentMethodRequired, "paymentSourceId")
	}
	return nil
}

func (in *ReceiptInput) validate() error {
	in.BranchID = strings.TrimSpace(in.BranchID)
	if in.BranchID == "" {
		return domain.NewValidationError(domain.CodeBranchRequired, "branchId")
	}
	if len(in.Lines) == 0 {
		return domain.NewValidationError(domain.CodeReceiptLinesRequired, "lines")
	}
	for _, l := range in.Lines {
		if strings.TrimSpace(l.PartID) == "" || l.Quantity <= 0 {
			return domain.NewValidationError(domain.CodeInvalidQuantity, "lines")
		}
		if l.UnitCost.IsNegative() {
			return domain.NewValidationError(domain.CodeInvalidAmount, "lines")
		}
	}
	if in.PaidAmount.IsNegative() {
		return domain.NewValidationError(domain.CodeInvalidAmount, "paidAmount")
	}
	in.PaymentSourceID = strings.TrimSpace(in.PaymentSourceID)
	if in.PaidAmount.IsPositive() && in.PaymentSourceID == "" {
		return domain.NewValidationError(domain.CodePaymentMethodRequired, "paymentSourceId")
	}
	return nil
}
