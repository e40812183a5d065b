package settlement

import (
	"motoshop/internal/domain"

	"github.com/shopspring/decimal"
)

// Subtotal sums labor, parts and billed services before the discount
func Subtotal(labor decimal.Decimal, parts []domain.PartLine, services []domain.ServiceLine) decimal.Decimal {
	sum := labor
	for _, p := range parts {
		sum = sum.Add(p.Subtotal())
	}
	for _, s := range services {
		sum = sum.Add(s.Subtotal())
	}
	return sum
}

// Total is the subtotal less the discount, never below zero
func Total(labor, discount decimal.Decimal, parts []domain.PartLine, services []domain.ServiceLine) decimal.Decimal {
	total := Subtotal(labor, parts, services).Sub(discount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// PaymentStatus derives the payment status from what was paid against total
func PaymentStatus(totalPaid, total decimal.Decimal) string {
	switch {
	case totalPaid.GreaterThanOrEqual(total):
		return domain.PaymentStatusPaid
	case totalPaid.IsPositive():
		return domain.PaymentStatusPartial
	default:
		return domain.PaymentStatusUnpaid
	}
}

// Remaining is what is still owed, never below zero
func Remaining(total, totalPaid decimal.Decimal) decimal.Decimal {
	r := total.Sub(totalPaid)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// applyTotals recomputes every derived money field of order
func applyTotals(order *domain.WorkOrder) {
	order.Total = Total(order.LaborCost, order.Discount, order.Parts, order.Services)
	order.TotalPaid = order.DepositAmount.Add(order.AdditionalPayment)
	order.RemainingAmount = Remaining(order.Total, order.TotalPaid)
	order.PaymentStatus = PaymentStatus(order.TotalPaid, order.Total)
}
