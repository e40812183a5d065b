package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced record does not exist
var ErrNotFound = errors.New("record not found")

// Validation codes
const (
	CodeCustomerNameRequired  = "CUSTOMER_NAME_REQUIRED"
	CodeInvalidPhone          = "INVALID_PHONE"
	CodeInvalidAmount         = "INVALID_AMOUNT"
	CodeInvalidDiscount       = "INVALID_DISCOUNT"
	CodeInvalidQuantity       = "INVALID_QUANTITY"
	CodeInvalidStatus         = "INVALID_STATUS"
	CodePaymentMethodRequired = "PAYMENT_METHOD_REQUIRED"
	CodePaymentSourceNotFound = "PAYMENT_SOURCE_NOT_FOUND"
	CodeReasonRequired        = "REASON_REQUIRED"
	CodeBranchRequired        = "BRANCH_REQUIRED"
	CodeReceiptLinesRequired  = "RECEIPT_LINES_REQUIRED"
)

// Conflict codes
const (
	CodeAlreadyRefunded  = "ALREADY_REFUNDED"
	CodeOrderRefunded    = "ORDER_REFUNDED"
	CodeOrderHasPayments = "ORDER_HAS_PAYMENTS"
)

var validationMessages = map[string]string{
	CodeCustomerNameRequired:  "Customer name is required.",
	CodeInvalidPhone:          "Phone number must contain 10 or 11 digits.",
	CodeInvalidAmount:         "Amounts must not be negative.",
	CodeInvalidDiscount:       "Discount must not be negative.",
	CodeInvalidQuantity:       "Quantities must be greater than zero.",
	CodeInvalidStatus:         "This status cannot be set directly.",
	CodePaymentMethodRequired: "Choose a payment method for the amount received.",
	CodePaymentSourceNotFound: "The selected payment method does not exist in this branch.",
	CodeReasonRequired:        "A refund reason is required.",
	CodeBranchRequired:        "Branch is required.",
	CodeReceiptLinesRequired:  "A receipt needs at least one line.",
}

var conflictMessages = map[string]string{
	CodeAlreadyRefunded:  "This work order has already been refunded.",
	CodeOrderRefunded:    "A refunded work order can no longer be edited.",
	CodeOrderHasPayments: "This work order has payments or a debt; refund it instead of deleting it.",
}

// ValidationError reports bad input. Nothing has been written when it is returned.
type ValidationError struct {
	Code  string
	Field string
}

// NewValidationError creates a ValidationError for a field
func NewValidationError(code, field string) *ValidationError {
	return &ValidationError{Code: code, Field: field}
}

func (e *ValidationError) Error() string {
	if msg, ok := validationMessages[e.Code]; ok {
		return msg
	}
	return fmt.Sprintf("invalid %s", e.Field)
}

// ConflictError reports a violated state precondition, such as a double refund
type ConflictError struct {
	Code string
}

func (e *ConflictError) Error() string {
	if msg, ok := conflictMessages[e.Code]; ok {
		return msg
	}
	return "conflicting state: " + e.Code
}

// StockUnderflowError reports a stock mutation that would go below zero
type StockUnderflowError struct {
	PartID    string
	BranchID  string
	Current   int
	Requested int
}

func (e *StockUnderflowError) Error() string {
	return fmt.Sprintf("Not enough stock for part %s: %d in stock, %d requested.",
		e.PartID, e.Current, e.Requested)
}

// RemoteWriteError wraps a failed store write. Op names the step that failed.
type RemoteWriteError struct {
	Op  string
	Err error
}

func (e *RemoteWriteError) Error() string {
	return fmt.Sprintf("Could not save %s: %v", e.Op, e.Err)
}

func (e *RemoteWriteError) Unwrap() error {
	return e.Err
}
