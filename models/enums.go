package models

import (
	"fmt"
)

type PartyType string

const (
	PartyTypeCustomer PartyType = "CUSTOMER"
	PartyTypeSupplier PartyType = "SUPPLIER"
)

func (t PartyType) Valid() bool {
	switch t {
	case PartyTypeCustomer, PartyTypeSupplier:
		return true
	}
	return false
}

type BindingType string

const (
	BindingTypeHardcover BindingType = "HARDCOVER"
	BindingTypePaperback BindingType = "PAPERBACK"
	BindingTypeSpiral    BindingType = "SPIRAL"
	BindingTypeEbook     BindingType = "EBOOK"
)

func (t BindingType) Valid() bool {
	switch t {
	case BindingTypeHardcover, BindingTypePaperback, BindingTypeSpiral, BindingTypeEbook:
		return true
	}
	return false
}

type InvoiceType string

const (
	InvoiceTypeSales          InvoiceType = "SALES"
	InvoiceTypePurchase       InvoiceType = "PURCHASE"
	InvoiceTypeSalesReturn    InvoiceType = "SALES_RETURN"
	InvoiceTypePurchaseReturn InvoiceType = "PURCHASE_RETURN"
)

func (t InvoiceType) Valid() bool {
	switch t {
	case InvoiceTypeSales, InvoiceTypePurchase, InvoiceTypeSalesReturn, InvoiceTypePurchaseReturn:
		return true
	}
	return false
}

// NumberPrefix is the per-type prefix for sequential invoice numbers,
// e.g. PO-000042 for the 42nd purchase invoice.
func (t InvoiceType) NumberPrefix() string {
	switch t {
	case InvoiceTypeSales:
		return "INV-"
	case InvoiceTypePurchase:
		return "PO-"
	case InvoiceTypeSalesReturn:
		return "SR-"
	case InvoiceTypePurchaseReturn:
		return "PR-"
	}
	return ""
}

type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusProforma  InvoiceStatus = "PROFORMA"
	InvoiceStatusConfirmed InvoiceStatus = "CONFIRMED"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"
	// InvoiceStatusReceived is only reachable with SEPARATE_RECEIVED_STATUS=true:
	// goods received but payment not yet settled.
	InvoiceStatusReceived InvoiceStatus = "RECEIVED"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusProforma, InvoiceStatusConfirmed,
		InvoiceStatusCancelled, InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusReceived:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions may leave this status.
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusCancelled || s == InvoiceStatusPaid
}

type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodCard         PaymentMethod = "CARD"
	PaymentMethodUpi          PaymentMethod = "UPI"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodCheque       PaymentMethod = "CHEQUE"
	PaymentMethodCredit       PaymentMethod = "CREDIT"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodUpi,
		PaymentMethodBankTransfer, PaymentMethodCheque, PaymentMethodCredit:
		return true
	}
	return false
}

func ParseInvoiceStatus(s string) (InvoiceStatus, error) {
	status := InvoiceStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown invoice status %q", s)
	}
	return status, nil
}
