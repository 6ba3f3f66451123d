package billing

import "time"

// InvoiceStatus is the reporting status of an account's invoice.
type InvoiceStatus string

const (
	InvoicePaid    InvoiceStatus = "paid"
	InvoicePartial InvoiceStatus = "partial"
	InvoiceUnpaid  InvoiceStatus = "unpaid"
)

// ResolveInvoiceStatus derives the status from the account figures.
//
//	paid >= total      -> paid
//	0 < paid < total   -> partial
//	paid == 0          -> unpaid
//
// An invoice with nothing charged (total == 0, paid == 0) resolves to paid:
// nothing is owed, and paid >= total is checked first.
func ResolveInvoiceStatus(total, paid Money) InvoiceStatus {
	switch {
	case paid >= total:
		return InvoicePaid
	case paid.IsPositive():
		return InvoicePartial
	default:
		return InvoiceUnpaid
	}
}

// Invoice is the reporting view of one account. It has no state of its own.
type Invoice struct {
	AccountID   AccountID
	InvoiceNo   string // the account number
	PatientID   string
	EncounterID string
	Currency    string
	Total       Money
	Paid        Money
	Balance     Money
	Status      InvoiceStatus
	Items       []Item
	Payments    []Payment
	IssuedAt    time.Time
}
