/*
types.go - Core billing types

PURPOSE:
  Defines the records the ledger is made of. These are plain data; the rules
  live in item.go, payment.go, account.go and ledger.go.

KEY TYPES:
  Account: One patient encounter's billing aggregate. Holds NO totals.
  Item:    A charge line. Immutable in amount once appended.
  Payment: Money received against an account. Append-only.

DERIVED, NEVER STORED:
  total_amount, amount_paid and balance are not fields on Account. They are
  recomputed from items and payments by Summarize every time they are
  needed, so there is nothing that can drift.

SEE ALSO:
  - account.go: Summary and Summarize
  - store.go: Persistence interface
*/
package billing

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID string
type ItemID string
type PaymentID string

// =============================================================================
// ENUMERATIONS
// =============================================================================

type AccountStatus string

const (
	AccountOpen   AccountStatus = "open"
	AccountClosed AccountStatus = "closed"
)

// ItemType classifies a charge.
type ItemType string

const (
	ItemConsultation ItemType = "consultation"
	ItemLabTest      ItemType = "lab_test"
	ItemImaging      ItemType = "imaging"
	ItemProcedure    ItemType = "procedure"
	ItemMedication   ItemType = "medication"
	ItemConsumable   ItemType = "consumable"
	ItemBedCharge    ItemType = "bed_charge"
	ItemNursing      ItemType = "nursing"
	ItemOther        ItemType = "other"
)

// ItemTypes lists every accepted item type.
var ItemTypes = []ItemType{
	ItemConsultation, ItemLabTest, ItemImaging, ItemProcedure, ItemMedication,
	ItemConsumable, ItemBedCharge, ItemNursing, ItemOther,
}

func (t ItemType) Valid() bool {
	for _, known := range ItemTypes {
		if t == known {
			return true
		}
	}
	return false
}

type ItemStatus string

const (
	ItemPending ItemStatus = "pending"
	ItemBilled  ItemStatus = "billed"
	ItemVoided  ItemStatus = "voided"
)

// PaymentMethod is how money was received.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodMpesa        PaymentMethod = "mpesa"
	MethodCard         PaymentMethod = "card"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodInsurance    PaymentMethod = "insurance"
	MethodCheque       PaymentMethod = "cheque"
)

var PaymentMethods = []PaymentMethod{
	MethodCash, MethodMpesa, MethodCard, MethodBankTransfer, MethodInsurance, MethodCheque,
}

func (m PaymentMethod) Valid() bool {
	for _, known := range PaymentMethods {
		if m == known {
			return true
		}
	}
	return false
}

// =============================================================================
// RECORDS
// =============================================================================

// Account is the billing aggregate for one patient encounter.
type Account struct {
	ID          AccountID
	AccountNo   string // unique, immutable once assigned
	PatientID   string
	EncounterID string
	Currency    string
	Status      AccountStatus
	CreatedAt   time.Time
	ClosedAt    *time.Time
}

// Item is a single charge line owned by exactly one account.
type Item struct {
	ID          ItemID
	AccountID   AccountID
	Type        ItemType
	Code        string // tariff code, optional
	Description string
	Quantity    int64
	UnitPrice   Money
	Discount    Money
	Net         Money // Quantity*UnitPrice - Discount, kept for display
	Status      ItemStatus
	VoidReason  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Payment is money received against an account.
type Payment struct {
	ID             PaymentID
	AccountID      AccountID
	Amount         Money
	Method         PaymentMethod
	ReferenceNo    string
	ReceivedBy     string
	IdempotencyKey string
	ClaimID        string // set when the payment settles an insurance claim
	Replayed       bool   // true when returned for a repeated idempotency key; never stored
	CreatedAt      time.Time
}

// =============================================================================
// REQUESTS
// =============================================================================

type OpenAccountRequest struct {
	AccountNo   string // allocated when empty
	PatientID   string
	EncounterID string
}

type ItemRequest struct {
	Type        ItemType
	Code        string
	Description string
	Quantity    int64
	UnitPrice   Money
	Discount    Money
}

type PaymentRequest struct {
	Amount         Money
	Method         PaymentMethod
	ReferenceNo    string
	ReceivedBy     string
	IdempotencyKey string
	ClaimID        string
}

// AccountFilter narrows ListAccounts. Zero values match everything.
type AccountFilter struct {
	Status    AccountStatus
	PatientID string
	Limit     int
}
