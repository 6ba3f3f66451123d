/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Domain records stay in
  minor units; every amount crosses the wire as a major-unit decimal string
  ("1500.00") formatted with the ledger currency.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Accounts:  AccountDTO, OpenAccountRequest, InvoiceDTO
  Items:     ItemDTO, AddItemRequest, VoidItemRequest
  Payments:  PaymentDTO, ApplyPaymentRequest
  Claims:    ClaimDTO, FileClaimRequest, ApproveClaimRequest, RejectClaimRequest, SettleClaimRequest
  Tariff:    ServiceDTO
  Audit:     AuditReportDTO, ViolationDTO, AuditRunDTO
  Scenarios: ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Amount strings are parsed here; everything else is validated by the
  billing and insurance packages.

SEE ALSO:
  - handlers.go: Uses these types
  - billing/money.go: Currency.ParseField / Format
*/
package api

import (
	"time"

	"github.com/warp/billing-ledger/billing"
	"github.com/warp/billing-ledger/insurance"
	"github.com/warp/billing-ledger/tariff"
)

// =============================================================================
// ACCOUNTS
// =============================================================================

// AccountDTO is an account with its derived figures.
type AccountDTO struct {
	ID            string  `json:"id"`
	AccountNo     string  `json:"account_no"`
	PatientID     string  `json:"patient_id"`
	EncounterID   string  `json:"encounter_id"`
	Currency      string  `json:"currency"`
	Status        string  `json:"status"`
	TotalAmount   string  `json:"total_amount"`
	AmountPaid    string  `json:"amount_paid"`
	Balance       string  `json:"balance"`
	InvoiceStatus string  `json:"invoice_status"`
	PaidRatio     string  `json:"paid_ratio"`
	ItemCount     int     `json:"item_count"`
	PaymentCount  int     `json:"payment_count"`
	CreatedAt     string  `json:"created_at"`
	ClosedAt      *string `json:"closed_at,omitempty"`
}

type OpenAccountRequest struct {
	AccountNo   string `json:"account_no,omitempty"`
	PatientID   string `json:"patient_id"`
	EncounterID string `json:"encounter_id"`
}

// InvoiceDTO is the reporting view of an account.
type InvoiceDTO struct {
	AccountID   string       `json:"account_id"`
	InvoiceNo   string       `json:"invoice_no"`
	PatientID   string       `json:"patient_id"`
	EncounterID string       `json:"encounter_id"`
	Currency    string       `json:"currency"`
	TotalAmount string       `json:"total_amount"`
	AmountPaid  string       `json:"amount_paid"`
	Balance     string       `json:"balance"`
	Status      string       `json:"status"`
	PaidRatio   string       `json:"paid_ratio"`
	Items       []ItemDTO    `json:"items"`
	Payments    []PaymentDTO `json:"payments"`
	IssuedAt    string       `json:"issued_at"`
}

// =============================================================================
// ITEMS
// =============================================================================

type ItemDTO struct {
	ID          string `json:"id"`
	AccountID   string `json:"account_id"`
	ItemType    string `json:"item_type"`
	Code        string `json:"code,omitempty"`
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Discount    string `json:"discount_amount"`
	NetAmount   string `json:"net_amount"`
	Status      string `json:"status"`
	VoidReason  string `json:"void_reason,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// AddItemRequest charges either a tariff service (TariffCode, Quantity,
// Discount) or an explicit line.
type AddItemRequest struct {
	TariffCode  string `json:"tariff_code,omitempty"`
	ItemType    string `json:"item_type,omitempty"`
	Code        string `json:"code,omitempty"`
	Description string `json:"description,omitempty"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   string `json:"unit_price,omitempty"`
	Discount    string `json:"discount_amount,omitempty"`
}

type VoidItemRequest struct {
	Reason string `json:"reason"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

type PaymentDTO struct {
	ID             string `json:"id"`
	AccountID      string `json:"account_id"`
	Amount         string `json:"amount"`
	Method         string `json:"payment_method"`
	ReferenceNo    string `json:"reference_no,omitempty"`
	ReceivedBy     string `json:"received_by,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	ClaimID        string `json:"claim_id,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// ApplyPaymentRequest records one payment. IdempotencyKey may also be sent
// as the Idempotency-Key header.
type ApplyPaymentRequest struct {
	Amount         string `json:"amount"`
	Method         string `json:"payment_method"`
	ReferenceNo    string `json:"reference_no,omitempty"`
	ReceivedBy     string `json:"received_by,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// =============================================================================
// CLAIMS
// =============================================================================

type ClaimDTO struct {
	ID              string  `json:"id"`
	InvoiceID       string  `json:"invoice_id"`
	Provider        string  `json:"insurance_provider"`
	PolicyNumber    string  `json:"policy_number"`
	ClaimNumber     string  `json:"claim_number"`
	ClaimAmount     string  `json:"claim_amount"`
	ApprovedAmount  *string `json:"approved_amount,omitempty"`
	Status          string  `json:"status"`
	RejectionReason string  `json:"rejection_reason,omitempty"`
	SubmissionDate  *string `json:"submission_date,omitempty"`
	ApprovalDate    *string `json:"approval_date,omitempty"`
	RejectionDate   *string `json:"rejection_date,omitempty"`
	PaidDate        *string `json:"paid_date,omitempty"`
	PaymentID       string  `json:"payment_id,omitempty"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

type FileClaimRequest struct {
	InvoiceID    string `json:"invoice_id"`
	Provider     string `json:"insurance_provider"`
	PolicyNumber string `json:"policy_number"`
	ClaimNumber  string `json:"claim_number,omitempty"`
	ClaimAmount  string `json:"claim_amount"`
}

type ApproveClaimRequest struct {
	ApprovedAmount string `json:"approved_amount"`
}

type RejectClaimRequest struct {
	Reason string `json:"reason"`
}

type SettleClaimRequest struct {
	ReceivedBy string `json:"received_by,omitempty"`
}

// SettlementDTO is the outcome of settling a claim.
type SettlementDTO struct {
	Claim   ClaimDTO   `json:"claim"`
	Payment PaymentDTO `json:"payment"`
}

// =============================================================================
// TARIFF, AUDIT, SCENARIOS
// =============================================================================

type ServiceDTO struct {
	Code        string `json:"code"`
	ItemType    string `json:"item_type"`
	Description string `json:"description"`
	Price       string `json:"price"`
}

type ViolationDTO struct {
	AccountID   string `json:"account_id"`
	AccountNo   string `json:"account_no"`
	Status      string `json:"status"`
	TotalAmount string `json:"total_amount"`
	AmountPaid  string `json:"amount_paid"`
	Balance     string `json:"balance"`
	Reason      string `json:"reason"`
}

type AuditReportDTO struct {
	StartedAt  string         `json:"started_at"`
	FinishedAt string         `json:"finished_at"`
	Accounts   int            `json:"accounts"`
	Clean      bool           `json:"clean"`
	Violations []ViolationDTO `json:"violations"`
}

// AuditRunDTO is one entry of the scheduler's run history.
type AuditRunDTO struct {
	ID         string          `json:"id"`
	Trigger    string          `json:"trigger"`
	Status     string          `json:"status"`
	Error      string          `json:"error,omitempty"`
	Report     *AuditReportDTO `json:"report,omitempty"`
	StartedAt  string          `json:"started_at"`
	FinishedAt *string         `json:"finished_at,omitempty"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ScenarioResultDTO lists what a scenario created.
type ScenarioResultDTO struct {
	Scenario string       `json:"scenario"`
	Accounts []AccountDTO `json:"accounts"`
	Claims   []ClaimDTO   `json:"claims,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func (h *Handler) money(m billing.Money) string {
	return h.Ledger.Currency.Format(m)
}

func (h *Handler) toAccountDTO(s billing.AccountSnapshot) AccountDTO {
	return AccountDTO{
		ID:            string(s.ID),
		AccountNo:     s.AccountNo,
		PatientID:     s.PatientID,
		EncounterID:   s.EncounterID,
		Currency:      s.Currency,
		Status:        string(s.Status),
		TotalAmount:   h.money(s.Total),
		AmountPaid:    h.money(s.Paid),
		Balance:       h.money(s.Balance),
		InvoiceStatus: string(s.InvoiceStatus()),
		PaidRatio:     s.PaidRatio().StringFixed(4),
		ItemCount:     s.ItemCount,
		PaymentCount:  s.PaymentCount,
		CreatedAt:     formatTime(s.CreatedAt),
		ClosedAt:      formatTimePtr(s.ClosedAt),
	}
}

func (h *Handler) toItemDTO(item billing.Item) ItemDTO {
	return ItemDTO{
		ID:          string(item.ID),
		AccountID:   string(item.AccountID),
		ItemType:    string(item.Type),
		Code:        item.Code,
		Description: item.Description,
		Quantity:    item.Quantity,
		UnitPrice:   h.money(item.UnitPrice),
		Discount:    h.money(item.Discount),
		NetAmount:   h.money(billing.LineTotal(item)),
		Status:      string(item.Status),
		VoidReason:  item.VoidReason,
		CreatedAt:   formatTime(item.CreatedAt),
	}
}

func (h *Handler) toItemDTOs(items []billing.Item) []ItemDTO {
	dtos := make([]ItemDTO, len(items))
	for i, item := range items {
		dtos[i] = h.toItemDTO(item)
	}
	return dtos
}

func (h *Handler) toPaymentDTO(p billing.Payment) PaymentDTO {
	return PaymentDTO{
		ID:             string(p.ID),
		AccountID:      string(p.AccountID),
		Amount:         h.money(p.Amount),
		Method:         string(p.Method),
		ReferenceNo:    p.ReferenceNo,
		ReceivedBy:     p.ReceivedBy,
		IdempotencyKey: p.IdempotencyKey,
		ClaimID:        p.ClaimID,
		CreatedAt:      formatTime(p.CreatedAt),
	}
}

func (h *Handler) toPaymentDTOs(payments []billing.Payment) []PaymentDTO {
	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = h.toPaymentDTO(p)
	}
	return dtos
}

func (h *Handler) toInvoiceDTO(inv billing.Invoice) InvoiceDTO {
	sum := billing.Summary{Total: inv.Total, Paid: inv.Paid, Balance: inv.Balance}
	return InvoiceDTO{
		AccountID:   string(inv.AccountID),
		InvoiceNo:   inv.InvoiceNo,
		PatientID:   inv.PatientID,
		EncounterID: inv.EncounterID,
		Currency:    inv.Currency,
		TotalAmount: h.money(inv.Total),
		AmountPaid:  h.money(inv.Paid),
		Balance:     h.money(inv.Balance),
		Status:      string(inv.Status),
		PaidRatio:   sum.PaidRatio().StringFixed(4),
		Items:       h.toItemDTOs(inv.Items),
		Payments:    h.toPaymentDTOs(inv.Payments),
		IssuedAt:    formatTime(inv.IssuedAt),
	}
}

func (h *Handler) toClaimDTO(c insurance.Claim) ClaimDTO {
	dto := ClaimDTO{
		ID:              string(c.ID),
		InvoiceID:       string(c.InvoiceID),
		Provider:        c.Provider,
		PolicyNumber:    c.PolicyNumber,
		ClaimNumber:     c.ClaimNumber,
		ClaimAmount:     h.money(c.ClaimAmount),
		Status:          string(c.Status),
		RejectionReason: c.RejectionReason,
		SubmissionDate:  formatTimePtr(c.SubmissionDate),
		ApprovalDate:    formatTimePtr(c.ApprovalDate),
		RejectionDate:   formatTimePtr(c.RejectionDate),
		PaidDate:        formatTimePtr(c.PaidDate),
		PaymentID:       c.PaymentID,
		CreatedAt:       formatTime(c.CreatedAt),
		UpdatedAt:       formatTime(c.UpdatedAt),
	}
	if c.ApprovedAmount != nil {
		approved := h.money(*c.ApprovedAmount)
		dto.ApprovedAmount = &approved
	}
	return dto
}

func (h *Handler) toClaimDTOs(claims []insurance.Claim) []ClaimDTO {
	dtos := make([]ClaimDTO, len(claims))
	for i, c := range claims {
		dtos[i] = h.toClaimDTO(c)
	}
	return dtos
}

func (h *Handler) toServiceDTO(svc tariff.Service) ServiceDTO {
	return ServiceDTO{
		Code:        svc.Code,
		ItemType:    string(svc.Type),
		Description: svc.Description,
		Price:       h.money(svc.Price),
	}
}

func (h *Handler) toAuditReportDTO(r billing.AuditReport) AuditReportDTO {
	dto := AuditReportDTO{
		StartedAt:  formatTime(r.StartedAt),
		FinishedAt: formatTime(r.FinishedAt),
		Accounts:   r.Accounts,
		Clean:      r.Clean(),
		Violations: make([]ViolationDTO, len(r.Violations)),
	}
	for i, v := range r.Violations {
		dto.Violations[i] = ViolationDTO{
			AccountID:   string(v.AccountID),
			AccountNo:   v.AccountNo,
			Status:      string(v.Status),
			TotalAmount: h.money(v.Summary.Total),
			AmountPaid:  h.money(v.Summary.Paid),
			Balance:     h.money(v.Summary.Balance),
			Reason:      v.Reason,
		}
	}
	return dto
}

func (h *Handler) toAuditRunDTO(run AuditRun) AuditRunDTO {
	dto := AuditRunDTO{
		ID:         run.ID,
		Trigger:    run.Trigger,
		Status:     run.Status,
		Error:      run.Error,
		StartedAt:  formatTime(run.StartedAt),
		FinishedAt: formatTimePtr(run.FinishedAt),
	}
	if run.Report != nil {
		report := h.toAuditReportDTO(*run.Report)
		dto.Report = &report
	}
	return dto
}
