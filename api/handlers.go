/*
handlers.go - HTTP API handlers for the billing ledger

PURPOSE:
  Exposes the billing ledger and the insurance claim workflow via REST API.
  Handles HTTP request/response, JSON serialization and amount parsing, and
  delegates every rule to the billing and insurance packages.

ENDPOINTS:
  Accounts:
    GET    /api/accounts                    List accounts (?status=&patient_id=&limit=)
    POST   /api/accounts                    Open account
    GET    /api/accounts/{id}               Account with derived figures
    POST   /api/accounts/{id}/close         Close a settled account
    GET    /api/accounts/{id}/invoice       Invoice view

  Items:
    GET    /api/accounts/{id}/items         List items
    POST   /api/accounts/{id}/items         Add item (explicit or tariff_code)
    POST   /api/accounts/{id}/items/bill    Mark pending items billed
    POST   /api/items/{id}/void             Void item

  Payments:
    GET    /api/accounts/{id}/payments      List payments
    POST   /api/accounts/{id}/payments      Apply payment

  Claims:
    GET    /api/accounts/{id}/claims        Claims against the invoice
    GET    /api/claims                      List claims (?status=)
    POST   /api/claims                      File claim
    GET    /api/claims/{id}                 Get claim
    POST   /api/claims/{id}/submit|approve|reject|mark-paid|settle

  Tariff, scenarios, admin:
    GET    /api/tariff                      Price list
    GET    /api/scenarios                   List demo scenarios
    GET    /api/scenarios/current           Last loaded scenario
    POST   /api/scenarios/load              Load a demo scenario
    POST   /api/admin/audit                 Run a consistency audit now
    GET    /api/admin/audit/runs            Audit run history

ERROR HANDLING:
  Errors are returned as JSON {error, details} with:
  - 400: Validation errors, invalid amounts, malformed bodies
  - 404: Account, item or claim not found
  - 409: Overpayment, closed account, invalid transition, duplicates,
         concurrent modification
  - 500: Store failures and invariant violations

SECURITY NOTE:
  No authentication or authorization. Run behind the hospital gateway.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/warp/billing-ledger/billing"
	"github.com/warp/billing-ledger/insurance"
	"github.com/warp/billing-ledger/tariff"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger    *billing.Ledger
	Claims    *insurance.Service
	Tariff    *tariff.Tariff
	Scheduler *AuditScheduler
	Logger    zerolog.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler. The audit scheduler is created stopped;
// the caller sets its interval and starts it.
func NewHandler(ledger *billing.Ledger, claims *insurance.Service, prices *tariff.Tariff, logger zerolog.Logger) *Handler {
	return &Handler{
		Ledger:    ledger,
		Claims:    claims,
		Tariff:    prices,
		Scheduler: NewAuditScheduler(ledger, logger),
		Logger:    logger,
	}
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns accounts with their figures.
// GET /api/accounts?status=open&patient_id=p-1&limit=50
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := billing.AccountFilter{
		Status:    billing.AccountStatus(q.Get("status")),
		PatientID: q.Get("patient_id"),
	}
	if filter.Status != "" && filter.Status != billing.AccountOpen && filter.Status != billing.AccountClosed {
		writeError(w, http.StatusBadRequest, "Invalid status filter", nil)
		return
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		filter.Limit = limit
	}

	snapshots, err := h.Ledger.Accounts(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	dtos := make([]AccountDTO, len(snapshots))
	for i, s := range snapshots {
		dtos[i] = h.toAccountDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// OpenAccount opens a billing account for an encounter.
// POST /api/accounts
func (h *Handler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	var req OpenAccountRequest
	if !decode(w, r, &req) {
		return
	}

	acct, err := h.Ledger.OpenAccount(r.Context(), billing.OpenAccountRequest{
		AccountNo:   req.AccountNo,
		PatientID:   req.PatientID,
		EncounterID: req.EncounterID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.toAccountDTO(billing.AccountSnapshot{Account: *acct}))
}

// GetAccount returns one account.
// GET /api/accounts/{id}
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Ledger.Account(r.Context(), accountID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toAccountDTO(*snap))
}

// CloseAccount closes a settled account.
// POST /api/accounts/{id}/close
func (h *Handler) CloseAccount(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Ledger.Close(r.Context(), accountID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toAccountDTO(*snap))
}

// GetInvoice returns the invoice view of an account.
// GET /api/accounts/{id}/invoice
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Ledger.Invoice(r.Context(), accountID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toInvoiceDTO(*inv))
}

// =============================================================================
// ITEM HANDLERS
// =============================================================================

// ListItems returns every item on an account.
// GET /api/accounts/{id}/items
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Ledger.Items(r.Context(), accountID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toItemDTOs(items))
}

// AddItem charges an account.
// POST /api/accounts/{id}/items
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if !decode(w, r, &req) {
		return
	}

	itemReq, err := h.itemRequest(req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	item, err := h.Ledger.AddItem(r.Context(), accountID(r), itemReq)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toItemDTO(*item))
}

func (h *Handler) itemRequest(req AddItemRequest) (billing.ItemRequest, error) {
	currency := h.Ledger.Currency

	var discount billing.Money
	if strings.TrimSpace(req.Discount) != "" {
		d, err := currency.ParseField("discount_amount", req.Discount)
		if err != nil {
			return billing.ItemRequest{}, err
		}
		discount = d
	}

	if code := strings.TrimSpace(req.TariffCode); code != "" {
		itemReq, err := h.Tariff.ItemRequest(code, req.Quantity, discount)
		if err != nil {
			return billing.ItemRequest{}, err
		}
		if desc := strings.TrimSpace(req.Description); desc != "" {
			itemReq.Description = desc
		}
		return itemReq, nil
	}

	price, err := currency.ParseField("unit_price", req.UnitPrice)
	if err != nil {
		return billing.ItemRequest{}, err
	}
	return billing.ItemRequest{
		Type:        billing.ItemType(req.ItemType),
		Code:        req.Code,
		Description: req.Description,
		Quantity:    req.Quantity,
		UnitPrice:   price,
		Discount:    discount,
	}, nil
}

// BillItems marks the account's pending items billed.
// POST /api/accounts/{id}/items/bill
func (h *Handler) BillItems(w http.ResponseWriter, r *http.Request) {
	n, err := h.Ledger.BillItems(r.Context(), accountID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"billed": n})
}

// VoidItem voids a charge.
// POST /api/items/{id}/void
func (h *Handler) VoidItem(w http.ResponseWriter, r *http.Request) {
	var req VoidItemRequest
	if !decode(w, r, &req) {
		return
	}

	item, err := h.Ledger.VoidItem(r.Context(), billing.ItemID(chi.URLParam(r, "id")), req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toItemDTO(*item))
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// ListPayments returns every payment on an account.
// GET /api/accounts/{id}/payments
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.Ledger.Payments(r.Context(), accountID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toPaymentDTOs(payments))
}

// ApplyPayment records a payment against an account. A retry carrying
// an already used idempotency key answers 200 with the original payment.
// POST /api/accounts/{id}/payments
func (h *Handler) ApplyPayment(w http.ResponseWriter, r *http.Request) {
	var req ApplyPaymentRequest
	if !decode(w, r, &req) {
		return
	}

	amount, err := h.Ledger.Currency.ParseField("amount", req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	key := req.IdempotencyKey
	if key == "" {
		key = r.Header.Get("Idempotency-Key")
	}

	p, err := h.Ledger.ApplyPayment(r.Context(), accountID(r), billing.PaymentRequest{
		Amount:         amount,
		Method:         billing.PaymentMethod(req.Method),
		ReferenceNo:    req.ReferenceNo,
		ReceivedBy:     req.ReceivedBy,
		IdempotencyKey: key,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if p.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, h.toPaymentDTO(*p))
}

// =============================================================================
// CLAIM HANDLERS
// =============================================================================

// ListAccountClaims returns the claims filed against an account's invoice.
// GET /api/accounts/{id}/claims
func (h *Handler) ListAccountClaims(w http.ResponseWriter, r *http.Request) {
	claims, err := h.Claims.ForInvoice(r.Context(), accountID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toClaimDTOs(claims))
}

// ListClaims returns claims, optionally in one status.
// GET /api/claims?status=submitted
func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	claims, err := h.Claims.List(r.Context(), insurance.ClaimStatus(r.URL.Query().Get("status")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toClaimDTOs(claims))
}

// FileClaim files a pending claim against an invoice.
// POST /api/claims
func (h *Handler) FileClaim(w http.ResponseWriter, r *http.Request) {
	var req FileClaimRequest
	if !decode(w, r, &req) {
		return
	}

	amount, err := h.Ledger.Currency.ParseField("claim_amount", req.ClaimAmount)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	c, err := h.Claims.File(r.Context(), insurance.ClaimRequest{
		InvoiceID:    billing.AccountID(req.InvoiceID),
		Provider:     req.Provider,
		PolicyNumber: req.PolicyNumber,
		ClaimNumber:  req.ClaimNumber,
		ClaimAmount:  amount,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toClaimDTO(*c))
}

// GetClaim returns one claim.
// GET /api/claims/{id}
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	c, err := h.Claims.Get(r.Context(), claimID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toClaimDTO(*c))
}

// SubmitClaim sends a pending claim to the insurer.
// POST /api/claims/{id}/submit
func (h *Handler) SubmitClaim(w http.ResponseWriter, r *http.Request) {
	h.respondClaim(w, r)(h.Claims.Submit(r.Context(), claimID(r)))
}

// ApproveClaim records the insurer's approval.
// POST /api/claims/{id}/approve
func (h *Handler) ApproveClaim(w http.ResponseWriter, r *http.Request) {
	var req ApproveClaimRequest
	if !decode(w, r, &req) {
		return
	}
	amount, err := h.Ledger.Currency.ParseField("approved_amount", req.ApprovedAmount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondClaim(w, r)(h.Claims.Approve(r.Context(), claimID(r), amount))
}

// RejectClaim records the insurer's rejection.
// POST /api/claims/{id}/reject
func (h *Handler) RejectClaim(w http.ResponseWriter, r *http.Request) {
	var req RejectClaimRequest
	if !decode(w, r, &req) {
		return
	}
	h.respondClaim(w, r)(h.Claims.Reject(r.Context(), claimID(r), req.Reason))
}

// MarkClaimPaid moves an approved claim to paid without recording money.
// POST /api/claims/{id}/mark-paid
func (h *Handler) MarkClaimPaid(w http.ResponseWriter, r *http.Request) {
	h.respondClaim(w, r)(h.Claims.MarkPaid(r.Context(), claimID(r)))
}

// SettleClaim applies the approved amount as an insurance payment and
// marks the claim paid.
// POST /api/claims/{id}/settle
func (h *Handler) SettleClaim(w http.ResponseWriter, r *http.Request) {
	var req SettleClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	c, p, err := h.Claims.Settle(r.Context(), claimID(r), req.ReceivedBy)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SettlementDTO{Claim: h.toClaimDTO(*c), Payment: h.toPaymentDTO(*p)})
}

func (h *Handler) respondClaim(w http.ResponseWriter, r *http.Request) func(*insurance.Claim, error) {
	return func(c *insurance.Claim, err error) {
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, h.toClaimDTO(*c))
	}
}

// =============================================================================
// TARIFF AND ADMIN HANDLERS
// =============================================================================

// ListTariff returns the price list.
// GET /api/tariff
func (h *Handler) ListTariff(w http.ResponseWriter, r *http.Request) {
	services := h.Tariff.Services()
	dtos := make([]ServiceDTO, len(services))
	for i, svc := range services {
		dtos[i] = h.toServiceDTO(svc)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":     h.Tariff.Name,
		"currency": h.Tariff.Currency.Code,
		"services": dtos,
	})
}

// TriggerAudit runs a consistency audit immediately.
// POST /api/admin/audit
func (h *Handler) TriggerAudit(w http.ResponseWriter, r *http.Request) {
	run := h.Scheduler.RunNow(r.Context(), TriggerManual)
	if run.Status == AuditFailed {
		writeError(w, http.StatusInternalServerError, "Audit failed", errors.New(run.Error))
		return
	}
	writeJSON(w, http.StatusOK, h.toAuditRunDTO(run))
}

// ListAuditRuns returns recent audit runs, newest first.
// GET /api/admin/audit/runs
func (h *Handler) ListAuditRuns(w http.ResponseWriter, r *http.Request) {
	runs := h.Scheduler.Runs()
	dtos := make([]AuditRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = h.toAuditRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Health reports whether the store is reachable.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Ledger.Store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func accountID(r *http.Request) billing.AccountID {
	return billing.AccountID(chi.URLParam(r, "id"))
}

func claimID(r *http.Request) insurance.ClaimID {
	return insurance.ClaimID(chi.URLParam(r, "id"))
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// statusFor maps a billing or insurance error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case billing.IsClientError(err):
		return http.StatusBadRequest
	case billing.IsNotFound(err):
		return http.StatusNotFound
	case billing.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, status, "Internal error", err)
		return
	}
	writeError(w, status, http.StatusText(status), err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
