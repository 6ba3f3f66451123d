/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that drive the ledger through realistic
	billing flows for demos and manual testing. Each scenario opens fresh
	accounts and goes through the public Ledger and claim Service, so every
	rule applies exactly as it does for real traffic.

AVAILABLE SCENARIOS:

	outpatient-visit:   Tariff charges, one M-Pesa payment, invoice partial
	insured-inpatient:  Ward stay and surgery settled partly by an insurer
	settled-and-closed: 5,000 + 3,000 charged, paid 3,000 then 5,000, closed

HOW SCENARIOS WORK:
 1. Open a new account (fresh encounter id)
 2. Add items, explicit or by tariff code
 3. Apply payments and drive claims
 4. Return the resulting accounts and claims

NOTE:

	The ledger is append-only, so loading a scenario never clears existing
	data. Loading the same scenario twice opens a second set of accounts.

SEE ALSO:
  - handlers.go: Route registration
  - tariff/default.json: Codes used below
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/warp/billing-ledger/billing"
	"github.com/warp/billing-ledger/insurance"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "outpatient-visit",
		Name:        "Outpatient Visit",
		Description: "GP consultation, malaria test and medication; partly paid by M-Pesa",
	},
	{
		ID:          "insured-inpatient",
		Name:        "Insured Inpatient Stay",
		Description: "Three ward days and an appendectomy; the insurer settles part of the invoice",
	},
	{
		ID:          "settled-and-closed",
		Name:        "Settled and Closed",
		Description: "Two charges paid in two instalments, items billed and the account closed",
	},
}

type scenarioResult struct {
	accounts []billing.AccountID
	claims   []insurance.Claim
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the most recently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario runs a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decode(w, r, &req) {
		return
	}

	ctx := r.Context()

	var (
		res scenarioResult
		err error
	)
	switch req.ScenarioID {
	case "outpatient-visit":
		res, err = h.loadOutpatientVisitScenario(ctx)
	case "insured-inpatient":
		res, err = h.loadInsuredInpatientScenario(ctx)
	case "settled-and-closed":
		res, err = h.loadSettledAndClosedScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	out := ScenarioResultDTO{Scenario: req.ScenarioID, Claims: h.toClaimDTOs(res.claims)}
	for _, id := range res.accounts {
		snap, err := h.Ledger.Account(ctx, id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		out.Accounts = append(out.Accounts, h.toAccountDTO(*snap))
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	h.Logger.Info().Str("scenario", req.ScenarioID).Int("accounts", len(out.Accounts)).Msg("scenario loaded")
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) openDemoAccount(ctx context.Context, patientID string) (*billing.Account, error) {
	return h.Ledger.OpenAccount(ctx, billing.OpenAccountRequest{
		PatientID:   patientID,
		EncounterID: "enc-" + uuid.NewString()[:8],
	})
}

// chargeTariff adds each code with its quantity.
func (h *Handler) chargeTariff(ctx context.Context, id billing.AccountID, lines []tariffLine) error {
	for _, line := range lines {
		req, err := h.Tariff.ItemRequest(line.code, line.qty, 0)
		if err != nil {
			return err
		}
		if _, err := h.Ledger.AddItem(ctx, id, req); err != nil {
			return fmt.Errorf("charging %s: %w", line.code, err)
		}
	}
	return nil
}

type tariffLine struct {
	code string
	qty  int64
}

func (h *Handler) loadOutpatientVisitScenario(ctx context.Context) (scenarioResult, error) {
	acct, err := h.openDemoAccount(ctx, "demo-outpatient")
	if err != nil {
		return scenarioResult{}, err
	}

	err = h.chargeTariff(ctx, acct.ID, []tariffLine{
		{code: "CONS-GP", qty: 1},
		{code: "LAB-MAL", qty: 1},
		{code: "MED-AMOX-500", qty: 21},
		{code: "MED-PCM-500", qty: 10},
	})
	if err != nil {
		return scenarioResult{}, err
	}

	_, err = h.Ledger.ApplyPayment(ctx, acct.ID, billing.PaymentRequest{
		Amount:      h.Ledger.Currency.Major(1500),
		Method:      billing.MethodMpesa,
		ReferenceNo: "QHX" + uuid.NewString()[:7],
		ReceivedBy:  "front-desk",
	})
	if err != nil {
		return scenarioResult{}, err
	}

	return scenarioResult{accounts: []billing.AccountID{acct.ID}}, nil
}

func (h *Handler) loadInsuredInpatientScenario(ctx context.Context) (scenarioResult, error) {
	acct, err := h.openDemoAccount(ctx, "demo-inpatient")
	if err != nil {
		return scenarioResult{}, err
	}

	err = h.chargeTariff(ctx, acct.ID, []tariffLine{
		{code: "IMG-US-ABD", qty: 1},
		{code: "PROC-APPX", qty: 1},
		{code: "BED-GEN", qty: 3},
		{code: "NURS-DAY", qty: 3},
	})
	if err != nil {
		return scenarioResult{}, err
	}

	currency := h.Ledger.Currency
	claim, err := h.Claims.File(ctx, insurance.ClaimRequest{
		InvoiceID:    acct.ID,
		Provider:     "NHIF",
		PolicyNumber: "NHIF-44120987",
		ClaimAmount:  currency.Major(90000),
	})
	if err != nil {
		return scenarioResult{}, err
	}
	if _, err := h.Claims.Submit(ctx, claim.ID); err != nil {
		return scenarioResult{}, err
	}
	if _, err := h.Claims.Approve(ctx, claim.ID, currency.Major(80000)); err != nil {
		return scenarioResult{}, err
	}
	settled, _, err := h.Claims.Settle(ctx, claim.ID, "claims-desk")
	if err != nil {
		return scenarioResult{}, err
	}

	return scenarioResult{
		accounts: []billing.AccountID{acct.ID},
		claims:   []insurance.Claim{*settled},
	}, nil
}

func (h *Handler) loadSettledAndClosedScenario(ctx context.Context) (scenarioResult, error) {
	acct, err := h.openDemoAccount(ctx, "demo-settled")
	if err != nil {
		return scenarioResult{}, err
	}

	currency := h.Ledger.Currency
	charges := []billing.ItemRequest{
		{Type: billing.ItemProcedure, Description: "Minor theatre procedure", Quantity: 1, UnitPrice: currency.Major(5000)},
		{Type: billing.ItemLabTest, Description: "Histology", Quantity: 1, UnitPrice: currency.Major(3000)},
	}
	for _, c := range charges {
		if _, err := h.Ledger.AddItem(ctx, acct.ID, c); err != nil {
			return scenarioResult{}, err
		}
	}

	payments := []billing.PaymentRequest{
		{Amount: currency.Major(3000), Method: billing.MethodCash, ReceivedBy: "cashier-1"},
		{Amount: currency.Major(5000), Method: billing.MethodCard, ReceivedBy: "cashier-1"},
	}
	for _, p := range payments {
		if _, err := h.Ledger.ApplyPayment(ctx, acct.ID, p); err != nil {
			return scenarioResult{}, err
		}
	}

	if _, err := h.Ledger.BillItems(ctx, acct.ID); err != nil {
		return scenarioResult{}, err
	}
	if _, err := h.Ledger.Close(ctx, acct.ID); err != nil {
		return scenarioResult{}, err
	}

	return scenarioResult{accounts: []billing.AccountID{acct.ID}}, nil
}
