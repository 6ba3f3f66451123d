package insurance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/warp/billing-ledger/billing"
)

// =============================================================================
// SERVICE - Claim persistence and settlement
// =============================================================================

// Service runs the claim workflow against a ClaimStore. Each transition is
// a compare-and-set on the previous status, so two concurrent transitions
// of one claim cannot both succeed. Different claims never coordinate.
type Service struct {
	Claims ClaimStore
	Ledger *billing.Ledger
	Logger zerolog.Logger
	Now    func() time.Time
}

// NewService creates a claim service. claims is usually the same store
// that backs ledger.
func NewService(claims ClaimStore, ledger *billing.Ledger) *Service {
	return &Service{
		Claims: claims,
		Ledger: ledger,
		Logger: zerolog.Nop(),
		Now:    time.Now,
	}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// File records a new pending claim against an existing invoice.
func (s *Service) File(ctx context.Context, req ClaimRequest) (*Claim, error) {
	if req.InvoiceID == "" {
		return nil, &billing.ValidationError{Field: "invoice_id", Message: "is required"}
	}
	provider := strings.TrimSpace(req.Provider)
	if provider == "" {
		return nil, &billing.ValidationError{Field: "insurance_provider", Message: "is required"}
	}
	policyNumber := strings.TrimSpace(req.PolicyNumber)
	if policyNumber == "" {
		return nil, &billing.ValidationError{Field: "policy_number", Message: "is required"}
	}
	if !req.ClaimAmount.IsPositive() {
		return nil, &billing.ValidationError{Field: "claim_amount", Message: "must be greater than zero"}
	}
	if _, err := s.Ledger.Store.GetAccount(ctx, req.InvoiceID); err != nil {
		return nil, fmt.Errorf("looking up invoice: %w", err)
	}

	claimNumber := strings.TrimSpace(req.ClaimNumber)
	if claimNumber == "" {
		claimNumber = newClaimNumber()
	}

	now := s.now()
	claim := Claim{
		ID:           newClaimID(),
		InvoiceID:    req.InvoiceID,
		Provider:     provider,
		PolicyNumber: policyNumber,
		ClaimNumber:  claimNumber,
		ClaimAmount:  req.ClaimAmount,
		Status:       ClaimPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Claims.CreateClaim(ctx, claim); err != nil {
		return nil, fmt.Errorf("creating claim: %w", err)
	}

	s.Logger.Info().
		Str("claim_id", string(claim.ID)).
		Str("claim_number", claim.ClaimNumber).
		Str("invoice_id", string(claim.InvoiceID)).
		Int64("claim_amount", claim.ClaimAmount.Int64()).
		Msg("claim filed")
	return &claim, nil
}

func (s *Service) Get(ctx context.Context, id ClaimID) (*Claim, error) {
	return s.Claims.GetClaim(ctx, id)
}

func (s *Service) List(ctx context.Context, status ClaimStatus) ([]Claim, error) {
	return s.Claims.ListClaims(ctx, status)
}

func (s *Service) ForInvoice(ctx context.Context, invoiceID billing.AccountID) ([]Claim, error) {
	if _, err := s.Ledger.Store.GetAccount(ctx, invoiceID); err != nil {
		return nil, err
	}
	return s.Claims.ClaimsByInvoice(ctx, invoiceID)
}

// Submit moves a pending claim to submitted.
func (s *Service) Submit(ctx context.Context, id ClaimID) (*Claim, error) {
	return s.transition(ctx, s.Claims, id, func(c Claim, at time.Time) (Claim, error) {
		return Submit(c, at)
	})
}

// Approve moves a submitted claim to approved.
func (s *Service) Approve(ctx context.Context, id ClaimID, amount billing.Money) (*Claim, error) {
	return s.transition(ctx, s.Claims, id, func(c Claim, at time.Time) (Claim, error) {
		return Approve(c, amount, at)
	})
}

// Reject moves a submitted claim to rejected.
func (s *Service) Reject(ctx context.Context, id ClaimID, reason string) (*Claim, error) {
	return s.transition(ctx, s.Claims, id, func(c Claim, at time.Time) (Claim, error) {
		return Reject(c, reason, at)
	})
}

// MarkPaid moves an approved claim to paid without recording a payment.
// Use Settle to do both.
func (s *Service) MarkPaid(ctx context.Context, id ClaimID) (*Claim, error) {
	return s.transition(ctx, s.Claims, id, func(c Claim, at time.Time) (Claim, error) {
		return MarkPaid(c, at)
	})
}

// Settle applies an insurance payment of the approved amount to the
// invoice's account and marks the claim paid, atomically. If the payment
// would overpay the account, or the claim moved concurrently, neither
// change is kept.
func (s *Service) Settle(ctx context.Context, id ClaimID, receivedBy string) (*Claim, *billing.Payment, error) {
	claim, err := s.Claims.GetClaim(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := guard(*claim, ClaimPaid); err != nil {
		return nil, nil, err
	}

	var settled *Claim
	payment, err := s.Ledger.ApplyPaymentWith(ctx, claim.InvoiceID, billing.PaymentRequest{
		Amount:      *claim.ApprovedAmount,
		Method:      billing.MethodInsurance,
		ReferenceNo: claim.ClaimNumber,
		ReceivedBy:  receivedBy,
		ClaimID:     string(claim.ID),
	}, func(tx billing.Store, p *billing.Payment) error {
		claims, ok := tx.(ClaimStore)
		if !ok {
			return fmt.Errorf("settling claim: %w", billing.ErrStoreRequired)
		}
		var err error
		settled, err = s.transition(ctx, claims, id, func(c Claim, at time.Time) (Claim, error) {
			next, err := MarkPaid(c, at)
			next.PaymentID = string(p.ID)
			return next, err
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return settled, payment, nil
}

func (s *Service) transition(ctx context.Context, claims ClaimStore, id ClaimID, step func(Claim, time.Time) (Claim, error)) (*Claim, error) {
	current, err := claims.GetClaim(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := step(*current, s.now())
	if err != nil {
		return nil, err
	}
	if err := claims.UpdateClaim(ctx, next, current.Status); err != nil {
		if errors.Is(err, billing.ErrConcurrentModification) {
			s.Logger.Warn().Str("claim_id", string(id)).Msg("claim changed concurrently")
		}
		return nil, fmt.Errorf("updating claim: %w", err)
	}

	s.Logger.Info().
		Str("claim_id", string(id)).
		Str("from", string(current.Status)).
		Str("to", string(next.Status)).
		Msg("claim transitioned")
	return &next, nil
}

func newClaimNumber() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "CLM-" + strings.ToUpper(raw[:12])
}
