package insurance

import (
	"context"

	"github.com/warp/billing-ledger/billing"
)

// ClaimStore persists claims. Stores that also implement billing.Store
// should hand a ClaimStore-capable tx to WithAccountTx callbacks so Settle
// can update the claim in the payment's transaction.
type ClaimStore interface {
	CreateClaim(ctx context.Context, c Claim) error

	// GetClaim returns billing.ErrClaimNotFound for an unknown id.
	GetClaim(ctx context.Context, id ClaimID) (*Claim, error)

	// ListClaims returns claims in the given status, or all when status is empty.
	ListClaims(ctx context.Context, status ClaimStatus) ([]Claim, error)

	ClaimsByInvoice(ctx context.Context, invoiceID billing.AccountID) ([]Claim, error)

	// UpdateClaim replaces c only if the stored status still equals expected,
	// otherwise it returns billing.ErrConcurrentModification.
	UpdateClaim(ctx context.Context, c Claim, expected ClaimStatus) error
}
