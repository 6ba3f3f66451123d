package billing

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// ID prefixes. Ids are K-sortable TypeIDs in the form "prefix_suffix".
const (
	PrefixAccount = "acct"
	PrefixItem    = "item"
	PrefixPayment = "pay"
)

// NewID generates a TypeID with the given prefix.
// It panics on an invalid prefix, which is a programming error.
func NewID(prefix string) string {
	tid, err := typeid.Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("billing: invalid id prefix %q: %v", prefix, err))
	}
	return tid.String()
}

func NewAccountID() AccountID { return AccountID(NewID(PrefixAccount)) }
func NewItemID() ItemID       { return ItemID(NewID(PrefixItem)) }
func NewPaymentID() PaymentID { return PaymentID(NewID(PrefixPayment)) }
