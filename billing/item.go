/*
item.go - Charge lines and their arithmetic

PURPOSE:
  Validates charge requests and computes each line's contribution to the
  account total. LineTotal is the only computation on an item and it is
  exact: quantity x unit price - discount in integer minor units.

CONSTRAINTS:
  quantity > 0
  unit_price >= 0
  0 <= discount <= quantity x unit_price
  quantity x unit_price must fit in int64

ITEM LIFECYCLE:
  pending ──▶ billed ──▶ voided
     │                     ▲
     └─────────────────────┘

  Amounts never change after creation. A wrong charge is voided and a new
  one appended.
*/
package billing

import (
	"strings"
	"time"
)

// LineTotal returns quantity x unit price - discount.
// Items built by NewItem never overflow here.
func LineTotal(item Item) Money {
	gross, err := item.UnitPrice.MulQty(item.Quantity)
	if err != nil {
		return 0
	}
	return gross.Sub(item.Discount)
}

// NewItem validates req and builds a pending item for the account.
func NewItem(accountID AccountID, req ItemRequest, now time.Time) (Item, error) {
	if !req.Type.Valid() {
		return Item{}, &ValidationError{Field: "item_type", Message: "must be one of " + joinItemTypes()}
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return Item{}, &ValidationError{Field: "description", Message: "is required"}
	}
	if req.Quantity <= 0 {
		return Item{}, &ValidationError{Field: "quantity", Message: "must be greater than zero"}
	}
	if req.UnitPrice.IsNegative() {
		return Item{}, &ValidationError{Field: "unit_price", Message: "must not be negative"}
	}
	if req.Discount.IsNegative() {
		return Item{}, &ValidationError{Field: "discount_amount", Message: "must not be negative"}
	}
	gross, err := req.UnitPrice.MulQty(req.Quantity)
	if err != nil {
		return Item{}, &ValidationError{Field: "quantity", Message: "times unit_price is out of range"}
	}
	if req.Discount.GreaterThan(gross) {
		return Item{}, &ValidationError{Field: "discount_amount", Message: "must not exceed quantity x unit_price"}
	}

	return Item{
		ID:          NewItemID(),
		AccountID:   accountID,
		Type:        req.Type,
		Code:        strings.TrimSpace(req.Code),
		Description: description,
		Quantity:    req.Quantity,
		UnitPrice:   req.UnitPrice,
		Discount:    req.Discount,
		Net:         gross.Sub(req.Discount),
		Status:      ItemPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

var itemTransitions = map[ItemStatus][]ItemStatus{
	ItemPending: {ItemBilled, ItemVoided},
	ItemBilled:  {ItemVoided},
}

// CanTransition reports whether an item may move from s to next.
func (s ItemStatus) CanTransition(next ItemStatus) bool {
	for _, allowed := range itemTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (item Item) transition(next ItemStatus) error {
	if !item.Status.CanTransition(next) {
		return &InvalidTransitionError{
			Entity: "item",
			ID:     string(item.ID),
			From:   string(item.Status),
			To:     string(next),
		}
	}
	return nil
}

func joinItemTypes() string {
	names := make([]string, len(ItemTypes))
	for i, t := range ItemTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
