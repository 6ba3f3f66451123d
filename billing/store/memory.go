// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warp/billing-ledger/billing"
	"github.com/warp/billing-ledger/insurance"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements billing.Store and insurance.ClaimStore.
type Memory struct {
	mu sync.RWMutex

	accounts     map[billing.AccountID]billing.Account
	accountNos   map[string]billing.AccountID
	accountOrder []billing.AccountID
	seq          int64

	items     map[billing.AccountID][]billing.Item
	itemIndex map[billing.ItemID]billing.AccountID

	payments    map[billing.AccountID][]billing.Payment
	idempotency map[string]billing.Payment

	claims     map[insurance.ClaimID]insurance.Claim
	claimNos   map[string]insurance.ClaimID
	claimOrder []insurance.ClaimID
}

func NewMemory() *Memory {
	return &Memory{
		accounts:    make(map[billing.AccountID]billing.Account),
		accountNos:  make(map[string]billing.AccountID),
		items:       make(map[billing.AccountID][]billing.Item),
		itemIndex:   make(map[billing.ItemID]billing.AccountID),
		payments:    make(map[billing.AccountID][]billing.Payment),
		idempotency: make(map[string]billing.Payment),
		claims:      make(map[insurance.ClaimID]insurance.Claim),
		claimNos:    make(map[string]insurance.ClaimID),
	}
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (m *Memory) CreateAccount(_ context.Context, acct billing.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.createAccountLocked(acct)
	return err
}

func (m *Memory) createAccountLocked(acct billing.Account) (func(), error) {
	if _, taken := m.accountNos[acct.AccountNo]; taken {
		return nil, fmt.Errorf("%w: %s", billing.ErrDuplicateAccountNo, acct.AccountNo)
	}
	if _, exists := m.accounts[acct.ID]; exists {
		return nil, fmt.Errorf("account %s already exists", acct.ID)
	}
	m.accounts[acct.ID] = acct
	m.accountNos[acct.AccountNo] = acct.ID
	m.accountOrder = append(m.accountOrder, acct.ID)
	return func() {
		delete(m.accounts, acct.ID)
		delete(m.accountNos, acct.AccountNo)
		m.accountOrder = m.accountOrder[:len(m.accountOrder)-1]
	}, nil
}

func (m *Memory) GetAccount(_ context.Context, id billing.AccountID) (*billing.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAccountLocked(id)
}

func (m *Memory) getAccountLocked(id billing.AccountID) (*billing.Account, error) {
	acct, ok := m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", billing.ErrAccountNotFound, id)
	}
	return &acct, nil
}

func (m *Memory) ListAccounts(_ context.Context, filter billing.AccountFilter) ([]billing.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAccountsLocked(filter), nil
}

func (m *Memory) listAccountsLocked(filter billing.AccountFilter) []billing.Account {
	result := []billing.Account{}
	for _, id := range m.accountOrder {
		acct := m.accounts[id]
		if filter.Status != "" && acct.Status != filter.Status {
			continue
		}
		if filter.PatientID != "" && acct.PatientID != filter.PatientID {
			continue
		}
		result = append(result, acct)
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result
}

func (m *Memory) SetAccountStatus(_ context.Context, id billing.AccountID, status billing.AccountStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.setAccountStatusLocked(id, status, at)
	return err
}

func (m *Memory) setAccountStatusLocked(id billing.AccountID, status billing.AccountStatus, at time.Time) (func(), error) {
	prev, ok := m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", billing.ErrAccountNotFound, id)
	}
	next := prev
	next.Status = status
	if status == billing.AccountClosed {
		next.ClosedAt = &at
	}
	m.accounts[id] = next
	return func() { m.accounts[id] = prev }, nil
}

func (m *Memory) NextAccountNumber(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return m.seq, nil
}

// =============================================================================
// ITEMS
// =============================================================================

func (m *Memory) AppendItem(_ context.Context, item billing.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.appendItemLocked(item)
	return err
}

func (m *Memory) appendItemLocked(item billing.Item) (func(), error) {
	if _, ok := m.accounts[item.AccountID]; !ok {
		return nil, fmt.Errorf("%w: %s", billing.ErrAccountNotFound, item.AccountID)
	}
	if _, exists := m.itemIndex[item.ID]; exists {
		return nil, fmt.Errorf("item %s already exists", item.ID)
	}
	m.items[item.AccountID] = append(m.items[item.AccountID], item)
	m.itemIndex[item.ID] = item.AccountID
	return func() {
		list := m.items[item.AccountID]
		m.items[item.AccountID] = list[:len(list)-1]
		delete(m.itemIndex, item.ID)
	}, nil
}

func (m *Memory) GetItem(_ context.Context, id billing.ItemID) (*billing.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getItemLocked(id)
}

func (m *Memory) getItemLocked(id billing.ItemID) (*billing.Item, error) {
	accountID, ok := m.itemIndex[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", billing.ErrItemNotFound, id)
	}
	for _, item := range m.items[accountID] {
		if item.ID == id {
			return &item, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", billing.ErrItemNotFound, id)
}

func (m *Memory) SetItemStatus(_ context.Context, id billing.ItemID, status billing.ItemStatus, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.setItemStatusLocked(id, status, reason, at)
	return err
}

func (m *Memory) setItemStatusLocked(id billing.ItemID, status billing.ItemStatus, reason string, at time.Time) (func(), error) {
	accountID, ok := m.itemIndex[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", billing.ErrItemNotFound, id)
	}
	list := m.items[accountID]
	for i := range list {
		if list[i].ID != id {
			continue
		}
		prev := list[i]
		list[i].Status = status
		list[i].UpdatedAt = at
		if reason != "" {
			list[i].VoidReason = reason
		}
		return func() { m.replaceItemLocked(prev) }, nil
	}
	return nil, fmt.Errorf("%w: %s", billing.ErrItemNotFound, id)
}

func (m *Memory) replaceItemLocked(item billing.Item) {
	list := m.items[item.AccountID]
	for i := range list {
		if list[i].ID == item.ID {
			list[i] = item
			return
		}
	}
}

func (m *Memory) Items(_ context.Context, accountID billing.AccountID) ([]billing.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.itemsLocked(accountID), nil
}

func (m *Memory) itemsLocked(accountID billing.AccountID) []billing.Item {
	result := make([]billing.Item, len(m.items[accountID]))
	copy(result, m.items[accountID])
	return result
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (m *Memory) AppendPayment(_ context.Context, p billing.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.appendPaymentLocked(p)
	return err
}

func (m *Memory) appendPaymentLocked(p billing.Payment) (func(), error) {
	if _, ok := m.accounts[p.AccountID]; !ok {
		return nil, fmt.Errorf("%w: %s", billing.ErrAccountNotFound, p.AccountID)
	}
	if p.IdempotencyKey != "" {
		if _, used := m.idempotency[p.IdempotencyKey]; used {
			return nil, fmt.Errorf("%w: %s", billing.ErrDuplicateIdempotencyKey, p.IdempotencyKey)
		}
		m.idempotency[p.IdempotencyKey] = p
	}
	m.payments[p.AccountID] = append(m.payments[p.AccountID], p)
	return func() {
		list := m.payments[p.AccountID]
		m.payments[p.AccountID] = list[:len(list)-1]
		if p.IdempotencyKey != "" {
			delete(m.idempotency, p.IdempotencyKey)
		}
	}, nil
}

func (m *Memory) PaymentByIdempotencyKey(_ context.Context, key string) (*billing.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paymentByKeyLocked(key), nil
}

func (m *Memory) paymentByKeyLocked(key string) *billing.Payment {
	p, ok := m.idempotency[key]
	if !ok {
		return nil
	}
	return &p
}

func (m *Memory) Payments(_ context.Context, accountID billing.AccountID) ([]billing.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paymentsLocked(accountID), nil
}

func (m *Memory) paymentsLocked(accountID billing.AccountID) []billing.Payment {
	result := make([]billing.Payment, len(m.payments[accountID]))
	copy(result, m.payments[accountID])
	return result
}

// =============================================================================
// CLAIMS
// =============================================================================

func (m *Memory) CreateClaim(_ context.Context, c insurance.Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.createClaimLocked(c)
	return err
}

func (m *Memory) createClaimLocked(c insurance.Claim) (func(), error) {
	if _, taken := m.claimNos[c.ClaimNumber]; taken {
		return nil, fmt.Errorf("%w: %s", billing.ErrDuplicateClaimNumber, c.ClaimNumber)
	}
	m.claims[c.ID] = c
	m.claimNos[c.ClaimNumber] = c.ID
	m.claimOrder = append(m.claimOrder, c.ID)
	return func() {
		delete(m.claims, c.ID)
		delete(m.claimNos, c.ClaimNumber)
		m.claimOrder = m.claimOrder[:len(m.claimOrder)-1]
	}, nil
}

func (m *Memory) GetClaim(_ context.Context, id insurance.ClaimID) (*insurance.Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getClaimLocked(id)
}

func (m *Memory) getClaimLocked(id insurance.ClaimID) (*insurance.Claim, error) {
	c, ok := m.claims[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", billing.ErrClaimNotFound, id)
	}
	return &c, nil
}

func (m *Memory) ListClaims(_ context.Context, status insurance.ClaimStatus) ([]insurance.Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterClaimsLocked(func(c insurance.Claim) bool {
		return status == "" || c.Status == status
	}), nil
}

func (m *Memory) ClaimsByInvoice(_ context.Context, invoiceID billing.AccountID) ([]insurance.Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterClaimsLocked(func(c insurance.Claim) bool {
		return c.InvoiceID == invoiceID
	}), nil
}

func (m *Memory) filterClaimsLocked(keep func(insurance.Claim) bool) []insurance.Claim {
	result := []insurance.Claim{}
	for _, id := range m.claimOrder {
		if c := m.claims[id]; keep(c) {
			result = append(result, c)
		}
	}
	return result
}

func (m *Memory) UpdateClaim(_ context.Context, c insurance.Claim, expected insurance.ClaimStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.updateClaimLocked(c, expected)
	return err
}

func (m *Memory) updateClaimLocked(c insurance.Claim, expected insurance.ClaimStatus) (func(), error) {
	prev, ok := m.claims[c.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", billing.ErrClaimNotFound, c.ID)
	}
	if prev.Status != expected {
		return nil, fmt.Errorf("%w: claim %s is %s, expected %s",
			billing.ErrConcurrentModification, c.ID, prev.Status, expected)
	}
	m.claims[c.ID] = c
	return func() { m.claims[c.ID] = prev }, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithAccountTx runs fn holding the store-wide write lock. Writes go
// straight to the maps and are undone in reverse order if fn fails.
func (m *Memory) WithAccountTx(ctx context.Context, id billing.AccountID, fn func(billing.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[id]; !ok {
		return fmt.Errorf("%w: %s", billing.ErrAccountNotFound, id)
	}

	tx := &memoryTx{parent: m}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// memoryTx is the view handed to WithAccountTx callbacks. The parent lock
// is already held.
type memoryTx struct {
	parent *Memory
	undo   []func()
}

func (tx *memoryTx) record(undo func(), err error) error {
	if err != nil {
		return err
	}
	tx.undo = append(tx.undo, undo)
	return nil
}

func (tx *memoryTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (tx *memoryTx) CreateAccount(_ context.Context, acct billing.Account) error {
	return tx.record(tx.parent.createAccountLocked(acct))
}

func (tx *memoryTx) GetAccount(_ context.Context, id billing.AccountID) (*billing.Account, error) {
	return tx.parent.getAccountLocked(id)
}

func (tx *memoryTx) ListAccounts(_ context.Context, filter billing.AccountFilter) ([]billing.Account, error) {
	return tx.parent.listAccountsLocked(filter), nil
}

func (tx *memoryTx) SetAccountStatus(_ context.Context, id billing.AccountID, status billing.AccountStatus, at time.Time) error {
	return tx.record(tx.parent.setAccountStatusLocked(id, status, at))
}

func (tx *memoryTx) NextAccountNumber(_ context.Context) (int64, error) {
	tx.parent.seq++
	return tx.parent.seq, nil
}

func (tx *memoryTx) AppendItem(_ context.Context, item billing.Item) error {
	return tx.record(tx.parent.appendItemLocked(item))
}

func (tx *memoryTx) GetItem(_ context.Context, id billing.ItemID) (*billing.Item, error) {
	return tx.parent.getItemLocked(id)
}

func (tx *memoryTx) SetItemStatus(_ context.Context, id billing.ItemID, status billing.ItemStatus, reason string, at time.Time) error {
	return tx.record(tx.parent.setItemStatusLocked(id, status, reason, at))
}

func (tx *memoryTx) Items(_ context.Context, accountID billing.AccountID) ([]billing.Item, error) {
	return tx.parent.itemsLocked(accountID), nil
}

func (tx *memoryTx) AppendPayment(_ context.Context, p billing.Payment) error {
	return tx.record(tx.parent.appendPaymentLocked(p))
}

func (tx *memoryTx) PaymentByIdempotencyKey(_ context.Context, key string) (*billing.Payment, error) {
	return tx.parent.paymentByKeyLocked(key), nil
}

func (tx *memoryTx) Payments(_ context.Context, accountID billing.AccountID) ([]billing.Payment, error) {
	return tx.parent.paymentsLocked(accountID), nil
}

func (tx *memoryTx) CreateClaim(_ context.Context, c insurance.Claim) error {
	return tx.record(tx.parent.createClaimLocked(c))
}

func (tx *memoryTx) GetClaim(_ context.Context, id insurance.ClaimID) (*insurance.Claim, error) {
	return tx.parent.getClaimLocked(id)
}

func (tx *memoryTx) ListClaims(_ context.Context, status insurance.ClaimStatus) ([]insurance.Claim, error) {
	return tx.parent.filterClaimsLocked(func(c insurance.Claim) bool {
		return status == "" || c.Status == status
	}), nil
}

func (tx *memoryTx) ClaimsByInvoice(_ context.Context, invoiceID billing.AccountID) ([]insurance.Claim, error) {
	return tx.parent.filterClaimsLocked(func(c insurance.Claim) bool {
		return c.InvoiceID == invoiceID
	}), nil
}

func (tx *memoryTx) UpdateClaim(_ context.Context, c insurance.Claim, expected insurance.ClaimStatus) error {
	return tx.record(tx.parent.updateClaimLocked(c, expected))
}

// WithAccountTx on the view joins the running transaction.
func (tx *memoryTx) WithAccountTx(_ context.Context, id billing.AccountID, fn func(billing.Store) error) error {
	if _, ok := tx.parent.accounts[id]; !ok {
		return fmt.Errorf("%w: %s", billing.ErrAccountNotFound, id)
	}
	return fn(tx)
}

var (
	_ billing.Store        = (*Memory)(nil)
	_ billing.Store        = (*memoryTx)(nil)
	_ insurance.ClaimStore = (*Memory)(nil)
	_ insurance.ClaimStore = (*memoryTx)(nil)
)
