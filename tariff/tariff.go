/*
Package tariff provides the hospital price list.

PURPOSE:
  Converts a JSON price list into chargeable services. Finance maintains
  the list as a file; the API looks services up by code so a clerk can
  charge "CONS-GP" without typing a description or a price.

JSON SCHEMA:
  {
    "name": "Outpatient 2026",
    "currency": "KES",
    "services": [
      {"code": "CONS-GP", "type": "consultation", "description": "GP consultation", "price": "1500.00"},
      {"code": "LAB-FBC", "type": "lab_test", "description": "Full blood count", "price": "1500"}
    ]
  }

  Prices are decimal strings in major units and must fit the ledger
  currency's exponent. Codes are case-insensitive and unique.

USAGE:
  t, err := tariff.Load("tariff.json", billing.KES)   // or tariff.Default()
  req, err := t.ItemRequest("CONS-GP", 1, 0)
  ledger.AddItem(ctx, accountID, req)

SEE ALSO:
  - billing/item.go: ItemRequest validation
  - billing/money.go: Currency.ParseField
*/
package tariff

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/warp/billing-ledger/billing"
)

//go:embed default.json
var defaultJSON []byte

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// TariffJSON is the JSON representation of a price list.
type TariffJSON struct {
	Name     string        `json:"name"`
	Currency string        `json:"currency,omitempty"` // defaults to KES
	Services []ServiceJSON `json:"services"`
}

// ServiceJSON is one priced service.
type ServiceJSON struct {
	Code        string `json:"code"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Price       string `json:"price"`
}

// =============================================================================
// TARIFF
// =============================================================================

// Service is a chargeable service with its unit price in minor units.
type Service struct {
	Code        string
	Type        billing.ItemType
	Description string
	Price       billing.Money
}

// Tariff is an immutable, validated price list.
type Tariff struct {
	Name     string
	Currency billing.Currency
	services map[string]Service
}

// Parse validates a JSON price list priced in currency.
func Parse(data []byte, currency billing.Currency) (*Tariff, error) {
	var tj TariffJSON
	if err := json.Unmarshal(data, &tj); err != nil {
		return nil, fmt.Errorf("failed to parse tariff JSON: %w", err)
	}
	return FromJSON(tj, currency)
}

// Load reads and parses a price list file.
func Load(path string, currency billing.Currency) (*Tariff, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tariff %s: %w", path, err)
	}
	return Parse(data, currency)
}

// Default returns the built-in price list, priced in KES.
func Default() *Tariff {
	t, err := Parse(defaultJSON, billing.KES)
	if err != nil {
		panic(fmt.Sprintf("tariff: built-in price list is invalid: %v", err))
	}
	return t
}

// FromJSON converts the JSON form into a Tariff. A list that names a
// currency must name the ledger's.
func FromJSON(tj TariffJSON, currency billing.Currency) (*Tariff, error) {
	if code := strings.TrimSpace(tj.Currency); code != "" && !strings.EqualFold(code, currency.Code) {
		return nil, fmt.Errorf("tariff %q: priced in %s, ledger uses %s", tj.Name, code, currency.Code)
	}
	if len(tj.Services) == 0 {
		return nil, fmt.Errorf("tariff %q: no services", tj.Name)
	}

	t := &Tariff{
		Name:     tj.Name,
		Currency: currency,
		services: make(map[string]Service, len(tj.Services)),
	}
	for i, sj := range tj.Services {
		svc, err := parseService(currency, sj)
		if err != nil {
			return nil, fmt.Errorf("tariff %q service %d: %w", tj.Name, i, err)
		}
		key := normalize(svc.Code)
		if _, dup := t.services[key]; dup {
			return nil, fmt.Errorf("tariff %q: duplicate code %s", tj.Name, svc.Code)
		}
		t.services[key] = svc
	}
	return t, nil
}

func parseService(currency billing.Currency, sj ServiceJSON) (Service, error) {
	code := strings.TrimSpace(sj.Code)
	if code == "" {
		return Service{}, &billing.ValidationError{Field: "code", Message: "is required"}
	}
	itemType := billing.ItemType(strings.TrimSpace(sj.Type))
	if !itemType.Valid() {
		return Service{}, &billing.ValidationError{Field: "type", Message: fmt.Sprintf("unknown item type %q", sj.Type)}
	}
	description := strings.TrimSpace(sj.Description)
	if description == "" {
		return Service{}, &billing.ValidationError{Field: "description", Message: "is required"}
	}
	price, err := currency.ParseField("price", sj.Price)
	if err != nil {
		return Service{}, err
	}
	if price.IsNegative() {
		return Service{}, &billing.ValidationError{Field: "price", Message: "must not be negative"}
	}
	return Service{Code: code, Type: itemType, Description: description, Price: price}, nil
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Lookup returns the service with the given code.
func (t *Tariff) Lookup(code string) (Service, bool) {
	svc, ok := t.services[normalize(code)]
	return svc, ok
}

// Services returns every service ordered by code.
func (t *Tariff) Services() []Service {
	out := make([]Service, 0, len(t.services))
	for _, svc := range t.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// ItemRequest builds a charge for quantity units of the service.
func (t *Tariff) ItemRequest(code string, quantity int64, discount billing.Money) (billing.ItemRequest, error) {
	svc, ok := t.Lookup(code)
	if !ok {
		return billing.ItemRequest{}, &billing.ValidationError{Field: "tariff_code", Message: fmt.Sprintf("unknown code %q", code)}
	}
	return billing.ItemRequest{
		Type:        svc.Type,
		Code:        svc.Code,
		Description: svc.Description,
		Quantity:    quantity,
		UnitPrice:   svc.Price,
		Discount:    discount,
	}, nil
}
