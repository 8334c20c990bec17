// Package catalog holds the static table of products that can be sold through checkout.
package catalog

import (
	"errors"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/psicolfis/checkout-api/internal/domain"
)

// ErrProductNotFound is returned when a key does not match any catalog entry.
var ErrProductNotFound = errors.New("catalog: product not found")

// DefaultCurrency is the ISO 4217 code (lower case) used for every catalog entry.
const DefaultCurrency = "eur"

var defaultProducts = []domain.Product{
	{Key: "iris", DisplayName: "PSICOLFIS – IRIS", UnitPrice: decimal.RequireFromString("50.00"), Currency: DefaultCurrency},
	{Key: "alex", DisplayName: "PSICOLFIS – ALEX", UnitPrice: decimal.RequireFromString("50.00"), Currency: DefaultCurrency},
	{Key: "umbral", DisplayName: "PSICOLFIS – UMBRAL", UnitPrice: decimal.RequireFromString("50.00"), Currency: DefaultCurrency},
}

// Catalog is an immutable product lookup table safe for concurrent use.
type Catalog struct {
	products map[string]domain.Product
}

// Option customises catalog construction.
type Option func(map[string]domain.Product)

// WithProductRefs attaches processor-side product references keyed by product key.
// Unknown keys are ignored.
func WithProductRefs(refs map[string]string) Option {
	return func(products map[string]domain.Product) {
		for key, ref := range refs {
			normalized := normalizeKey(key)
			product, ok := products[normalized]
			if !ok {
				continue
			}
			product.ProcessorProductRef = strings.TrimSpace(ref)
			products[normalized] = product
		}
	}
}

// WithProducts replaces the built-in product table.
func WithProducts(items ...domain.Product) Option {
	return func(products map[string]domain.Product) {
		for key := range products {
			delete(products, key)
		}
		for _, item := range items {
			item.Key = normalizeKey(item.Key)
			if item.Key == "" {
				continue
			}
			item.Currency = strings.ToLower(strings.TrimSpace(item.Currency))
			products[item.Key] = item
		}
	}
}

// New constructs the catalog with the built-in products.
func New(opts ...Option) *Catalog {
	products := make(map[string]domain.Product, len(defaultProducts))
	for _, product := range defaultProducts {
		products[product.Key] = product
	}
	for _, opt := range opts {
		if opt != nil {
			opt(products)
		}
	}
	return &Catalog{products: products}
}

// Lookup resolves a product key case-insensitively.
func (c *Catalog) Lookup(key string) (domain.Product, error) {
	if c == nil {
		return domain.Product{}, ErrProductNotFound
	}
	product, ok := c.products[normalizeKey(key)]
	if !ok {
		return domain.Product{}, ErrProductNotFound
	}
	return product, nil
}

// Products returns every entry ordered by key.
func (c *Catalog) Products() []domain.Product {
	if c == nil {
		return nil
	}
	items := make([]domain.Product, 0, len(c.products))
	for _, product := range c.products {
		items = append(items, product)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	return items
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
