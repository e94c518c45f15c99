package catalog

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-shop/internal/money"
)

// ErrNotFound is returned when no catalog row matches the requested kind and id.
var ErrNotFound = errors.New("catalog: item not found")

// Kind identifies which catalog table an item lives in.
type Kind string

const (
	KindProduct Kind = "product"
	KindService Kind = "service"
)

// tables maps a kind onto its backing table. Unknown kinds have no entry.
var tables = map[Kind]string{
	KindProduct: "products",
	KindService: "services",
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := tables[k]
	return ok
}

// PricedItem is the name and effective unit price of one catalog row.
type PricedItem struct {
	Name      string
	UnitPrice decimal.Decimal
}

// Reader resolves the authoritative price of a catalog item.
type Reader interface {
	PriceLookup(ctx context.Context, kind Kind, id int64) (PricedItem, error)
}

// Item is the public listing representation of a product or service.
type Item struct {
	ID             int64         `json:"id"`
	Kind           Kind          `json:"kind"`
	Name           string        `json:"name"`
	Bio            *string       `json:"bio,omitempty"`
	Price          money.Amount  `json:"price"`
	DiscountPrice  *money.Amount `json:"discount_price,omitempty"`
	EffectivePrice money.Amount  `json:"effective_price"`
	ImagePath      *string       `json:"image_path,omitempty"`
	LimitedEdition bool          `json:"limited_edition"`
	SoldOut        bool          `json:"sold_out"`
}

// Store is a catalog backend able to price single items and list a kind.
type Store interface {
	Reader
	List(ctx context.Context, kind Kind) ([]Item, error)
	Ping(ctx context.Context) error
}

// EffectivePrice returns the discount price when it is present and strictly
// lower than the list price, otherwise the list price.
func EffectivePrice(price decimal.Decimal, discount decimal.NullDecimal) decimal.Decimal {
	if discount.Valid && discount.Decimal.LessThan(price) {
		return discount.Decimal
	}
	return price
}

func newItem(kind Kind, id int64, name string, bio, image *string, price decimal.Decimal, discount decimal.NullDecimal, limited, soldOut bool) Item {
	item := Item{
		ID:             id,
		Kind:           kind,
		Name:           name,
		Bio:            bio,
		Price:          money.New(price),
		EffectivePrice: money.New(EffectivePrice(price, discount)),
		ImagePath:      image,
		LimitedEdition: limited,
		SoldOut:        soldOut,
	}
	if discount.Valid {
		d := money.New(discount.Decimal)
		item.DiscountPrice = &d
	}
	return item
}
