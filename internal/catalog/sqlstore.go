package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// SQLStore reads the catalog through database/sql. It is used with the
// embedded SQLite driver and works against the storefront's shop.db layout.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore constructs a SQLStore over db.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// PriceLookup implements Reader.
func (s *SQLStore) PriceLookup(ctx context.Context, kind Kind, id int64) (PricedItem, error) {
	table, ok := tables[kind]
	if !ok {
		return PricedItem{}, ErrNotFound
	}
	query := fmt.Sprintf("SELECT name, price, discount_price FROM %s WHERE id = ?", table)

	var (
		name     string
		price    decimal.Decimal
		discount decimal.NullDecimal
	)
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&name, &price, &discount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PricedItem{}, ErrNotFound
		}
		return PricedItem{}, fmt.Errorf("catalog: lookup %s %d: %w", kind, id, err)
	}
	return PricedItem{Name: name, UnitPrice: EffectivePrice(price, discount)}, nil
}

var sqlListQueries = map[Kind]string{
	KindProduct: `SELECT id, name, bio, price, discount_price, image_path, COALESCE(limited_edition, 0), COALESCE(sold_out, 0)
FROM products ORDER BY id`,
	KindService: `SELECT id, name, bio, price, discount_price, image_path, 0, 0
FROM services ORDER BY id`,
}

// List returns every row of kind ordered by id.
func (s *SQLStore) List(ctx context.Context, kind Kind) ([]Item, error) {
	query, ok := sqlListQueries[kind]
	if !ok {
		return nil, ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog: list %s: %w", kind, err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]Item, 0)
	for rows.Next() {
		var (
			id       int64
			name     string
			bio      sql.NullString
			price    decimal.Decimal
			discount decimal.NullDecimal
			image    sql.NullString
			limited  bool
			soldOut  bool
		)
		if err := rows.Scan(&id, &name, &bio, &price, &discount, &image, &limited, &soldOut); err != nil {
			return nil, err
		}
		items = append(items, newItem(kind, id, name, nullString(bio), nullString(image), price, discount, limited, soldOut))
	}
	return items, rows.Err()
}

// Ping checks connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
