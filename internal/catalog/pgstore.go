package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// pgQuerier is the subset of pgxpool.Pool used by PGStore.
type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
}

// PGStore reads the catalog from PostgreSQL. Prices are selected as text so
// NUMERIC values reach decimal.Decimal without a float round trip.
type PGStore struct {
	db pgQuerier
}

// NewPGStore constructs a PGStore over pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{db: pool}
}

// PriceLookup implements Reader.
func (s *PGStore) PriceLookup(ctx context.Context, kind Kind, id int64) (PricedItem, error) {
	table, ok := tables[kind]
	if !ok {
		return PricedItem{}, ErrNotFound
	}
	query := fmt.Sprintf("SELECT name, price::text, discount_price::text FROM %s WHERE id = $1", table)

	var (
		name     string
		price    string
		discount pgtype.Text
	)
	if err := s.db.QueryRow(ctx, query, id).Scan(&name, &price, &discount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PricedItem{}, ErrNotFound
		}
		return PricedItem{}, fmt.Errorf("catalog: lookup %s %d: %w", kind, id, err)
	}
	list, disc, err := parsePrices(price, discount)
	if err != nil {
		return PricedItem{}, fmt.Errorf("catalog: %s %d: %w", kind, id, err)
	}
	return PricedItem{Name: name, UnitPrice: EffectivePrice(list, disc)}, nil
}

// List returns every row of kind ordered by id.
func (s *PGStore) List(ctx context.Context, kind Kind) ([]Item, error) {
	query, ok := listQueries[kind]
	if !ok {
		return nil, ErrNotFound
	}
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog: list %s: %w", kind, err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var (
			id       int64
			name     string
			bio      pgtype.Text
			price    string
			discount pgtype.Text
			image    pgtype.Text
			limited  bool
			soldOut  bool
		)
		if err := rows.Scan(&id, &name, &bio, &price, &discount, &image, &limited, &soldOut); err != nil {
			return nil, err
		}
		list, disc, err := parsePrices(price, discount)
		if err != nil {
			return nil, fmt.Errorf("catalog: %s %d: %w", kind, id, err)
		}
		items = append(items, newItem(kind, id, name, textPtr(bio), textPtr(image), list, disc, limited, soldOut))
	}
	return items, rows.Err()
}

// Ping checks connectivity.
func (s *PGStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

var listQueries = map[Kind]string{
	KindProduct: `SELECT id, name, bio, price::text, discount_price::text, image_path, limited_edition, sold_out
FROM products ORDER BY id`,
	KindService: `SELECT id, name, bio, price::text, discount_price::text, image_path, FALSE, FALSE
FROM services ORDER BY id`,
}

func parsePrices(price string, discount pgtype.Text) (decimal.Decimal, decimal.NullDecimal, error) {
	list, err := decimal.NewFromString(price)
	if err != nil {
		return decimal.Decimal{}, decimal.NullDecimal{}, fmt.Errorf("parse price %q: %w", price, err)
	}
	var disc decimal.NullDecimal
	if discount.Valid {
		d, err := decimal.NewFromString(discount.String)
		if err != nil {
			return decimal.Decimal{}, decimal.NullDecimal{}, fmt.Errorf("parse discount price %q: %w", discount.String, err)
		}
		disc = decimal.NullDecimal{Decimal: d, Valid: true}
	}
	return list, disc, nil
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	v := t.String
	return &v
}
