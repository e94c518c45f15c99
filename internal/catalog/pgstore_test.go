package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	name     string
	price    string
	discount pgtype.Text
	err      error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.name
	*dest[1].(*string) = r.price
	*dest[2].(*pgtype.Text) = r.discount
	return nil
}

type fakePG struct {
	lastSQL string
	row     fakeRow
}

func (f *fakePG) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	f.lastSQL = sql
	return f.row
}

func (f *fakePG) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakePG) Ping(context.Context) error { return nil }

func TestPGStorePriceLookup(t *testing.T) {
	db := &fakePG{row: fakeRow{name: "Hoodie", price: "20.00", discount: pgtype.Text{String: "14.99", Valid: true}}}
	store := &PGStore{db: db}

	item, err := store.PriceLookup(context.Background(), KindProduct, 1)
	require.NoError(t, err)
	require.Equal(t, "Hoodie", item.Name)
	require.True(t, item.UnitPrice.Equal(decimal.RequireFromString("14.99")))
	require.True(t, strings.Contains(db.lastSQL, "FROM products"))
}

func TestPGStorePriceLookupKeepsListPrice(t *testing.T) {
	db := &fakePG{row: fakeRow{name: "Consult", price: "40.00", discount: pgtype.Text{String: "45.00", Valid: true}}}
	store := &PGStore{db: db}

	item, err := store.PriceLookup(context.Background(), KindService, 3)
	require.NoError(t, err)
	require.True(t, item.UnitPrice.Equal(decimal.NewFromInt(40)))
	require.True(t, strings.Contains(db.lastSQL, "FROM services"))
}

func TestPGStorePriceLookupNoRows(t *testing.T) {
	store := &PGStore{db: &fakePG{row: fakeRow{err: pgx.ErrNoRows}}}
	_, err := store.PriceLookup(context.Background(), KindProduct, 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPGStoreUnknownKindSkipsQuery(t *testing.T) {
	db := &fakePG{}
	store := &PGStore{db: db}
	_, err := store.PriceLookup(context.Background(), Kind("gift"), 1)
	require.ErrorIs(t, err, ErrNotFound)
	require.Empty(t, db.lastSQL)
}
