package catalog_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/noah-isme/backend-shop/internal/catalog"
)

const testSchema = `
CREATE TABLE products (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	bio TEXT,
	price REAL NOT NULL,
	discount_price REAL,
	image_path TEXT,
	limited_edition INTEGER DEFAULT 0,
	sold_out INTEGER DEFAULT 0
);
CREATE TABLE services (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	bio TEXT,
	price REAL NOT NULL,
	discount_price REAL,
	image_path TEXT
);
INSERT INTO products (id, name, price, discount_price, limited_edition) VALUES
	(1, 'Hoodie', 20.00, 15.00, 1),
	(2, 'Cap', 12.50, NULL, 0),
	(3, 'Poster', 8.00, 9.00, 0),
	(4, 'Sticker', 3.00, 3.00, 0);
INSERT INTO services (id, name, price) VALUES (2, 'Gift wrap', 7.50);
`

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(testSchema)
	require.NoError(t, err)
	return db
}

func TestSQLStorePriceLookup(t *testing.T) {
	store := catalog.NewSQLStore(openSQLite(t))
	ctx := context.Background()

	cases := []struct {
		name  string
		kind  catalog.Kind
		id    int64
		want  string
		label string
	}{
		{"discount lower than price", catalog.KindProduct, 1, "15", "Hoodie"},
		{"no discount", catalog.KindProduct, 2, "12.5", "Cap"},
		{"discount higher than price ignored", catalog.KindProduct, 3, "8", "Poster"},
		{"discount equal to price", catalog.KindProduct, 4, "3", "Sticker"},
		{"service table", catalog.KindService, 2, "7.5", "Gift wrap"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			item, err := store.PriceLookup(ctx, tc.kind, tc.id)
			require.NoError(t, err)
			require.Equal(t, tc.label, item.Name)
			require.True(t, item.UnitPrice.Equal(decimal.RequireFromString(tc.want)), "got %s", item.UnitPrice)
		})
	}
}

func TestSQLStorePriceLookupNotFound(t *testing.T) {
	store := catalog.NewSQLStore(openSQLite(t))
	ctx := context.Background()

	_, err := store.PriceLookup(ctx, catalog.KindProduct, 999)
	require.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = store.PriceLookup(ctx, catalog.KindService, 1)
	require.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = store.PriceLookup(ctx, catalog.Kind("bundle"), 1)
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestSQLStoreList(t *testing.T) {
	store := catalog.NewSQLStore(openSQLite(t))
	items, err := store.List(context.Background(), catalog.KindProduct)
	require.NoError(t, err)
	require.Len(t, items, 4)

	require.Equal(t, "Hoodie", items[0].Name)
	require.True(t, items[0].LimitedEdition)
	require.NotNil(t, items[0].DiscountPrice)
	require.Equal(t, "15.00", items[0].EffectivePrice.String())
	require.Nil(t, items[1].DiscountPrice)
	require.Equal(t, "8.00", items[2].EffectivePrice.String())
}

func TestSQLStoreQueryErrorIsNotNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery(regexp.QuoteMeta("SELECT name, price, discount_price FROM products WHERE id = ?")).
		WithArgs(int64(5)).
		WillReturnError(errors.New("disk I/O error"))

	_, err = catalog.NewSQLStore(db).PriceLookup(context.Background(), catalog.KindProduct, 5)
	require.Error(t, err)
	require.NotErrorIs(t, err, catalog.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreNoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery(regexp.QuoteMeta("FROM services WHERE id = ?")).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"name", "price", "discount_price"}))

	_, err = catalog.NewSQLStore(db).PriceLookup(context.Background(), catalog.KindService, 9)
	require.ErrorIs(t, err, catalog.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
