package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

type catalogRow struct {
	Name      string
	Bio       string
	Price     string
	Discount  string
	Image     string
	Limited   bool
	SoldOut   bool
	IsService bool
}

var catalogRows = []catalogRow{
	{Name: "Studio Hoodie", Bio: "Heavyweight cotton, embroidered logo", Price: "59.90", Discount: "49.90", Image: "uploads/hoodie.webp"},
	{Name: "Tour Poster A2", Bio: "Risograph print, signed", Price: "24.00", Image: "uploads/poster.webp", Limited: true},
	{Name: "Sticker Pack", Bio: "Ten vinyl stickers", Price: "6.50", Image: "uploads/stickers.webp"},
	{Name: "Enamel Pin", Bio: "Hard enamel, gold plating", Price: "9.99", Image: "uploads/pin.webp", SoldOut: true},
	{Name: "Logo Design", Bio: "Three concepts and two revision rounds", Price: "350.00", Discount: "299.00", IsService: true},
	{Name: "Mixing Session", Bio: "One hour remote mixing session", Price: "80.00", IsService: true},
}

// dialect rewrites $n placeholders for drivers that expect ?.
type dialect struct {
	driver string
}

func (d dialect) q(query string) string {
	if d.driver == "postgres" {
		return query
	}
	for i := 9; i >= 1; i-- {
		query = strings.ReplaceAll(query, fmt.Sprintf("$%d", i), "?")
	}
	return query
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	driver, dsn := "postgres", dbURL
	if strings.HasPrefix(dbURL, "sqlite://") || strings.HasPrefix(dbURL, "file:") {
		driver, dsn = "sqlite", strings.TrimPrefix(dbURL, "sqlite://")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	d := dialect{driver: driver}
	seedCatalog(db, d)
	seedAdmin(db, d)

	log.Println("Seeding completed successfully!")
}

func seedCatalog(db *sql.DB, d dialect) {
	fmt.Println("Seeding Catalog...")
	for _, row := range catalogRows {
		table := "products"
		if row.IsService {
			table = "services"
		}

		var exists int
		err := db.QueryRow(d.q("SELECT COUNT(*) FROM "+table+" WHERE name = $1"), row.Name).Scan(&exists)
		if err != nil {
			log.Printf("Failed to check %s %q: %v", table, row.Name, err)
			continue
		}
		if exists > 0 {
			continue
		}

		var discount any
		if row.Discount != "" {
			discount = row.Discount
		}
		var image any
		if row.Image != "" {
			image = row.Image
		}

		if row.IsService {
			_, err = db.Exec(d.q(`
				INSERT INTO services (name, bio, price, discount_price, image_path)
				VALUES ($1, $2, $3, $4, $5)
			`), row.Name, row.Bio, row.Price, discount, image)
		} else {
			_, err = db.Exec(d.q(`
				INSERT INTO products (name, bio, price, discount_price, image_path, limited_edition, sold_out)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`), row.Name, row.Bio, row.Price, discount, image, row.Limited, row.SoldOut)
		}
		if err != nil {
			log.Printf("Failed to seed %s %q: %v", table, row.Name, err)
		}
	}
}

func seedAdmin(db *sql.DB, d dialect) {
	email := strings.ToLower(strings.TrimSpace(os.Getenv("SEED_ADMIN_EMAIL")))
	if email == "" {
		email = "admin@shop.local"
	}
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if password == "" {
		password = "change-me-now"
		log.Println("SEED_ADMIN_PASSWORD not set, using the default development password")
	}

	fmt.Println("Seeding Admin...")
	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		log.Fatalf("Failed to hash admin password: %v", err)
	}
	username, _, _ := strings.Cut(email, "@")

	_, err = db.Exec(d.q(`
		INSERT INTO users (id, email, username, password_hash, is_admin, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO NOTHING
	`), uuid.NewString(), email, username, hash, true, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		log.Printf("Failed to seed admin %s: %v", email, err)
	}
}
