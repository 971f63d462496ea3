package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	storeIDs := seedStores(ctx, pool)
	seedDiscounts(ctx, pool, storeIDs)
	seedCart(ctx, pool, storeIDs)

	log.Println("Seeding completed successfully!")
}

func seedStores(ctx context.Context, pool *pgxpool.Pool) map[string]string {
	stores := []struct {
		Slug string
		Name string
	}{
		{"gadget-hub", "Gadget Hub"},
		{"urban-wear", "Urban Wear"},
		{"casa-living", "Casa Living"},
	}

	fmt.Println("Seeding Stores...")
	ids := make(map[string]string, len(stores))
	for _, s := range stores {
		var id string
		err := pool.QueryRow(ctx, `
			INSERT INTO stores (id, slug, name)
			VALUES ($1, $2, $3)
			ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name
			RETURNING id;
		`, uuid.NewString(), s.Slug, s.Name).Scan(&id)
		if err != nil {
			log.Printf("Failed to seed store %s: %v", s.Slug, err)
			continue
		}
		ids[s.Slug] = id
	}
	return ids
}

func seedDiscounts(ctx context.Context, pool *pgxpool.Pool, storeIDs map[string]string) {
	type discount struct {
		Code      string
		ValueType string
		Value     float64
		OwnerType string
		Store     string
		MinAmount *float64
	}
	minSpend := 50.0
	discounts := []discount{
		{"WELCOME10", "percentage", 10, "admin", "", nil},
		{"SAVE5", "fixed", 5, "admin", "", &minSpend},
		{"GADGET15", "percentage", 15, "seller", "gadget-hub", nil},
		{"WEAR20", "percentage", 20, "seller", "urban-wear", &minSpend},
	}

	fmt.Println("Seeding Discounts...")
	for _, d := range discounts {
		var ownerStore *string
		if d.Store != "" {
			id, ok := storeIDs[d.Store]
			if !ok {
				log.Printf("Missing store ID for %s", d.Store)
				continue
			}
			ownerStore = &id
		}
		_, err := pool.Exec(ctx, `
			INSERT INTO discounts (id, code, active, starts_at, ends_at, value_type, value, owner_type, owner_store_id, min_purchase_amount)
			VALUES ($1, $2, TRUE, NOW(), NOW() + INTERVAL '1 year', $3, $4, $5, $6, $7)
			ON CONFLICT (code) DO NOTHING;
		`, uuid.NewString(), d.Code, d.ValueType, d.Value, d.OwnerType, ownerStore, d.MinAmount)
		if err != nil {
			log.Printf("Failed to seed discount %s: %v", d.Code, err)
		}
	}
}

func seedCart(ctx context.Context, pool *pgxpool.Pool, storeIDs map[string]string) {
	storeID, ok := storeIDs["gadget-hub"]
	if !ok {
		log.Println("Skipping cart seed: store 'gadget-hub' not found")
		return
	}

	fmt.Println("Seeding Demo Cart...")
	cartID := uuid.NewString()
	_, err := pool.Exec(ctx, `
		INSERT INTO carts (id, customer_id, currency)
		VALUES ($1, 'demo-customer', 'USD');
	`, cartID)
	if err != nil {
		log.Printf("Failed to seed cart: %v", err)
		return
	}

	items := []struct {
		Listing string
		Name    string
		Price   float64
		Qty     int
	}{
		{"listing-headphones", "Wireless Headphones", 89.99, 1},
		{"listing-charger", "USB-C Charger", 19.50, 2},
		{"listing-case", "Phone Case", 12.00, 3},
	}
	for _, item := range items {
		_, err := pool.Exec(ctx, `
			INSERT INTO cart_items (id, cart_id, listing_id, store_id, name, unit_price, quantity)
			VALUES ($1, $2, $3, $4, $5, $6, $7);
		`, uuid.NewString(), cartID, item.Listing, storeID, item.Name, item.Price, item.Qty)
		if err != nil {
			log.Printf("Failed to seed cart item %s: %v", item.Name, err)
		}
	}
	log.Printf("Demo cart ready: %s", cartID)
}
