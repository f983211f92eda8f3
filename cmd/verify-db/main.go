// verify-db checks connectivity and reports row counts for the ingestion
// tables. Run it after migrations or before a large backfill.
package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"

	"cogs-sync/internal/db"
)

var tables = []string{
	"transactions",
	"transaction_items",
	"product_map",
	"inventory_batches",
	"transaction_cost_ledger",
}

func main() {
	_ = godotenv.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx)
	if err != nil {
		log.Fatalf("[CONNECT] %v", err)
	}
	defer pool.Close()
	log.Println("[CONNECT] success")

	for _, table := range tables {
		var count int64
		if err := pool.QueryRow(ctx, "SELECT count(*) FROM "+table).Scan(&count); err != nil {
			log.Fatalf("[CHECK] %s: %v", table, err)
		}
		log.Printf("[CHECK] %-24s %d rows", table, count)
	}
	log.Println("[DONE] schema looks healthy")
}
