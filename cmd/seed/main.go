package main

import (
	"context"
	"log"
	"time"

	"github.com/fleamarket-app/backend/internal/config"
	"github.com/fleamarket-app/backend/internal/db"
	"github.com/fleamarket-app/backend/internal/model"
	"github.com/fleamarket-app/backend/internal/repository"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to parse env: %v", err)
	}

	conn, err := db.Connect(cfg)
	if err != nil {
		log.Fatalf("failed to connect db: %v", err)
	}
	if err := conn.AutoMigrate(&model.Listing{}); err != nil {
		log.Fatalf("auto migrate failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo := repository.NewListingRepository(conn)
	existing, total, err := repo.List(ctx, 1, 0)
	if err != nil {
		log.Fatalf("failed to check listings: %v", err)
	}
	if total > 0 || len(existing) > 0 {
		log.Printf("listings already present (%d); nothing to do", total)
		return
	}

	samples := []model.Listing{
		{SellerUID: "seed-user-1", Title: "Beige knit cardigan", Description: "Lightly worn, no stains. Size M.", Price: 18000, Category: "fashion"},
		{SellerUID: "seed-user-1", Title: "Mechanical keyboard", Description: "Brown switches, keycaps included.", Price: 45000, Category: "electronics"},
		{SellerUID: "seed-user-2", Title: "Camping lantern", Description: "Battery powered, used twice.", Price: 12000, Category: "outdoor"},
		{SellerUID: "seed-user-2", Title: "Espresso maker", Description: "Moka pot for 3 cups.", Price: 9000, Category: "kitchen"},
	}
	for i := range samples {
		if err := repo.Create(ctx, &samples[i]); err != nil {
			log.Fatalf("failed to seed %q: %v", samples[i].Title, err)
		}
	}
	log.Printf("seeded %d listings", len(samples))
}
