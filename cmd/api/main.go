package main

import (
	"context"
	"log"
	"os"

	"github.com/fleamarket-app/backend/internal/config"
	"github.com/fleamarket-app/backend/internal/db"
	"github.com/fleamarket-app/backend/internal/model"
	"github.com/fleamarket-app/backend/internal/server"
	"github.com/joho/godotenv"
)

var (
	gitSHA    = "dev"
	buildTime = "unknown"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	srv, err := server.New(context.Background(), nil, cfg, gitSHA, buildTime)
	if err != nil {
		log.Fatalf("server init error: %v", err)
	}

	port := cfg.Port
	if port == "" {
		port = os.Getenv("PORT")
	}
	addr := ":" + port

	errCh := make(chan error, 1)

	go func() {
		log.Printf("starting server on %s", addr)
		errCh <- srv.Start(addr)
	}()

	go func() {
		conn, err := db.Connect(cfg)
		if err != nil {
			log.Printf("db connect error: %v", err)
			return
		}
		srv.SetDB(conn)
		if err := conn.AutoMigrate(
			&model.Listing{},
			&model.Room{},
			&model.RoomParticipant{},
			&model.Message{},
			&model.Notification{},
		); err != nil {
			log.Printf("auto migrate error: %v", err)
		}
	}()

	if err := <-errCh; err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
