// devserver starts a MathPrepa API server on an in-memory database seeded
// with the demo catalog, and prints a token for a demo user.
// Usage: go run ./cmd/devserver
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/seantiz/mathprepa/internal/api"
	"github.com/seantiz/mathprepa/internal/identity"
	"github.com/seantiz/mathprepa/internal/model"
	"github.com/seantiz/mathprepa/internal/seed"
	"github.com/seantiz/mathprepa/internal/store"
)

const (
	devSecret = "devserver-secret"
	devUser   = "demo-student"
)

func main() {
	addr := ":8080"
	if v := os.Getenv("MATHPREPA_LISTEN_ADDR"); v != "" {
		addr = v
	}

	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := context.Background()

	catalog, err := seed.Demo()
	if err != nil {
		log.Fatalf("parse demo catalog: %v", err)
	}
	if _, err := seed.NewImporter(db, logger).Import(ctx, catalog); err != nil {
		log.Fatalf("import demo catalog: %v", err)
	}

	welcome := &model.Post{
		Title:   "Bienvenue sur le forum",
		Content: "Posez ici vos questions sur les exercices.",
		UserID:  "moderateur",
	}
	if err := db.CreatePost(ctx, welcome); err != nil {
		log.Fatalf("create welcome post: %v", err)
	}

	auth := identity.NewAuthenticator(devSecret, db, logger)
	token, err := auth.Issue(devUser, 24*time.Hour)
	if err != nil {
		log.Fatalf("issue dev token: %v", err)
	}
	fmt.Printf("dev token for %s:\n%s\n", devUser, token)

	srv := api.NewServer(addr, db, auth, api.Options{
		SessionLifetime: 24 * time.Hour,
		ViewIdleTimeout: 30 * time.Minute,
	}, logger)

	logger.Info("devserver: starting", "addr", addr)
	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
