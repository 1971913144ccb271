package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"portfolio_builder_echo/internal/services"
)

const (
	redriveInterval  = 5 * time.Minute
	redriveBatchSize = 50
	redriveLockKey   = "worker:redrive-lock"
)

// The redrive worker re-applies dead-lettered webhook completions that the
// request path acknowledged but could not persist.
func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	db, err := services.InitDB(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	credPath := os.Getenv("FIREBASE_CREDENTIALS_PATH")
	if credPath == "" {
		credPath = "./firebase-service-account.json"
	}
	_, fsClient, err := services.InitFirebase(credPath, os.Getenv("FIREBASE_PROJECT_ID"))
	if err != nil {
		log.Fatalf("Firebase initialization failed: %v", err)
	}
	store := services.NewFirestorePortfolioStore(fsClient)

	var cache *services.RedisCache
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cache, err = services.NewRedisCache(redisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer cache.Close()
	}

	stripeClient := services.NewStripeService(
		os.Getenv("STRIPE_SECRET_KEY"),
		os.Getenv("STRIPE_WEBHOOK_SECRET"),
	)
	webhookService := services.NewWebhookService(store, stripeClient, db, cache, services.WebhookFailDeadLetter)

	log.Println("Redrive worker started")

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down worker...")
		cancel()
	}()

	ticker := time.NewTicker(redriveInterval)
	defer ticker.Stop()

	// Run once at startup, then on every tick
	redriveOnce(ctx, webhookService, cache)

	for {
		select {
		case <-ticker.C:
			redriveOnce(ctx, webhookService, cache)
		case <-ctx.Done():
			return
		}
	}
}

func redriveOnce(ctx context.Context, webhookService *services.WebhookService, cache *services.RedisCache) {
	// Only one worker instance should redrive at a time
	if cache != nil {
		acquired, err := cache.SetNX(ctx, redriveLockKey, time.Now().Unix(), redriveInterval)
		if err != nil {
			log.Printf("Redrive lock check failed: %v", err)
			return
		}
		if !acquired {
			log.Println("Another worker holds the redrive lock, skipping")
			return
		}
		defer cache.Delete(ctx, redriveLockKey)
	}

	resolved, err := webhookService.RedriveDeadLetters(ctx, redriveBatchSize)
	if err != nil {
		log.Printf("Redrive pass failed: %v", err)
		return
	}
	if resolved > 0 {
		log.Printf("Redrive pass resolved %d dead-lettered events", resolved)
	}
}
