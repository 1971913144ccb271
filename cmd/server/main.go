package main

import (
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"

	"portfolio_builder_echo/internal/handlers"
	appMiddleware "portfolio_builder_echo/internal/middleware"
	"portfolio_builder_echo/internal/services"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	// Initialize Firebase (auth + Firestore portfolio store)
	credPath := os.Getenv("FIREBASE_CREDENTIALS_PATH")
	if credPath == "" {
		credPath = "./firebase-service-account.json"
	}
	projectID := os.Getenv("FIREBASE_PROJECT_ID")

	authClient, fsClient, err := services.InitFirebase(credPath, projectID)
	if err != nil {
		log.Fatalf("Firebase initialization failed: %v", err)
	}
	store := services.NewFirestorePortfolioStore(fsClient)

	// Initialize Postgres for webhook bookkeeping (optional)
	var db *gorm.DB
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		db, err = services.InitDB(databaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		if err := services.AutoMigrate(db); err != nil {
			log.Fatalf("Failed to run database migrations: %v", err)
		}
	} else {
		log.Println("Warning: DATABASE_URL not set, webhook history and dead letters disabled")
	}

	// Initialize Redis (optional)
	var cache *services.RedisCache
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cache, err = services.NewRedisCache(redisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer cache.Close()
	} else {
		log.Println("Warning: REDIS_URL not set, caching and webhook dedup disabled")
	}

	// Stripe client, injected everywhere rather than used as a global
	stripeClient := services.NewStripeService(
		os.Getenv("STRIPE_SECRET_KEY"),
		os.Getenv("STRIPE_WEBHOOK_SECRET"),
	)

	previewPrice := services.DefaultPreviewPrice
	if raw := os.Getenv("PREVIEW_PRICE_CENTS"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v > 0 {
			previewPrice = v
		} else {
			log.Printf("Warning: invalid PREVIEW_PRICE_CENTS %q, using default", raw)
		}
	}
	currency := os.Getenv("PREVIEW_PRICE_CURRENCY")

	checkoutService := services.NewCheckoutService(store, stripeClient, previewPrice, currency)
	webhookService := services.NewWebhookService(
		store, stripeClient, db, cache,
		services.ParseWebhookFailurePolicy(os.Getenv("WEBHOOK_FAILURE_POLICY")),
	)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = appMiddleware.CustomErrorHandler

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authClient)
	portfolioHandler := handlers.NewPortfolioHandler(store, cache)
	paymentHandler := handlers.NewPaymentHandler(checkoutService, webhookService, os.Getenv("APP_URL"))

	// Public routes
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/config", func(c echo.Context) error {
		// Client-side key only; the secret key never leaves the server
		return c.JSON(http.StatusOK, map[string]string{
			"stripePublishableKey": os.Getenv("STRIPE_PUBLISHABLE_KEY"),
		})
	})
	e.POST("/auth/login", authHandler.HandleLogin)
	e.POST("/auth/logout", authHandler.HandleLogout)
	e.GET("/p/:id", portfolioHandler.PublicPortfolio)

	// The single webhook endpoint; Stripe authenticates via signature
	e.POST("/webhooks/stripe", paymentHandler.StripeWebhook)

	// Protected API routes
	api := e.Group("/api")
	api.Use(appMiddleware.RequireAuth(authClient))
	api.POST("/portfolios", portfolioHandler.CreatePortfolio)
	api.GET("/portfolios", portfolioHandler.ListPortfolios)
	api.GET("/portfolios/:id", portfolioHandler.GetPortfolio)
	api.POST("/portfolios/:id/publish", portfolioHandler.PublishPortfolio)
	api.POST("/checkout-sessions", paymentHandler.CreateCheckoutSession)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)
	e.Logger.Fatal(e.Start(":" + port))
}
