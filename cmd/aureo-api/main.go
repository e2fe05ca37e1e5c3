// Command aureo-api serves the premium AI-analysis endpoints behind x402
// payment gating, plus the operator-facing agent settings endpoints.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"

	ginadapter "github.com/aureo-labs/x402-go/adapter/gin"
	"github.com/aureo-labs/x402-go/auth"
	"github.com/aureo-labs/x402-go/clients"
	"github.com/aureo-labs/x402-go/config"
	"github.com/aureo-labs/x402-go/core"
	"github.com/aureo-labs/x402-go/middleware"
	"github.com/aureo-labs/x402-go/store"
	"github.com/aureo-labs/x402-go/token"
	"github.com/aureo-labs/x402-go/utils"
)

const defaultPort = "8402"

func main() {
	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Dial the Ethereum RPC client
	ethClient, err := clients.NewEthClient(cfg.RPCURL)
	if err != nil {
		logger.Error("failed to dial RPC client", "error", err)
		os.Exit(1)
	}

	// Bind the settlement token contract, preferring configured metadata
	binding, err := token.NewBinding(ethClient, cfg.Token, &token.Metadata{
		Name:     cfg.TokenName,
		Version:  cfg.TokenVersion,
		Symbol:   cfg.TokenSymbol,
		Decimals: cfg.TokenDecimals,
	})
	if err != nil {
		logger.Error("failed to bind token contract", "error", err)
		os.Exit(1)
	}

	// Create the settlement submitter unless running verify-only
	var settler *core.Settler
	if !cfg.VerifyOnly {
		settler, err = core.NewSettler(core.SettlerConfig{
			ChainID:    cfg.ChainID,
			PrivateKey: cfg.SettlementKey,
			Token:      binding,
			Logger:     logger,
		})
		if err != nil {
			logger.Error("failed to create settler", "error", err)
			os.Exit(1)
		}
	}

	verifier, err := core.NewVerifier(core.VerifierConfig{
		ChainID:    cfg.ChainID,
		Payee:      cfg.Payee,
		Token:      binding,
		Settler:    settler,
		VerifyOnly: cfg.VerifyOnly,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("failed to create verifier", "error", err)
		os.Exit(1)
	}

	guard, err := middleware.NewGuardFromConfig(cfg, verifier)
	if err != nil {
		logger.Error("failed to create route guard", "error", err)
		os.Exit(1)
	}

	// Open the agent store
	db, err := sql.Open("sqlite3", getenvDefault("AUREO_DB_PATH", "file:aureo.db?_busy_timeout=5000"))
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	agentStore := store.NewSQLStore(db)
	if err := agentStore.EnsureSchema(context.Background()); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	apiKey := os.Getenv("AUREO_API_KEY")

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Protected premium endpoints. Prices come from the configured pricing
	// map with the original defaults as fallback.
	analyzePrice := priceOr(cfg, "/api/x402/analyze", 10000)
	smartBuyPrice := priceOr(cfg, "/api/x402/smart-buy", 50000)

	r.POST("/api/x402/analyze",
		ginadapter.Payment(guard, analyzePrice, "AI gold market analysis"),
		handleAnalyze)

	r.POST("/api/x402/smart-buy",
		ginadapter.Payment(guard, smartBuyPrice, "AI-timed gold purchase"),
		handleSmartBuy)

	// Operator endpoints for the trading agent
	agent := r.Group("/api/agent", apiKeyMiddleware(apiKey))
	agent.GET("/settings", handleGetSettings(agentStore))
	agent.POST("/settings", handleSaveSettings(agentStore))
	agent.GET("/status", handleStatus(agentStore))

	port := getenvDefault("PORT", defaultPort)
	logger.Info("starting server",
		"port", port,
		"network", cfg.Network,
		"payee", cfg.Payee,
		"verifyOnly", cfg.VerifyOnly)

	if err := r.Run(":" + port); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// apiKeyMiddleware authenticates operator requests.
func apiKeyMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := auth.Authenticate(c.Request, apiKey); err != nil {
			var se utils.StatusError
			status := http.StatusInternalServerError
			if errors.As(err, &se) {
				status = se.Status()
			}
			c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

// handleAnalyze returns the market analysis for the paying caller. The
// analysis logic itself lives in the upstream AI service; this handler is the
// protocol-side stub that receives the authenticated payer.
func handleAnalyze(c *gin.Context) {
	payer := ginadapter.Payer(c)
	c.JSON(http.StatusOK, gin.H{
		"payer":          payer,
		"recommendation": "WAIT",
		"confidence":     0.62,
		"reasoning":      "gold/USDC spread above 30-day mean; better entry expected",
		"generatedAt":    time.Now().UTC(),
	})
}

// handleSmartBuy executes an AI-timed purchase for the paying caller.
func handleSmartBuy(c *gin.Context) {
	payer := ginadapter.Payer(c)
	c.JSON(http.StatusOK, gin.H{
		"payer":    payer,
		"status":   "queued",
		"queuedAt": time.Now().UTC(),
	})
}

func handleGetSettings(s store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		wallet := c.Query("wallet")
		if wallet == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "wallet query parameter is required"})
			return
		}
		settings, err := s.Settings(c.Request.Context(), wallet)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no settings for wallet"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, settings)
	}
}

func handleSaveSettings(s store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var settings store.AgentSettings
		if err := c.ShouldBindJSON(&settings); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if settings.WalletAddress == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "walletAddress is required"})
			return
		}
		if err := s.SaveSettings(c.Request.Context(), settings); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"saved": true})
	}
}

func handleStatus(s store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		stats, err := s.Stats(ctx, c.Query("wallet"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		lastRun, err := s.LastRun(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"stats":   stats,
			"lastRun": lastRun,
		})
	}
}

func priceOr(cfg *config.Config, resource string, fallback int64) *big.Int {
	if amount, ok := cfg.PriceFor(resource); ok {
		return amount
	}
	return big.NewInt(fallback)
}

func getenvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
