package ginadapter

import (
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aureo-labs/x402-go/codec"
	"github.com/aureo-labs/x402-go/core"
	"github.com/aureo-labs/x402-go/middleware"
	"github.com/aureo-labs/x402-go/token"
	"github.com/aureo-labs/x402-go/types"
)

func challengeGuard(t *testing.T) *middleware.Guard {
	t.Helper()

	// The challenge path never touches the chain, so no client is bound
	binding, err := token.NewBinding(nil, "0x2222222222222222222222222222222222222222", &token.Metadata{
		Name:     "USDC",
		Version:  "1",
		Symbol:   "USDC",
		Decimals: 6,
	})
	if err != nil {
		t.Fatalf("failed to create binding: %v", err)
	}

	verifier, err := core.NewVerifier(core.VerifierConfig{
		ChainID:    5003,
		Payee:      "0x1111111111111111111111111111111111111111",
		Token:      binding,
		VerifyOnly: true,
	})
	if err != nil {
		t.Fatalf("failed to create verifier: %v", err)
	}

	guard, err := middleware.NewGuard(middleware.GuardConfig{
		Verifier:      verifier,
		Network:       "mantle-sepolia",
		ChainID:       5003,
		Token:         "0x2222222222222222222222222222222222222222",
		Validity:      5 * time.Minute,
		TokenSymbol:   "USDC",
		TokenDecimals: 6,
	})
	if err != nil {
		t.Fatalf("failed to create guard: %v", err)
	}
	return guard
}

func TestPayment_ChallengesAndAborts(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handlerRan := false
	router := gin.New()
	router.POST("/api/x402/analyze",
		Payment(challengeGuard(t), big.NewInt(10000), "AI gold market analysis"),
		func(c *gin.Context) {
			handlerRan = true
		})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/x402/analyze", nil))

	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("status is %d, want 402", w.Code)
	}
	if handlerRan {
		t.Error("handler ran without payment")
	}

	requirement, err := codec.DecodeRequirement(w.Header().Get(types.HeaderPaymentRequired))
	if err != nil {
		t.Fatalf("failed to decode requirement header: %v", err)
	}
	if requirement.Amount != "10000" || requirement.Resource != "/api/x402/analyze" {
		t.Errorf("unexpected requirement: %+v", requirement)
	}
}

func TestPayer_Default(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if Payer(c) != "" {
		t.Error("expected empty payer without payment")
	}

	c.Set(PayerKey, "0x3333333333333333333333333333333333333333")
	if Payer(c) != "0x3333333333333333333333333333333333333333" {
		t.Error("payer not returned")
	}
}
