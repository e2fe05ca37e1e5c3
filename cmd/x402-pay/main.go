// Command x402-pay performs a single paid HTTP request, prompting for
// confirmation before signing the payment authorization.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/aureo-labs/x402-go/client"
	"github.com/aureo-labs/x402-go/signer"
	"github.com/aureo-labs/x402-go/token"
	"github.com/aureo-labs/x402-go/types"
)

var (
	flagURL      string
	flagMethod   string
	flagData     string
	flagKey      string
	flagYes      bool
	flagSymbol   string
	flagDecimals uint8
	flagVerbose  bool
)

func main() {
	godotenv.Load()

	rootCmd := &cobra.Command{
		Use:          "x402-pay",
		Short:        "Perform an HTTP request, paying any x402 challenge it returns",
		SilenceUsage: true,
		RunE:         run,
	}

	rootCmd.Flags().StringVar(&flagURL, "url", "", "target URL (required)")
	rootCmd.Flags().StringVarP(&flagMethod, "method", "X", "POST", "HTTP method")
	rootCmd.Flags().StringVarP(&flagData, "data", "d", "", "JSON request body")
	rootCmd.Flags().StringVar(&flagKey, "key", os.Getenv("X402_PRIVATE_KEY"), "payer private key hex (defaults to X402_PRIVATE_KEY)")
	rootCmd.Flags().BoolVarP(&flagYes, "yes", "y", false, "pay without prompting")
	rootCmd.Flags().StringVar(&flagSymbol, "symbol", "USDC", "token symbol used when displaying prices")
	rootCmd.Flags().Uint8Var(&flagDecimals, "decimals", 6, "token decimals used when displaying prices")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.MarkFlagRequired("url")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if flagKey == "" {
		return errors.New("no payer key: pass --key or set X402_PRIVATE_KEY")
	}

	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	payerSigner, err := signer.NewPrivateKeySigner(flagKey)
	if err != nil {
		return fmt.Errorf("invalid payer key: %w", err)
	}

	opts := []client.Option{client.WithLogger(logger)}
	if !flagYes {
		opts = append(opts, client.WithConfirmFunc(promptConfirm))
	}
	payer := client.New(payerSigner, opts...)

	var body any
	if flagData != "" {
		body = flagData
	}

	result, err := payer.Do(context.Background(), strings.ToUpper(flagMethod), flagURL, body)
	if err != nil {
		return renderError(err)
	}

	if result.Paid {
		fmt.Fprintf(os.Stderr, "paid %s to %s\n",
			displayAmount(result.Requirement.Amount), result.Requirement.Payee)
	}
	fmt.Println(string(result.Body))
	return nil
}

// promptConfirm shows the decoded requirement and reads a y/N answer.
func promptConfirm(_ context.Context, requirement types.PaymentRequirement) (bool, error) {
	fmt.Fprintf(os.Stderr, "Payment required: %s\n", displayAmount(requirement.Amount))
	fmt.Fprintf(os.Stderr, "  payee:    %s\n", requirement.Payee)
	fmt.Fprintf(os.Stderr, "  network:  %s (chain %d)\n", requirement.Network, requirement.ChainID)
	if requirement.Description != "" {
		fmt.Fprintf(os.Stderr, "  for:      %s\n", requirement.Description)
	}
	fmt.Fprint(os.Stderr, "Pay? [y/N] ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func displayAmount(amount string) string {
	value, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return amount
	}
	return token.FormatAmount(value, flagDecimals, flagSymbol)
}

// renderError distinguishes conditions worth retrying from terminal ones.
func renderError(err error) error {
	kind := types.KindOf(err)
	if kind == "" {
		return err
	}
	if kind.Retriable() {
		return fmt.Errorf("%s (retriable): %w", kind, err)
	}
	return fmt.Errorf("%s: %w", kind, err)
}
