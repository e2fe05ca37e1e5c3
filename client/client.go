// Package client orchestrates the x402 payment flow against an arbitrary
// HTTP resource: request, 402 challenge, confirmation, signing, and a single
// retry carrying the payment header.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/aureo-labs/x402-go/codec"
	"github.com/aureo-labs/x402-go/signer"
	"github.com/aureo-labs/x402-go/types"
)

// ConfirmFunc is the interception point for human or policy confirmation.
// It is invoked with the decoded requirement before anything is signed;
// returning false terminates the flow with no further network calls and no
// side effects, since nothing has touched the chain yet.
type ConfirmFunc func(ctx context.Context, requirement types.PaymentRequirement) (bool, error)

// Result is the outcome of a paid (or free) request.
type Result struct {
	StatusCode int
	Body       []byte

	// Paid reports whether an authorization was signed and accepted for
	// this call.
	Paid bool

	// Requirement is the decoded challenge when one was received.
	Requirement *types.PaymentRequirement
}

// Client performs requests with automatic x402 payment handling. Per logical
// call it signs at most one authorization and makes at most two round-trips.
type Client struct {
	http    *resty.Client
	signer  signer.Signer
	confirm ConfirmFunc
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithConfirmFunc installs a confirmation callback. Without one the client
// pays unattended.
func WithConfirmFunc(confirm ConfirmFunc) Option {
	return func(c *Client) { c.confirm = confirm }
}

// WithHTTPClient overrides the underlying resty client.
func WithHTTPClient(httpClient *resty.Client) Option {
	return func(c *Client) { c.http = httpClient }
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a payment client signing with s.
func New(s signer.Signer, opts ...Option) *Client {
	c := &Client{
		http:   resty.New(),
		signer: s,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do performs the request, transparently handling a 402 challenge. body may
// be nil; when the retry is needed it reuses the identical method and body.
func (c *Client) Do(ctx context.Context, method, url string, body any) (*Result, error) {

	// Issue the original request with no payment header attached
	resp, err := c.request(ctx, method, url, body, "")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	// Any status other than 402 is terminal
	if resp.StatusCode() != http.StatusPaymentRequired {
		return c.finish(resp, false, nil)
	}

	// Extract the payment requirement from the designated header. A 402
	// without a decodable requirement is not a valid x402 response.
	requirementHeader := resp.Header().Get(types.HeaderPaymentRequired)
	if requirementHeader == "" {
		return nil, types.NewPaymentError(types.ErrorKindProtocolViolation, "402 response missing payment requirement header", nil)
	}
	requirement, err := codec.DecodeRequirement(requirementHeader)
	if err != nil {
		return nil, types.NewPaymentError(types.ErrorKindProtocolViolation, "402 response carried undecodable requirement", err)
	}

	// Await confirmation when a callback is supplied. Declining makes no
	// further network calls.
	if c.confirm != nil {
		confirmed, err := c.confirm(ctx, requirement)
		if err != nil {
			return nil, types.NewPaymentError(types.ErrorKindPaymentDeclined, "confirmation failed", err)
		}
		if !confirmed {
			return nil, types.NewPaymentError(types.ErrorKindPaymentDeclined, "payment declined", nil)
		}
	}

	// Sign exactly one authorization for this call
	payment, err := c.signer.SignRequirement(requirement)
	if err != nil {
		return nil, err
	}
	encoded, err := codec.EncodePayment(payment)
	if err != nil {
		return nil, types.NewPaymentError(types.ErrorKindProtocolViolation, "failed to encode payment", err)
	}

	c.logger.Debug("retrying request with payment",
		"url", url,
		"amount", requirement.Amount,
		"payee", requirement.Payee)

	// Reissue the identical request with the payment header attached
	retryResp, err := c.request(ctx, method, url, body, encoded)
	if err != nil {
		return nil, fmt.Errorf("payment retry failed: %w", err)
	}

	// A second challenge after paying is a server-side protocol error, not
	// retried again: retrying would loop and sign duplicate authorizations.
	if retryResp.StatusCode() == http.StatusPaymentRequired {
		return nil, types.NewPaymentError(types.ErrorKindProtocolViolation, "received second 402 after payment", nil)
	}

	return c.finish(retryResp, true, &requirement)
}

// request performs a single HTTP round-trip.
func (c *Client) request(ctx context.Context, method, url string, body any, paymentHeader string) (*resty.Response, error) {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json")
	if body != nil {
		req.SetBody(body)
	}
	if paymentHeader != "" {
		req.SetHeader(types.HeaderPayment, paymentHeader)
	}
	return req.Execute(method, url)
}

// finish converts a terminal response into a result or error.
func (c *Client) finish(resp *resty.Response, paid bool, requirement *types.PaymentRequirement) (*Result, error) {
	if resp.IsSuccess() {
		return &Result{
			StatusCode:  resp.StatusCode(),
			Body:        resp.Body(),
			Paid:        paid,
			Requirement: requirement,
		}, nil
	}

	// Surface the server's error kind when the body carries one
	if kind := decodeErrorKind(resp.Body()); kind != "" {
		return nil, types.NewPaymentError(kind, fmt.Sprintf("request failed with status %d", resp.StatusCode()), nil)
	}
	return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode(), resp.Status())
}
