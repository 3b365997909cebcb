package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL     = "https://api.flutterwave.com/v3"
	defaultHTTPTimeout = 20 * time.Second
	maxResponseBytes   = 1 << 20
)

// FlutterwaveProvider verifies transactions against the Flutterwave REST API.
type FlutterwaveProvider struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

// FlutterwaveOption customises provider construction.
type FlutterwaveOption func(*FlutterwaveProvider)

// WithBaseURL overrides the API base URL (tests, sandbox).
func WithBaseURL(base string) FlutterwaveOption {
	return func(p *FlutterwaveProvider) {
		base = strings.TrimRight(strings.TrimSpace(base), "/")
		if base != "" {
			p.baseURL = base
		}
	}
}

// WithHTTPClient injects a custom HTTP client.
func WithHTTPClient(client *http.Client) FlutterwaveOption {
	return func(p *FlutterwaveProvider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// NewFlutterwaveProvider constructs a provider using the merchant secret key.
func NewFlutterwaveProvider(secretKey string, opts ...FlutterwaveOption) (*FlutterwaveProvider, error) {
	secretKey = strings.TrimSpace(secretKey)
	if secretKey == "" {
		return nil, ErrProviderNotConfigured
	}

	p := &FlutterwaveProvider{
		secretKey:  secretKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

type flutterwaveEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    flutterwaveData `json:"data"`
}

type flutterwaveData struct {
	ID        int64   `json:"id"`
	TxRef     string  `json:"tx_ref"`
	FlwRef    string  `json:"flw_ref"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	Status    string  `json:"status"`
	CreatedAt string  `json:"created_at"`
}

// VerifyReference looks a transaction up by merchant reference.
func (p *FlutterwaveProvider) VerifyReference(ctx context.Context, reference string) (Verification, error) {
	if p == nil || p.secretKey == "" {
		return Verification{}, ErrProviderNotConfigured
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return Verification{}, errors.New("payments: reference is required")
	}

	endpoint := fmt.Sprintf("%s/transactions/verify_by_reference?tx_ref=%s", p.baseURL, url.QueryEscape(reference))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Verification{}, fmt.Errorf("payments: build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Verification{}, &VerificationError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Verification{}, &VerificationError{StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return Verification{}, &VerificationError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var envelope flutterwaveEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Verification{}, &VerificationError{StatusCode: resp.StatusCode, Body: string(body), Err: err}
	}
	if !strings.EqualFold(envelope.Status, "success") {
		return Verification{}, &VerificationError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var raw map[string]any
	_ = json.Unmarshal(body, &raw)

	verification := Verification{
		Reference:     envelope.Data.TxRef,
		Status:        normaliseStatus(envelope.Data.Status),
		Amount:        envelope.Data.Amount,
		Currency:      envelope.Data.Currency,
		TransactionID: fmt.Sprintf("%d", envelope.Data.ID),
		Raw:           raw,
	}
	if verification.Reference == "" {
		verification.Reference = reference
	}
	if ts, err := time.Parse(time.RFC3339, envelope.Data.CreatedAt); err == nil {
		verification.PaidAt = ts
	}
	return verification, nil
}

func normaliseStatus(status string) Status {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "successful", "success":
		return StatusSuccessful
	case "failed", "cancelled", "abandoned":
		return StatusFailed
	default:
		return StatusPending
	}
}
