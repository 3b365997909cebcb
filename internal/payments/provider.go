package payments

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or PSP confirmation.
	StatusPending Status = "pending"
	// StatusSuccessful indicates the PSP reports the payment as successfully captured.
	StatusSuccessful Status = "successful"
	// StatusFailed indicates the PSP reports a failure and no further action is possible.
	StatusFailed Status = "failed"
)

// ErrProviderNotConfigured is returned when no provider credentials are available.
var ErrProviderNotConfigured = errors.New("payments: provider not configured")

// Verification captures a provider's view of a transaction looked up by reference.
type Verification struct {
	Reference     string
	Status        Status
	Amount        float64
	Currency      string
	TransactionID string
	PaidAt        time.Time
	Raw           map[string]any
}

// Succeeded reports whether the provider confirmed the charge.
func (v Verification) Succeeded() bool {
	return v.Status == StatusSuccessful
}

// VerificationError describes a failed provider lookup, preserving the raw
// response body for diagnostics.
type VerificationError struct {
	StatusCode int
	Body       string
	Err        error
}

// Error implements the error interface.
func (e *VerificationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("payments: verification failed: %v", e.Err)
	}
	return fmt.Sprintf("payments: verification failed with status %d", e.StatusCode)
}

// Unwrap exposes the underlying error.
func (e *VerificationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Provider defines the contract for PSP adapters to implement.
type Provider interface {
	// VerifyReference asks the provider for the authoritative state of the
	// transaction identified by the merchant reference.
	VerifyReference(ctx context.Context, reference string) (Verification, error)
}
