package payments

import (
	"context"
	"fmt"

	"github.com/gestio-app/gestio/internal/shared"
)

// Gateway collects card payments. The only in-tree implementation is the
// stub; online collection is not wired to a provider yet.
type Gateway interface {
	// Charge collects req.Amount and returns the provider's transaction
	// reference.
	Charge(ctx context.Context, req ChargeRequest) (string, error)
}

// StubGateway rejects every charge. Recording payments received by
// transfer or cheque does not go through the gateway.
type StubGateway struct{}

func (StubGateway) Charge(ctx context.Context, req ChargeRequest) (string, error) {
	return "", fmt.Errorf("%w: card collection is not configured", shared.ErrNotImplemented)
}
