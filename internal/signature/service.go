package signature

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gestio-app/gestio/internal/billing"
	"github.com/gestio-app/gestio/internal/shared"
)

// DocumentSigner applies the sign transition on the underlying document.
type DocumentSigner interface {
	SignQuote(ctx context.Context, id int64, req billing.SignRequest) (*billing.Quote, error)
	SignAmendment(ctx context.Context, id int64, req billing.SignRequest) (*billing.Amendment, error)
}

// Service issues single-use signature tokens and captures signatures.
type Service struct {
	store  Store
	signer DocumentSigner
	ttl    time.Duration
	now    func() time.Time
}

// NewService constructs a signature service. TTL bounds how long a token
// stays usable after issue.
func NewService(store Store, signer DocumentSigner, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Service{store: store, signer: signer, ttl: ttl, now: time.Now}
}

// IssueToken creates a pending token for the given document.
func (s *Service) IssueToken(ctx context.Context, kind DocumentKind, documentID int64) (*Token, error) {
	if kind != KindQuote && kind != KindAmendment {
		return nil, fmt.Errorf("%w: unknown document kind %q", shared.ErrValidation, kind)
	}
	token := Token{
		Token:      uuid.NewString(),
		Kind:       kind,
		DocumentID: documentID,
		Status:     TokenStatusPending,
		ExpiresAt:  s.now().Add(s.ttl),
	}
	if err := s.store.Insert(ctx, &token); err != nil {
		return nil, fmt.Errorf("issue signature token: %w", err)
	}
	return &token, nil
}

// Capture consumes a pending token and signs its document. A used or
// expired token conflicts; the sign transition itself still enforces the
// document's state machine.
func (s *Service) Capture(ctx context.Context, tokenValue string, req CaptureRequest) (*Token, error) {
	token, err := s.store.GetByToken(ctx, tokenValue)
	if err != nil {
		return nil, fmt.Errorf("get signature token: %w", err)
	}
	if token.Status != TokenStatusPending {
		return nil, fmt.Errorf("%w: signature token already %s", shared.ErrConflict, token.Status)
	}
	if s.now().After(token.ExpiresAt) {
		if err := s.store.MarkExpired(ctx, token.ID); err != nil {
			return nil, fmt.Errorf("expire signature token: %w", err)
		}
		return nil, fmt.Errorf("%w: signature token expired", shared.ErrConflict)
	}

	signReq := billing.SignRequest{Signature: req.Signature, Signer: req.Signer}
	switch token.Kind {
	case KindQuote:
		_, err = s.signer.SignQuote(ctx, token.DocumentID, signReq)
	case KindAmendment:
		_, err = s.signer.SignAmendment(ctx, token.DocumentID, signReq)
	default:
		err = fmt.Errorf("%w: unknown document kind %q", shared.ErrValidation, token.Kind)
	}
	if err != nil {
		return nil, err
	}

	if err := s.store.MarkUsed(ctx, token.ID, req.Signer); err != nil {
		return nil, fmt.Errorf("mark signature token used: %w", err)
	}
	return s.store.GetByToken(ctx, tokenValue)
}
