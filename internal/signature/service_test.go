package signature

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestio-app/gestio/internal/billing"
	"github.com/gestio-app/gestio/internal/shared"
)

type mockStore struct {
	tokens map[string]*Token
	nextID int64
}

func newMockStore() *mockStore {
	return &mockStore{tokens: make(map[string]*Token), nextID: 1}
}

func (m *mockStore) Insert(ctx context.Context, t *Token) error {
	t.ID = m.nextID
	m.nextID++
	cp := *t
	m.tokens[t.Token] = &cp
	return nil
}

func (m *mockStore) GetByToken(ctx context.Context, token string) (*Token, error) {
	t, ok := m.tokens[token]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockStore) MarkUsed(ctx context.Context, id int64, signer string) error {
	for _, t := range m.tokens {
		if t.ID == id {
			if t.Status != TokenStatusPending {
				return shared.ErrConflict
			}
			now := time.Now()
			t.Status = TokenStatusUsed
			t.UsedAt = &now
			t.SignerName = &signer
			return nil
		}
	}
	return shared.ErrNotFound
}

func (m *mockStore) MarkExpired(ctx context.Context, id int64) error {
	for _, t := range m.tokens {
		if t.ID == id && t.Status == TokenStatusPending {
			t.Status = TokenStatusExpired
		}
	}
	return nil
}

type mockSigner struct {
	signedQuotes     []int64
	signedAmendments []int64
	err              error
}

func (m *mockSigner) SignQuote(ctx context.Context, id int64, req billing.SignRequest) (*billing.Quote, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.signedQuotes = append(m.signedQuotes, id)
	return &billing.Quote{ID: id}, nil
}

func (m *mockSigner) SignAmendment(ctx context.Context, id int64, req billing.SignRequest) (*billing.Amendment, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.signedAmendments = append(m.signedAmendments, id)
	return &billing.Amendment{ID: id}, nil
}

func TestCaptureSignsQuoteOnce(t *testing.T) {
	store := newMockStore()
	signer := &mockSigner{}
	svc := NewService(store, signer, time.Hour)
	ctx := context.Background()

	token, err := svc.IssueToken(ctx, KindQuote, 42)
	require.NoError(t, err)
	assert.Equal(t, TokenStatusPending, token.Status)
	assert.NotEmpty(t, token.Token)

	req := CaptureRequest{Signature: "data:image/png;base64,abc", Signer: "Jean Martin"}
	used, err := svc.Capture(ctx, token.Token, req)
	require.NoError(t, err)
	assert.Equal(t, TokenStatusUsed, used.Status)
	assert.Equal(t, []int64{42}, signer.signedQuotes)

	_, err = svc.Capture(ctx, token.Token, req)
	assert.ErrorIs(t, err, shared.ErrConflict, "token is single use")
	assert.Len(t, signer.signedQuotes, 1)
}

func TestCaptureExpiredToken(t *testing.T) {
	store := newMockStore()
	signer := &mockSigner{}
	svc := NewService(store, signer, time.Hour)
	ctx := context.Background()

	token, err := svc.IssueToken(ctx, KindAmendment, 7)
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err = svc.Capture(ctx, token.Token, CaptureRequest{Signature: "sig", Signer: "Jean"})
	assert.ErrorIs(t, err, shared.ErrConflict)
	assert.Empty(t, signer.signedAmendments)

	got, err := store.GetByToken(ctx, token.Token)
	require.NoError(t, err)
	assert.Equal(t, TokenStatusExpired, got.Status)
}

func TestCaptureFailedSignLeavesTokenPending(t *testing.T) {
	store := newMockStore()
	signer := &mockSigner{err: shared.ErrInvalidStatus}
	svc := NewService(store, signer, time.Hour)
	ctx := context.Background()

	token, err := svc.IssueToken(ctx, KindQuote, 42)
	require.NoError(t, err)

	_, err = svc.Capture(ctx, token.Token, CaptureRequest{Signature: "sig", Signer: "Jean"})
	assert.ErrorIs(t, err, shared.ErrInvalidStatus)

	got, err := store.GetByToken(ctx, token.Token)
	require.NoError(t, err)
	assert.Equal(t, TokenStatusPending, got.Status, "token stays usable after a denied transition")
}

func TestIssueTokenRejectsUnknownKind(t *testing.T) {
	svc := NewService(newMockStore(), &mockSigner{}, time.Hour)
	_, err := svc.IssueToken(context.Background(), DocumentKind("INVOICE"), 1)
	assert.ErrorIs(t, err, shared.ErrValidation)
}
