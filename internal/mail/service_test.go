package mail

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestio-app/gestio/internal/shared"
)

type mockStore struct {
	logs   []DeliveryLog
	nextID int64
}

func (m *mockStore) Insert(ctx context.Context, log *DeliveryLog) error {
	m.nextID++
	log.ID = m.nextID
	m.logs = append(m.logs, *log)
	return nil
}

func (m *mockStore) ListByDocument(ctx context.Context, kind DocumentKind, documentID int64) ([]DeliveryLog, error) {
	var out []DeliveryLog
	for i := len(m.logs) - 1; i >= 0; i-- {
		if m.logs[i].DocumentKind == kind && m.logs[i].DocumentID == documentID {
			out = append(out, m.logs[i])
		}
	}
	return out, nil
}

type failingSender struct{ err error }

func (s failingSender) Send(ctx context.Context, doc OutboundDocument) error { return s.err }

func makeDoc() OutboundDocument {
	return OutboundDocument{
		CompanyID:  1,
		Kind:       KindInvoice,
		DocumentID: 7,
		Numero:     "FACT-2026-0001",
		Recipient:  "client@example.fr",
		AmountTTC:  decimal.RequireFromString("504"),
	}
}

func TestSendRecordsSentLog(t *testing.T) {
	store := &mockStore{}
	svc := NewService(store, nil, slog.Default())

	log, err := svc.Send(context.Background(), makeDoc())
	require.NoError(t, err)
	assert.Equal(t, DeliverySent, log.Status)
	assert.Nil(t, log.Reason)
	require.Len(t, store.logs, 1)
}

func TestSendFailureLoggedNotReturned(t *testing.T) {
	store := &mockStore{}
	svc := NewService(store, failingSender{err: errors.New("smtp: connection refused")}, slog.Default())

	log, err := svc.Send(context.Background(), makeDoc())
	require.NoError(t, err, "transport failure must not surface to the caller")
	assert.Equal(t, DeliveryFailed, log.Status)
	require.NotNil(t, log.Reason)
	assert.Contains(t, *log.Reason, "connection refused")
	require.Len(t, store.logs, 1)
}

func TestSendDefaultsFrenchSubject(t *testing.T) {
	store := &mockStore{}
	svc := NewService(store, nil, slog.Default())

	log, err := svc.Send(context.Background(), makeDoc())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(log.Subject, "Votre facture FACT-2026-0001"), "subject was %q", log.Subject)
	assert.Contains(t, log.Subject, "€")
}

func TestSendRejectsMissingRecipient(t *testing.T) {
	svc := NewService(&mockStore{}, nil, slog.Default())
	doc := makeDoc()
	doc.Recipient = ""
	_, err := svc.Send(context.Background(), doc)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestHistoryNewestFirst(t *testing.T) {
	store := &mockStore{}
	svc := NewService(store, nil, slog.Default())
	ctx := context.Background()

	first, err := svc.Send(ctx, makeDoc())
	require.NoError(t, err)
	second, err := svc.Send(ctx, makeDoc())
	require.NoError(t, err)

	logs, err := svc.History(ctx, KindInvoice, 7)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, second.ID, logs[0].ID)
	assert.Equal(t, first.ID, logs[1].ID)
}

func TestFormatDate(t *testing.T) {
	d := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2 août 2026", FormatDate(d))
}
