package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestio-app/gestio/internal/shared"
)

type fakeRenewer struct {
	renewErr    error
	renewCalls  []int64
	dueRenewals int
}

func (f *fakeRenewer) RenewPlan(ctx context.Context, planID int64) error {
	f.renewCalls = append(f.renewCalls, planID)
	return f.renewErr
}

func (f *fakeRenewer) RenewDuePlans(ctx context.Context) (int, error) {
	return f.dueRenewals, nil
}

type fakeExpirer struct{ expired int }

func (f *fakeExpirer) ExpireDueQuotes(ctx context.Context) (int, error) { return f.expired, nil }

func handlerFor(t *testing.T, handlers []TaskHandler, taskType string) asynq.HandlerFunc {
	t.Helper()
	for _, h := range handlers {
		if h.Type == taskType {
			return h.Handler
		}
	}
	t.Fatalf("no handler registered for %s", taskType)
	return nil
}

func TestHandlersOnlyRegisterWiredConsumers(t *testing.T) {
	handlers := Handlers(Deps{Quotes: &fakeExpirer{}})
	require.Len(t, handlers, 1)
	assert.Equal(t, TaskTypeQuoteExpireScan, handlers[0].Type)
}

func TestRenewHandlerSkipsRetryOnMissingPlan(t *testing.T) {
	renewer := &fakeRenewer{renewErr: shared.ErrNotFound}
	handlers := Handlers(Deps{Subscriptions: renewer})
	handle := handlerFor(t, handlers, TaskTypeSubscriptionRenew)

	task, err := NewSubscriptionRenewTask(42)
	require.NoError(t, err)

	err = handle(context.Background(), task)
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry, "missing plan must not be retried")
	assert.Equal(t, []int64{42}, renewer.renewCalls)
}

func TestRenewHandlerRetriesTransientErrors(t *testing.T) {
	renewer := &fakeRenewer{renewErr: errors.New("connection reset")}
	handlers := Handlers(Deps{Subscriptions: renewer})
	handle := handlerFor(t, handlers, TaskTypeSubscriptionRenew)

	task, err := NewSubscriptionRenewTask(42)
	require.NoError(t, err)

	err = handle(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestMalformedPayloadSkipsRetry(t *testing.T) {
	handlers := Handlers(Deps{Subscriptions: &fakeRenewer{}})
	handle := handlerFor(t, handlers, TaskTypeSubscriptionRenew)

	err := handle(context.Background(), asynq.NewTask(TaskTypeSubscriptionRenew, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
