package clients

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestio-app/gestio/internal/shared"
)

type mockStore struct {
	clients map[int64]*Client
	nextID  int64
}

func newMockStore() *mockStore {
	return &mockStore{clients: make(map[int64]*Client), nextID: 1}
}

func (m *mockStore) Get(ctx context.Context, id int64) (*Client, error) {
	c, ok := m.clients[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockStore) List(ctx context.Context, req ListClientsRequest) ([]Client, int, error) {
	var out []Client
	for _, c := range m.clients {
		if c.CompanyID != req.CompanyID {
			continue
		}
		if req.IsActive != nil && c.IsActive != *req.IsActive {
			continue
		}
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (m *mockStore) Insert(ctx context.Context, c *Client) error {
	c.ID = m.nextID
	m.nextID++
	cp := *c
	m.clients[c.ID] = &cp
	return nil
}

func (m *mockStore) Update(ctx context.Context, id int64, updates map[string]any) error {
	c, ok := m.clients[id]
	if !ok {
		return shared.ErrNotFound
	}
	for col, val := range updates {
		switch col {
		case "name":
			c.Name = val.(string)
		case "email":
			v := val.(string)
			c.Email = &v
		case "is_active":
			c.IsActive = val.(bool)
		}
	}
	return nil
}

func (m *mockStore) Deactivate(ctx context.Context, id int64) error {
	return m.Update(ctx, id, map[string]any{"is_active": false})
}

func TestCreateClientDefaults(t *testing.T) {
	svc := NewService(newMockStore())
	client, err := svc.Create(context.Background(), CreateClientRequest{
		CompanyID: 1,
		Name:      "Atelier Dupont",
	})
	require.NoError(t, err)
	assert.True(t, client.IsActive)
	assert.Equal(t, "FR", client.Country)
	assert.NotZero(t, client.ID)
}

func TestUpdateClientPartial(t *testing.T) {
	store := newMockStore()
	svc := NewService(store)
	ctx := context.Background()

	client, err := svc.Create(ctx, CreateClientRequest{CompanyID: 1, Name: "Atelier Dupont"})
	require.NoError(t, err)

	email := "contact@dupont.fr"
	updated, err := svc.Update(ctx, client.ID, UpdateClientRequest{Email: &email})
	require.NoError(t, err)
	require.NotNil(t, updated.Email)
	assert.Equal(t, email, *updated.Email)
	assert.Equal(t, "Atelier Dupont", updated.Name)
}

func TestUpdateMissingClient(t *testing.T) {
	svc := NewService(newMockStore())
	_, err := svc.Update(context.Background(), 99, UpdateClientRequest{})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeactivateKeepsRecord(t *testing.T) {
	store := newMockStore()
	svc := NewService(store)
	ctx := context.Background()

	client, err := svc.Create(ctx, CreateClientRequest{CompanyID: 1, Name: "Atelier Dupont"})
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(ctx, client.ID))

	got, err := svc.Get(ctx, client.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}
