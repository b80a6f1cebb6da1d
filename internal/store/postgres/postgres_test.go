package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{
			name: "explicit dsn wins",
			cfg:  ClientConfig{DSN: "postgres://u@db/x", Host: "ignored"},
			want: "postgres://u@db/x",
		},
		{
			name: "defaults port and sslmode",
			cfg:  ClientConfig{Host: "localhost", Database: "nebula", User: "app", Password: "pw"},
			want: "postgres://app:pw@localhost:5432/nebula?sslmode=disable",
		},
		{
			name: "custom port and sslmode",
			cfg:  ClientConfig{Host: "db", Port: 6543, Database: "d", User: "u", SSLMode: "require"},
			want: "postgres://u:@db:6543/d?sslmode=require",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DSN(tt.cfg))
		})
	}
}

func TestAppendListOpts(t *testing.T) {
	since := time.Unix(1_700_000_000, 0)

	q, args := appendListOpts("SELECT 1 FROM t WHERE account = $1", []any{"0xabc"},
		domain.ListOpts{Since: &since, Limit: 10, Offset: 20})
	assert.Equal(t,
		"SELECT 1 FROM t WHERE account = $1 AND created_at >= $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4", q)
	assert.Equal(t, []any{"0xabc", since, 10, 20}, args)

	q, args = appendListOpts("SELECT 1 FROM t WHERE 1=1", nil, domain.ListOpts{})
	assert.Equal(t, "SELECT 1 FROM t WHERE 1=1 ORDER BY created_at DESC", q)
	assert.Empty(t, args)
}

func TestMigrationNamesOrdered(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_operations.sql", "002_audit_log.sql"}, names)
}

// newTestClient connects to NEBULA_TEST_POSTGRES_DSN and migrates, or skips.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	dsn := os.Getenv("NEBULA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("NEBULA_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	c, err := New(ctx, ClientConfig{DSN: dsn, MaxConns: 2})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	require.NoError(t, c.RunMigrations(ctx))
	require.NoError(t, c.RunMigrations(ctx), "migrations are idempotent")
	return c
}

func TestOperationStore_Lifecycle(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	store := NewOperationStore(c.Pool())

	account := "0xABCDEF0000000000000000000000000000000001"
	rec := domain.OperationRecord{
		ID:        uuid.NewString(),
		Kind:      domain.OpPlaceBid,
		Entity:    "7",
		Account:   account,
		ChainID:   31337,
		Status:    domain.OperationSubmitted,
		Detail:    map[string]any{"amount": "1000"},
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, store.Create(ctx, rec))
	require.NoError(t, store.Finish(ctx, rec.ID, domain.OperationConfirmed, "0xdead", "", ""))

	got, err := store.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OperationConfirmed, got.Status)
	assert.Equal(t, "0xabcdef0000000000000000000000000000000001", got.Account)
	assert.Equal(t, "0xdead", got.TxHash)
	assert.Equal(t, "1000", got.Detail["amount"])

	mine, err := store.ListByAccount(ctx, account, domain.ListOpts{Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, mine)
	assert.Equal(t, rec.ID, mine[0].ID)

	_, err = store.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, store.Finish(ctx, uuid.NewString(), domain.OperationFailed, "", "", ""), domain.ErrNotFound)
}

func TestAuditStore_LogAndList(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	store := NewAuditStore(c.Pool())

	event := "session_connected_" + uuid.NewString()
	require.NoError(t, store.Log(ctx, event, map[string]any{"chainId": float64(1)}))

	entries, err := store.List(ctx, domain.ListOpts{Limit: 50})
	require.NoError(t, err)
	var found bool
	for _, e := range entries {
		if e.Event == event {
			found = true
			assert.Equal(t, float64(1), e.Detail["chainId"])
		}
	}
	assert.True(t, found)
}
