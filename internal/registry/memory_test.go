package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ultimate-banking-app/ledger-engine/internal/domain"
)

func TestOpenAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := NewMemoryRegistry()

	acc, err := reg.Open(ctx, "owner-1", "USD")
	require.NoError(t, err)
	assert.NotEmpty(t, acc.ID)
	assert.NotEmpty(t, acc.Number)
	assert.Equal(t, domain.StatusActive, acc.Status)
	assert.Equal(t, "USD", acc.Currency)

	got, err := reg.Get(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)

	_, err = reg.Get(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestOpenRejectsUnknownCurrency(t *testing.T) {
	t.Parallel()
	reg := NewMemoryRegistry()

	_, err := reg.Open(context.Background(), "owner-1", "DOGE")
	require.ErrorIs(t, err, domain.ErrInvalidCurrency)
}

func TestListByOwner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := NewMemoryRegistry()

	_, err := reg.Open(ctx, "alice", "USD")
	require.NoError(t, err)
	_, err = reg.Open(ctx, "alice", "EUR")
	require.NoError(t, err)
	_, err = reg.Open(ctx, "bob", "USD")
	require.NoError(t, err)

	accounts, err := reg.ListByOwner(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
}

func TestStatusTransitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := NewMemoryRegistry()

	acc, err := reg.Open(ctx, "owner-1", "USD")
	require.NoError(t, err)

	// Active -> Frozen -> Active is allowed.
	frozen, err := reg.SetStatus(ctx, acc.ID, domain.StatusFrozen)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFrozen, frozen.Status)

	_, err = reg.SetStatus(ctx, acc.ID, domain.StatusActive)
	require.NoError(t, err)

	// Closed is terminal.
	_, err = reg.SetStatus(ctx, acc.ID, domain.StatusClosed)
	require.NoError(t, err)
	_, err = reg.SetStatus(ctx, acc.ID, domain.StatusActive)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = reg.SetStatus(ctx, acc.ID, domain.StatusFrozen)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	// Unknown target status.
	_, err = reg.SetStatus(ctx, acc.ID, domain.AccountStatus("suspended"))
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	// Missing account.
	_, err = reg.SetStatus(ctx, "missing", domain.StatusFrozen)
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}
