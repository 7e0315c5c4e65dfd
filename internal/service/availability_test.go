package service_test

import (
	"context"
	"testing"
	"time"

	"toolshare-backend/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailabilityTracker(t *testing.T) {
	f := newFixture(t)
	h := func(n int) time.Time { return t0.Add(time.Duration(n) * time.Hour) }
	first, second, third := f.detached(t, toolID), f.detached(t, toolID), f.detached(t, toolID)
	ladder := f.detached(t, freeToolID)

	id, err := f.engine.Availability.Reserve(f.ctx, toolID, first.ID, h(0), h(10))
	require.NoError(t, err)

	_, err = f.engine.Availability.Reserve(f.ctx, toolID, second.ID, h(5), h(15))
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.engine.Availability.Reserve(f.ctx, toolID, third.ID, h(10), h(20))
	require.NoError(t, err, "adjacent windows do not overlap")

	_, err = f.engine.Availability.Reserve(f.ctx, freeToolID, ladder.ID, h(5), h(15))
	require.NoError(t, err, "other tools are independent")

	_, err = f.engine.Availability.Reserve(f.ctx, toolID, second.ID, h(30), h(30))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.engine.Availability.Reserve(f.ctx, 404, second.ID, h(30), h(31))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	free, err := f.engine.Availability.IsFree(f.ctx, toolID, h(2), h(3))
	require.NoError(t, err)
	assert.False(t, free)

	list, err := f.engine.Availability.Commitments(f.ctx, toolID, h(0), h(24))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, id, list[0].ID)

	require.NoError(t, f.engine.Availability.Release(f.ctx, id))
	require.NoError(t, f.engine.Availability.Release(f.ctx, id), "release is idempotent")

	free, err = f.engine.Availability.IsFree(f.ctx, toolID, h(2), h(3))
	require.NoError(t, err)
	assert.True(t, free)
}

func TestAvailabilityTracker_ReserveChecksBorrow(t *testing.T) {
	f := newFixture(t)
	h := func(n int) time.Time { return t0.Add(time.Duration(n) * time.Hour) }
	b := f.detached(t, toolID)

	_, err := f.engine.Availability.Reserve(f.ctx, toolID, 500, h(0), h(5))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.engine.Availability.Reserve(f.ctx, freeToolID, b.ID, h(0), h(5))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	free, err := f.engine.Availability.IsFree(f.ctx, freeToolID, h(0), h(5))
	require.NoError(t, err)
	assert.True(t, free)

	_, err = f.engine.Availability.Reserve(f.ctx, toolID, b.ID, h(0), h(5))
	require.NoError(t, err)
	_, err = f.engine.Availability.Reserve(f.ctx, toolID, b.ID, h(40), h(45))
	assert.ErrorIs(t, err, domain.ErrConflict, "one commitment per borrow")
}

func TestAvailabilityTracker_CancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(f.ctx)
	cancel()

	_, err := f.engine.Availability.Reserve(ctx, toolID, 1, t0, t0.Add(time.Hour))
	require.Error(t, err)
	assert.True(t, domain.IsInfrastructure(err))
	assert.ErrorIs(t, err, context.Canceled)
}
