package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"minicrm/internal/domain"
)

func newTestCache(t *testing.T) (*miniredis.Miniredis, *PreviewCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	return mr, NewPreview(mr.Addr(), time.Minute)
}

func TestPreviewCacheRoundTrip(t *testing.T) {
	_, c := newTestCache(t)
	ctx := context.Background()

	key := Key([]domain.Condition{{Field: "total_spending", Operator: ">", Value: float64(1000)}})

	_, ok := c.Get(ctx, key)
	require.False(t, ok, "miss before Set")

	c.Set(ctx, key, 42)
	n, ok := c.Get(ctx, key)
	require.True(t, ok)
	require.Equal(t, int64(42), n)
}

func TestPreviewCacheExpiry(t *testing.T) {
	mr, c := newTestCache(t)
	ctx := context.Background()

	key := Key([]domain.Condition{{Field: "name", Operator: "=", Value: "Ada"}})
	c.Set(ctx, key, 7)

	mr.FastForward(2 * time.Minute)
	_, ok := c.Get(ctx, key)
	require.False(t, ok, "expired entries miss")
}

func TestKeyIsOrderSensitive(t *testing.T) {
	a := domain.Condition{Field: "name", Operator: "=", Value: "Ada", Logic: domain.LogicOr}
	b := domain.Condition{Field: "total_spending", Operator: ">", Value: float64(1000)}

	require.Equal(t,
		Key([]domain.Condition{a, b}),
		Key([]domain.Condition{a, b}),
		"same conditions, same key")
	require.NotEqual(t,
		Key([]domain.Condition{a, b}),
		Key([]domain.Condition{b, a}),
		"evaluation is order dependent, so keys are too")
}

func TestGetIgnoresGarbageValues(t *testing.T) {
	mr, c := newTestCache(t)

	key := Key(nil)
	require.NoError(t, mr.Set(key, "not-a-number"))
	_, ok := c.Get(context.Background(), key)
	require.False(t, ok)
}
