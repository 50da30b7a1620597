package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() Policy {
	return Policy{MaxRetries: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond, Multiplier: 2}
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoGivesUp(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := Do(context.Background(), fastPolicy(), func(context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 4, calls)
}

func TestDoStopsOnPermanent(t *testing.T) {
	calls := 0
	boom := errors.New("bad credentials")
	err := Do(context.Background(), fastPolicy(), func(context.Context) error {
		calls++
		return Permanent(boom)
	})
	assert.Equal(t, boom, err)
	assert.Equal(t, 1, calls)
}

func TestDoHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := Policy{MaxRetries: 5, InitialWait: time.Hour, MaxWait: time.Hour, Multiplier: 2}
	err := Do(ctx, p, func(context.Context) error { return errors.New("fail") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffBounds(t *testing.T) {
	p := Policy{InitialWait: 100 * time.Millisecond, MaxWait: time.Second, Multiplier: 2}
	for attempt := 0; attempt < 10; attempt++ {
		d := backoff(attempt, p)
		assert.GreaterOrEqual(t, d, p.InitialWait)
		assert.LessOrEqual(t, d, time.Duration(float64(p.MaxWait)*1.25))
	}
}
