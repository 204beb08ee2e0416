package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_BurstThenRefill(t *testing.T) {
	// Емкость 2, пополнение 2 токена в секунду
	l := NewLimiter(2, 2)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(ctx))
	}
	elapsed := time.Since(start)

	// Первые 2 запроса проходят мгновенно из bucket, оставшиеся 3 ждут
	// пополнения: суммарно не меньше ~1.5s
	assert.GreaterOrEqual(t, elapsed, 1400*time.Millisecond, "elapsed %s", elapsed)
}

func TestLimiter_ContextCancel(t *testing.T) {
	l := NewLimiter(1, 1)
	require.NoError(t, l.Wait(context.Background()))

	// Bucket пуст; отмененный контекст снимает ожидание
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	assert.Error(t, err)
}

func TestNewLimiter_Defaults(t *testing.T) {
	l := NewLimiter(0, 0)
	require.NotNil(t, l)

	// Значения по умолчанию дают немедленный burst
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	for i := 0; i < DefaultBurst; i++ {
		require.NoError(t, l.Wait(ctx))
	}
}
