package logger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDefault(t *testing.T) {
	prev := Default()
	t.Cleanup(func() { SetDefault(prev) })

	nop := Nop()
	SetDefault(nop)
	assert.Same(t, nop, Default())
}

func TestSetDefault_ConcurrentWithLogging(t *testing.T) {
	prev := Default()
	t.Cleanup(func() { SetDefault(prev) })

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			SetDefault(Nop())
		}()
		go func() {
			defer wg.Done()
			Debug(ctx, "concurrent log", "i", i)
			assert.NotNil(t, FromContext(ctx))
		}()
	}
	wg.Wait()
	require.NotNil(t, Default())
}

func TestFromContext_PrefersContextLogger(t *testing.T) {
	l := Nop().WithComponent("http")
	ctx := WithLogger(context.Background(), l)
	assert.Equal(t, l.SugaredLogger, FromContext(ctx).SugaredLogger)
}
