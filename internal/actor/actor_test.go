package actor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivant/lexfetch/internal/core"
)

func TestTellRunsInOrder(t *testing.T) {
	a := New("test", nil)
	defer a.Stop(time.Second)

	var order []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		a.Tell(func() {
			order = append(order, i)
			if i == 4 {
				close(done)
			}
		})
	}
	<-done
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestAskReturnsReply(t *testing.T) {
	a := New("test", nil)
	defer a.Stop(time.Second)

	var result int
	err := a.Ask(context.Background(), func() { result = 42 })
	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestAskTimeout(t *testing.T) {
	a := New("test", nil)
	defer a.Stop(time.Second)

	block := make(chan struct{})
	a.Tell(func() { <-block })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := a.Ask(ctx, func() {})
	assert.ErrorIs(t, err, core.ErrAskTimeout)
	close(block)
}

func TestAskAfterStopReturnsActorStopped(t *testing.T) {
	a := New("test", nil)
	a.Stop(time.Second)

	err := a.Ask(context.Background(), func() {})
	assert.ErrorIs(t, err, core.ErrActorStopped)
}

func TestHandlerPanicDoesNotKillDispatcher(t *testing.T) {
	var errCount int32
	a := New("test", func(err error) { atomic.AddInt32(&errCount, 1) })
	defer a.Stop(time.Second)

	a.Tell(func() { panic("boom") })

	var ran bool
	err := a.Ask(context.Background(), func() { ran = true })
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, int32(1), atomic.LoadInt32(&errCount))
}
