package settlement

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingRunner struct {
	calls atomic.Int32
	err   error
}

func (c *countingRunner) RunSettlementPass(ctx context.Context) (Summary, error) {
	c.calls.Add(1)
	return Summary{}, c.err
}

func TestStartLoopRunsUntilCancelled(t *testing.T) {
	runner := &countingRunner{err: errors.New("db down")}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- StartLoop(ctx, runner, 5*time.Millisecond) }()

	// failed passes do not stop the loop
	assert.Eventually(t, func() bool { return runner.calls.Load() >= 3 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after cancel")
	}
}
