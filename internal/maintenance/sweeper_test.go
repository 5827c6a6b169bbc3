package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pharmacy-admin/internal/auth"
	"pharmacy-admin/internal/observability"
)

func TestRunSweeper_PrunesOnEachTickUntilCancelled(t *testing.T) {
	pruner := &stubPruner{result: auth.PruneResult{ExpiredSessions: 1}}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		RunSweeper(ctx, pruner, 5*time.Millisecond, observability.NewLogger("panic"))
		close(done)
	}()

	assert.Eventually(t, func() bool { return pruner.callCount() >= 3 }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}

	calls := pruner.callCount()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, pruner.callCount())
}

func TestRunSweeper_KeepsGoingAfterFailure(t *testing.T) {
	pruner := &stubPruner{err: errors.New("redis down")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go RunSweeper(ctx, pruner, 5*time.Millisecond, observability.NewLogger("panic"))

	assert.Eventually(t, func() bool { return pruner.callCount() >= 2 }, time.Second, time.Millisecond)
}

func TestRunSweeper_DisabledInterval(t *testing.T) {
	pruner := &stubPruner{}

	done := make(chan struct{})
	go func() {
		RunSweeper(context.Background(), pruner, 0, observability.NewLogger("panic"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("zero interval should return immediately")
	}
	assert.Zero(t, pruner.callCount())
}
