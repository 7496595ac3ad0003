package commands

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunAllStopsEveryRunnerOnFailure(t *testing.T) {
	boom := errors.New("listen tcp :3000: address already in use")
	stopped := make(chan struct{})

	err := runAll(context.Background(),
		func(ctx context.Context) error {
			<-ctx.Done()
			close(stopped)
			return nil
		},
		func(ctx context.Context) error {
			return boom
		},
	)

	assert.ErrorIs(t, err, boom)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("runner was not cancelled")
	}
}

func TestRunAllReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runAll(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	assert.NoError(t, err)
}
