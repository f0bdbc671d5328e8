package utils

import (
	"context"
	"testing"
	"time"

	"renthouse-scheduler/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoSafeRecoversPanic(t *testing.T) {
	ran := make(chan struct{})
	GoSafe(func() {
		defer close(ran)
		panic("boom")
	})

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("goroutine never ran")
	}

	// The panicking goroutine must not take the process down before a
	// later GoSafe call can still run.
	ok := make(chan struct{})
	GoSafe(func() { close(ok) })
	select {
	case <-ok:
	case <-time.After(time.Second):
		t.Fatal("follow-up goroutine never ran")
	}
}

func TestShouldContinue(t *testing.T) {
	log, err := logger.New("error", "console")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	assert.True(t, ShouldContinue(ctx, log))

	cancel()
	assert.False(t, ShouldContinue(ctx, log))
}
