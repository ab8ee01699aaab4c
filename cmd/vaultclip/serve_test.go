package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultclip/internal/config"
	"vaultclip/internal/messaging"
)

type fakePoller struct {
	started chan struct{}
}

func (p *fakePoller) Start(ctx context.Context) {
	close(p.started)
	<-ctx.Done()
}

func testApp(token string) *app {
	log := logrus.New()
	log.SetOutput(io.Discard)
	cfg := config.Config{}
	cfg.Telegram.BotToken = token
	return &app{cfg: cfg, log: log, bus: messaging.NewBus(log)}
}

func TestServeTasks_BotFailureStartsNothing(t *testing.T) {
	a := testApp("token")

	tasks, err := a.serveTasks("127.0.0.1:0", func() (poller, error) {
		return nil, errors.New("bad token")
	})
	require.EqualError(t, err, "bad token")
	assert.Empty(t, tasks)
}

func TestServeTasks_WithoutBot(t *testing.T) {
	a := testApp("")
	called := false

	tasks, err := a.serveTasks("127.0.0.1:0", func() (poller, error) {
		called = true
		return &fakePoller{started: make(chan struct{})}, nil
	})
	require.NoError(t, err)
	assert.False(t, called)
	assert.Len(t, tasks, 1, "only the HTTP server without a token or cache")
}

func TestServeTasks_RunAndStop(t *testing.T) {
	a := testApp("token")
	p := &fakePoller{started: make(chan struct{})}

	tasks, err := a.serveTasks("127.0.0.1:0", func() (poller, error) { return p, nil })
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runTasks(ctx, tasks) }()

	select {
	case <-p.started:
	case <-time.After(5 * time.Second):
		t.Fatal("bot was not started")
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("tasks did not stop")
	}
}

func TestRunTasks_FailureCancelsOthers(t *testing.T) {
	stopped := make(chan struct{})
	tasks := []task{
		func(ctx context.Context) error {
			<-ctx.Done()
			close(stopped)
			return nil
		},
		func(context.Context) error { return errors.New("listen failed") },
	}

	err := runTasks(context.Background(), tasks)
	assert.EqualError(t, err, "listen failed")
	select {
	case <-stopped:
	default:
		t.Fatal("sibling task was not cancelled")
	}
}
