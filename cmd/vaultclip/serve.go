package main

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"vaultclip/internal/server"
)

const gcInterval = 5 * time.Minute

// poller is a long-running front end such as the Telegram bot.
type poller interface {
	Start(ctx context.Context)
}

type task func(ctx context.Context) error

// serveTasks builds every long-running component of "serve". Construction
// happens before anything starts, so a failure leaves nothing running.
func (a *app) serveTasks(addr string, newBot func() (poller, error)) ([]task, error) {
	var tasks []task

	if a.cfg.Telegram.BotToken != "" {
		h, err := newBot()
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, func(ctx context.Context) error {
			h.Start(ctx)
			return nil
		})
	} else {
		a.log.Info("No Telegram bot token configured, bot disabled")
	}

	srv := server.New(addr, a.bus, a.log)
	tasks = append(tasks, srv.Run)

	if a.cache != nil {
		tasks = append(tasks,
			func(ctx context.Context) error {
				a.cache.RunGC(ctx, gcInterval)
				return nil
			},
			func(ctx context.Context) error {
				a.purgeLoop(ctx, purgeInterval)
				return nil
			},
		)
	}
	return tasks, nil
}

// runTasks runs tasks until ctx is cancelled or one of them fails, which
// cancels the rest.
func runTasks(ctx context.Context, tasks []task) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		g.Go(func() error { return t(ctx) })
	}
	return g.Wait()
}
