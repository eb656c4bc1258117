package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/serenitylabs/serenity/internal/queue"
)

type watchOptions struct {
	durable string
	asJSON  bool
	count   int
}

func newWatchCmd(g *globalOptions) *cobra.Command {
	o := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print run.completed and run.failed events as the server publishes them",
		Example: `  serenityctl watch --config serenity.yaml
  serenityctl watch --durable ops-dashboard --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, g, o)
		},
	}

	cmd.Flags().StringVar(&o.durable, "durable", "", "NATS durable consumer name to replay missed events")
	cmd.Flags().BoolVar(&o.asJSON, "json", false, "print raw event JSON")
	cmd.Flags().IntVarP(&o.count, "count", "n", 0, "exit after this many events (0 = run until interrupted)")

	return cmd
}

func runWatch(cmd *cobra.Command, g *globalOptions, o *watchOptions) error {
	cfg, logger, err := g.load(cmd)
	if err != nil {
		return err
	}
	if o.durable != "" {
		cfg.Queue.Durable = o.durable
	}

	q, err := queue.NewQueue(cfg.Queue)
	if err != nil {
		return fmt.Errorf("connect queue: %w", err)
	}
	if q == nil {
		return fmt.Errorf("queue type %q does not deliver events", cfg.Queue.Type)
	}
	defer func() { _ = q.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := &eventPrinter{out: cmd.OutOrStdout(), asJSON: o.asJSON, limit: o.count, done: cancel}
	if err := q.Subscribe(cfg.Queue.Subject, w.handle); err != nil {
		return fmt.Errorf("subscribe %s: %w", cfg.Queue.Subject, err)
	}
	logger.Info("Watching run events", "type", cfg.Queue.Type, "subject", cfg.Queue.Subject, "durable", cfg.Queue.Durable)

	<-ctx.Done()
	return q.Unsubscribe(cfg.Queue.Subject)
}

// eventPrinter writes each event as one line and stops after limit events
type eventPrinter struct {
	mu     sync.Mutex
	out    io.Writer
	asJSON bool
	limit  int
	seen   int
	done   func()
}

func (p *eventPrinter) handle(data []byte) error {
	ev, err := queue.ParseRunEvent(data)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.limit > 0 && p.seen >= p.limit {
		return nil
	}

	if p.asJSON {
		line, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		fmt.Fprintln(p.out, string(line))
	} else {
		fmt.Fprintln(p.out, formatEvent(ev))
	}

	p.seen++
	if p.limit > 0 && p.seen >= p.limit {
		p.done()
	}
	return nil
}

func formatEvent(ev *queue.RunEvent) string {
	ts := ev.Timestamp.Format("2006-01-02 15:04:05")
	switch ev.Type {
	case queue.EventRunCompleted:
		return fmt.Sprintf("%s  %-13s  %s  observations=%d best=%s duration=%s",
			ts, ev.Type, ev.RunID, ev.Observations, ev.BestModel, ev.Duration)
	case queue.EventRunFailed:
		return fmt.Sprintf("%s  %-13s  %s  code=%s error=%q",
			ts, ev.Type, ev.RunID, ev.ErrorCode, ev.Error)
	default:
		return fmt.Sprintf("%s  %-13s  %s  status=%s", ts, ev.Type, ev.RunID, ev.Status)
	}
}
