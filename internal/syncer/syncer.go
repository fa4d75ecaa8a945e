// Package syncer reconciles the local replica with the remote authority.
//
// Two independent protocols run under one coordinator:
//
//   - Pull: once, after the store is ready and a credential exists, the
//     coordinator asks the remote for every task newer than the local
//     watermark and merges the results last-writer-wins on the updated
//     clock. Pull never deletes or regresses local state.
//   - Push: on a repeating timer, the coordinator drains the mutation
//     queue and delivers each record to the remote. Delivery is
//     at-least-once: records whose call fails are re-enqueued for the
//     next tick, which the remote's upsert-by-id tolerates.
//
// Both protocols are no-ops while no credential is present. Clearing the
// credential is terminal: the push timer halts and Run returns.
//
// Sync failures are logged and swallowed, never surfaced to callers;
// offline operation is the normal case, not an error.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"planner/internal/queue"
	"planner/internal/store"
)

// Config holds coordinator configuration.
type Config struct {
	// PushInterval is the fixed period of the push timer.
	// Defaults to 30 seconds.
	PushInterval time.Duration

	// Logger for sync activity. Nil gets a no-op logger.
	Logger *zap.Logger
}

// Coordinator bridges the local store/queue pair and the remote endpoint.
// It owns no storage itself; the store and queue are injected and remain
// exclusively owned by the session that created them.
type Coordinator struct {
	store  *store.Store
	queue  *queue.Queue
	client *Client
	tokens TokenSource

	interval time.Duration
	logger   *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a coordinator. The store and queue must be open; the client
// must point at the remote endpoint.
func New(st *store.Store, q *queue.Queue, client *Client, tokens TokenSource, cfg Config) *Coordinator {
	if cfg.PushInterval == 0 {
		cfg.PushInterval = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Coordinator{
		store:    st,
		queue:    q,
		client:   client,
		tokens:   tokens,
		interval: cfg.PushInterval,
		logger:   cfg.Logger,
	}
}

// Start launches the coordinator loop in the background. Use Stop for a
// graceful halt, or cancel the context passed here.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
}

// Stop cancels the push timer and waits for any in-progress cycle to
// finish.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// run is the coordinator loop. State progression:
// unauthenticated -> authenticated&unsynced -> pulling -> idle <-> pushing.
// A credential transition back to empty is terminal.
func (c *Coordinator) run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	pulled := false
	authenticated := false

	cycle := func() bool {
		token := c.tokens.Token()
		if token == "" {
			if authenticated {
				c.logger.Info("credential cleared, halting sync")
				return false
			}
			return true
		}
		authenticated = true

		if !pulled {
			if err := c.pull(ctx, token); err != nil {
				c.logger.Warn("pull failed, will retry", zap.Error(err))
			} else {
				pulled = true
			}
		}
		c.push(ctx, token)
		return true
	}

	if !cycle() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !cycle() {
				return
			}
		}
	}
}

// pull merges remote tasks newer than the local watermark into the store,
// last-writer-wins on the updated clock. Local tasks that are newer than
// their remote counterpart, or that have no counterpart, are untouched.
func (c *Coordinator) pull(ctx context.Context, token string) error {
	watermark, err := c.store.LatestUpdated(ctx)
	if err != nil {
		return fmt.Errorf("failed to read watermark: %w", err)
	}

	remote, err := c.client.ListTasks(ctx, token, watermark)
	if err != nil {
		return err
	}

	merged := 0
	for _, rt := range remote {
		existing, err := c.store.Read(ctx, rt.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			if err := c.store.CreateFromRemote(ctx, rt); err != nil {
				c.logger.Warn("failed to apply remote create",
					zap.String("id", rt.ID), zap.Error(err))
				continue
			}
			merged++
		case err != nil:
			c.logger.Warn("failed to read local task during pull",
				zap.String("id", rt.ID), zap.Error(err))
		case rt.Updated > existing.Updated:
			if err := c.store.UpdateFromRemote(ctx, rt); err != nil {
				c.logger.Warn("failed to apply remote update",
					zap.String("id", rt.ID), zap.Error(err))
				continue
			}
			merged++
		}
	}

	c.logger.Info("pull complete",
		zap.Int64("watermark", watermark),
		zap.Int("received", len(remote)),
		zap.Int("merged", merged))
	return nil
}

// push drains the queue and delivers the records sequentially. The drain
// is destructive: mutations enqueued while a push is in flight belong to
// the next tick. Failed records are re-enqueued.
func (c *Coordinator) push(ctx context.Context, token string) {
	recs, err := c.queue.Drain()
	if err != nil {
		c.logger.Warn("failed to drain queue", zap.Error(err))
		return
	}
	if len(recs) == 0 {
		return
	}

	var failed []queue.Record
	for _, rec := range recs {
		if err := c.client.SyncRecord(ctx, token, rec); err != nil {
			c.logger.Warn("failed to push record",
				zap.String("id", rec.ID), zap.String("type", string(rec.Type)), zap.Error(err))
			failed = append(failed, rec)
		}
	}

	if len(failed) > 0 {
		if err := c.queue.Requeue(failed); err != nil {
			c.logger.Error("failed to requeue records, mutations lost",
				zap.Int("count", len(failed)), zap.Error(err))
		}
	}

	c.logger.Info("push complete",
		zap.Int("sent", len(recs)-len(failed)),
		zap.Int("requeued", len(failed)))
}
