package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Sender delivers one message to whatever channel the deployment uses
// (websocket fanout, push relay, log sink). Errors are counted against the
// message's attempt budget.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Source claims and settles outbox messages.
type Source interface {
	Claim(ctx context.Context, limit int) ([]Message, error)
	MarkProcessed(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, maxAttempts int) error
}

// Dispatcher drains the outbox and forwards messages through the Sender.
// Notification is fire-and-forget: failures never touch process records.
type Dispatcher struct {
	source      Source
	sender      Sender
	log         *zap.Logger
	workers     int
	batchSize   int
	pollEvery   time.Duration
	maxAttempts int
}

func NewDispatcher(source Source, sender Sender, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		source:      source,
		sender:      sender,
		log:         log,
		workers:     4,
		batchSize:   10,
		pollEvery:   time.Second,
		maxAttempts: 5,
	}
}

// Run polls until the context is cancelled. Each batch is fanned out over a
// bounded worker group.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := d.drainOnce(ctx); err != nil && ctx.Err() == nil {
				d.log.Warn("outbox drain failed", zap.Error(err))
			}
		}
	}
}

func (d *Dispatcher) drainOnce(ctx context.Context) error {
	msgs, err := d.source.Claim(ctx, d.batchSize)
	if err != nil {
		return fmt.Errorf("notify: claim outbox: %w", err)
	}
	if len(msgs) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for _, msg := range msgs {
		g.Go(func() error {
			// Settle errors are logged, never returned: a failed mark
			// must not cancel the sibling sends in this batch. The row
			// stays claimed and the stale-claim sweep requeues it.
			if err := d.sender.Send(gctx, msg); err != nil {
				d.log.Warn("notification delivery failed",
					zap.String("outbox_id", msg.ID),
					zap.String("topic", msg.Topic),
					zap.Int("attempts", msg.Attempts+1),
					zap.Error(err),
				)
				if err := d.source.MarkFailed(gctx, msg.ID, d.maxAttempts); err != nil {
					d.log.Warn("outbox settle failed",
						zap.String("outbox_id", msg.ID), zap.Error(err))
				}
				return nil
			}
			d.log.Debug("notification delivered",
				zap.String("outbox_id", msg.ID),
				zap.String("topic", msg.Topic),
			)
			if err := d.source.MarkProcessed(gctx, msg.ID); err != nil {
				d.log.Warn("outbox settle failed",
					zap.String("outbox_id", msg.ID), zap.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}

// PGSource claims messages with SKIP LOCKED so multiple dispatcher
// instances never double-send.
type PGSource struct {
	pool *pgxpool.Pool
}

func NewPGSource(pool *pgxpool.Pool) *PGSource {
	return &PGSource{pool: pool}
}

func (s *PGSource) Claim(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 10
	}

	// Single-statement claim: SKIP LOCKED keeps concurrent dispatcher
	// instances from grabbing the same rows, and flipping the status in
	// the same statement keeps the claim durable after the lock drops.
	// Rows stranded in 'processing' by a dispatcher that died between
	// claim and settle become claimable again once the claim goes stale.
	const query = `
		UPDATE outbox
		SET status = 'processing', last_attempt = now()
		WHERE id IN (
			SELECT id FROM outbox
			WHERE status = 'pending'
			   OR (status = 'processing' AND last_attempt < now() - interval '2 minutes')
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT $1
		)
		RETURNING id, topic, payload, status, attempts, created_at
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("notify: query outbox: %w", err)
	}
	defer rows.Close()

	msgs := make([]Message, 0, limit)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Topic, &m.Payload, &m.Status, &m.Attempts, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("notify: scan outbox row: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("notify: iterate outbox: %w", err)
	}
	return msgs, nil
}

func (s *PGSource) MarkProcessed(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE outbox SET status='processed', last_attempt=now() WHERE id=$1`, id); err != nil {
		return fmt.Errorf("notify: mark processed: %w", err)
	}
	return nil
}

func (s *PGSource) MarkFailed(ctx context.Context, id string, maxAttempts int) error {
	if _, err := s.pool.Exec(ctx, `
		UPDATE outbox
		SET attempts = attempts + 1,
		    last_attempt = now(),
		    status = CASE WHEN attempts + 1 >= $2 THEN 'dead' ELSE 'pending' END
		WHERE id = $1
	`, id, maxAttempts); err != nil {
		return fmt.Errorf("notify: mark failed: %w", err)
	}
	return nil
}

// LogSender is the default Sender: it only logs the event token. Real
// deployments plug in their own channel.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.log.Info("process notification",
		zap.String("topic", msg.Topic),
		zap.ByteString("payload", msg.Payload),
	)
	return nil
}
