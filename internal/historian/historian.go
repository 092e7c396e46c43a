// internal/historian/historian.go
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jason-s-yu/arena/internal/cache"
	"github.com/jason-s-yu/arena/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Store persists batches of match records.
type Store interface {
	RecordMatches(ctx context.Context, recs []models.MatchRecord) error
}

// Config tunes batching.
type Config struct {
	Queue      string
	BatchSize  int
	FlushDelay time.Duration
	// PopTimeout bounds each blocking pop so flushes and shutdown are noticed.
	PopTimeout time.Duration
	// RetryBackoff is the pause after a failed store write. It doubles on
	// each consecutive failure up to MaxRetryBackoff.
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
}

// DefaultConfig flushes every 20 records or 500ms.
var DefaultConfig = Config{
	Queue:      cache.DefaultQueueName,
	BatchSize:  20,
	FlushDelay: 500 * time.Millisecond,
	PopTimeout: time.Second,

	RetryBackoff:    time.Second,
	MaxRetryBackoff: 30 * time.Second,
}

// Service drains the match queue into the store.
type Service struct {
	rdb    *redis.Client
	store  Store
	cfg    Config
	logger *logrus.Logger

	batch     []models.MatchRecord
	lastFlush time.Time
	backoff   time.Duration
}

// New constructs a Service. Zero config fields take their defaults.
func New(rdb *redis.Client, store Store, cfg Config, logger *logrus.Logger) *Service {
	if cfg.Queue == "" {
		cfg.Queue = DefaultConfig.Queue
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig.BatchSize
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = DefaultConfig.FlushDelay
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = DefaultConfig.PopTimeout
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultConfig.RetryBackoff
	}
	if cfg.MaxRetryBackoff < cfg.RetryBackoff {
		cfg.MaxRetryBackoff = max(DefaultConfig.MaxRetryBackoff, cfg.RetryBackoff)
	}
	return &Service{
		rdb:    rdb,
		store:  store,
		cfg:    cfg,
		logger: logger,
		batch:  make([]models.MatchRecord, 0, cfg.BatchSize),
	}
}

// Run pops records until ctx is cancelled, flushing a batch when it is full
// or FlushDelay has passed since the last flush. Whatever is buffered at
// shutdown is flushed before returning.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Infof("historian: draining %s (batch %d, flush %s)", s.cfg.Queue, s.cfg.BatchSize, s.cfg.FlushDelay)
	s.lastFlush = time.Now()

	for {
		if ctx.Err() != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			s.flush(shutdownCtx)
			cancel()
			s.logger.Info("historian: shutting down")
			return nil
		}

		res, err := s.rdb.BLPop(ctx, s.cfg.PopTimeout, s.cfg.Queue).Result()
		switch {
		case err == nil && len(res) == 2:
			s.add(res[1])
		case err == nil, errors.Is(err, redis.Nil):
		case ctx.Err() != nil:
			continue
		default:
			s.logger.WithError(err).Error("historian: BLPop failed")
			time.Sleep(s.cfg.PopTimeout)
		}

		if len(s.batch) >= s.cfg.BatchSize || (len(s.batch) > 0 && time.Since(s.lastFlush) >= s.cfg.FlushDelay) {
			if err := s.flush(ctx); err != nil {
				s.wait(ctx)
			}
		}
	}
}

func (s *Service) add(payload string) {
	var rec models.MatchRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		s.logger.WithError(err).Warn("historian: dropping invalid match record")
		return
	}
	s.batch = append(s.batch, rec)
}

// flush writes the batch in one transaction. A failed batch is pushed back
// onto the queue so no record is lost.
func (s *Service) flush(ctx context.Context) error {
	s.lastFlush = time.Now()
	if len(s.batch) == 0 {
		return nil
	}
	batch := s.batch
	s.batch = make([]models.MatchRecord, 0, s.cfg.BatchSize)

	if err := s.store.RecordMatches(ctx, batch); err != nil {
		s.logger.WithError(err).Errorf("historian: failed to store %d matches, requeueing", len(batch))
		s.requeue(batch)
		return err
	}
	s.backoff = 0
	s.logger.Debugf("historian: flushed %d matches", len(batch))
	return nil
}

// wait pauses after a failed flush so an unavailable store is not retried
// in a tight loop.
func (s *Service) wait(ctx context.Context) {
	if s.backoff == 0 {
		s.backoff = s.cfg.RetryBackoff
	} else {
		s.backoff = min(2*s.backoff, s.cfg.MaxRetryBackoff)
	}
	s.logger.Warnf("historian: retrying in %s", s.backoff)

	timer := time.NewTimer(s.backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (s *Service) requeue(batch []models.MatchRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	values := make([]interface{}, 0, len(batch))
	for _, rec := range batch {
		data, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		values = append(values, data)
	}
	if err := s.rdb.RPush(ctx, s.cfg.Queue, values...).Err(); err != nil {
		s.logger.WithError(err).Errorf("historian: lost %d matches", len(batch))
	}
}
