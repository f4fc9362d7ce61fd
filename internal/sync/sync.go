// Package sync periodically exports the stream event log to external
// destinations (S3, git) and prunes what has aged out of retention.
package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/shingolive/internal/store"
)

// Destination receives each JSONL export.
type Destination interface {
	Write(ctx context.Context, data []byte) error
}

// ErrSyncInProgress is returned by SyncOnce while another sync is running.
var ErrSyncInProgress = errors.New("sync already in progress")

// Scheduler exports the event log to its destinations on an interval.
type Scheduler struct {
	store        store.Store
	destinations []Destination
	interval     time.Duration
	retention    time.Duration
	logger       *slog.Logger
	now          func() time.Time

	running sync.Mutex // held for the duration of one sync

	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(s store.Store, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:        s,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
		now:          time.Now,
	}
}

// SetRetention limits exports to events newer than d and prunes older
// events from the store after every destination accepted an export. 0 keeps
// everything.
func (s *Scheduler) SetRetention(d time.Duration) {
	s.retention = d
}

// Start syncs immediately and then every interval until ctx is done or Stop
// is called.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.loop(ctx)
	}()
}

// Stop ends the loop and waits for an in-flight sync.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.SyncOnce(ctx); errors.Is(err, ErrSyncInProgress) {
			s.logger.Debug("skipping sync tick, previous sync still running")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SyncOnce exports once, writing to all destinations concurrently. It
// returns every destination error joined, and prunes only when all writes
// succeeded.
func (s *Scheduler) SyncOnce(ctx context.Context) error {
	if !s.running.TryLock() {
		return ErrSyncInProgress
	}
	defer s.running.Unlock()

	start := s.now()
	var cutoff time.Time
	if s.retention > 0 {
		cutoff = start.Add(-s.retention)
	}

	var buf bytes.Buffer
	if err := ExportJSONL(ctx, s.store, &buf, cutoff); err != nil {
		s.logger.Error("sync export failed", "error", err)
		return err
	}
	data := buf.Bytes()

	if err := s.writeAll(ctx, data); err != nil {
		return err
	}

	if !cutoff.IsZero() {
		n, err := s.store.PruneEvents(ctx, cutoff)
		switch {
		case err != nil:
			s.logger.Warn("event log prune failed", "error", err)
		case n > 0:
			s.logger.Info("pruned event log", "deleted", n, "before", cutoff)
		}
	}

	s.logger.Info("sync completed", "destinations", len(s.destinations), "bytes", len(data), "took", time.Since(start))
	return nil
}

func (s *Scheduler) writeAll(ctx context.Context, data []byte) error {
	errs := make([]error, len(s.destinations))
	var wg sync.WaitGroup
	for i, dest := range s.destinations {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dest.Write(ctx, data); err != nil {
				name := destinationName(i, dest)
				s.logger.Error("sync destination write failed", "destination", name, "error", err)
				errs[i] = fmt.Errorf("%s: %w", name, err)
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// destinationName identifies a destination in logs.
func destinationName(i int, dest Destination) string {
	if s, ok := dest.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("#%d", i)
}
