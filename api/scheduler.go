/*
scheduler.go - Midnight rollover scheduler

PURPOSE:
  A slice left running overnight would span two day timelines. The
  scheduler periodically asks the service to split it at the day boundary
  so every day's slice set stays bounded by its own day.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each tick calls Rollover.RolloverDay; a no-op when nothing spans midnight
  - Runs once immediately on start (catches a laptop waking up)

USAGE:
  scheduler := NewRolloverScheduler(svc, time.Minute)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - timeline/service.go: RolloverDay
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"
)

// Roller splits a slice running across midnight.
type Roller interface {
	RolloverDay(ctx context.Context) (bool, error)
}

// RolloverScheduler periodically triggers midnight rollover.
type RolloverScheduler struct {
	Roller        Roller
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRolloverScheduler creates a new scheduler.
func NewRolloverScheduler(roller Roller, interval time.Duration) *RolloverScheduler {
	return &RolloverScheduler{
		Roller:        roller,
		CheckInterval: interval,
		Enabled:       true,
	}
}

// Start begins the scheduler.
func (rs *RolloverScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run(rs.ticker, rs.stop)

	log.Printf("[Scheduler] Started with check interval: %v", rs.CheckInterval)
}

// Stop stops the scheduler and waits for an in-flight check to finish.
func (rs *RolloverScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		log.Println("[Scheduler] Stopped")
	}
}

func (rs *RolloverScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer rs.wg.Done()

	// Run immediately on start
	rs.check()

	for {
		select {
		case <-ticker.C:
			rs.check()
		case <-stop:
			return
		}
	}
}

func (rs *RolloverScheduler) check() {
	rolled, err := rs.Roller.RolloverDay(context.Background())
	if err != nil {
		log.Printf("[Scheduler] Rollover failed: %v", err)
		return
	}
	if rolled {
		log.Println("[Scheduler] Split running slice at midnight")
	}
}

// RunNow triggers an immediate check (for testing/admin).
func (rs *RolloverScheduler) RunNow() {
	rs.check()
}
