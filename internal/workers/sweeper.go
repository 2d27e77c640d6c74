package workers

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Evictor drops idle matches from memory and reports how many went.
type Evictor interface {
	EvictIdle(maxIdle time.Duration) int
}

// Sweeper periodically evicts matches nobody is playing any more.
type Sweeper struct {
	evictor  Evictor
	interval time.Duration
	maxIdle  time.Duration
}

func NewSweeper(evictor Evictor, interval, maxIdle time.Duration) *Sweeper {
	return &Sweeper{evictor: evictor, interval: interval, maxIdle: maxIdle}
}

// Run schedules the sweep and blocks until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.sweep),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	sched.Start()
	log.Printf("idle sweeper running every %s, max idle %s", s.interval, s.maxIdle)

	<-ctx.Done()
	return sched.Shutdown()
}

func (s *Sweeper) sweep() {
	if n := s.evictor.EvictIdle(s.maxIdle); n > 0 {
		log.Printf("sweeper evicted %d idle matches", n)
	}
}
