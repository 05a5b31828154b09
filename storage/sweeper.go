package storage

import (
	"context"
	"time"

	"github.com/adhocore/gronx"

	"autosig/utils"
)

// Sweeper purges hard-expired entries from every mailbox partition of a
// durable store on a cron schedule.
type Sweeper struct {
	durable  Durable
	schedule string
	log      *utils.Logger
}

// NewSweeper validates the cron expression
func NewSweeper(durable Durable, schedule string, log *utils.Logger) (*Sweeper, error) {
	if !gronx.New().IsValid(schedule) {
		return nil, utils.StorageError("invalid sweep schedule "+schedule, nil)
	}
	if log == nil {
		log = utils.Nop()
	}
	return &Sweeper{durable: durable, schedule: schedule, log: log.WithField("component", "sweeper")}, nil
}

// SweepAll runs one pass and returns the number of removed entries
func (s *Sweeper) SweepAll(ctx context.Context) (int, error) {
	mailboxes, err := s.durable.Mailboxes(ctx)
	if err != nil {
		return 0, utils.StorageError("list mailboxes", err)
	}

	total := 0
	for _, mb := range mailboxes {
		n, err := NewStore(s.durable.ForMailbox(mb), s.log).Sweep(ctx)
		if err != nil {
			s.log.Warn("Sweep of %s failed: %v", mb, err)
			continue
		}
		total += n
	}
	return total, nil
}

// Run sweeps at every tick of the schedule until ctx is done
func (s *Sweeper) Run(ctx context.Context) {
	for {
		next, err := gronx.NextTick(s.schedule, false)
		if err != nil {
			s.log.Error("Cannot compute next sweep: %v", err)
			return
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		n, err := s.SweepAll(ctx)
		if err != nil {
			s.log.Error("Sweep failed: %v", err)
			continue
		}
		if n > 0 {
			s.log.Info("Swept %d expired entries", n)
		}
	}
}
