package main

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// cronLogger adapts zerolog to cron's logger interface.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// scheduler runs one job on a cron spec. A run that is still going when the
// next tick fires causes that tick to be skipped.
type scheduler struct {
	cron    *cron.Cron
	entryID cron.EntryID
}

// newScheduler accepts standard five-field specs and descriptors such as
// "@daily" or "@every 6h".
func newScheduler(spec string, logger zerolog.Logger, job func()) (*scheduler, error) {
	cl := cronLogger{log: logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	id, err := c.AddFunc(spec, job)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return &scheduler{cron: c, entryID: id}, nil
}

func (s *scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for a running job to finish.
func (s *scheduler) Stop() {
	<-s.cron.Stop().Done()
}
