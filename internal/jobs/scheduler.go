package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type RememberTokenPurger interface {
	PurgeExpiredRememberTokens(ctx context.Context, now time.Time) (int64, error)
}

type StreamTrimmer interface {
	Trim(ctx context.Context) error
}

type Schedule struct {
	PurgeRememberTokens string
	TrimEvents          string
}

type Scheduler struct {
	cron     *cron.Cron
	tokens   RememberTokenPurger
	stream   StreamTrimmer
	schedule Schedule
	log      zerolog.Logger
}

func NewScheduler(tokens RememberTokenPurger, stream StreamTrimmer, schedule Schedule, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:     c,
		tokens:   tokens,
		stream:   stream,
		schedule: schedule,
		log:      log,
	}
}

func (s *Scheduler) Start() error {
	if s.tokens != nil && s.schedule.PurgeRememberTokens != "" {
		if _, err := s.cron.AddFunc(s.schedule.PurgeRememberTokens, s.purgeRememberTokens); err != nil {
			return err
		}
	}
	if s.stream != nil && s.schedule.TrimEvents != "" {
		if _, err := s.cron.AddFunc(s.schedule.TrimEvents, s.trimEvents); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop waits up to five seconds for running jobs to finish.
func (s *Scheduler) Stop() {
	select {
	case <-s.cron.Stop().Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler stop timed out with jobs still running")
	}
}

func (s *Scheduler) purgeRememberTokens() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := s.tokens.PurgeExpiredRememberTokens(ctx, time.Now())
	if err != nil {
		s.log.Error().Err(err).Msg("purge expired remember tokens failed")
		return
	}
	s.log.Info().Int64("cleared", n).Msg("expired remember tokens purged")
}

func (s *Scheduler) trimEvents() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.stream.Trim(ctx); err != nil {
		s.log.Error().Err(err).Msg("trim auth event stream failed")
	}
}
