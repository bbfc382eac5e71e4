// Package scheduler drives the periodic distribution jobs: pushing
// inventory out, pulling reservations in, sweeping for overbooking, and
// checking rate parity.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/staybridge/channelsync/internal/bookingstore"
	"github.com/staybridge/channelsync/internal/clock"
	"github.com/staybridge/channelsync/internal/config"
	obsmetrics "github.com/staybridge/channelsync/internal/observability/metrics"
	"github.com/staybridge/channelsync/internal/overbooking"
	"github.com/staybridge/channelsync/internal/parity"
	reservationdomain "github.com/staybridge/channelsync/internal/reservation/domain"
	syncdomain "github.com/staybridge/channelsync/internal/sync/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

// parityWindow is how far ahead the scheduled parity check looks.
const parityWindow = 7 * 24 * time.Hour

type Params struct {
	fx.In

	Log            *zap.Logger
	SyncSvc        syncdomain.Service
	ReservationSvc reservationdomain.Service
	Guard          *overbooking.Guard
	ParitySvc      parity.Service
	Bookings       bookingstore.Store
	Clock          clock.Clock
	SyncCfg        *config.SyncConfigHolder
	Config         Config `optional:"true"`
}

type Scheduler struct {
	log            *zap.Logger
	cfg            Config
	syncSvc        syncdomain.Service
	reservationSvc reservationdomain.Service
	guard          *overbooking.Guard
	paritySvc      parity.Service
	bookings       bookingstore.Store
	clock          clock.Clock
	syncCfg        *config.SyncConfigHolder

	lastRun map[string]time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.SyncSvc == nil || p.ReservationSvc == nil || p.Guard == nil || p.ParitySvc == nil || p.Bookings == nil || p.Clock == nil || p.SyncCfg == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:            p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:            p.Config.withDefaults(),
		syncSvc:        p.SyncSvc,
		reservationSvc: p.ReservationSvc,
		guard:          p.Guard,
		paritySvc:      p.ParitySvc,
		bookings:       p.Bookings,
		clock:          p.Clock,
		syncCfg:        p.SyncCfg,
		lastRun:        make(map[string]time.Time),
	}, nil
}

type job struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	run      func(ctx context.Context) error
}

func (s *Scheduler) jobs() []job {
	cfg := s.syncCfg.Get()
	return []job{
		{
			name:     "push_all",
			interval: cfg.PushInterval,
			timeout:  s.cfg.JobTimeout,
			run: func(ctx context.Context) error {
				from := s.clock.Now()
				report, err := s.syncSvc.PushToAllChannels(ctx, from, from.Add(cfg.PushHorizon))
				if err != nil {
					return err
				}
				if report.Failed > 0 {
					s.log.Warn("scheduled push finished with failures",
						zap.Int("failed", report.Failed),
						zap.Int("successful", report.Successful))
				}
				return nil
			},
		},
		{
			name:     "pull_all",
			interval: cfg.PullInterval,
			timeout:  s.cfg.JobTimeout,
			run: func(ctx context.Context) error {
				report, err := s.reservationSvc.PullFromAllChannels(ctx)
				if err != nil {
					return err
				}
				if report.Failed > 0 {
					s.log.Warn("scheduled pull finished with failures",
						zap.Int("failed", report.Failed),
						zap.Int("imported", report.Imported))
				}
				return nil
			},
		},
		{
			name:     "overbooking_sweep",
			interval: cfg.OverbookingInterval,
			timeout:  s.cfg.JobTimeout,
			run: func(ctx context.Context) error {
				sweep, err := s.guard.SweepUpcoming(ctx, cfg.OverbookingHorizon)
				if err != nil {
					return err
				}
				if sweep.RoomsRemoved > 0 || sweep.Escalations > 0 {
					s.log.Warn("overbooking sweep made corrections",
						zap.Int("rooms_removed", sweep.RoomsRemoved),
						zap.Int("escalations", sweep.Escalations))
				}
				return nil
			},
		},
		{
			name:     "parity_check",
			interval: cfg.ParityInterval,
			timeout:  s.cfg.JobTimeout,
			run:      s.parityJob,
		},
	}
}

func (s *Scheduler) parityJob(ctx context.Context) error {
	roomTypes, err := s.bookings.ListRoomTypes(ctx)
	if err != nil {
		return err
	}
	from := s.clock.Now()
	to := from.Add(parityWindow)

	var jobErr error
	for _, rt := range roomTypes {
		report, err := s.paritySvc.CheckParity(ctx, rt.ID, from, to)
		if err != nil {
			jobErr = errors.Join(jobErr, fmt.Errorf("room type %s: %w", rt.Code, err))
			continue
		}
		if !report.Compliant {
			s.log.Warn("rate parity violations detected",
				zap.String("room_type", rt.Code),
				zap.Int("violations", len(report.Violations)))
		}
	}
	return jobErr
}

// RunOnce executes every due, enabled job. Jobs are isolated; errors are
// joined and reported together.
func (s *Scheduler) RunOnce(parent context.Context) error {
	now := s.clock.Now()
	var err error
	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.name) {
			continue
		}
		if last, ok := s.lastRun[j.name]; ok && now.Sub(last) < j.interval {
			continue
		}
		s.lastRun[j.name] = now
		err = errors.Join(err, s.runJob(parent, j))
	}
	return err
}

func (s *Scheduler) runJob(parent context.Context, j job) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, j.timeout)
	defer cancel()

	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(j.name)

	err := j.run(ctx)
	schedMetrics.ObserveJobDuration(j.name, time.Since(start))
	if err == nil {
		return nil
	}
	schedMetrics.IncJobError(j.name)

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.log.Warn("job timed out",
			zap.String("job", j.name),
			zap.Duration("timeout", j.timeout),
			zap.Error(err))
		return nil
	}
	s.log.Error("job failed",
		zap.String("job", j.name),
		zap.Error(err))
	return fmt.Errorf("%s: %w", j.name, err)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
