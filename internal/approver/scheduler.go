package approver

import (
	"context"
	"errors"
	"fmt"
	"showroom-approver/internal/components/assert"
	"showroom-approver/internal/components/chrono"
	"showroom-approver/internal/components/telemetry"
	"showroom-approver/internal/scrapers/showroom"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	report_scheduler_validate = "scheduler.validate"
	report_scheduler_cycle    = "scheduler.cycle"
	report_scheduler_pending  = "scheduler.pending"
	report_scheduler_stop     = "scheduler.stop"
)

var tracer = otel.Tracer("showroom-approver/internal/approver")

var ErrAlreadyRunning = errors.New("polling is already running")

// Platform is the part of the organizer console the scheduler drives.
//
// note: fault injection point
type Platform interface {
	ScanPending(ctx context.Context, roomFilter string) (showroom.ScanResult, error)
	Approve(ctx context.Context, record showroom.ApprovalRecord) showroom.ApprovalOutcome
}

// PollCycleReport describes one scan and approve cycle.
type PollCycleReport struct {
	CycleId   uuid.UUID                  `json:"cycle_id"`
	StartedAt time.Time                  `json:"started_at"`
	Pending   int                        `json:"pending"`
	Attempted int                        `json:"attempted"`
	Succeeded int                        `json:"succeeded"`
	Elapsed   time.Duration              `json:"elapsed"`
	Outcomes  []showroom.ApprovalOutcome `json:"outcomes"`
	Error     string                     `json:"error,omitempty"`
	Err       error                      `json:"-"`
}

// SessionDied reports whether the cycle ended because the session is no longer valid.
func (r PollCycleReport) SessionDied() bool {
	return sessionDied(r.Err)
}

func sessionDied(err error) bool {
	return errors.Is(err, showroom.ErrSessionInvalid) || errors.Is(err, showroom.ErrLoginRequired)
}

// nextWait is the pause between the end of a cycle and the start of the next one, it keeps
// cycle starts one interval apart.
func nextWait(interval, elapsed time.Duration) time.Duration {
	wait := interval - elapsed
	if wait < 0 {
		return 0
	}
	return wait
}

type SchedulerOptions struct {
	// SubmitDelay is the pause between two submissions of the same cycle.
	SubmitDelay time.Duration
	// OnReport is called from the polling goroutine after every cycle, it must not call Stop.
	OnReport func(PollCycleReport)
	// OnStop is called once the loop has exited, err is nil when it was stopped externally.
	OnStop func(err error)
}

// SchedulerStatus is a snapshot of the scheduler's state.
type SchedulerStatus struct {
	Running    bool             `json:"running"`
	LastReport *PollCycleReport `json:"last_report"`
	LastError  string           `json:"last_error,omitempty"`
}

// Scheduler runs scan and approve cycles at a fixed interval on a single goroutine. It is
// either idle or running, Start and Stop are the only transitions.
type Scheduler struct {
	platform Platform
	clock    chrono.TimeAPI
	tel      telemetry.API
	opts     SchedulerOptions

	mutex      sync.Mutex
	cancel     context.CancelFunc
	done       chan struct{}
	lastReport *PollCycleReport
	lastError  error
}

func NewScheduler(platform Platform, clock chrono.TimeAPI, tel telemetry.API, opts SchedulerOptions) *Scheduler {
	assert.NotNil(platform)
	assert.NotNil(clock)
	assert.NotNil(tel)
	return &Scheduler{
		platform: platform,
		clock:    clock,
		tel:      tel,
		opts:     opts,
	}
}

// Start validates the session with one scan and then starts polling in the background. If the
// validation fails the scheduler stays idle and the cause is returned. The loop lives until
// ctx is cancelled, Stop is called or the session dies.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("polling interval must be positive, got %s", interval)
	}

	s.mutex.Lock()
	if s.done != nil {
		s.mutex.Unlock()
		return ErrAlreadyRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.lastError = nil
	s.mutex.Unlock()

	startedAt := s.clock.Now()
	first, err := s.platform.ScanPending(loopCtx, "")
	if err != nil {
		s.tel.ReportBroken(report_scheduler_validate, err)
		s.finish(done, cancel, err)
		return fmt.Errorf("validate session: %w", err)
	}

	go s.loop(loopCtx, interval, done, cancel, startedAt, &first)
	return nil
}

// Stop cancels the loop and waits for it to exit. It returns false when nothing was running.
func (s *Scheduler) Stop() bool {
	s.mutex.Lock()
	cancel, done := s.cancel, s.done
	s.mutex.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	<-done
	return true
}

func (s *Scheduler) IsRunning() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.done != nil
}

func (s *Scheduler) Status() SchedulerStatus {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	status := SchedulerStatus{
		Running:    s.done != nil,
		LastReport: s.lastReport,
	}
	if s.lastError != nil {
		status.LastError = s.lastError.Error()
	}
	return status
}

func (s *Scheduler) finish(done chan struct{}, cancel context.CancelFunc, cause error) {
	s.mutex.Lock()
	if s.done == done {
		s.cancel = nil
		s.done = nil
	}
	if cause != nil {
		s.lastError = cause
	}
	s.mutex.Unlock()

	cancel()
	close(done)
}

func (s *Scheduler) loop(
	ctx context.Context,
	interval time.Duration,
	done chan struct{},
	cancel context.CancelFunc,
	startedAt time.Time,
	prefetched *showroom.ScanResult,
) {
	var cause error
	defer func() {
		s.finish(done, cancel, cause)
		if cause != nil {
			s.tel.ReportBroken(report_scheduler_stop, cause)
		}
		if s.opts.OnStop != nil {
			s.opts.OnStop(cause)
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		report := s.cycle(ctx, startedAt, prefetched)
		prefetched = nil
		s.publish(report)

		if report.SessionDied() {
			cause = report.Err
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(nextWait(interval, report.Elapsed)):
		}
		startedAt = s.clock.Now()
	}
}

func (s *Scheduler) publish(report PollCycleReport) {
	s.mutex.Lock()
	s.lastReport = &report
	s.mutex.Unlock()

	if s.opts.OnReport != nil {
		s.opts.OnReport(report)
	}
}

// cycle scans the whole organizer queue (unless a scan is given) and approves everything
// pending in it.
func (s *Scheduler) cycle(ctx context.Context, startedAt time.Time, scan *showroom.ScanResult) PollCycleReport {
	ctx, span := tracer.Start(ctx, "scheduler:Cycle")
	defer span.End()

	report := PollCycleReport{
		CycleId:   uuid.New(),
		StartedAt: startedAt.In(chrono.JST()),
		Outcomes:  []showroom.ApprovalOutcome{},
	}
	span.SetAttributes(attribute.String("cycle_id", report.CycleId.String()))

	err := s.approveAll(ctx, &report, scan)
	report.Elapsed = s.clock.Now().Sub(startedAt)
	if err != nil {
		report.Err = err
		report.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "cycle failed")

		switch {
		case sessionDied(err):
		case errors.Is(err, context.Canceled):
		default:
			// transport failures are retried by the next cycle's fresh fetch
			s.tel.ReportWarning(report_scheduler_cycle, err)
		}
	}

	s.tel.ReportDebug(
		"cycle finished",
		report.CycleId.String(),
		report.Pending,
		report.Attempted,
		report.Succeeded,
		report.Elapsed.String(),
	)
	return report
}

func (s *Scheduler) approveAll(ctx context.Context, report *PollCycleReport, scan *showroom.ScanResult) error {
	if scan == nil {
		result, err := s.platform.ScanPending(ctx, "")
		if err != nil {
			return err
		}
		scan = &result
	}
	report.Pending = len(scan.Records)
	s.tel.ReportCount(report_scheduler_pending, int64(report.Pending))

	for i, record := range scan.Records {
		if i > 0 && s.opts.SubmitDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.clock.After(s.opts.SubmitDelay):
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		outcome := s.platform.Approve(ctx, record)
		report.Attempted++
		if outcome.Success {
			report.Succeeded++
		}
		report.Outcomes = append(report.Outcomes, outcome)

		if outcome.Status == showroom.OUTCOME_LOGIN_REQUIRED {
			return outcome.Err
		}
	}
	return nil
}
