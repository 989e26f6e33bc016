package approver

import (
	"context"
	"fmt"
	"showroom-approver/internal/components/assert"
	"showroom-approver/internal/components/chrono"
	"showroom-approver/internal/components/telemetry"
	"showroom-approver/internal/notify"
	"showroom-approver/internal/scrapers/showroom"
	"showroom-approver/pkg/restyutil"
	"time"
)

const (
	report_service_scan_once    = "service.scan-once"
	report_service_approve_room = "service.approve-room"
	report_service_notify       = "service.notify"
)

// Service is what the CLI and the control API drive: one-shot scans and approvals plus the
// polling scheduler, all sharing a single authenticated session.
type Service struct {
	cfg       Config
	platform  Platform
	scheduler *Scheduler
	clock     chrono.TimeAPI
	tel       telemetry.API
}

type serviceConfig struct {
	platform Platform
	notifier notify.Notifier
	onReport func(PollCycleReport)
	onStop   func(error)
}

type ServiceOption func(cfg *serviceConfig)

// WithPlatform replaces the http client built from the config.
func WithPlatform(platform Platform) ServiceOption {
	return func(cfg *serviceConfig) {
		cfg.platform = platform
	}
}

// WithNotifier replaces the email notifier built from the config.
func WithNotifier(notifier notify.Notifier) ServiceOption {
	return func(cfg *serviceConfig) {
		cfg.notifier = notifier
	}
}

// WithCycleReports registers a callback for every polling cycle.
func WithCycleReports(onReport func(PollCycleReport)) ServiceOption {
	return func(cfg *serviceConfig) {
		cfg.onReport = onReport
	}
}

// WithStopHandler registers a callback for when polling stops.
func WithStopHandler(onStop func(error)) ServiceOption {
	return func(cfg *serviceConfig) {
		cfg.onStop = onStop
	}
}

// NewService builds the session and client described by cfg. It refuses to start without a
// credential.
func NewService(cfg Config, tel telemetry.API, clock chrono.TimeAPI, options ...ServiceOption) (*Service, error) {
	assert.NotNil(tel)
	assert.NotNil(clock)

	cfg = cfg.withDefaults()
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	opts := serviceConfig{}
	for _, opt := range options {
		opt(&opts)
	}

	platform := opts.platform
	if platform == nil {
		session, err := showroom.BuildSession(cfg.AuthCookie)
		if err != nil {
			return nil, fmt.Errorf("build session: %w", err)
		}
		clientOpts := cfg.ClientOptions()
		if cfg.DumpHttpDir != "" {
			output, err := restyutil.NewFilesystemOutput(cfg.DumpHttpDir)
			if err != nil {
				return nil, fmt.Errorf("create http dump directory: %w", err)
			}
			clientOpts.Dump = output
		}
		client, err := showroom.NewClient(session, clientOpts, tel)
		if err != nil {
			return nil, fmt.Errorf("create client: %w", err)
		}
		platform = client
	}

	notifier := opts.notifier
	if notifier == nil && cfg.Notify.Enabled() {
		notifier = notify.NewEmailNotifier(cfg.Notify)
	}

	tel = telemetry.NewScopedAPI("approver", tel)
	scheduler := NewScheduler(platform, clock, tel, SchedulerOptions{
		SubmitDelay: cfg.SubmitDelay(),
		OnReport:    opts.onReport,
		OnStop: func(err error) {
			if err != nil && notifier != nil {
				notifyErr := notifier.SessionDied(context.Background(), clock.Now(), err)
				if notifyErr != nil {
					tel.ReportBroken(report_service_notify, notifyErr)
				}
			}
			if opts.onStop != nil {
				opts.onStop(err)
			}
		},
	})

	return &Service{
		cfg:       cfg,
		platform:  platform,
		scheduler: scheduler,
		clock:     clock,
		tel:       tel,
	}, nil
}

func (s *Service) Config() Config {
	return s.cfg
}

// ScanOnce fetches the admin page once, optionally keeping only one room's requests.
func (s *Service) ScanOnce(ctx context.Context, roomFilter string) (showroom.ScanResult, error) {
	if roomFilter != "" {
		err := ValidateRoomId(roomFilter)
		if err != nil {
			return showroom.ScanResult{}, err
		}
	}

	result, err := s.platform.ScanPending(ctx, roomFilter)
	if err != nil {
		return showroom.ScanResult{}, err
	}
	s.tel.ReportDebug(report_service_scan_once, roomFilter, len(result.Records))
	return result, nil
}

// ApproveOne submits a record from a previous ScanOnce.
func (s *Service) ApproveOne(ctx context.Context, record showroom.ApprovalRecord) showroom.ApprovalOutcome {
	return s.platform.Approve(ctx, record)
}

// ApproveRoom rescans the admin page for a room and approves every pending request of it (or
// only eventId when given) with the token of that same scan. It stops at the first outcome
// that shows the session is gone.
func (s *Service) ApproveRoom(ctx context.Context, roomId, eventId string) ([]showroom.ApprovalOutcome, error) {
	ctx, span := tracer.Start(ctx, "service:ApproveRoom")
	defer span.End()

	eventFilter := ""
	if eventId != "" {
		err := ValidateEventId(eventId)
		if err != nil {
			return nil, err
		}
		eventFilter = showroom.NormalizeId(eventId)
	}

	result, err := s.ScanOnce(ctx, roomId)
	if err != nil {
		return nil, err
	}

	outcomes := []showroom.ApprovalOutcome{}
	submitted := 0
	for _, record := range result.Records {
		if eventFilter != "" && showroom.NormalizeId(record.EventId) != eventFilter {
			continue
		}
		if submitted > 0 {
			err := s.wait(ctx, s.cfg.SubmitDelay())
			if err != nil {
				return outcomes, err
			}
		}
		submitted++

		outcome := s.platform.Approve(ctx, record)
		outcomes = append(outcomes, outcome)
		if outcome.Status == showroom.OUTCOME_LOGIN_REQUIRED {
			s.tel.ReportBroken(report_service_approve_room, outcome.Message, roomId)
			return outcomes, outcome.Err
		}
	}
	return outcomes, nil
}

func (s *Service) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.clock.After(d):
		return nil
	}
}

// StartPolling starts the scheduler, a non-positive interval means the configured one.
func (s *Service) StartPolling(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = s.cfg.Interval()
	}
	return s.scheduler.Start(ctx, interval)
}

func (s *Service) StopPolling() bool {
	return s.scheduler.Stop()
}

func (s *Service) IsRunning() bool {
	return s.scheduler.IsRunning()
}

func (s *Service) PollingStatus() SchedulerStatus {
	return s.scheduler.Status()
}
