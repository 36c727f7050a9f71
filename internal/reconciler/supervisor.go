package reconciler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrSupervisorStopped is returned for commands sent after Run has returned.
var ErrSupervisorStopped = errors.New("reconciler supervisor is not running")

// Status is a point-in-time view of the supervisor.
type Status struct {
	Running    bool      `json:"running"`
	Phase      Phase     `json:"phase"`
	Config     Config    `json:"config"`
	Runs       int       `json:"runs"`
	LastRunID  string    `json:"last_run_id,omitempty"`
	LastRunAt  time.Time `json:"last_run_at,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	NextScanAt time.Time `json:"next_scan_at,omitempty"`
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdReconfigure
	cmdScanNow
)

type command struct {
	kind  commandKind
	cfg   Config
	reply chan commandResult
}

type commandResult struct {
	report *Report
	err    error
}

// Supervisor owns the periodic schedule. All state changes and every scan
// happen on the goroutine running Run, so a command that arrives mid-scan is
// handled only after that scan has finished.
type Supervisor struct {
	engine *Reconciler
	logger *zap.Logger
	cmds   chan command
	done   chan struct{}

	mu     sync.RWMutex
	status Status

	// owned by the Run goroutine
	cfg     Config
	running bool
	ticker  *time.Ticker
}

// NewSupervisor creates a supervisor. It does nothing until Run is called,
// and scans periodically only after Start.
func NewSupervisor(engine *Reconciler, cfg Config, logger *zap.Logger) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Supervisor{
		engine: engine,
		logger: logger,
		cmds:   make(chan command),
		done:   make(chan struct{}),
		cfg:    cfg,
	}
	s.status = Status{Phase: PhaseIdle, Config: cfg}
	return s, nil
}

// Run processes commands and ticks until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	defer close(s.done)
	defer s.stopTicker()

	for {
		var tick <-chan time.Time
		if s.ticker != nil {
			tick = s.ticker.C
		}
		select {
		case <-ctx.Done():
			s.logger.Info("reconciler supervisor exiting")
			return
		case <-tick:
			_, _ = s.scan(ctx)
			s.scheduleNext()
		case cmd := <-s.cmds:
			cmd.reply <- s.handle(ctx, cmd)
		}
	}
}

func (s *Supervisor) handle(ctx context.Context, cmd command) commandResult {
	switch cmd.kind {
	case cmdStart:
		if !s.running {
			s.running = true
			s.ticker = time.NewTicker(s.cfg.Interval)
			s.scheduleNext()
			s.logger.Info("reconciler started", zap.Duration("interval", s.cfg.Interval))
		}
	case cmdStop:
		if s.running {
			s.running = false
			s.stopTicker()
			s.logger.Info("reconciler stopped")
		}
	case cmdReconfigure:
		if err := cmd.cfg.Validate(); err != nil {
			return commandResult{err: err}
		}
		s.cfg = cmd.cfg
		if s.running {
			s.ticker.Reset(s.cfg.Interval)
			s.scheduleNext()
		}
		s.logger.Info("reconciler reconfigured",
			zap.Duration("interval", s.cfg.Interval),
			zap.Bool("flag_policy_drift", s.cfg.FlagPolicyDrift))
	case cmdScanNow:
		report, err := s.scan(ctx)
		return commandResult{report: report, err: err}
	}
	s.publish(func(st *Status) {
		st.Running = s.running
		st.Config = s.cfg
		if !s.running {
			st.NextScanAt = time.Time{}
		}
	})
	return commandResult{}
}

func (s *Supervisor) scan(ctx context.Context) (*Report, error) {
	report, err := s.engine.Run(ctx, s.cfg, func(p Phase) {
		s.publish(func(st *Status) { st.Phase = p })
	})
	s.publish(func(st *Status) {
		st.Phase = PhaseIdle
		st.Runs++
		st.LastRunAt = s.engine.now()
		st.LastError = ""
		if err != nil {
			st.LastError = err.Error()
			return
		}
		st.LastRunID = report.RunID
	})
	if err != nil {
		s.logger.Error("reconciliation run failed", zap.Error(err))
	}
	return report, err
}

func (s *Supervisor) scheduleNext() {
	next := time.Now().Add(s.cfg.Interval)
	s.publish(func(st *Status) { st.NextScanAt = next })
}

func (s *Supervisor) stopTicker() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
}

func (s *Supervisor) publish(update func(*Status)) {
	s.mu.Lock()
	update(&s.status)
	s.mu.Unlock()
}

func (s *Supervisor) send(ctx context.Context, cmd command) commandResult {
	cmd.reply = make(chan commandResult, 1)
	select {
	case s.cmds <- cmd:
	case <-s.done:
		return commandResult{err: ErrSupervisorStopped}
	case <-ctx.Done():
		return commandResult{err: ctx.Err()}
	}
	select {
	case res := <-cmd.reply:
		return res
	case <-ctx.Done():
		return commandResult{err: ctx.Err()}
	}
}

// Start enables periodic scans. Starting a running supervisor is a no-op.
func (s *Supervisor) Start(ctx context.Context) error {
	return s.send(ctx, command{kind: cmdStart}).err
}

// Stop disables periodic scans, waiting for an in-flight scan to finish.
func (s *Supervisor) Stop(ctx context.Context) error {
	return s.send(ctx, command{kind: cmdStop}).err
}

// Reconfigure swaps the configuration without restarting the process. A
// running schedule is restarted with the new interval.
func (s *Supervisor) Reconfigure(ctx context.Context, cfg Config) error {
	return s.send(ctx, command{kind: cmdReconfigure, cfg: cfg}).err
}

// ScanNow runs one pass immediately, whether or not periodic scans are on.
func (s *Supervisor) ScanNow(ctx context.Context) (*Report, error) {
	res := s.send(ctx, command{kind: cmdScanNow})
	return res.report, res.err
}

// Status returns the current state without waiting for a running scan.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.status
	st.Config.AutoResolve = append([]ConflictType(nil), st.Config.AutoResolve...)
	return st
}
