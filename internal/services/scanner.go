package services

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/studyblocks/backend/internal/config"
	"github.com/studyblocks/backend/internal/models"
	"github.com/studyblocks/backend/pkg/logger"
)

// Scanner tick states.
const (
	ScannerIdle int32 = iota
	ScannerScanning
	ScannerDispatching
)

// dispatchTimeout bounds one end-to-end delivery attempt so a slow mail
// transport cannot stall the tick.
const dispatchTimeout = 5 * time.Second

// ReminderScanner periodically finds blocks entering the reminder window
// and drives at-most-once email dispatch for each of them.
//
// Per tick: compute the window [now+low, now+high), load candidates,
// resolve each owner's contact, take the per-block job lock, send, mark
// reminder_sent on the primary store, then best-effort mirror the flag.
// On a dispatch failure the lock is released so the next tick can retry
// while the block remains inside the window; on success the lock is left
// to expire via TTL, which together with the reminder_sent flag is the
// complete double-send defense.
type ReminderScanner struct {
	blocks   *BlockService
	locks    *LockService
	users    *UserService
	notifier Notifier
	mirror   *SyncCoordinator
	cfg      *config.ReminderConfig

	cron  *cron.Cron
	state atomic.Int32
	busy  atomic.Bool
	now   func() time.Time
	log   zerolog.Logger
}

func NewReminderScanner(
	blocks *BlockService,
	locks *LockService,
	users *UserService,
	notifier Notifier,
	mirror *SyncCoordinator,
	cfg *config.ReminderConfig,
) *ReminderScanner {
	scannerLog := logger.Component("scanner")
	if !cfg.Verbose {
		scannerLog = scannerLog.Level(zerolog.WarnLevel)
	}
	return &ReminderScanner{
		blocks:   blocks,
		locks:    locks,
		users:    users,
		notifier: notifier,
		mirror:   mirror,
		cfg:      cfg,
		now:      time.Now,
		log:      scannerLog,
	}
}

// Start schedules the scan tick and the lock reaper. A tick that fires
// while the previous one is still running is skipped outright, never
// queued, so a stall cannot produce a catch-up storm.
func (s *ReminderScanner) Start() error {
	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))

	tickSpec := "@every " + s.cfg.Interval().String()
	if _, err := s.cron.AddFunc(tickSpec, func() {
		s.Tick(context.Background())
	}); err != nil {
		return err
	}

	reapSpec := "@every " + s.cfg.LockTTL().String()
	if _, err := s.cron.AddFunc(reapSpec, func() {
		if _, err := s.locks.ReapExpired(); err != nil {
			s.log.Error().Err(err).Msg("lock reap failed")
		}
	}); err != nil {
		return err
	}

	s.cron.Start()
	logger.Info().
		Dur("interval", s.cfg.Interval()).
		Dur("window_low", s.cfg.WindowLow()).
		Dur("window_high", s.cfg.WindowHigh()).
		Msg("reminder scanner started")
	return nil
}

// Stop halts scheduling and waits for an in-flight tick to finish. Locks
// held by an interrupted delivery expire via TTL, so no cleanup beyond
// this is needed for correctness.
func (s *ReminderScanner) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	logger.Info().Msg("reminder scanner stopped")
}

// State returns the scanner's current tick phase.
func (s *ReminderScanner) State() int32 {
	return s.state.Load()
}

// Tick runs one scan pass. It returns the number of reminders dispatched
// successfully. A second caller entering while a tick is active is turned
// away immediately.
func (s *ReminderScanner) Tick(ctx context.Context) int {
	if !s.busy.CompareAndSwap(false, true) {
		s.log.Debug().Msg("previous tick still running, skipping")
		return 0
	}
	defer func() {
		s.state.Store(ScannerIdle)
		s.busy.Store(false)
	}()

	s.state.Store(ScannerScanning)
	now := s.now()
	windowStart := now.Add(s.cfg.WindowLow())
	windowEnd := now.Add(s.cfg.WindowHigh())

	candidates, err := s.blocks.FindActiveBlocksInWindow(windowStart, windowEnd)
	if err != nil {
		// Primary store unreachable: abort the whole tick, no locks were
		// taken, the next tick retries from scratch.
		s.log.Error().Err(err).Msg("window scan failed, aborting tick")
		return 0
	}
	if len(candidates) == 0 {
		return 0
	}

	s.state.Store(ScannerDispatching)
	s.log.Info().Int("candidates", len(candidates)).Msg("dispatching reminders")

	sent := 0
	for i := range candidates {
		if s.dispatchOne(ctx, windowStart, windowEnd, &candidates[i]) {
			sent++
		}
	}
	return sent
}

// dispatchOne handles a single candidate. Failures here never affect other
// candidates in the same tick.
func (s *ReminderScanner) dispatchOne(ctx context.Context, windowStart, windowEnd time.Time, block *models.StudyBlock) bool {
	contact, err := s.users.FindContactByOwnerID(block.UserID)
	if err != nil {
		s.log.Warn().Err(err).Str("block_id", block.ID).Uint("user_id", block.UserID).
			Msg("owner contact unresolved, skipping block")
		return false
	}

	acquired, err := s.locks.Acquire(models.JobTypeReminder, block.ID, block.UserID, s.cfg.LockTTL())
	if err != nil {
		s.log.Error().Err(err).Str("block_id", block.ID).Msg("lock acquire failed")
		return false
	}
	if !acquired {
		// Another tick or process already owns this delivery.
		s.log.Debug().Str("block_id", block.ID).Msg("lock contention, skipping")
		return false
	}

	// A block that slipped outside the window between scan and dispatch is
	// a terminal miss: never deliver past the window boundary.
	if block.StartTime.Before(windowStart) || !block.StartTime.Before(windowEnd) {
		s.log.Warn().Str("block_id", block.ID).Time("start", block.StartTime).
			Msg("block outside window at dispatch time, releasing lock")
		s.releaseLock(block)
		return false
	}

	sendCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	err = s.notifier.Send(sendCtx, contact, block)
	cancel()
	if err != nil {
		// Release so the next tick retries while the block is still inside
		// the window; after window exit the miss is permanent.
		s.log.Warn().Err(err).Str("block_id", block.ID).Msg("dispatch failed, releasing lock for retry")
		s.releaseLock(block)
		return false
	}

	updated, err := s.blocks.MarkReminderSent(block.ID)
	if err != nil {
		// Email went out but the flag write failed. The lock is deliberately
		// left in place: its TTL blocks an immediate retry that would
		// double-send, and the reaper clears it afterwards.
		s.log.Error().Err(err).Str("block_id", block.ID).
			Msg("reminder sent but flag update failed, lock left to expire")
		return true
	}

	if res := s.mirror.MirrorReminderSent(updated); !res.OK() {
		s.log.Warn().Err(res.Err).Str("block_id", block.ID).
			Msg("mirror of reminder flag failed, secondary store left stale")
	}

	s.log.Info().Str("block_id", block.ID).Str("recipient", contact.Email).Msg("reminder delivered")
	return true
}

func (s *ReminderScanner) releaseLock(block *models.StudyBlock) {
	if err := s.locks.Release(models.JobTypeReminder, block.ID, block.UserID); err != nil {
		s.log.Error().Err(err).Str("block_id", block.ID).Msg("lock release failed, TTL will reclaim it")
	}
}
