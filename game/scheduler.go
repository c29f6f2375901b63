package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/yss1235-why/tambola-sound-blitz-sub001/models"
	"github.com/yss1235-why/tambola-sound-blitz-sub001/services"
	"github.com/yss1235-why/tambola-sound-blitz-sub001/store"
	"github.com/yss1235-why/tambola-sound-blitz-sub001/utils/logger"
)

// Options tunes every scheduler created by a registry.
type Options struct {
	CountdownSeconds       int
	DefaultIntervalSeconds int
	Lock                   store.LockOptions
	TxMaxRetries           int
	// NewPacer builds the pacing strategy per game; nil means FixedInterval.
	NewPacer func() Pacer
}

func (o Options) withDefaults() Options {
	if o.CountdownSeconds <= 0 {
		o.CountdownSeconds = 30
	}
	if o.DefaultIntervalSeconds <= 0 {
		o.DefaultIntervalSeconds = 6
	}
	if o.NewPacer == nil {
		o.NewPacer = func() Pacer { return FixedInterval{} }
	}
	return o
}

// Scheduler drives one game's lifecycle: countdown, the autonomous call loop,
// pause/resume, end, and crash recovery. All shared-state mutation goes
// through the guard's lock plus transactional update, so a reconnecting host
// tab and a live call loop can never corrupt the document.
type Scheduler struct {
	gameID string
	path   string
	st     store.Store
	guard  *store.Guard
	engine *services.PrizeEngine
	opts   Options
	pacer  Pacer

	mu           sync.Mutex
	cancel       context.CancelFunc // live countdown or call loop, nil when idle
	loopDone     chan struct{}
	callInFlight bool
	lastErr      error
	rng          *rand.Rand
}

func newScheduler(gameID string, st store.Store, guard *store.Guard, engine *services.PrizeEngine, opts Options) *Scheduler {
	opts = opts.withDefaults()
	return &Scheduler{
		gameID: gameID,
		path:   models.GamePath(gameID),
		st:     st,
		guard:  guard,
		engine: engine,
		opts:   opts,
		pacer:  opts.NewPacer(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Scheduler) lockName() string {
	return "game-" + s.gameID
}

// LastErr returns the fault that halted the call loop, if any. Cleared by
// Resume.
func (s *Scheduler) LastErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func decodeGame(raw json.RawMessage) (*models.Game, error) {
	var g models.Game
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("decode game: %w", err)
	}
	return &g, nil
}

func (s *Scheduler) loadGame(ctx context.Context) (*models.Game, error) {
	raw, err := s.st.Get(ctx, s.path)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeGame(raw)
}

// mutate applies fn to the game document under the game lock with retrying
// optimistic concurrency. fn sees the freshest committed state on every
// attempt.
func (s *Scheduler) mutate(ctx context.Context, fn func(*models.Game) error) error {
	return s.guard.WithLock(ctx, s.lockName(), s.opts.Lock, func() error {
		return s.guard.TransactionalUpdate(ctx, s.path, func(current json.RawMessage) (any, error) {
			if current == nil {
				return nil, ErrGameNotFound
			}
			g, err := decodeGame(current)
			if err != nil {
				return nil, err
			}
			if err := fn(g); err != nil {
				return nil, err
			}
			g.UpdatedAt = time.Now()
			return g, nil
		}, s.opts.TxMaxRetries)
	})
}

// startLoop launches fn as the scheduler's single background loop, cancelling
// any previous one first.
func (s *Scheduler) startLoop(fn func(ctx context.Context)) {
	s.stopLoop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.loopDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			if s.loopDone == done {
				s.cancel = nil
				s.loopDone = nil
			}
			s.mu.Unlock()
		}()
		fn(ctx)
	}()
}

// stopLoop cancels the live loop and waits for it to unwind, so no cancelled
// call can still commit side effects afterwards.
func (s *Scheduler) stopLoop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.loopDone
	s.cancel = nil
	s.loopDone = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *Scheduler) hasLiveLoop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// StartCountdown moves a game out of the booking phase and starts the ticking
// countdown. The remaining time is persisted every second so any observer can
// resume it.
func (s *Scheduler) StartCountdown(ctx context.Context) error {
	err := s.mutate(ctx, func(g *models.Game) error {
		st := &g.GameState
		switch {
		case st.GameOver:
			return ErrGameAlreadyOver
		case st.IsActive || st.IsCountdown || st.IsPaused:
			return ErrGameAlreadyStarted
		}
		st.IsCountdown = true
		st.CountdownRemaining = s.opts.CountdownSeconds
		return nil
	})
	if err != nil {
		return err
	}

	logger.Infof("[Game %s] countdown started (%ds)", s.gameID, s.opts.CountdownSeconds)
	s.startLoop(func(ctx context.Context) {
		s.runCountdown(ctx, s.opts.CountdownSeconds)
	})
	return nil
}

func (s *Scheduler) runCountdown(ctx context.Context, remaining int) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for remaining > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		remaining--

		activate := remaining == 0
		err := s.mutate(ctx, func(g *models.Game) error {
			st := &g.GameState
			if st.GameOver || !st.IsCountdown {
				return ErrGameNotActive
			}
			st.CountdownRemaining = remaining
			if activate {
				st.IsCountdown = false
				st.IsActive = true
				st.IsPaused = false
			}
			return nil
		})
		if err != nil {
			if !errors.Is(err, ErrGameNotActive) && !errors.Is(err, context.Canceled) {
				logger.Errorf("[Game %s] countdown halted: %v", s.gameID, err)
				s.faultPause(err)
			}
			return
		}
	}

	logger.Infof("[Game %s] countdown finished, game active", s.gameID)
	// first number goes out immediately; the pacer spaces the rest
	if over, err := s.callOnce(ctx); err != nil || over {
		s.handleLoopOutcome(err)
		return
	}
	s.runCallLoop(ctx)
}

// runCallLoop drives autonomous calling while the game stays active. Any
// store or lock fault halts the loop and pauses the game; an explicit Resume
// re-arms it once the fault clears.
func (s *Scheduler) runCallLoop(ctx context.Context) {
	for {
		interval, err := s.currentInterval(ctx)
		if err != nil {
			s.handleLoopOutcome(err)
			return
		}
		if err := s.pacer.Wait(ctx, interval); err != nil {
			return
		}
		over, err := s.callOnce(ctx)
		if errors.Is(err, ErrNumberAlreadyCalled) {
			// a concurrent caller won the race; nothing committed
			continue
		}
		if err != nil || over {
			s.handleLoopOutcome(err)
			return
		}
	}
}

func (s *Scheduler) handleLoopOutcome(err error) {
	switch {
	case err == nil:
		return
	case errors.Is(err, context.Canceled):
	case errors.Is(err, ErrGameAlreadyOver), errors.Is(err, ErrGameNotActive):
		// ended or paused by another actor; the loop just stands down
	default:
		logger.Errorf("[Game %s] call loop halted: %v", s.gameID, err)
		s.faultPause(err)
	}
}

// faultPause records the fault and parks the game in the paused state so the
// host sees "needs resume" instead of a dead session. A game still counting
// down is parked the same way, since its loop is equally dead.
func (s *Scheduler) faultPause(cause error) {
	s.mu.Lock()
	s.lastErr = cause
	s.mu.Unlock()

	ctx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	err := s.mutate(ctx, func(g *models.Game) error {
		st := &g.GameState
		if st.GameOver || (!st.IsActive && !st.IsCountdown) {
			return ErrGameNotActive
		}
		st.IsCountdown = false
		st.IsActive = false
		st.IsPaused = true
		return nil
	})
	if err != nil && !errors.Is(err, ErrGameNotActive) {
		logger.Errorf("[Game %s] could not persist fault pause: %v", s.gameID, err)
	}
}

func (s *Scheduler) currentInterval(ctx context.Context) (time.Duration, error) {
	g, err := s.loadGame(ctx)
	if err != nil {
		return 0, err
	}
	sec := g.CallIntervalSec
	if sec <= 0 {
		sec = s.opts.DefaultIntervalSeconds
	}
	return time.Duration(sec) * time.Second, nil
}

// CallNext draws and commits one number. Exposed for the host's manual-call
// control; the loop uses the same path.
func (s *Scheduler) CallNext(ctx context.Context) error {
	_, err := s.callOnce(ctx)
	return err
}

// callOnce performs a single call: pick a candidate outside the transaction,
// then append it, evaluate prizes and detect game over inside one
// transactional update. Returns gameOver=true when this call ended the game.
func (s *Scheduler) callOnce(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.callInFlight {
		// a call is mid-commit; the second attempt is dropped, not queued
		s.mu.Unlock()
		return false, nil
	}
	s.callInFlight = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.callInFlight = false
		s.mu.Unlock()
	}()

	g, err := s.loadGame(ctx)
	if err != nil {
		return false, err
	}
	st := g.GameState
	if st.GameOver {
		return true, ErrGameAlreadyOver
	}
	if !st.IsActive {
		return false, ErrGameNotActive
	}

	remaining := st.Remaining()
	if len(remaining) == 0 {
		// exhaustion without a final call; close the game out
		err := s.mutate(ctx, func(g *models.Game) error {
			g.GameState.GameOver = true
			g.GameState.IsActive = false
			g.GameState.IsPaused = false
			return nil
		})
		return true, err
	}
	number := remaining[s.rng.Intn(len(remaining))]

	gameOver := false
	err = s.mutate(ctx, func(g *models.Game) error {
		st := &g.GameState
		switch {
		case st.GameOver:
			return ErrGameAlreadyOver
		case !st.IsActive:
			// paused or ended between the draw and the commit; discard
			return ErrGameNotActive
		case st.CalledSet()[number]:
			return ErrNumberAlreadyCalled
		}

		st.CalledNumbers = append(st.CalledNumbers, number)
		st.CurrentNumber = number

		results := s.engine.Evaluate(services.Snapshot{
			Tickets:       g.Tickets,
			Prizes:        g.Prizes,
			CalledNumbers: st.CalledNumbers,
		})
		now := time.Now()
		for _, res := range results {
			prize, ok := g.Prizes[string(res.PrizeID)]
			if !ok || prize.Won {
				continue
			}
			prize.Won = true
			prize.Winners = res.Winners
			prize.WinningNumber = res.WinningNumber
			prize.WonAt = now
			prize.Announcement = services.AnnouncementText(prize, res.Winners, res.WinningNumber)
			logger.Infof("[Game %s] %s", s.gameID, prize.Announcement)
		}

		if g.AllPrizesWon() || len(st.CalledNumbers) >= models.MaxNumber {
			st.GameOver = true
			st.IsActive = false
			st.IsPaused = false
		}
		gameOver = st.GameOver
		return nil
	})
	if err != nil {
		return false, err
	}

	logger.Debugf("[Game %s] called %d (%d drawn)", s.gameID, number, len(st.CalledNumbers)+1)
	if gameOver {
		logger.Infof("[Game %s] game over after %d calls", s.gameID, len(st.CalledNumbers)+1)
	}
	return gameOver, nil
}

// Pause cancels the pending call and freezes the game without losing any
// called-number history.
func (s *Scheduler) Pause(ctx context.Context) error {
	s.stopLoop()
	return s.mutate(ctx, func(g *models.Game) error {
		st := &g.GameState
		switch {
		case st.GameOver:
			return ErrGameAlreadyOver
		case !st.IsActive:
			return ErrGameNotActive
		}
		st.IsActive = false
		st.IsPaused = true
		return nil
	})
}

// Resume re-arms the call loop from the persisted state. The number already
// recorded as CurrentNumber is never re-called: the loop waits a full pacing
// interval before drawing a fresh one.
func (s *Scheduler) Resume(ctx context.Context) error {
	err := s.mutate(ctx, func(g *models.Game) error {
		st := &g.GameState
		switch {
		case st.GameOver:
			return ErrGameAlreadyOver
		case !st.IsPaused:
			return ErrGameNotActive
		}
		st.IsPaused = false
		st.IsActive = true
		st.Recovered = false
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()

	logger.Infof("[Game %s] resumed", s.gameID)
	s.startLoop(s.runCallLoop)
	return nil
}

// EndGame finishes the game immediately. Terminal: no state change can follow.
func (s *Scheduler) EndGame(ctx context.Context) error {
	s.stopLoop()
	return s.mutate(ctx, func(g *models.Game) error {
		st := &g.GameState
		if st.GameOver {
			return ErrGameAlreadyOver
		}
		st.GameOver = true
		st.IsActive = false
		st.IsPaused = false
		st.IsCountdown = false
		return nil
	})
}

// UpdateCallInterval changes the pacing interval for subsequent calls.
func (s *Scheduler) UpdateCallInterval(ctx context.Context, seconds int) error {
	if seconds < 1 {
		return fmt.Errorf("call interval must be at least 1s")
	}
	return s.mutate(ctx, func(g *models.Game) error {
		if g.GameState.GameOver {
			return ErrGameAlreadyOver
		}
		g.CallIntervalSec = seconds
		return nil
	})
}

// AnnouncementComplete feeds the external pacing signal, when that strategy
// is configured. A no-op under fixed-interval pacing.
func (s *Scheduler) AnnouncementComplete(number int) {
	if sig, ok := s.pacer.(*ExternalSignal); ok {
		sig.OnAnnouncementComplete(number)
	}
}

// Attach reconciles this process with a game that may have been driven by a
// crashed or refreshed session. An active game with no live loop is always
// parked paused; a countdown resumes from its persisted remaining time, and
// a countdown that elapsed while detached lands in active-but-paused. Every
// recovery path requires one explicit Resume.
func (s *Scheduler) Attach(ctx context.Context) error {
	if s.hasLiveLoop() {
		return nil
	}

	g, err := s.loadGame(ctx)
	if err != nil {
		return err
	}
	st := g.GameState

	switch {
	case st.GameOver:
		return nil

	case st.IsCountdown:
		elapsed := int(time.Since(g.UpdatedAt).Seconds())
		remaining := st.CountdownRemaining - elapsed
		if remaining > 0 {
			err := s.mutate(ctx, func(g *models.Game) error {
				if g.GameState.GameOver || !g.GameState.IsCountdown {
					return ErrGameNotActive
				}
				g.GameState.CountdownRemaining = remaining
				return nil
			})
			if err != nil {
				return err
			}
			logger.Infof("[Game %s] countdown recovered with %ds left", s.gameID, remaining)
			s.startLoop(func(ctx context.Context) {
				s.runCountdown(ctx, remaining)
			})
			return nil
		}
		// countdown ran out while detached: active, but parked for a manual resume
		return s.mutate(ctx, func(g *models.Game) error {
			st := &g.GameState
			if st.GameOver || !st.IsCountdown {
				return ErrGameNotActive
			}
			st.IsCountdown = false
			st.CountdownRemaining = 0
			st.IsActive = false
			st.IsPaused = true
			st.Recovered = true
			return nil
		})

	case st.IsActive:
		logger.Infof("[Game %s] recovered mid-game, auto-pausing", s.gameID)
		return s.mutate(ctx, func(g *models.Game) error {
			st := &g.GameState
			if st.GameOver || !st.IsActive {
				return ErrGameNotActive
			}
			st.IsActive = false
			st.IsPaused = true
			st.Recovered = true
			return nil
		})
	}
	return nil
}
