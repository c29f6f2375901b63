package game

import (
	"context"
	"time"
)

// Pacer decides when the next number call is due. The scheduler never lines
// up a second call before the previous one's side effects are committed, so
// Wait always measures from the end of the last call.
type Pacer interface {
	Wait(ctx context.Context, interval time.Duration) error
}

// FixedInterval paces calls on a plain timer.
type FixedInterval struct{}

func (FixedInterval) Wait(ctx context.Context, interval time.Duration) error {
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExternalSignal paces calls on an announcement-complete callback from an
// external subsystem (the audio player, in practice). One pending signal is
// buffered so a callback arriving between calls is not lost.
type ExternalSignal struct {
	ch chan int
}

func NewExternalSignal() *ExternalSignal {
	return &ExternalSignal{ch: make(chan int, 1)}
}

// OnAnnouncementComplete reports that the announcement for number finished.
// Never blocks the announcing subsystem.
func (s *ExternalSignal) OnAnnouncementComplete(number int) {
	select {
	case s.ch <- number:
	default:
	}
}

func (s *ExternalSignal) Wait(ctx context.Context, interval time.Duration) error {
	select {
	case <-s.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
