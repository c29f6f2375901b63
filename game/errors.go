package game

import "errors"

var (
	// ErrGameNotFound is returned when no game document exists for an ID.
	ErrGameNotFound = errors.New("game not found")

	// ErrGameAlreadyOver rejects any action against a finished game.
	ErrGameAlreadyOver = errors.New("game already over")

	// ErrGameNotActive rejects an action whose state does not allow it; the
	// game state is left unchanged.
	ErrGameNotActive = errors.New("game not active")

	// ErrGameAlreadyStarted rejects a second StartCountdown on a game that
	// has left the booking phase.
	ErrGameAlreadyStarted = errors.New("game already started")

	// ErrNumberAlreadyCalled is raised inside the call transaction when the
	// candidate number is no longer free: a concurrent call won the race and
	// this one is safely discarded.
	ErrNumberAlreadyCalled = errors.New("number already called")
)
