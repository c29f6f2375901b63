package models

import "time"

// GameState is the live calling state of a game.
//
// CalledNumbers is append-only and duplicate-free for the lifetime of the
// game; GameOver is terminal.
type GameState struct {
	IsActive           bool  `json:"isActive"`
	IsPaused           bool  `json:"isPaused"`
	IsCountdown        bool  `json:"isCountdown"`
	CountdownRemaining int   `json:"countdownRemaining"`
	GameOver           bool  `json:"gameOver"`
	Recovered          bool  `json:"recovered"` // set after crash recovery; cleared by explicit resume
	CalledNumbers      []int `json:"calledNumbers"`
	CurrentNumber      int   `json:"currentNumber"`
}

// Game is the shared game document: everything a viewer needs to render a
// session and everything the scheduler needs to drive it.
type Game struct {
	GameID          string             `json:"gameId"`
	HostID          string             `json:"hostId"`
	MaxTickets      int                `json:"maxTickets"`
	CallIntervalSec int                `json:"callIntervalSec"`
	Tickets         map[string]*Ticket `json:"tickets"`
	Prizes          map[string]*Prize  `json:"prizes"`
	GameState       GameState          `json:"gameState"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

// GamePath is the document path for a game ID.
func GamePath(gameID string) string {
	return "games/" + gameID
}

// CalledSet returns the called numbers as a lookup set.
func (s *GameState) CalledSet() map[int]bool {
	set := make(map[int]bool, len(s.CalledNumbers))
	for _, n := range s.CalledNumbers {
		set[n] = true
	}
	return set
}

// Remaining lists the numbers 1..90 that have not been called yet.
func (s *GameState) Remaining() []int {
	called := s.CalledSet()
	rest := make([]int, 0, MaxNumber-len(s.CalledNumbers))
	for n := 1; n <= MaxNumber; n++ {
		if !called[n] {
			rest = append(rest, n)
		}
	}
	return rest
}

// AllPrizesWon reports whether every prize on the board has been won.
func (g *Game) AllPrizesWon() bool {
	for _, p := range g.Prizes {
		if !p.Won {
			return false
		}
	}
	return len(g.Prizes) > 0
}
