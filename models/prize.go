package models

import "time"

// PrizeID enumerates the supported prize patterns. The set is closed: the
// prize engine keeps one validator per ID in a lookup table, so adding a
// pattern means adding an ID here and a validator there.
type PrizeID string

const (
	PrizeEarlyFive       PrizeID = "earlyFive"
	PrizeTopLine         PrizeID = "topLine"
	PrizeMiddleLine      PrizeID = "middleLine"
	PrizeBottomLine      PrizeID = "bottomLine"
	PrizeCorners         PrizeID = "corners"
	PrizeStarCorner      PrizeID = "starCorner"
	PrizeHalfSheet       PrizeID = "halfSheet"
	PrizeFullSheet       PrizeID = "fullSheet"
	PrizeFullHouse       PrizeID = "fullHouse"
	PrizeSecondFullHouse PrizeID = "secondFullHouse"
)

// Winner identifies one winning booking for a prize.
type Winner struct {
	PlayerName  string `json:"playerName"`
	TicketID    string `json:"ticketId"`
	ContactInfo string `json:"contactInfo,omitempty"`
}

// Prize is one winnable pattern in a game. Once Won flips to true the winner
// list is immutable; only secondFullHouse may become winnable afterwards, and
// only because it depends on fullHouse being won first.
type Prize struct {
	ID            PrizeID   `json:"id"`
	Name          string    `json:"name"`
	Pattern       string    `json:"pattern"`
	Order         int       `json:"order"`
	Won           bool      `json:"won"`
	Winners       []Winner  `json:"winners,omitempty"`
	WinningNumber int       `json:"winningNumber,omitempty"`
	WonAt         time.Time `json:"wonAt,omitempty"`
	Announcement  string    `json:"announcement,omitempty"`
}

// DefaultPrizes returns the full prize board for a fresh game, keyed by ID.
func DefaultPrizes() map[string]*Prize {
	prizes := []*Prize{
		{ID: PrizeEarlyFive, Name: "Early Five", Pattern: "any 5 numbers marked", Order: 1},
		{ID: PrizeTopLine, Name: "Top Line", Pattern: "all numbers of the top row", Order: 2},
		{ID: PrizeMiddleLine, Name: "Middle Line", Pattern: "all numbers of the middle row", Order: 3},
		{ID: PrizeBottomLine, Name: "Bottom Line", Pattern: "all numbers of the bottom row", Order: 4},
		{ID: PrizeCorners, Name: "Corners", Pattern: "the 4 corner numbers", Order: 5},
		{ID: PrizeStarCorner, Name: "Star Corner", Pattern: "the 4 corners plus the center number", Order: 6},
		{ID: PrizeHalfSheet, Name: "Half Sheet", Pattern: "one half of a sheet, same player, 2+ marks each", Order: 7},
		{ID: PrizeFullSheet, Name: "Full Sheet", Pattern: "all 6 tickets of a sheet, same player, 2+ marks each", Order: 8},
		{ID: PrizeFullHouse, Name: "Full House", Pattern: "all 15 numbers marked", Order: 9},
		{ID: PrizeSecondFullHouse, Name: "Second Full House", Pattern: "all 15 numbers marked, after Full House is won", Order: 10},
	}

	board := make(map[string]*Prize, len(prizes))
	for _, p := range prizes {
		board[string(p.ID)] = p
	}
	return board
}
