package models

import "time"

const (
	TicketRows = 3
	TicketCols = 9

	NumbersPerTicket = 15
	NumbersPerRow    = 5

	MaxNumber = 90

	// SetSize is the number of tickets in one traditional sheet.
	SetSize = 6
)

// Ticket is one 3x9 tambola grid. A cell value of 0 means the cell is empty;
// each row carries exactly 5 numbers and each column only holds values from
// its reserved decade, increasing top to bottom.
type Ticket struct {
	ID            string    `json:"id"`
	Number        int       `json:"number"` // display number within the game, 1-based
	SetID         string    `json:"setId"`
	PositionInSet int       `json:"positionInSet"` // 1..6 within the sheet
	Grid          [][]int   `json:"grid"`
	Booked        bool      `json:"booked"`
	PlayerName    string    `json:"playerName,omitempty"`
	PlayerContact string    `json:"playerContact,omitempty"`
	BookedAt      time.Time `json:"bookedAt,omitempty"`
}

// TicketMetadata is derived from the grid once and reused by every prize check.
type TicketMetadata struct {
	Corners    [4]int `json:"corners"` // top-left, top-right, bottom-left, bottom-right
	Center     int    `json:"center"`  // middle non-zero value of the middle row
	AllNumbers []int  `json:"allNumbers"`
}

// ColumnRange returns the inclusive value range reserved for column c.
// Column 0 holds 1-9, column 8 holds 80-90, every other column c holds
// 10c..10c+9.
func ColumnRange(c int) (lo, hi int) {
	switch c {
	case 0:
		return 1, 9
	case TicketCols - 1:
		return 80, MaxNumber
	default:
		return 10 * c, 10*c + 9
	}
}

// HasShape reports whether the grid has exactly 3 rows of 9 cells. Prize
// evaluation treats anything else as a ticket that can never match, not as
// an error.
func (t *Ticket) HasShape() bool {
	if t == nil || len(t.Grid) != TicketRows {
		return false
	}
	for _, row := range t.Grid {
		if len(row) != TicketCols {
			return false
		}
	}
	return true
}

// RowNumbers returns the non-zero values of row r in column order.
func (t *Ticket) RowNumbers(r int) []int {
	nums := make([]int, 0, NumbersPerRow)
	for _, v := range t.Grid[r] {
		if v != 0 {
			nums = append(nums, v)
		}
	}
	return nums
}

// MarkedCount counts how many of the ticket's numbers appear in calledSet.
func (t *Ticket) MarkedCount(calledSet map[int]bool) int {
	if !t.HasShape() {
		return 0
	}
	n := 0
	for r := 0; r < TicketRows; r++ {
		for c := 0; c < TicketCols; c++ {
			if v := t.Grid[r][c]; v != 0 && calledSet[v] {
				n++
			}
		}
	}
	return n
}
