package services

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yss1235-why/tambola-sound-blitz-sub001/models"
)

// ErrInvalidTicketStructure marks a grid that is not 3x9 or breaks the
// row/column rules. Prize evaluation treats such a ticket as "never matches";
// it is never fatal.
var ErrInvalidTicketStructure = errors.New("invalid ticket structure")

// TicketFactory generates tickets and six-ticket sheets obeying the tambola
// grid rules: 5 numbers per row, one reserved decade per column, column
// values strictly increasing top to bottom.
type TicketFactory struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewTicketFactory() *TicketFactory {
	return &TicketFactory{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// NewSeededTicketFactory fixes the random source, for reproducible tests.
func NewSeededTicketFactory(seed int64) *TicketFactory {
	return &TicketFactory{rng: rand.New(rand.NewSource(seed))}
}

// GenerateTicket produces one standalone ticket.
func (f *TicketFactory) GenerateTicket() *models.Ticket {
	f.mu.Lock()
	defer f.mu.Unlock()

	counts := f.singleTicketCounts()
	grid := f.buildGrid(counts, f.drawColumnNumbers(counts))
	return &models.Ticket{ID: uuid.NewString(), Grid: grid}
}

// GenerateSet produces one traditional sheet: six tickets sharing a setId,
// positions 1..6, with the numbers 1..90 partitioned across them.
func (f *TicketFactory) GenerateSet() []*models.Ticket {
	f.mu.Lock()
	defer f.mu.Unlock()

	counts := f.sheetCounts()

	// shuffle each column's decade and deal it out per the counts
	perTicket := make([][][]int, models.SetSize)
	for t := range perTicket {
		perTicket[t] = make([][]int, models.TicketCols)
	}
	for c := 0; c < models.TicketCols; c++ {
		lo, hi := models.ColumnRange(c)
		pool := make([]int, 0, hi-lo+1)
		for n := lo; n <= hi; n++ {
			pool = append(pool, n)
		}
		f.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

		next := 0
		for t := 0; t < models.SetSize; t++ {
			take := append([]int(nil), pool[next:next+counts[t][c]]...)
			sort.Ints(take)
			perTicket[t][c] = take
			next += counts[t][c]
		}
	}

	setID := uuid.NewString()
	tickets := make([]*models.Ticket, models.SetSize)
	for t := 0; t < models.SetSize; t++ {
		tickets[t] = &models.Ticket{
			ID:            uuid.NewString(),
			SetID:         setID,
			PositionInSet: t + 1,
			Grid:          f.buildGrid(counts[t], perTicket[t]),
		}
	}
	return tickets
}

// singleTicketCounts picks how many numbers each column carries: every column
// at least one, 15 in total, at most three per column.
func (f *TicketFactory) singleTicketCounts() [models.TicketCols]int {
	var counts [models.TicketCols]int
	for c := range counts {
		counts[c] = 1
	}
	for placed := models.TicketCols; placed < models.NumbersPerTicket; {
		c := f.rng.Intn(models.TicketCols)
		if counts[c] < models.TicketRows {
			counts[c]++
			placed++
		}
	}
	return counts
}

// sheetCounts distributes every number of every column across six tickets so
// each ticket ends at exactly 15. The random deal can corner itself, so it
// retries from scratch; a valid deal lands within a few attempts.
func (f *TicketFactory) sheetCounts() [models.SetSize][models.TicketCols]int {
	for {
		var counts [models.SetSize][models.TicketCols]int
		var totals [models.SetSize]int

		var units []int // one entry per still-unplaced number, by column
		for c := 0; c < models.TicketCols; c++ {
			lo, hi := models.ColumnRange(c)
			size := hi - lo + 1
			for t := 0; t < models.SetSize; t++ {
				counts[t][c] = 1
				totals[t]++
			}
			for i := 0; i < size-models.SetSize; i++ {
				units = append(units, c)
			}
		}
		f.rng.Shuffle(len(units), func(i, j int) { units[i], units[j] = units[j], units[i] })

		ok := true
		for _, c := range units {
			candidates := make([]int, 0, models.SetSize)
			for t := 0; t < models.SetSize; t++ {
				if counts[t][c] < models.TicketRows && totals[t] < models.NumbersPerTicket {
					candidates = append(candidates, t)
				}
			}
			if len(candidates) == 0 {
				ok = false
				break
			}
			t := candidates[f.rng.Intn(len(candidates))]
			counts[t][c]++
			totals[t]++
		}
		if ok {
			return counts
		}
	}
}

// drawColumnNumbers picks counts[c] distinct values from each column's decade,
// sorted ascending.
func (f *TicketFactory) drawColumnNumbers(counts [models.TicketCols]int) [][]int {
	columns := make([][]int, models.TicketCols)
	for c := 0; c < models.TicketCols; c++ {
		lo, hi := models.ColumnRange(c)
		pool := make([]int, 0, hi-lo+1)
		for n := lo; n <= hi; n++ {
			pool = append(pool, n)
		}
		f.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
		picked := append([]int(nil), pool[:counts[c]]...)
		sort.Ints(picked)
		columns[c] = picked
	}
	return columns
}

// buildGrid places each column's numbers into rows so that every row ends at
// exactly 5 marks. Columns with more numbers are placed first; each number
// goes to the row with the most free capacity, which keeps the deal feasible.
func (f *TicketFactory) buildGrid(counts [models.TicketCols]int, columns [][]int) [][]int {
	grid := make([][]int, models.TicketRows)
	for r := range grid {
		grid[r] = make([]int, models.TicketCols)
	}

	capacity := [models.TicketRows]int{models.NumbersPerRow, models.NumbersPerRow, models.NumbersPerRow}

	order := make([]int, 0, models.TicketCols)
	for c := 0; c < models.TicketCols; c++ {
		order = append(order, c)
	}
	f.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })

	for _, c := range order {
		rows := make([]int, 0, models.TicketRows)
		for r := 0; r < models.TicketRows; r++ {
			rows = append(rows, r)
		}
		f.rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		sort.SliceStable(rows, func(i, j int) bool { return capacity[rows[i]] > capacity[rows[j]] })

		chosen := append([]int(nil), rows[:counts[c]]...)
		sort.Ints(chosen) // ascending rows keep column values increasing downward
		for i, r := range chosen {
			grid[r][c] = columns[c][i]
			capacity[r]--
		}
	}
	return grid
}

// ComputeMetadata derives corners, center and the flat number list. It is
// pure and returns ErrInvalidTicketStructure for malformed grids instead of
// panicking; callers treat those tickets as non-matching.
func ComputeMetadata(t *models.Ticket) (models.TicketMetadata, error) {
	var md models.TicketMetadata
	if !t.HasShape() {
		return md, ErrInvalidTicketStructure
	}

	top := t.RowNumbers(0)
	middle := t.RowNumbers(1)
	bottom := t.RowNumbers(models.TicketRows - 1)
	if len(top) == 0 || len(middle) == 0 || len(bottom) == 0 {
		return md, ErrInvalidTicketStructure
	}

	md.Corners = [4]int{top[0], top[len(top)-1], bottom[0], bottom[len(bottom)-1]}
	md.Center = middle[len(middle)/2]
	for r := 0; r < models.TicketRows; r++ {
		md.AllNumbers = append(md.AllNumbers, t.RowNumbers(r)...)
	}
	return md, nil
}

// ValidateTicket checks the full structural invariant: shape, 5 numbers per
// row, decade-bound columns, strictly increasing column values.
func ValidateTicket(t *models.Ticket) error {
	if !t.HasShape() {
		return ErrInvalidTicketStructure
	}
	for r := 0; r < models.TicketRows; r++ {
		if got := len(t.RowNumbers(r)); got != models.NumbersPerRow {
			return fmt.Errorf("row %d has %d numbers: %w", r, got, ErrInvalidTicketStructure)
		}
	}
	for c := 0; c < models.TicketCols; c++ {
		lo, hi := models.ColumnRange(c)
		prev := 0
		for r := 0; r < models.TicketRows; r++ {
			v := t.Grid[r][c]
			if v == 0 {
				continue
			}
			if v < lo || v > hi {
				return fmt.Errorf("column %d value %d outside %d-%d: %w", c, v, lo, hi, ErrInvalidTicketStructure)
			}
			if prev != 0 && v <= prev {
				return fmt.Errorf("column %d not increasing: %w", c, ErrInvalidTicketStructure)
			}
			prev = v
		}
	}
	return nil
}
