package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yss1235-why/tambola-sound-blitz-sub001/models"
	"github.com/yss1235-why/tambola-sound-blitz-sub001/utils/logger"
)

// Snapshot is the frozen game view a prize evaluation runs against. The
// caller guarantees it reflects exactly the called numbers through the
// current call.
type Snapshot struct {
	Tickets       map[string]*models.Ticket
	Prizes        map[string]*models.Prize
	CalledNumbers []int
}

// PrizeResult reports one prize newly satisfied by the snapshot. The engine
// never mutates the snapshot; callers apply results inside their own
// transaction.
type PrizeResult struct {
	PrizeID       models.PrizeID
	Winners       []models.Winner
	WinningNumber int
}

// evalTicket pairs a booked ticket with its cached metadata and mark count.
type evalTicket struct {
	ticket *models.Ticket
	meta   models.TicketMetadata
	marked int
}

type evalContext struct {
	snap      Snapshot
	calledSet map[int]bool
	booked    []*evalTicket         // tickets with valid structure, sorted by display number
	bySet     map[string][]*evalTicket
}

// validator computes the winners of one prize variant against the context.
type validator func(*evalContext) []models.Winner

// validators is the closed lookup table: one entry per PrizeID. A new prize
// pattern is added by extending this table.
var validators = map[models.PrizeID]validator{
	models.PrizeEarlyFive:       checkEarlyFive,
	models.PrizeTopLine:         lineValidator(0),
	models.PrizeMiddleLine:      lineValidator(1),
	models.PrizeBottomLine:      lineValidator(2),
	models.PrizeCorners:         checkCorners,
	models.PrizeStarCorner:      checkStarCorner,
	models.PrizeFullHouse:       checkFullHouse,
	models.PrizeSecondFullHouse: checkSecondFullHouse,
	models.PrizeHalfSheet:       checkHalfSheet,
	models.PrizeFullSheet:       checkFullSheet,
}

// PrizeEngine evaluates every not-yet-won prize against a snapshot.
type PrizeEngine struct{}

func NewPrizeEngine() *PrizeEngine {
	return &PrizeEngine{}
}

// Evaluate runs one pass over all pending prizes. Unbooked tickets never
// match; tickets with broken structure are logged and skipped rather than
// failing the evaluation.
func (e *PrizeEngine) Evaluate(snap Snapshot) []PrizeResult {
	ectx := newEvalContext(snap)

	pending := make([]*models.Prize, 0, len(snap.Prizes))
	for _, p := range snap.Prizes {
		if !p.Won {
			pending = append(pending, p)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Order < pending[j].Order })

	current := 0
	if n := len(snap.CalledNumbers); n > 0 {
		current = snap.CalledNumbers[n-1]
	}

	var results []PrizeResult
	for _, p := range pending {
		check, ok := validators[p.ID]
		if !ok {
			logger.Errorf("[PrizeEngine] no validator for prize %q", p.ID)
			continue
		}
		winners := check(ectx)
		if len(winners) > 0 {
			results = append(results, PrizeResult{
				PrizeID:       p.ID,
				Winners:       winners,
				WinningNumber: current,
			})
		}
	}
	return results
}

func newEvalContext(snap Snapshot) *evalContext {
	ectx := &evalContext{
		snap:      snap,
		calledSet: make(map[int]bool, len(snap.CalledNumbers)),
		bySet:     make(map[string][]*evalTicket),
	}
	for _, n := range snap.CalledNumbers {
		ectx.calledSet[n] = true
	}

	for _, t := range snap.Tickets {
		if !t.Booked {
			continue
		}
		meta, err := ComputeMetadata(t)
		if err != nil {
			logger.Debugf("[PrizeEngine] skipping ticket %s: %v", t.ID, err)
			continue
		}
		et := &evalTicket{ticket: t, meta: meta, marked: t.MarkedCount(ectx.calledSet)}
		ectx.booked = append(ectx.booked, et)
		if t.SetID != "" {
			ectx.bySet[t.SetID] = append(ectx.bySet[t.SetID], et)
		}
	}
	sort.Slice(ectx.booked, func(i, j int) bool {
		return ectx.booked[i].ticket.Number < ectx.booked[j].ticket.Number
	})
	return ectx
}

func (e *evalContext) allCalled(nums []int) bool {
	for _, n := range nums {
		if !e.calledSet[n] {
			return false
		}
	}
	return len(nums) > 0
}

func winnerFor(t *models.Ticket) models.Winner {
	return models.Winner{
		PlayerName:  t.PlayerName,
		TicketID:    t.ID,
		ContactInfo: t.PlayerContact,
	}
}

func checkEarlyFive(e *evalContext) []models.Winner {
	var winners []models.Winner
	for _, et := range e.booked {
		if et.marked >= 5 {
			winners = append(winners, winnerFor(et.ticket))
		}
	}
	return winners
}

func lineValidator(row int) validator {
	return func(e *evalContext) []models.Winner {
		var winners []models.Winner
		for _, et := range e.booked {
			if e.allCalled(et.ticket.RowNumbers(row)) {
				winners = append(winners, winnerFor(et.ticket))
			}
		}
		return winners
	}
}

func checkCorners(e *evalContext) []models.Winner {
	var winners []models.Winner
	for _, et := range e.booked {
		if e.allCalled(et.meta.Corners[:]) {
			winners = append(winners, winnerFor(et.ticket))
		}
	}
	return winners
}

func checkStarCorner(e *evalContext) []models.Winner {
	var winners []models.Winner
	for _, et := range e.booked {
		if e.allCalled(et.meta.Corners[:]) && e.calledSet[et.meta.Center] {
			winners = append(winners, winnerFor(et.ticket))
		}
	}
	return winners
}

func checkFullHouse(e *evalContext) []models.Winner {
	var winners []models.Winner
	for _, et := range e.booked {
		if et.marked == models.NumbersPerTicket {
			winners = append(winners, winnerFor(et.ticket))
		}
	}
	return winners
}

// checkSecondFullHouse only fires once fullHouse is already won, and a ticket
// that took fullHouse cannot take second place with the same numbers.
func checkSecondFullHouse(e *evalContext) []models.Winner {
	first, ok := e.snap.Prizes[string(models.PrizeFullHouse)]
	if !ok || !first.Won {
		return nil
	}
	taken := make(map[string]bool, len(first.Winners))
	for _, w := range first.Winners {
		taken[w.TicketID] = true
	}

	var winners []models.Winner
	for _, et := range e.booked {
		if et.marked == models.NumbersPerTicket && !taken[et.ticket.ID] {
			winners = append(winners, winnerFor(et.ticket))
		}
	}
	return winners
}

// sheetHalf checks one half of a sheet: all three positions booked by the
// same player with at least two marks each. Returns the half's anchor ticket
// when it qualifies.
func sheetHalf(group []*evalTicket, positions [3]int) (*models.Ticket, bool) {
	byPos := make(map[int]*evalTicket, len(group))
	for _, et := range group {
		byPos[et.ticket.PositionInSet] = et
	}

	player := ""
	var anchor *models.Ticket
	for _, pos := range positions {
		et, ok := byPos[pos]
		if !ok || et.marked < 2 {
			return nil, false
		}
		if player == "" {
			player = et.ticket.PlayerName
			anchor = et.ticket
		} else if et.ticket.PlayerName != player {
			return nil, false
		}
	}
	return anchor, true
}

// checkHalfSheet evaluates the {1,2,3} and {4,5,6} halves of every sheet
// independently, so one player can win both halves of one sheet separately.
func checkHalfSheet(e *evalContext) []models.Winner {
	var winners []models.Winner
	for _, group := range e.bySet {
		for _, half := range [][3]int{{1, 2, 3}, {4, 5, 6}} {
			if anchor, ok := sheetHalf(group, half); ok {
				winners = append(winners, winnerFor(anchor))
			}
		}
	}
	sortWinners(winners)
	return winners
}

func checkFullSheet(e *evalContext) []models.Winner {
	var winners []models.Winner
	for _, group := range e.bySet {
		lower, okLower := sheetHalf(group, [3]int{1, 2, 3})
		_, okUpper := sheetHalf(group, [3]int{4, 5, 6})
		if !okLower || !okUpper {
			continue
		}
		if lower.PlayerName != sheetPlayer(group, 4) {
			continue
		}
		winners = append(winners, winnerFor(lower))
	}
	sortWinners(winners)
	return winners
}

func sheetPlayer(group []*evalTicket, position int) string {
	for _, et := range group {
		if et.ticket.PositionInSet == position {
			return et.ticket.PlayerName
		}
	}
	return ""
}

func sortWinners(winners []models.Winner) {
	sort.Slice(winners, func(i, j int) bool { return winners[i].TicketID < winners[j].TicketID })
}

// AnnouncementText renders the host-facing winner announcement persisted with
// a won prize.
func AnnouncementText(prize *models.Prize, winners []models.Winner, number int) string {
	names := make([]string, 0, len(winners))
	for _, w := range winners {
		names = append(names, w.PlayerName)
	}
	return fmt.Sprintf("%s won by %s on number %d", prize.Name, strings.Join(names, ", "), number)
}
