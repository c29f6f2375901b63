package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yss1235-why/tambola-sound-blitz-sub001/models"
)

func TestGenerateTicket_Invariants(t *testing.T) {
	f := NewSeededTicketFactory(42)

	for i := 0; i < 200; i++ {
		ticket := f.GenerateTicket()
		require.NoError(t, ValidateTicket(ticket), "ticket %d", i)

		for r := 0; r < models.TicketRows; r++ {
			assert.Len(t, ticket.RowNumbers(r), models.NumbersPerRow, "ticket %d row %d", i, r)
		}
	}
}

func TestGenerateSet_PartitionsAllNumbers(t *testing.T) {
	f := NewSeededTicketFactory(7)

	for i := 0; i < 50; i++ {
		set := f.GenerateSet()
		require.Len(t, set, models.SetSize)

		seen := make(map[int]int)
		setID := set[0].SetID
		require.NotEmpty(t, setID)

		for pos, ticket := range set {
			require.NoError(t, ValidateTicket(ticket))
			assert.Equal(t, setID, ticket.SetID)
			assert.Equal(t, pos+1, ticket.PositionInSet)

			meta, err := ComputeMetadata(ticket)
			require.NoError(t, err)
			require.Len(t, meta.AllNumbers, models.NumbersPerTicket)
			for _, n := range meta.AllNumbers {
				seen[n]++
			}
		}

		// the sheet uses each of 1..90 exactly once
		require.Len(t, seen, models.MaxNumber)
		for n := 1; n <= models.MaxNumber; n++ {
			assert.Equal(t, 1, seen[n], "number %d", n)
		}
	}
}

func TestComputeMetadata(t *testing.T) {
	ticket := &models.Ticket{Grid: [][]int{
		{1, 0, 23, 0, 47, 0, 62, 0, 81},
		{0, 12, 0, 31, 0, 55, 0, 71, 86},
		{5, 0, 26, 39, 0, 58, 0, 0, 90},
	}}

	meta, err := ComputeMetadata(ticket)
	require.NoError(t, err)

	assert.Equal(t, [4]int{1, 81, 5, 90}, meta.Corners)
	assert.Equal(t, 55, meta.Center)
	assert.ElementsMatch(t,
		[]int{1, 23, 47, 62, 81, 12, 31, 55, 71, 86, 5, 26, 39, 58, 90},
		meta.AllNumbers)
}

func TestComputeMetadata_Pure(t *testing.T) {
	f := NewSeededTicketFactory(3)
	ticket := f.GenerateTicket()

	first, err := ComputeMetadata(ticket)
	require.NoError(t, err)
	second, err := ComputeMetadata(ticket)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestComputeMetadata_MalformedGrid(t *testing.T) {
	cases := []struct {
		name string
		grid [][]int
	}{
		{"nil grid", nil},
		{"two rows", [][]int{make([]int, 9), make([]int, 9)}},
		{"short row", [][]int{make([]int, 9), make([]int, 5), make([]int, 9)}},
		{"empty row", [][]int{{1, 0, 0, 0, 0, 0, 0, 0, 0}, make([]int, 9), {5, 0, 0, 0, 0, 0, 0, 0, 0}}},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeMetadata(&models.Ticket{Grid: tt.grid})
			assert.ErrorIs(t, err, ErrInvalidTicketStructure)
		})
	}
}

func TestValidateTicket_Violations(t *testing.T) {
	good := [][]int{
		{1, 0, 23, 0, 47, 0, 62, 0, 81},
		{0, 12, 0, 31, 0, 55, 0, 71, 86},
		{5, 0, 26, 39, 0, 58, 0, 0, 90},
	}

	clone := func() [][]int {
		out := make([][]int, len(good))
		for i, row := range good {
			out[i] = append([]int(nil), row...)
		}
		return out
	}

	require.NoError(t, ValidateTicket(&models.Ticket{Grid: good}))

	outOfDecade := clone()
	outOfDecade[0][0] = 15 // column 0 only holds 1-9
	assert.ErrorIs(t, ValidateTicket(&models.Ticket{Grid: outOfDecade}), ErrInvalidTicketStructure)

	notIncreasing := clone()
	notIncreasing[0][0], notIncreasing[2][0] = 5, 1
	assert.ErrorIs(t, ValidateTicket(&models.Ticket{Grid: notIncreasing}), ErrInvalidTicketStructure)

	sixInRow := clone()
	sixInRow[0][1] = 12
	assert.ErrorIs(t, ValidateTicket(&models.Ticket{Grid: sixInRow}), ErrInvalidTicketStructure)
}
