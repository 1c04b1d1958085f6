package brackets

import (
	"math/rand"
	"testing"

	"github.com/cs2platform/backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSingleEliminationRejectsTooFewTeams(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	_, err := BuildSingleElimination([]int{}, rng)
	assert.ErrorIs(t, err, ErrInsufficientTeams)

	_, err = BuildSingleElimination([]int{42}, rng)
	assert.ErrorIs(t, err, ErrInsufficientTeams)
}

func TestBuildSingleEliminationShape(t *testing.T) {
	tests := []struct {
		name           string
		teams          int
		wantRounds     int
		wantFirstRound int
		wantByes       int
	}{
		{name: "two teams", teams: 2, wantRounds: 1, wantFirstRound: 1, wantByes: 0},
		{name: "four teams", teams: 4, wantRounds: 2, wantFirstRound: 2, wantByes: 0},
		{name: "five teams", teams: 5, wantRounds: 3, wantFirstRound: 4, wantByes: 3},
		{name: "seven teams", teams: 7, wantRounds: 3, wantFirstRound: 4, wantByes: 1},
		{name: "eight teams", teams: 8, wantRounds: 3, wantFirstRound: 4, wantByes: 0},
		{name: "nine teams", teams: 9, wantRounds: 4, wantFirstRound: 8, wantByes: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			teamIDs := make([]int, 0, tt.teams)
			for i := 1; i <= tt.teams; i++ {
				teamIDs = append(teamIDs, i*100)
			}

			byRound, err := BuildSingleElimination(teamIDs, rand.New(rand.NewSource(7)))
			require.NoError(t, err)
			require.Len(t, byRound, tt.wantRounds)
			require.Len(t, byRound[0], tt.wantFirstRound)

			// Каждый следующий раунд вдвое меньше, финал один.
			for r := 1; r < tt.wantRounds; r++ {
				assert.Len(t, byRound[r], tt.wantFirstRound>>uint(r))
			}
			assert.Len(t, byRound[tt.wantRounds-1], 1)

			byes := 0
			seen := make(map[int]bool)
			for _, gm := range byRound[0] {
				assert.Equal(t, 1, gm.Round)
				for _, teamID := range []*int{gm.TeamAID, gm.TeamBID} {
					if teamID != nil {
						assert.False(t, seen[*teamID], "team %d placed twice", *teamID)
						seen[*teamID] = true
					}
				}
				if (gm.TeamAID != nil) != (gm.TeamBID != nil) {
					byes++
					assert.Equal(t, models.MatchStatusFinished, gm.Status)
					require.NotNil(t, gm.WinnerID)
					if gm.TeamAID != nil {
						assert.Equal(t, *gm.TeamAID, *gm.WinnerID)
					} else {
						assert.Equal(t, *gm.TeamBID, *gm.WinnerID)
					}
				} else {
					assert.Equal(t, models.MatchStatusScheduled, gm.Status)
					assert.Nil(t, gm.WinnerID)
				}
			}
			assert.Equal(t, tt.wantByes, byes)
			assert.Len(t, seen, tt.teams)

			// Плейсхолдеры поздних раундов пустые.
			for r := 1; r < tt.wantRounds; r++ {
				for _, gm := range byRound[r] {
					assert.Equal(t, r+1, gm.Round)
					assert.Nil(t, gm.TeamAID)
					assert.Nil(t, gm.TeamBID)
					assert.Equal(t, models.MatchStatusScheduled, gm.Status)
				}
			}
		})
	}
}

func TestBuildSingleEliminationShuffleIsDeterministic(t *testing.T) {
	teamIDs := []int{1, 2, 3, 4, 5, 6}

	first, err := BuildSingleElimination(teamIDs, rand.New(rand.NewSource(99)))
	require.NoError(t, err)
	second, err := BuildSingleElimination(teamIDs, rand.New(rand.NewSource(99)))
	require.NoError(t, err)

	for i := range first[0] {
		assert.Equal(t, first[0][i].TeamAID, second[0][i].TeamAID)
		assert.Equal(t, first[0][i].TeamBID, second[0][i].TeamBID)
	}
}

func TestRoundLabel(t *testing.T) {
	tests := []struct {
		round       int
		totalRounds int
		want        string
	}{
		{round: 3, totalRounds: 3, want: "Final"},
		{round: 2, totalRounds: 3, want: "Semi finals"},
		{round: 1, totalRounds: 3, want: "Quarter finals"},
		{round: 1, totalRounds: 4, want: "Round of 16"},
		{round: 1, totalRounds: 5, want: "Round of 32"},
		{round: 1, totalRounds: 1, want: "Final"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, RoundLabel(tt.round, tt.totalRounds))
	}
}
