package brackets

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/cs2platform/backend/models"
)

var ErrInsufficientTeams = errors.New("not enough teams to generate a single elimination bracket (minimum 2)")

// GeneratedMatch is one bracket node produced by the generator, not yet
// persisted. A round-1 pairing with exactly one team is a bye: it comes
// out already finished with that team as winner.
type GeneratedMatch struct {
	Round    int
	TeamAID  *int
	TeamBID  *int
	Status   models.MatchStatus
	WinnerID *int
}

// BuildSingleElimination shuffles the team list with the supplied
// randomness source, pads it to the next power of two and builds the
// full bracket skeleton: round 1 paired from consecutive slots, every
// later round empty placeholders halving in count down to one final.
// The result is grouped by round, index 0 being round 1.
func BuildSingleElimination(teamIDs []int, rng *rand.Rand) ([][]*GeneratedMatch, error) {
	n := len(teamIDs)
	if n < 2 {
		return nil, ErrInsufficientTeams
	}

	shuffled := make([]int, n)
	copy(shuffled, teamIDs)
	rng.Shuffle(n, func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	numRounds := int(math.Ceil(math.Log2(float64(n))))
	bracketSize := 1 << uint(numRounds)

	slots := make([]*int, bracketSize)
	for i := range shuffled {
		id := shuffled[i]
		slots[i] = &id
	}

	byRound := make([][]*GeneratedMatch, numRounds)

	firstRound := make([]*GeneratedMatch, 0, bracketSize/2)
	for i := 0; i < bracketSize; i += 2 {
		gm := &GeneratedMatch{
			Round:   1,
			TeamAID: slots[i],
			TeamBID: slots[i+1],
			Status:  models.MatchStatusScheduled,
		}
		// Bye: one side empty, the present team advances without playing.
		if (gm.TeamAID != nil) != (gm.TeamBID != nil) {
			if gm.TeamAID != nil {
				gm.WinnerID = gm.TeamAID
			} else {
				gm.WinnerID = gm.TeamBID
			}
			gm.Status = models.MatchStatusFinished
		}
		firstRound = append(firstRound, gm)
	}
	byRound[0] = firstRound

	for r := 2; r <= numRounds; r++ {
		numMatches := 1 << uint(numRounds-r)
		round := make([]*GeneratedMatch, 0, numMatches)
		for i := 0; i < numMatches; i++ {
			round = append(round, &GeneratedMatch{
				Round:  r,
				Status: models.MatchStatusScheduled,
			})
		}
		byRound[r-1] = round
	}

	return byRound, nil
}

// RoundLabel derives the display name of a round from its distance to
// the final: 0 — Final, 1 — Semi finals, 2 — Quarter finals, otherwise
// "Round of 2^(distance+1)".
func RoundLabel(round, totalRounds int) string {
	switch d := totalRounds - round; d {
	case 0:
		return "Final"
	case 1:
		return "Semi finals"
	case 2:
		return "Quarter finals"
	default:
		return fmt.Sprintf("Round of %d", 1<<uint(d+1))
	}
}
