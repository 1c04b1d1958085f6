package services

import (
	"context"
	"math/rand"
	"time"

	"github.com/cs2platform/backend/brackets"
	"github.com/cs2platform/backend/models"
	"github.com/cs2platform/backend/repositories"
)

// BracketService builds and persists the single-elimination bracket
// and moves winners forward as matches finish. Both operations always
// recompute from persisted state, so re-invoking them is safe.
type BracketService interface {
	// GenerateBracket deletes any existing matches of the tournament
	// and builds a fresh bracket from the registered teams. Byes come
	// out already finished.
	GenerateBracket(ctx context.Context, tournamentID int) ([]*models.Match, error)

	// UpdateBracketProgression writes every finished match's winner
	// into its slot of the next round, then checks the final: a
	// finished final crowns the champion and finishes the tournament.
	// Writes are guarded by only-if-changed checks.
	UpdateBracketProgression(ctx context.Context, tournamentID int) error
}

type bracketService struct {
	txm             repositories.TxManager
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.TournamentTeamRepository
	matchRepo       repositories.MatchRepository

	vetoTimeout time.Duration
	rng         *rand.Rand
}

func NewBracketService(
	txm repositories.TxManager,
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.TournamentTeamRepository,
	matchRepo repositories.MatchRepository,
	vetoTimeout time.Duration,
	rng *rand.Rand,
) BracketService {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &bracketService{
		txm:             txm,
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		matchRepo:       matchRepo,
		vetoTimeout:     vetoTimeout,
		rng:             rng,
	}
}

func (s *bracketService) GenerateBracket(ctx context.Context, tournamentID int) ([]*models.Match, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	participants, err := s.participantRepo.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	teamIDs := make([]int, 0, len(participants))
	for _, p := range participants {
		teamIDs = append(teamIDs, p.TeamID)
	}

	byRound, err := brackets.BuildSingleElimination(teamIDs, s.rng)
	if err != nil {
		return nil, err
	}

	created := make([]*models.Match, 0)

	err = s.txm.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.matchRepo.DeleteByTournament(ctx, exec, tournamentID); err != nil {
			return err
		}
		for _, round := range byRound {
			for _, gm := range round {
				match := &models.Match{
					TournamentID: tournamentID,
					Round:        gm.Round,
					TeamAID:      gm.TeamAID,
					TeamBID:      gm.TeamBID,
					ScheduledAt:  tournament.StartDate,
					Status:       gm.Status,
					WinnerID:     gm.WinnerID,
					VetoState:    models.VetoStateIdle,
					VetoTimeout:  int(s.vetoTimeout.Seconds()),
					VetoTurn:     models.VetoTurnA,
				}
				if err := s.matchRepo.Create(ctx, exec, match); err != nil {
					return err
				}
				created = append(created, match)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *bracketService) UpdateBracketProgression(ctx context.Context, tournamentID int) error {
	tournament, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		return err
	}

	return s.txm.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		matches, err := s.matchRepo.ListByTournamentForUpdate(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			return nil
		}

		byRound := make(map[int][]*models.Match)
		maxRound := 0
		for _, m := range matches {
			byRound[m.Round] = append(byRound[m.Round], m)
			if m.Round > maxRound {
				maxRound = m.Round
			}
		}

		for round := 1; round < maxRound; round++ {
			nextRound := byRound[round+1]
			for i, m := range byRound[round] {
				if !m.IsFinished() || m.WinnerID == nil {
					continue
				}
				nextIndex := i / 2
				if nextIndex >= len(nextRound) {
					continue
				}
				target := nextRound[nextIndex]

				// Even source index feeds slot A, odd feeds slot B.
				updated := false
				if i%2 == 0 {
					if target.TeamAID == nil || *target.TeamAID != *m.WinnerID {
						target.TeamAID = m.WinnerID
						updated = true
					}
				} else {
					if target.TeamBID == nil || *target.TeamBID != *m.WinnerID {
						target.TeamBID = m.WinnerID
						updated = true
					}
				}
				if updated {
					if err := s.matchRepo.UpdateTeams(ctx, exec, target.ID, target.TeamAID, target.TeamBID); err != nil {
						return err
					}
				}
			}
		}

		finals := byRound[maxRound]
		if len(finals) != 1 {
			return nil
		}
		final := finals[0]
		if !final.IsFinished() || final.WinnerID == nil {
			return nil
		}
		alreadyRecorded := tournament.Status == models.TournamentStatusFinished &&
			tournament.WinnerID != nil && *tournament.WinnerID == *final.WinnerID
		if alreadyRecorded {
			return nil
		}
		return s.tournamentRepo.SetWinner(ctx, exec, tournamentID, *final.WinnerID, final.ScheduledAt)
	})
}
