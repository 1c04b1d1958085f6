package services

import (
	"context"

	"github.com/cs2platform/backend/models"
	"github.com/cs2platform/backend/repositories"
)

// MatchService records reported scores. A draw is never final in
// single elimination: equal scores clear the winner and put the match
// back to scheduled, even if it was already finished.
type MatchService interface {
	SetResult(ctx context.Context, matchID, scoreA, scoreB int) (*models.Match, error)
	GetMatch(ctx context.Context, matchID int) (*models.Match, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.Match, error)
}

type matchService struct {
	txm       repositories.TxManager
	matchRepo repositories.MatchRepository
}

func NewMatchService(txm repositories.TxManager, matchRepo repositories.MatchRepository) MatchService {
	return &matchService{txm: txm, matchRepo: matchRepo}
}

func (s *matchService) SetResult(ctx context.Context, matchID, scoreA, scoreB int) (*models.Match, error) {
	if scoreA < 0 {
		scoreA = 0
	}
	if scoreB < 0 {
		scoreB = 0
	}

	var match *models.Match
	err := s.txm.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		m, err := s.matchRepo.GetByIDForUpdate(ctx, exec, matchID)
		if err != nil {
			return err
		}
		match = m

		m.ScoreA = scoreA
		m.ScoreB = scoreB

		if scoreA == scoreB {
			m.WinnerID = nil
			m.Status = models.MatchStatusScheduled
		} else {
			// A one-sided slot still gets a finished status: this is a
			// walkover score entry, recorded without a winner.
			if m.BothTeamsSet() {
				if scoreA > scoreB {
					m.WinnerID = m.TeamAID
				} else {
					m.WinnerID = m.TeamBID
				}
			} else {
				m.WinnerID = nil
			}
			m.Status = models.MatchStatusFinished
		}

		return s.matchRepo.UpdateScoreStatusWinner(ctx, exec, m.ID, m.ScoreA, m.ScoreB, m.Status, m.WinnerID)
	})
	if err != nil {
		return nil, err
	}
	return match, nil
}

func (s *matchService) GetMatch(ctx context.Context, matchID int) (*models.Match, error) {
	return s.matchRepo.GetByID(ctx, matchID)
}

func (s *matchService) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Match, error) {
	return s.matchRepo.ListByTournament(ctx, tournamentID)
}
