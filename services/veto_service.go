package services

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/cs2platform/backend/models"
	"github.com/cs2platform/backend/repositories"
)

// VetoService owns the per-match veto lifecycle: lazy start once both
// bracket slots resolve, strict turn alternation, deadline expiry and
// final map resolution. Every mutation of a match runs under that
// match's mutex and inside one transaction with the match row locked,
// so the turn check is evaluated against the same ledger snapshot the
// append commits into. Matches are independent; cross-match calls do
// not contend.
type VetoService interface {
	// StartVeto transitions idle → running when both team slots are
	// resolved. Idempotent: a running or done veto is left untouched.
	StartVeto(ctx context.Context, matchID int) (*models.Match, error)

	// BanMap appends a ban on behalf of the team whose turn it is.
	// The actor must be staff or the captain of that team. An expired
	// deadline is resolved and committed first, in its own
	// transaction: the auto-ban survives even when the late manual
	// ban is then rejected.
	BanMap(ctx context.Context, matchID int, actor *models.User, mapCode string) (*models.Match, error)

	// AutoResolveIfExpired bans a uniformly random available map on
	// behalf of the current team if the turn deadline has strictly
	// passed. Returns whether a mutation occurred so callers know
	// whether to broadcast. No-op for idle and done vetos.
	AutoResolveIfExpired(ctx context.Context, matchID int) (bool, error)

	// SweepExpired lazily resolves every running veto whose deadline
	// has passed and returns the ids of matches that changed.
	SweepExpired(ctx context.Context) ([]int, error)
}

type vetoService struct {
	txm       repositories.TxManager
	matchRepo repositories.MatchRepository
	banRepo   repositories.MapBanRepository
	teamRepo  repositories.TeamRepository

	defaultServerAddr string
	now               func() time.Time
	rng               *rand.Rand

	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func NewVetoService(
	txm repositories.TxManager,
	matchRepo repositories.MatchRepository,
	banRepo repositories.MapBanRepository,
	teamRepo repositories.TeamRepository,
	defaultServerAddr string,
	now func() time.Time,
	rng *rand.Rand,
) VetoService {
	if now == nil {
		now = time.Now
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &vetoService{
		txm:               txm,
		matchRepo:         matchRepo,
		banRepo:           banRepo,
		teamRepo:          teamRepo,
		defaultServerAddr: defaultServerAddr,
		now:               now,
		rng:               rng,
		locks:             make(map[int]*sync.Mutex),
	}
}

// matchLock returns the mutex serializing mutations of one match.
func (s *vetoService) matchLock(matchID int) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[matchID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[matchID] = lock
	}
	return lock
}

func (s *vetoService) StartVeto(ctx context.Context, matchID int) (*models.Match, error) {
	lock := s.matchLock(matchID)
	lock.Lock()
	defer lock.Unlock()

	var match *models.Match
	err := s.txm.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		m, err := s.matchRepo.GetByIDForUpdate(ctx, exec, matchID)
		if err != nil {
			return err
		}
		match = m

		if m.VetoState != models.VetoStateIdle || !m.BothTeamsSet() {
			return nil
		}

		now := s.now()
		deadline := now.Add(time.Duration(m.VetoTimeout) * time.Second)
		if err := s.matchRepo.UpdateVetoStart(ctx, exec, m.ID, now, deadline); err != nil {
			return err
		}
		m.VetoState = models.VetoStateRunning
		m.VetoTurn = models.VetoTurnA
		m.VetoStartedAt = &now
		m.VetoDeadline = &deadline
		return nil
	})
	if err != nil {
		return nil, err
	}
	return match, nil
}

func (s *vetoService) BanMap(ctx context.Context, matchID int, actor *models.User, mapCode string) (*models.Match, error) {
	lock := s.matchLock(matchID)
	lock.Lock()
	defer lock.Unlock()

	// Resolve a stalled turn before judging whose turn it is now.
	// Committed separately: rejecting the manual ban below must not
	// roll the auto-ban back.
	if _, err := s.resolveExpiredTx(ctx, matchID); err != nil {
		return nil, err
	}

	var match *models.Match
	err := s.txm.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		m, err := s.matchRepo.GetByIDForUpdate(ctx, exec, matchID)
		if err != nil {
			return err
		}
		match = m

		bans, err := s.banRepo.ListByMatch(ctx, exec, m.ID)
		if err != nil {
			return err
		}

		if m.VetoState != models.VetoStateRunning {
			return ErrVetoNotRunning
		}

		currentTeamID := m.CurrentVetoTeamID(len(bans))
		if currentTeamID == nil {
			return ErrVetoNotRunning
		}
		if err := s.authorize(ctx, actor, m, *currentTeamID); err != nil {
			return err
		}
		if !contains(models.AvailableMapCodes(bans), mapCode) {
			return ErrMapUnavailable
		}

		ban := &models.MapBan{
			MatchID: m.ID,
			TeamID:  *currentTeamID,
			Action:  models.MapBanActionBan,
			MapCode: mapCode,
			Order:   len(bans) + 1,
		}
		if err := s.banRepo.Create(ctx, exec, ban); err != nil {
			return err
		}
		bans = append(bans, ban)

		return s.afterActionTick(ctx, exec, m, bans)
	})
	if err != nil {
		return nil, err
	}
	return match, nil
}

func (s *vetoService) AutoResolveIfExpired(ctx context.Context, matchID int) (bool, error) {
	lock := s.matchLock(matchID)
	lock.Lock()
	defer lock.Unlock()

	return s.resolveExpiredTx(ctx, matchID)
}

// resolveExpiredTx runs the expiry resolution in its own transaction.
// Caller holds the match lock.
func (s *vetoService) resolveExpiredTx(ctx context.Context, matchID int) (bool, error) {
	changed := false
	err := s.txm.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		m, err := s.matchRepo.GetByIDForUpdate(ctx, exec, matchID)
		if err != nil {
			return err
		}
		bans, err := s.banRepo.ListByMatch(ctx, exec, m.ID)
		if err != nil {
			return err
		}
		changed, err = s.resolveExpiredLocked(ctx, exec, m, &bans)
		return err
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

func (s *vetoService) SweepExpired(ctx context.Context) ([]int, error) {
	ids, err := s.matchRepo.ListExpiredVetoIDs(ctx, s.now())
	if err != nil {
		return nil, err
	}
	resolved := make([]int, 0, len(ids))
	for _, id := range ids {
		changed, err := s.AutoResolveIfExpired(ctx, id)
		if err != nil {
			// Matches are independent; one failure must not stall the sweep.
			if errors.Is(err, repositories.ErrMatchNotFound) {
				continue
			}
			return resolved, err
		}
		if changed {
			resolved = append(resolved, id)
		}
	}
	return resolved, nil
}

// resolveExpiredLocked appends a random ban on behalf of the current
// team if the deadline has strictly passed. Caller holds the match
// lock and the row lock.
func (s *vetoService) resolveExpiredLocked(ctx context.Context, exec repositories.SQLExecutor, m *models.Match, bans *[]*models.MapBan) (bool, error) {
	if m.VetoState != models.VetoStateRunning || m.VetoDeadline == nil {
		return false, nil
	}
	now := s.now()
	if !now.After(*m.VetoDeadline) {
		return false, nil
	}

	available := models.AvailableMapCodes(*bans)
	if len(available) == 0 {
		return false, nil
	}
	currentTeamID := m.CurrentVetoTeamID(len(*bans))
	if currentTeamID == nil {
		return false, nil
	}

	choice := available[s.rng.Intn(len(available))]
	ban := &models.MapBan{
		MatchID: m.ID,
		TeamID:  *currentTeamID,
		Action:  models.MapBanActionBan,
		MapCode: choice,
		Order:   len(*bans) + 1,
	}
	if err := s.banRepo.Create(ctx, exec, ban); err != nil {
		return false, err
	}
	*bans = append(*bans, ban)

	if err := s.afterActionTick(ctx, exec, m, *bans); err != nil {
		return false, err
	}
	return true, nil
}

// afterActionTick re-evaluates the match after a ledger append: one
// map left fixes the final map and terminates the veto, otherwise the
// turn flips and the deadline is pushed forward by the turn timeout.
func (s *vetoService) afterActionTick(ctx context.Context, exec repositories.SQLExecutor, m *models.Match, bans []*models.MapBan) error {
	available := models.AvailableMapCodes(bans)
	if len(available) == 1 {
		serverAddr := m.ServerAddr
		if serverAddr == "" {
			serverAddr = s.defaultServerAddr
		}
		if err := s.matchRepo.UpdateVetoDone(ctx, exec, m.ID, available[0], serverAddr); err != nil {
			return err
		}
		final := available[0]
		m.FinalMapCode = &final
		m.VetoState = models.VetoStateDone
		m.VetoDeadline = nil
		m.ServerAddr = serverAddr
		return nil
	}

	turn := models.VetoTurnB
	if len(bans)%2 == 0 {
		turn = models.VetoTurnA
	}
	deadline := s.now().Add(time.Duration(m.VetoTimeout) * time.Second)
	if err := s.matchRepo.UpdateVetoTurn(ctx, exec, m.ID, turn, deadline); err != nil {
		return err
	}
	m.VetoTurn = turn
	m.VetoDeadline = &deadline
	return nil
}

// authorize admits staff and the captain of the team whose turn it
// is. The opposing captain gets a wrong-turn reject so the client can
// tell "wait for your turn" apart from "not your match".
func (s *vetoService) authorize(ctx context.Context, actor *models.User, m *models.Match, currentTeamID int) error {
	if actor == nil {
		return ErrForbiddenOperation
	}
	if actor.IsStaff() {
		return nil
	}
	team, err := s.teamRepo.GetByID(ctx, currentTeamID)
	if err != nil {
		return err
	}
	if team.CaptainID == actor.ID {
		return nil
	}

	otherTeamID := m.TeamAID
	if otherTeamID != nil && *otherTeamID == currentTeamID {
		otherTeamID = m.TeamBID
	}
	if otherTeamID != nil {
		other, err := s.teamRepo.GetByID(ctx, *otherTeamID)
		if err != nil {
			return err
		}
		if other.CaptainID == actor.ID {
			return ErrVetoWrongTurn
		}
	}
	return ErrForbiddenOperation
}

func contains(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
