package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cs2platform/backend/models"
	"github.com/cs2platform/backend/repositories"
)

// passTxManager выполняет функцию без настоящей транзакции: фейковым
// репозиториям executor не нужен.
type passTxManager struct{}

func (passTxManager) WithinTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	return fn(nil)
}

// snapshotTxManager имитирует rollback: перед функцией снимает слепок
// фейковых репозиториев и восстанавливает его при ошибке. Сценарии,
// где важно, что именно переживает отказ, прогоняются через него.
type snapshotTxManager struct {
	matchRepo *fakeMatchRepo
	banRepo   *fakeMapBanRepo
}

func (m *snapshotTxManager) WithinTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	matches := m.matchRepo.snapshot()
	bans := m.banRepo.snapshot()
	if err := fn(nil); err != nil {
		m.matchRepo.restore(matches)
		m.banRepo.restore(bans)
		return err
	}
	return nil
}

type fakeMatchRepo struct {
	mu      sync.Mutex
	nextID  int
	matches map[int]*models.Match

	listForUpdateCalls int
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{matches: make(map[int]*models.Match)}
}

func (r *fakeMatchRepo) put(m *models.Match) *models.Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ID == 0 {
		r.nextID++
		m.ID = r.nextID
	} else if m.ID > r.nextID {
		r.nextID = m.ID
	}
	stored := *m
	r.matches[m.ID] = &stored
	return r.matches[m.ID]
}

func (r *fakeMatchRepo) snapshot() map[int]models.Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := make(map[int]models.Match, len(r.matches))
	for id, m := range r.matches {
		snap[id] = *m
	}
	return snap
}

func (r *fakeMatchRepo) restore(snap map[int]models.Match) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matches = make(map[int]*models.Match, len(snap))
	for id, m := range snap {
		clone := m
		r.matches[id] = &clone
	}
}

// stored возвращает живой указатель на запись, минуя копию.
func (r *fakeMatchRepo) stored(id int) *models.Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.matches[id]
}

func (r *fakeMatchRepo) Create(ctx context.Context, exec repositories.SQLExecutor, match *models.Match) error {
	created := r.put(match)
	match.ID = created.ID
	return nil
}

func (r *fakeMatchRepo) get(id int) (*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	clone := *m
	return &clone, nil
}

func (r *fakeMatchRepo) GetByID(ctx context.Context, id int) (*models.Match, error) {
	return r.get(id)
}

func (r *fakeMatchRepo) GetByIDForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Match, error) {
	return r.get(id)
}

func (r *fakeMatchRepo) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*models.Match, 0)
	for _, m := range r.matches {
		if m.TournamentID == tournamentID {
			clone := *m
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Round != result[j].Round {
			return result[i].Round < result[j].Round
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r *fakeMatchRepo) ListByTournamentForUpdate(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) ([]*models.Match, error) {
	r.mu.Lock()
	r.listForUpdateCalls++
	r.mu.Unlock()
	return r.ListByTournament(ctx, tournamentID)
}

func (r *fakeMatchRepo) UpdateTeams(ctx context.Context, exec repositories.SQLExecutor, id int, teamAID, teamBID *int) error {
	m := r.stored(id)
	if m == nil {
		return repositories.ErrMatchNotFound
	}
	m.TeamAID = teamAID
	m.TeamBID = teamBID
	return nil
}

func (r *fakeMatchRepo) UpdateScoreStatusWinner(ctx context.Context, exec repositories.SQLExecutor, id int, scoreA, scoreB int, status models.MatchStatus, winnerID *int) error {
	m := r.stored(id)
	if m == nil {
		return repositories.ErrMatchNotFound
	}
	m.ScoreA = scoreA
	m.ScoreB = scoreB
	m.Status = status
	m.WinnerID = winnerID
	return nil
}

func (r *fakeMatchRepo) UpdateVetoStart(ctx context.Context, exec repositories.SQLExecutor, id int, startedAt, deadline time.Time) error {
	m := r.stored(id)
	if m == nil {
		return repositories.ErrMatchNotFound
	}
	m.VetoState = models.VetoStateRunning
	m.VetoTurn = models.VetoTurnA
	m.VetoStartedAt = &startedAt
	m.VetoDeadline = &deadline
	return nil
}

func (r *fakeMatchRepo) UpdateVetoTurn(ctx context.Context, exec repositories.SQLExecutor, id int, turn string, deadline time.Time) error {
	m := r.stored(id)
	if m == nil {
		return repositories.ErrMatchNotFound
	}
	m.VetoTurn = turn
	m.VetoDeadline = &deadline
	return nil
}

func (r *fakeMatchRepo) UpdateVetoDone(ctx context.Context, exec repositories.SQLExecutor, id int, finalMapCode, serverAddr string) error {
	m := r.stored(id)
	if m == nil {
		return repositories.ErrMatchNotFound
	}
	m.VetoState = models.VetoStateDone
	m.FinalMapCode = &finalMapCode
	m.ServerAddr = serverAddr
	m.VetoDeadline = nil
	return nil
}

func (r *fakeMatchRepo) DeleteByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, m := range r.matches {
		if m.TournamentID == tournamentID {
			delete(r.matches, id)
		}
	}
	return nil
}

func (r *fakeMatchRepo) ListExpiredVetoIDs(ctx context.Context, before time.Time) ([]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int, 0)
	for _, m := range r.matches {
		if m.VetoState == models.VetoStateRunning && m.VetoDeadline != nil && m.VetoDeadline.Before(before) {
			ids = append(ids, m.ID)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

type fakeMapBanRepo struct {
	mu     sync.Mutex
	nextID int
	bans   []*models.MapBan
}

func newFakeMapBanRepo() *fakeMapBanRepo {
	return &fakeMapBanRepo{}
}

func (r *fakeMapBanRepo) Create(ctx context.Context, exec repositories.SQLExecutor, ban *models.MapBan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.bans {
		if existing.MatchID == ban.MatchID && existing.MapCode == ban.MapCode {
			return repositories.ErrMapBanDuplicate
		}
	}
	r.nextID++
	ban.ID = r.nextID
	ban.CreatedAt = time.Now()
	clone := *ban
	r.bans = append(r.bans, &clone)
	return nil
}

func (r *fakeMapBanRepo) snapshot() []models.MapBan {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := make([]models.MapBan, 0, len(r.bans))
	for _, ban := range r.bans {
		snap = append(snap, *ban)
	}
	return snap
}

func (r *fakeMapBanRepo) restore(snap []models.MapBan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bans = make([]*models.MapBan, 0, len(snap))
	for _, ban := range snap {
		clone := ban
		r.bans = append(r.bans, &clone)
	}
}

func (r *fakeMapBanRepo) list(matchID int) []*models.MapBan {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*models.MapBan, 0)
	for _, ban := range r.bans {
		if ban.MatchID == matchID {
			clone := *ban
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Order < result[j].Order })
	return result
}

func (r *fakeMapBanRepo) ListByMatch(ctx context.Context, exec repositories.SQLExecutor, matchID int) ([]*models.MapBan, error) {
	return r.list(matchID), nil
}

func (r *fakeMapBanRepo) ListByMatchWithTeams(ctx context.Context, matchID int) ([]*models.MapBan, error) {
	return r.list(matchID), nil
}

type fakeTeamRepo struct {
	mu     sync.Mutex
	nextID int
	teams  map[int]*models.Team
}

func newFakeTeamRepo() *fakeTeamRepo {
	return &fakeTeamRepo{teams: make(map[int]*models.Team)}
}

func (r *fakeTeamRepo) put(team *models.Team) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if team.ID == 0 {
		r.nextID++
		team.ID = r.nextID
	} else if team.ID > r.nextID {
		r.nextID = team.ID
	}
	clone := *team
	r.teams[team.ID] = &clone
}

func (r *fakeTeamRepo) Create(ctx context.Context, team *models.Team) error {
	r.put(team)
	return nil
}

func (r *fakeTeamRepo) GetByID(ctx context.Context, id int) (*models.Team, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	team, ok := r.teams[id]
	if !ok {
		return nil, repositories.ErrTeamNotFound
	}
	clone := *team
	return &clone, nil
}

func (r *fakeTeamRepo) List(ctx context.Context) ([]*models.Team, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*models.Team, 0, len(r.teams))
	for _, team := range r.teams {
		clone := *team
		result = append(result, &clone)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *fakeTeamRepo) UpdateLogoKey(ctx context.Context, id int, logoKey *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	team, ok := r.teams[id]
	if !ok {
		return repositories.ErrTeamNotFound
	}
	team.LogoKey = logoKey
	return nil
}

type fakeTournamentRepo struct {
	mu          sync.Mutex
	nextID      int
	tournaments map[int]*models.Tournament
}

func newFakeTournamentRepo() *fakeTournamentRepo {
	return &fakeTournamentRepo{tournaments: make(map[int]*models.Tournament)}
}

func (r *fakeTournamentRepo) put(t *models.Tournament) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == 0 {
		r.nextID++
		t.ID = r.nextID
	} else if t.ID > r.nextID {
		r.nextID = t.ID
	}
	clone := *t
	r.tournaments[t.ID] = &clone
}

func (r *fakeTournamentRepo) Create(ctx context.Context, t *models.Tournament) error {
	t.CreatedAt = time.Now()
	r.put(t)
	return nil
}

func (r *fakeTournamentRepo) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	clone := *t
	return &clone, nil
}

func (r *fakeTournamentRepo) List(ctx context.Context) ([]*models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*models.Tournament, 0, len(r.tournaments))
	for _, t := range r.tournaments {
		clone := *t
		result = append(result, &clone)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *fakeTournamentRepo) UpdateSettings(ctx context.Context, t *models.Tournament) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tournaments[t.ID]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	stored.Name = t.Name
	stored.Description = t.Description
	stored.StartDate = t.StartDate
	stored.EndDate = t.EndDate
	stored.MaxTeams = t.MaxTeams
	stored.RegistrationOpen = t.RegistrationOpen
	return nil
}

func (r *fakeTournamentRepo) UpdateStatusRegistration(ctx context.Context, exec repositories.SQLExecutor, id int, status models.TournamentStatus, registrationOpen bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Status = status
	t.RegistrationOpen = registrationOpen
	return nil
}

func (r *fakeTournamentRepo) SetWinner(ctx context.Context, exec repositories.SQLExecutor, id int, winnerID int, endDate *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.WinnerID = &winnerID
	t.Status = models.TournamentStatusFinished
	if t.EndDate == nil {
		t.EndDate = endDate
	}
	return nil
}

func (r *fakeTournamentRepo) UpdateLogoKey(ctx context.Context, id int, logoKey *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.LogoKey = logoKey
	return nil
}

type fakeParticipantRepo struct {
	mu      sync.Mutex
	nextID  int
	entries []*models.TournamentTeam
}

func newFakeParticipantRepo() *fakeParticipantRepo {
	return &fakeParticipantRepo{}
}

func (r *fakeParticipantRepo) Create(ctx context.Context, tt *models.TournamentTeam) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.entries {
		if existing.TournamentID == tt.TournamentID && existing.TeamID == tt.TeamID {
			return repositories.ErrRegistrationConflict
		}
	}
	r.nextID++
	tt.ID = r.nextID
	tt.RegisteredAt = time.Now()
	clone := *tt
	r.entries = append(r.entries, &clone)
	return nil
}

func (r *fakeParticipantRepo) ListByTournament(ctx context.Context, tournamentID int) ([]*models.TournamentTeam, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*models.TournamentTeam, 0)
	for _, tt := range r.entries {
		if tt.TournamentID == tournamentID {
			clone := *tt
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (r *fakeParticipantRepo) CountByTournament(ctx context.Context, tournamentID int) (int, error) {
	list, _ := r.ListByTournament(ctx, tournamentID)
	return len(list), nil
}

type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int
	users  map[int]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int]*models.User)}
}

func (r *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return repositories.ErrUserEmailConflict
		}
	}
	r.nextID++
	user.ID = r.nextID
	user.CreatedAt = time.Now()
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id int) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}
