package services

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/cs2platform/backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testServerAddr = "10.0.0.1:27015"

type vetoFixture struct {
	service   VetoService
	matchRepo *fakeMatchRepo
	banRepo   *fakeMapBanRepo
	clock     *time.Time

	admin    *models.User
	captainA *models.User
	captainB *models.User
}

func (f *vetoFixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func newVetoFixture(t *testing.T) *vetoFixture {
	t.Helper()

	teamRepo := newFakeTeamRepo()
	teamRepo.put(&models.Team{ID: 1, Name: "Alpha", Tag: "ALP", CaptainID: 11})
	teamRepo.put(&models.Team{ID: 2, Name: "Bravo", Tag: "BRV", CaptainID: 21})

	matchRepo := newFakeMatchRepo()
	teamA, teamB := 1, 2
	match := &models.Match{
		ID:           1,
		TournamentID: 1,
		Round:        1,
		TeamAID:      &teamA,
		TeamBID:      &teamB,
		Status:       models.MatchStatusScheduled,
		VetoState:    models.VetoStateIdle,
		VetoTimeout:  30,
		VetoTurn:     models.VetoTurnA,
	}
	matchRepo.put(match)

	banRepo := newFakeMapBanRepo()
	now := time.Date(2026, time.August, 30, 18, 0, 0, 0, time.UTC)

	fixture := &vetoFixture{
		matchRepo: matchRepo,
		banRepo:   banRepo,
		clock:     &now,
		admin:     &models.User{ID: 99, Nickname: "admin", Role: models.RoleAdmin},
		captainA:  &models.User{ID: 11, Nickname: "cap-a", Role: models.RolePlayer},
		captainB:  &models.User{ID: 21, Nickname: "cap-b", Role: models.RolePlayer},
	}
	// Откатывающий менеджер: отвергнутые действия не должны тащить за
	// собой в rollback уже принятые решения.
	fixture.service = NewVetoService(
		&snapshotTxManager{matchRepo: matchRepo, banRepo: banRepo},
		matchRepo,
		banRepo,
		teamRepo,
		testServerAddr,
		func() time.Time { return *fixture.clock },
		rand.New(rand.NewSource(1)),
	)
	return fixture
}

func (f *vetoFixture) startVeto(t *testing.T) {
	t.Helper()
	_, err := f.service.StartVeto(context.Background(), 1)
	require.NoError(t, err)
}

func TestStartVeto(t *testing.T) {
	f := newVetoFixture(t)

	match, err := f.service.StartVeto(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, models.VetoStateRunning, match.VetoState)
	assert.Equal(t, models.VetoTurnA, match.VetoTurn)
	require.NotNil(t, match.VetoDeadline)
	assert.Equal(t, f.clock.Add(30*time.Second), *match.VetoDeadline)

	stored := f.matchRepo.stored(1)
	assert.Equal(t, models.VetoStateRunning, stored.VetoState)
}

func TestStartVetoIsIdempotent(t *testing.T) {
	f := newVetoFixture(t)
	f.startVeto(t)
	firstDeadline := *f.matchRepo.stored(1).VetoDeadline

	f.advance(5 * time.Second)
	match, err := f.service.StartVeto(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, models.VetoStateRunning, match.VetoState)
	assert.Equal(t, firstDeadline, *f.matchRepo.stored(1).VetoDeadline, "restart must not push the deadline")
}

func TestStartVetoRequiresBothTeams(t *testing.T) {
	f := newVetoFixture(t)
	f.matchRepo.stored(1).TeamBID = nil

	match, err := f.service.StartVeto(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.VetoStateIdle, match.VetoState)
}

func TestBanMapFullSequence(t *testing.T) {
	f := newVetoFixture(t)
	f.startVeto(t)

	// Команды чередуются: чётное число банов — ход A, нечётное — B.
	sequence := []struct {
		actor   *models.User
		mapCode string
	}{
		{f.captainA, "de_mirage"},
		{f.captainB, "de_dust2"},
		{f.captainA, "de_ancient"},
		{f.captainB, "de_train"},
		{f.captainA, "de_nuke"},
		{f.captainB, "de_inferno"},
	}

	for i, step := range sequence {
		f.advance(3 * time.Second)
		match, err := f.service.BanMap(context.Background(), 1, step.actor, step.mapCode)
		require.NoError(t, err, "ban %d (%s)", i+1, step.mapCode)

		if i < len(sequence)-1 {
			assert.Equal(t, models.VetoStateRunning, match.VetoState)
			wantTurn := models.VetoTurnA
			if (i+1)%2 == 1 {
				wantTurn = models.VetoTurnB
			}
			assert.Equal(t, wantTurn, match.VetoTurn)
			require.NotNil(t, match.VetoDeadline)
			assert.Equal(t, f.clock.Add(30*time.Second), *match.VetoDeadline)
		}
	}

	stored := f.matchRepo.stored(1)
	assert.Equal(t, models.VetoStateDone, stored.VetoState)
	require.NotNil(t, stored.FinalMapCode)
	assert.Equal(t, "de_overpass", *stored.FinalMapCode)
	assert.Nil(t, stored.VetoDeadline)
	assert.Equal(t, testServerAddr, stored.ServerAddr)

	bans := f.banRepo.list(1)
	require.Len(t, bans, 6)
	for i, ban := range bans {
		assert.Equal(t, i+1, ban.Order)
		assert.Equal(t, models.MapBanActionBan, ban.Action)
		wantTeam := 1
		if i%2 == 1 {
			wantTeam = 2
		}
		assert.Equal(t, wantTeam, ban.TeamID)
	}
}

func TestBanMapPreservesAssignedServer(t *testing.T) {
	f := newVetoFixture(t)
	f.matchRepo.stored(1).ServerAddr = "10.9.9.9:27015"
	f.startVeto(t)

	for _, code := range []string{"de_mirage", "de_dust2", "de_ancient", "de_train", "de_nuke", "de_inferno"} {
		_, err := f.service.BanMap(context.Background(), 1, f.admin, code)
		require.NoError(t, err)
	}

	assert.Equal(t, "10.9.9.9:27015", f.matchRepo.stored(1).ServerAddr)
}

func TestBanMapRejectsWhenNotRunning(t *testing.T) {
	f := newVetoFixture(t)

	_, err := f.service.BanMap(context.Background(), 1, f.admin, "de_mirage")
	assert.ErrorIs(t, err, ErrVetoNotRunning)

	f.matchRepo.stored(1).VetoState = models.VetoStateDone
	_, err = f.service.BanMap(context.Background(), 1, f.admin, "de_mirage")
	assert.ErrorIs(t, err, ErrVetoNotRunning)
}

func TestBanMapAuthorization(t *testing.T) {
	f := newVetoFixture(t)
	f.startVeto(t)

	// Первый ход за командой A: её капитан проходит, капитан B получает
	// отказ по очереди, посторонний и аноним — запрет.
	_, err := f.service.BanMap(context.Background(), 1, f.captainB, "de_mirage")
	assert.ErrorIs(t, err, ErrVetoWrongTurn)

	stranger := &models.User{ID: 500, Nickname: "stranger", Role: models.RolePlayer}
	_, err = f.service.BanMap(context.Background(), 1, stranger, "de_mirage")
	assert.ErrorIs(t, err, ErrForbiddenOperation)

	_, err = f.service.BanMap(context.Background(), 1, nil, "de_mirage")
	assert.ErrorIs(t, err, ErrForbiddenOperation)

	assert.Empty(t, f.banRepo.list(1), "rejected actions must not touch the ledger")

	_, err = f.service.BanMap(context.Background(), 1, f.captainA, "de_mirage")
	assert.NoError(t, err)
}

func TestBanMapStrangerWhenSlotVacated(t *testing.T) {
	f := newVetoFixture(t)
	f.startVeto(t)

	_, err := f.service.BanMap(context.Background(), 1, f.captainA, "de_mirage")
	require.NoError(t, err)

	// Слот A опустел уже после старта вето (перестройка сетки).
	// Посторонний на ходе B получает запрет, а не панику на пустом слоте.
	f.matchRepo.stored(1).TeamAID = nil

	stranger := &models.User{ID: 500, Nickname: "stranger", Role: models.RolePlayer}
	_, err = f.service.BanMap(context.Background(), 1, stranger, "de_dust2")
	assert.ErrorIs(t, err, ErrForbiddenOperation)
}

func TestBanMapRejectsConsumedOrUnknownMap(t *testing.T) {
	f := newVetoFixture(t)
	f.startVeto(t)

	_, err := f.service.BanMap(context.Background(), 1, f.captainA, "de_mirage")
	require.NoError(t, err)

	_, err = f.service.BanMap(context.Background(), 1, f.captainB, "de_mirage")
	assert.ErrorIs(t, err, ErrMapUnavailable)

	_, err = f.service.BanMap(context.Background(), 1, f.captainB, "de_cache")
	assert.ErrorIs(t, err, ErrMapUnavailable)

	assert.Len(t, f.banRepo.list(1), 1)
	assert.Equal(t, models.VetoTurnB, f.matchRepo.stored(1).VetoTurn, "failed action must not advance the turn")
}

func TestBanMapAfterDeadlineResolvesStalledTurnFirst(t *testing.T) {
	f := newVetoFixture(t)
	f.startVeto(t)

	// Команда A просрочила ход: её бан проставляется автоматически, и
	// запоздавший запрос капитана A уже отвергается как чужой ход.
	f.advance(31 * time.Second)
	_, err := f.service.BanMap(context.Background(), 1, f.captainA, "de_mirage")
	assert.ErrorIs(t, err, ErrVetoWrongTurn)

	// Автобан закоммичен отдельно: отказ ручного бана его не откатывает.
	bans := f.banRepo.list(1)
	require.Len(t, bans, 1)
	assert.Equal(t, 1, bans[0].TeamID)

	stored := f.matchRepo.stored(1)
	assert.Equal(t, models.VetoTurnB, stored.VetoTurn)
	require.NotNil(t, stored.VetoDeadline)
	assert.Equal(t, f.clock.Add(30*time.Second), *stored.VetoDeadline)

	// Очередь действительно перешла к B: её капитан продолжает вето.
	_, err = f.service.BanMap(context.Background(), 1, f.captainB, "de_dust2")
	assert.NoError(t, err)
	assert.Len(t, f.banRepo.list(1), 2)
}

func TestAutoResolveIfExpired(t *testing.T) {
	f := newVetoFixture(t)
	f.startVeto(t)

	// До дедлайна — ничего не происходит.
	changed, err := f.service.AutoResolveIfExpired(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, changed)

	// Ровно в момент дедлайна тоже рано: он должен строго пройти.
	f.advance(30 * time.Second)
	changed, err = f.service.AutoResolveIfExpired(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, changed)

	f.advance(time.Second)
	changed, err = f.service.AutoResolveIfExpired(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, changed)

	bans := f.banRepo.list(1)
	require.Len(t, bans, 1)
	assert.Equal(t, 1, bans[0].TeamID)
	assert.True(t, models.MapPoolContains(bans[0].MapCode))

	stored := f.matchRepo.stored(1)
	assert.Equal(t, models.VetoTurnB, stored.VetoTurn)
	require.NotNil(t, stored.VetoDeadline)
	assert.Equal(t, f.clock.Add(30*time.Second), *stored.VetoDeadline)
}

func TestAutoResolveIgnoresIdleAndDone(t *testing.T) {
	f := newVetoFixture(t)

	changed, err := f.service.AutoResolveIfExpired(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, changed)

	f.startVeto(t)
	f.matchRepo.stored(1).VetoState = models.VetoStateDone
	f.matchRepo.stored(1).VetoDeadline = nil
	f.advance(time.Hour)

	changed, err = f.service.AutoResolveIfExpired(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSweepExpired(t *testing.T) {
	f := newVetoFixture(t)
	f.startVeto(t)

	// Второй матч с ещё не истёкшим дедлайном.
	teamA, teamB := 1, 2
	future := f.clock.Add(time.Hour)
	f.matchRepo.put(&models.Match{
		ID:           2,
		TournamentID: 1,
		Round:        1,
		TeamAID:      &teamA,
		TeamBID:      &teamB,
		Status:       models.MatchStatusScheduled,
		VetoState:    models.VetoStateRunning,
		VetoTimeout:  30,
		VetoTurn:     models.VetoTurnA,
		VetoDeadline: &future,
	})

	f.advance(31 * time.Second)
	resolved, err := f.service.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1}, resolved)
	assert.Len(t, f.banRepo.list(1), 1)
	assert.Empty(t, f.banRepo.list(2))
}
