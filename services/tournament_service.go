package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cs2platform/backend/models"
	"github.com/cs2platform/backend/repositories"
	"github.com/cs2platform/backend/storage"
	"golang.org/x/sync/errgroup"
)

type CreateTournamentInput struct {
	Name        string     `json:"name"`
	Description *string    `json:"description"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	MaxTeams    int        `json:"max_teams"`
}

type UpdateTournamentInput struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	MaxTeams    *int       `json:"max_teams"`
}

// TournamentService — фасад над жизненным циклом турнира: создание,
// регистрация команд, запуск и генерация сетки.
type TournamentService interface {
	Create(ctx context.Context, actor *models.User, input CreateTournamentInput) (*models.Tournament, error)
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	List(ctx context.Context) ([]*models.Tournament, error)
	UpdateSettings(ctx context.Context, actor *models.User, id int, input UpdateTournamentInput) (*models.Tournament, error)
	ToggleRegistration(ctx context.Context, actor *models.User, id int) (*models.Tournament, error)
	RegisterTeam(ctx context.Context, actor *models.User, tournamentID, teamID int) error
	StartTournament(ctx context.Context, actor *models.User, id int) (*models.Tournament, error)
	RegenerateBracket(ctx context.Context, actor *models.User, id int) ([]*models.Match, error)
	UploadLogo(ctx context.Context, actor *models.User, id int, file io.Reader, contentType string) (*models.Tournament, error)
}

type tournamentService struct {
	txm             repositories.TxManager
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.TournamentTeamRepository
	teamRepo        repositories.TeamRepository
	matchRepo       repositories.MatchRepository
	bracketService  BracketService
	broadcaster     Broadcaster
	uploader        storage.FileUploader
	minTeams        int
	logger          *slog.Logger
}

func NewTournamentService(
	txm repositories.TxManager,
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.TournamentTeamRepository,
	teamRepo repositories.TeamRepository,
	matchRepo repositories.MatchRepository,
	bracketService BracketService,
	broadcaster Broadcaster,
	uploader storage.FileUploader,
	minTeams int,
	logger *slog.Logger,
) TournamentService {
	return &tournamentService{
		txm:             txm,
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		teamRepo:        teamRepo,
		matchRepo:       matchRepo,
		bracketService:  bracketService,
		broadcaster:     broadcaster,
		uploader:        uploader,
		minTeams:        minTeams,
		logger:          logger,
	}
}

func (s *tournamentService) Create(ctx context.Context, actor *models.User, input CreateTournamentInput) (*models.Tournament, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}

	maxTeams := input.MaxTeams
	if maxTeams <= 0 {
		maxTeams = 16
	}
	tournament := &models.Tournament{
		Name:             input.Name,
		Description:      input.Description,
		StartDate:        input.StartDate,
		EndDate:          input.EndDate,
		Status:           models.TournamentStatusUpcoming,
		MaxTeams:         maxTeams,
		RegistrationOpen: true,
		CreatedByID:      &actor.ID,
	}
	if err := s.tournamentRepo.Create(ctx, tournament); err != nil {
		return nil, err
	}
	return tournament, nil
}

// GetByID возвращает турнир вместе с участниками и матчами.
func (s *tournamentService) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		participants, err := s.participantRepo.ListByTournament(gCtx, id)
		if err != nil {
			return err
		}
		tournament.Participants = make([]models.TournamentTeam, 0, len(participants))
		for _, p := range participants {
			s.populateTeamLogo(p.Team)
			tournament.Participants = append(tournament.Participants, *p)
		}
		return nil
	})
	g.Go(func() error {
		matches, err := s.matchRepo.ListByTournament(gCtx, id)
		if err != nil {
			return err
		}
		tournament.Matches = matches
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if tournament.WinnerID != nil {
		winner, err := s.teamRepo.GetByID(ctx, *tournament.WinnerID)
		if err == nil {
			s.populateTeamLogo(winner)
			tournament.Winner = winner
		}
	}

	s.populateTournamentLogo(tournament)
	return tournament, nil
}

func (s *tournamentService) List(ctx context.Context) ([]*models.Tournament, error) {
	tournaments, err := s.tournamentRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tournaments {
		s.populateTournamentLogo(t)
	}
	return tournaments, nil
}

func (s *tournamentService) UpdateSettings(ctx context.Context, actor *models.User, id int, input UpdateTournamentInput) (*models.Tournament, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}

	tournament, err := s.tournamentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tournament.Status != models.TournamentStatusUpcoming {
		return nil, ErrTournamentNotUpcoming
	}

	if input.Name != nil {
		tournament.Name = *input.Name
	}
	if input.Description != nil {
		tournament.Description = input.Description
	}
	if input.StartDate != nil {
		tournament.StartDate = input.StartDate
	}
	if input.EndDate != nil {
		tournament.EndDate = input.EndDate
	}
	if input.MaxTeams != nil && *input.MaxTeams > 0 {
		tournament.MaxTeams = *input.MaxTeams
	}

	if err := s.tournamentRepo.UpdateSettings(ctx, tournament); err != nil {
		return nil, err
	}
	s.populateTournamentLogo(tournament)
	return tournament, nil
}

func (s *tournamentService) ToggleRegistration(ctx context.Context, actor *models.User, id int) (*models.Tournament, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}

	tournament, err := s.tournamentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tournament.Status != models.TournamentStatusUpcoming {
		return nil, ErrTournamentNotUpcoming
	}

	tournament.RegistrationOpen = !tournament.RegistrationOpen
	err = s.txm.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		return s.tournamentRepo.UpdateStatusRegistration(ctx, exec, id, tournament.Status, tournament.RegistrationOpen)
	})
	if err != nil {
		return nil, err
	}
	s.populateTournamentLogo(tournament)
	return tournament, nil
}

// RegisterTeam записывает команду в турнир. Регистрирует либо капитан
// команды, либо админ.
func (s *tournamentService) RegisterTeam(ctx context.Context, actor *models.User, tournamentID, teamID int) error {
	if actor == nil {
		return ErrForbiddenOperation
	}

	tournament, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		return err
	}

	team, err := s.teamRepo.GetByID(ctx, teamID)
	if err != nil {
		return err
	}
	if !actor.IsStaff() && actor.ID != team.CaptainID {
		return ErrUserMustBeCaptain
	}

	registered, err := s.participantRepo.CountByTournament(ctx, tournamentID)
	if err != nil {
		return err
	}
	if tournament.Status != models.TournamentStatusUpcoming || !tournament.RegistrationOpen {
		return ErrRegistrationNotOpen
	}
	if tournament.SlotsLeft(registered) == 0 {
		return ErrTournamentFull
	}

	// Гонку между проверкой и вставкой ловит уникальный индекс.
	return s.participantRepo.Create(ctx, &models.TournamentTeam{
		TournamentID: tournamentID,
		TeamID:       teamID,
	})
}

// StartTournament переводит турнир в running: закрывает регистрацию,
// генерирует сетку (если её ещё нет) и сразу продвигает автопобеды.
func (s *tournamentService) StartTournament(ctx context.Context, actor *models.User, id int) (*models.Tournament, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}

	tournament, err := s.tournamentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tournament.Status != models.TournamentStatusUpcoming {
		return nil, ErrTournamentNotUpcoming
	}

	registered, err := s.participantRepo.CountByTournament(ctx, id)
	if err != nil {
		return nil, err
	}
	if registered < s.minTeams {
		return nil, ErrNotEnoughTeamsToStart
	}

	existing, err := s.matchRepo.ListByTournament(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		if _, err := s.bracketService.GenerateBracket(ctx, id); err != nil {
			return nil, err
		}
	}

	// Матчи с bye завершены сразу при генерации, победителей нужно
	// продвинуть до первой реальной пары.
	if err := s.bracketService.UpdateBracketProgression(ctx, id); err != nil {
		return nil, err
	}

	err = s.txm.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		return s.tournamentRepo.UpdateStatusRegistration(ctx, exec, id, models.TournamentStatusRunning, false)
	})
	if err != nil {
		return nil, err
	}
	tournament.Status = models.TournamentStatusRunning
	tournament.RegistrationOpen = false

	s.logger.Info("tournament started",
		slog.Int("tournament_id", id), slog.Int("teams", registered))

	if s.broadcaster != nil {
		s.broadcaster.BroadcastMatchesEvent(id, "bracket_generated", "Bracket has been generated")
		s.broadcaster.BroadcastBracketUpdate(ctx, id)
	}

	s.populateTournamentLogo(tournament)
	return tournament, nil
}

// RegenerateBracket сносит текущую сетку и строит новую из
// зарегистрированных команд. Для завершённого турнира запрещено.
func (s *tournamentService) RegenerateBracket(ctx context.Context, actor *models.User, id int) ([]*models.Match, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}

	tournament, err := s.tournamentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tournament.Status == models.TournamentStatusFinished {
		return nil, ErrTournamentFinished
	}

	matches, err := s.bracketService.GenerateBracket(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.bracketService.UpdateBracketProgression(ctx, id); err != nil {
		return nil, err
	}

	s.logger.Info("bracket regenerated",
		slog.Int("tournament_id", id), slog.Int("matches", len(matches)))

	if s.broadcaster != nil {
		s.broadcaster.BroadcastMatchesEvent(id, "bracket_generated", "Bracket has been regenerated")
		s.broadcaster.BroadcastBracketUpdate(ctx, id)
	}
	return matches, nil
}

func (s *tournamentService) UploadLogo(ctx context.Context, actor *models.User, id int, file io.Reader, contentType string) (*models.Tournament, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if s.uploader == nil {
		return nil, ErrUploaderNotConfigured
	}

	tournament, err := s.tournamentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	ext, err := extensionForContentType(contentType)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("tournaments/%d/logo_%d%s", id, time.Now().UnixNano(), ext)

	result, err := s.uploader.Upload(ctx, key, contentType, file)
	if err != nil {
		return nil, fmt.Errorf("failed to upload tournament logo: %w", err)
	}

	oldKey := tournament.LogoKey
	if err := s.tournamentRepo.UpdateLogoKey(ctx, id, &result.Key); err != nil {
		return nil, err
	}
	if oldKey != nil && *oldKey != result.Key {
		if delErr := s.uploader.Delete(ctx, *oldKey); delErr != nil {
			s.logger.Warn("failed to delete previous tournament logo",
				slog.String("key", *oldKey), slog.Any("error", delErr))
		}
	}

	tournament.LogoKey = &result.Key
	s.populateTournamentLogo(tournament)
	return tournament, nil
}

func (s *tournamentService) populateTournamentLogo(t *models.Tournament) {
	if t == nil || t.LogoKey == nil || s.uploader == nil {
		return
	}
	url := s.uploader.GetPublicURL(*t.LogoKey)
	if url != "" {
		t.LogoURL = &url
	}
}

func (s *tournamentService) populateTeamLogo(team *models.Team) {
	if team == nil || team.LogoKey == nil || s.uploader == nil {
		return
	}
	url := s.uploader.GetPublicURL(*team.LogoKey)
	if url != "" {
		team.LogoURL = &url
	}
}

func requireStaff(actor *models.User) error {
	if actor == nil || !actor.IsStaff() {
		return ErrForbiddenOperation
	}
	return nil
}
