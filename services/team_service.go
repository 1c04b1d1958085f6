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
)

type CreateTeamInput struct {
	Name string `json:"name"`
	Tag  string `json:"tag"`
}

type TeamService interface {
	Create(ctx context.Context, actor *models.User, input CreateTeamInput) (*models.Team, error)
	GetByID(ctx context.Context, id int) (*models.Team, error)
	List(ctx context.Context) ([]*models.Team, error)
	UploadLogo(ctx context.Context, actor *models.User, id int, file io.Reader, contentType string) (*models.Team, error)
}

type teamService struct {
	teamRepo repositories.TeamRepository
	userRepo repositories.UserRepository
	uploader storage.FileUploader
	logger   *slog.Logger
}

func NewTeamService(
	teamRepo repositories.TeamRepository,
	userRepo repositories.UserRepository,
	uploader storage.FileUploader,
	logger *slog.Logger,
) TeamService {
	return &teamService{
		teamRepo: teamRepo,
		userRepo: userRepo,
		uploader: uploader,
		logger:   logger,
	}
}

// Create регистрирует команду, автор запроса становится капитаном.
func (s *teamService) Create(ctx context.Context, actor *models.User, input CreateTeamInput) (*models.Team, error) {
	if actor == nil {
		return nil, ErrForbiddenOperation
	}

	team := &models.Team{
		Name:      input.Name,
		Tag:       input.Tag,
		CaptainID: actor.ID,
	}
	if err := s.teamRepo.Create(ctx, team); err != nil {
		return nil, err
	}
	return team, nil
}

func (s *teamService) GetByID(ctx context.Context, id int) (*models.Team, error) {
	team, err := s.teamRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if captain, capErr := s.userRepo.GetByID(ctx, team.CaptainID); capErr == nil {
		captain.PasswordHash = ""
		team.Captain = captain
	}
	s.populateLogo(team)
	return team, nil
}

func (s *teamService) List(ctx context.Context) ([]*models.Team, error) {
	teams, err := s.teamRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, team := range teams {
		s.populateLogo(team)
	}
	return teams, nil
}

func (s *teamService) UploadLogo(ctx context.Context, actor *models.User, id int, file io.Reader, contentType string) (*models.Team, error) {
	if s.uploader == nil {
		return nil, ErrUploaderNotConfigured
	}

	team, err := s.teamRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor == nil || (!actor.IsStaff() && actor.ID != team.CaptainID) {
		return nil, ErrForbiddenOperation
	}

	ext, err := extensionForContentType(contentType)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("teams/%d/logo_%d%s", id, time.Now().UnixNano(), ext)

	result, err := s.uploader.Upload(ctx, key, contentType, file)
	if err != nil {
		return nil, fmt.Errorf("failed to upload team logo: %w", err)
	}

	oldKey := team.LogoKey
	if err := s.teamRepo.UpdateLogoKey(ctx, id, &result.Key); err != nil {
		return nil, err
	}
	if oldKey != nil && *oldKey != result.Key {
		if delErr := s.uploader.Delete(ctx, *oldKey); delErr != nil {
			s.logger.Warn("failed to delete previous team logo",
				slog.String("key", *oldKey), slog.Any("error", delErr))
		}
	}

	team.LogoKey = &result.Key
	s.populateLogo(team)
	return team, nil
}

func (s *teamService) populateLogo(team *models.Team) {
	if team == nil || team.LogoKey == nil || s.uploader == nil {
		return
	}
	url := s.uploader.GetPublicURL(*team.LogoKey)
	if url != "" {
		team.LogoURL = &url
	}
}
