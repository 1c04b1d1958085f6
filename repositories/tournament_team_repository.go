package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cs2platform/backend/models"
	"github.com/lib/pq"
)

var ErrRegistrationConflict = errors.New("team is already registered for this tournament")

type TournamentTeamRepository interface {
	Create(ctx context.Context, tt *models.TournamentTeam) error
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.TournamentTeam, error)
	CountByTournament(ctx context.Context, tournamentID int) (int, error)
}

type postgresTournamentTeamRepository struct {
	db *sql.DB
}

func NewPostgresTournamentTeamRepository(db *sql.DB) TournamentTeamRepository {
	return &postgresTournamentTeamRepository{db: db}
}

func (r *postgresTournamentTeamRepository) Create(ctx context.Context, tt *models.TournamentTeam) error {
	query := `
		INSERT INTO tournament_teams (tournament_id, team_id)
		VALUES ($1, $2)
		RETURNING id, registered_at`

	err := r.db.QueryRowContext(ctx, query, tt.TournamentID, tt.TeamID).
		Scan(&tt.ID, &tt.RegisteredAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Constraint == "tournament_teams_tournament_id_team_id_key" {
			return ErrRegistrationConflict
		}
		return fmt.Errorf("failed to register team %d for tournament %d: %w", tt.TeamID, tt.TournamentID, err)
	}
	return nil
}

// ListByTournament returns participants with their teams loaded,
// ordered by registration time.
func (r *postgresTournamentTeamRepository) ListByTournament(ctx context.Context, tournamentID int) ([]*models.TournamentTeam, error) {
	query := `
		SELECT tt.id, tt.tournament_id, tt.team_id, tt.registered_at,
		       t.id, t.name, t.tag, t.captain_id, t.logo_key, t.created_at
		FROM tournament_teams tt
		JOIN teams t ON t.id = tt.team_id
		WHERE tt.tournament_id = $1
		ORDER BY tt.registered_at ASC, tt.id ASC`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	participants := make([]*models.TournamentTeam, 0)
	for rows.Next() {
		var tt models.TournamentTeam
		var team models.Team
		if scanErr := rows.Scan(
			&tt.ID,
			&tt.TournamentID,
			&tt.TeamID,
			&tt.RegisteredAt,
			&team.ID,
			&team.Name,
			&team.Tag,
			&team.CaptainID,
			&team.LogoKey,
			&team.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan participant row: %w", scanErr)
		}
		tt.Team = &team
		participants = append(participants, &tt)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during participant rows iteration: %w", err)
	}
	return participants, nil
}

func (r *postgresTournamentTeamRepository) CountByTournament(ctx context.Context, tournamentID int) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tournament_teams WHERE tournament_id = $1`, tournamentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count participants for tournament %d: %w", tournamentID, err)
	}
	return count, nil
}
