package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cs2platform/backend/models"
)

var ErrTournamentNotFound = errors.New("tournament not found")

type TournamentRepository interface {
	Create(ctx context.Context, t *models.Tournament) error
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	List(ctx context.Context) ([]*models.Tournament, error)
	UpdateSettings(ctx context.Context, t *models.Tournament) error
	UpdateStatusRegistration(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus, registrationOpen bool) error
	SetWinner(ctx context.Context, exec SQLExecutor, id int, winnerID int, endDate *time.Time) error
	UpdateLogoKey(ctx context.Context, id int, logoKey *string) error
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

const tournamentColumns = `
	id, name, description, start_date, end_date, status, max_teams,
	registration_open, winner_id, created_by_id, logo_key, created_at`

var (
	tournamentGetByIDQuery = `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1`
	tournamentListQuery    = `SELECT` + tournamentColumns + ` FROM tournaments ORDER BY start_date DESC, id ASC`
)

func (r *postgresTournamentRepository) Create(ctx context.Context, t *models.Tournament) error {
	query := `
		INSERT INTO tournaments
			(name, description, start_date, end_date, status, max_teams, registration_open, created_by_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		t.Name,
		t.Description,
		t.StartDate,
		t.EndDate,
		t.Status,
		t.MaxTeams,
		t.RegistrationOpen,
		t.CreatedByID,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create tournament: %w", err)
	}
	return nil
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	t := &models.Tournament{}
	err := r.db.QueryRowContext(ctx, tournamentGetByIDQuery, id).Scan(
		&t.ID,
		&t.Name,
		&t.Description,
		&t.StartDate,
		&t.EndDate,
		&t.Status,
		&t.MaxTeams,
		&t.RegistrationOpen,
		&t.WinnerID,
		&t.CreatedByID,
		&t.LogoKey,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to scan tournament %d: %w", id, err)
	}
	return t, nil
}

func (r *postgresTournamentRepository) List(ctx context.Context) ([]*models.Tournament, error) {
	rows, err := r.db.QueryContext(ctx, tournamentListQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query tournaments: %w", err)
	}
	defer rows.Close()

	tournaments := make([]*models.Tournament, 0)
	for rows.Next() {
		var t models.Tournament
		if scanErr := rows.Scan(
			&t.ID,
			&t.Name,
			&t.Description,
			&t.StartDate,
			&t.EndDate,
			&t.Status,
			&t.MaxTeams,
			&t.RegistrationOpen,
			&t.WinnerID,
			&t.CreatedByID,
			&t.LogoKey,
			&t.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan tournament row: %w", scanErr)
		}
		tournaments = append(tournaments, &t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during tournament rows iteration: %w", err)
	}
	return tournaments, nil
}

func (r *postgresTournamentRepository) UpdateSettings(ctx context.Context, t *models.Tournament) error {
	query := `
		UPDATE tournaments
		SET name = $1, description = $2, start_date = $3, end_date = $4,
		    max_teams = $5, registration_open = $6
		WHERE id = $7`

	result, err := r.db.ExecContext(ctx, query,
		t.Name, t.Description, t.StartDate, t.EndDate, t.MaxTeams, t.RegistrationOpen, t.ID)
	if err != nil {
		return fmt.Errorf("failed to update tournament %d: %w", t.ID, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) UpdateStatusRegistration(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus, registrationOpen bool) error {
	query := `UPDATE tournaments SET status = $1, registration_open = $2 WHERE id = $3`
	result, err := exec.ExecContext(ctx, query, status, registrationOpen, id)
	if err != nil {
		return fmt.Errorf("failed to update tournament %d status: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

// SetWinner finishes the tournament in a single write: champion, status
// and end date together. End date is kept if already present.
func (r *postgresTournamentRepository) SetWinner(ctx context.Context, exec SQLExecutor, id int, winnerID int, endDate *time.Time) error {
	query := `
		UPDATE tournaments
		SET winner_id = $1, status = $2, end_date = COALESCE(end_date, $3)
		WHERE id = $4`
	result, err := exec.ExecContext(ctx, query, winnerID, models.TournamentStatusFinished, endDate, id)
	if err != nil {
		return fmt.Errorf("failed to set tournament %d winner: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) UpdateLogoKey(ctx context.Context, id int, logoKey *string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE tournaments SET logo_key = $1 WHERE id = $2`, logoKey, id)
	if err != nil {
		return fmt.Errorf("failed to update tournament logo key: %w", err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}
