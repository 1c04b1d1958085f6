package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cs2platform/backend/models"
	"github.com/lib/pq"
)

// ErrMapBanDuplicate surfaces the unique (match_id, map_code) constraint:
// a map consumed once in a match can never be consumed again, whatever
// the acting team or action type.
var ErrMapBanDuplicate = errors.New("map is already banned or picked in this match")

type MapBanRepository interface {
	Create(ctx context.Context, exec SQLExecutor, ban *models.MapBan) error
	ListByMatch(ctx context.Context, exec SQLExecutor, matchID int) ([]*models.MapBan, error)
	ListByMatchWithTeams(ctx context.Context, matchID int) ([]*models.MapBan, error)
}

type postgresMapBanRepository struct {
	db *sql.DB
}

func NewPostgresMapBanRepository(db *sql.DB) MapBanRepository {
	return &postgresMapBanRepository{db: db}
}

func (r *postgresMapBanRepository) Create(ctx context.Context, exec SQLExecutor, ban *models.MapBan) error {
	query := `
		INSERT INTO map_bans (match_id, team_id, action, map_code, ban_order)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := exec.QueryRowContext(ctx, query,
		ban.MatchID,
		ban.TeamID,
		ban.Action,
		ban.MapCode,
		ban.Order,
	).Scan(&ban.ID, &ban.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Constraint == "map_bans_match_id_map_code_key" {
			return ErrMapBanDuplicate
		}
		return fmt.Errorf("failed to append map ban for match %d: %w", ban.MatchID, err)
	}
	return nil
}

// ListByMatch returns the ledger in action order. Takes an executor so
// veto mutations can read the ledger inside their own transaction.
func (r *postgresMapBanRepository) ListByMatch(ctx context.Context, exec SQLExecutor, matchID int) ([]*models.MapBan, error) {
	query := `
		SELECT id, match_id, team_id, action, map_code, ban_order, created_at
		FROM map_bans
		WHERE match_id = $1
		ORDER BY ban_order ASC, id ASC`

	rows, err := exec.QueryContext(ctx, query, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query map bans for match %d: %w", matchID, err)
	}
	defer rows.Close()

	bans := make([]*models.MapBan, 0)
	for rows.Next() {
		var ban models.MapBan
		if scanErr := rows.Scan(
			&ban.ID,
			&ban.MatchID,
			&ban.TeamID,
			&ban.Action,
			&ban.MapCode,
			&ban.Order,
			&ban.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan map ban row: %w", scanErr)
		}
		bans = append(bans, &ban)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during map ban rows iteration: %w", err)
	}
	return bans, nil
}

func (r *postgresMapBanRepository) ListByMatchWithTeams(ctx context.Context, matchID int) ([]*models.MapBan, error) {
	query := `
		SELECT b.id, b.match_id, b.team_id, b.action, b.map_code, b.ban_order, b.created_at,
		       t.id, t.name, t.tag, t.captain_id
		FROM map_bans b
		JOIN teams t ON t.id = b.team_id
		WHERE b.match_id = $1
		ORDER BY b.ban_order ASC, b.id ASC`

	rows, err := r.db.QueryContext(ctx, query, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query map bans for match %d: %w", matchID, err)
	}
	defer rows.Close()

	bans := make([]*models.MapBan, 0)
	for rows.Next() {
		var ban models.MapBan
		var team models.Team
		if scanErr := rows.Scan(
			&ban.ID,
			&ban.MatchID,
			&ban.TeamID,
			&ban.Action,
			&ban.MapCode,
			&ban.Order,
			&ban.CreatedAt,
			&team.ID,
			&team.Name,
			&team.Tag,
			&team.CaptainID,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan map ban row: %w", scanErr)
		}
		ban.Team = &team
		bans = append(bans, &ban)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during map ban rows iteration: %w", err)
	}
	return bans, nil
}
