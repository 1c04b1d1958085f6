package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cs2platform/backend/models"
)

var ErrMatchNotFound = errors.New("match not found")

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, id int) (*models.Match, error)
	// GetByIDForUpdate locks the match row for the duration of the
	// surrounding transaction. Veto mutations go through this so the
	// turn check and the ledger append see the same snapshot.
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.Match, error)
	// ListByTournamentForUpdate locks the tournament's matches for the
	// surrounding transaction so bracket progression reads and writes
	// one snapshot.
	ListByTournamentForUpdate(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Match, error)
	UpdateTeams(ctx context.Context, exec SQLExecutor, id int, teamAID, teamBID *int) error
	UpdateScoreStatusWinner(ctx context.Context, exec SQLExecutor, id int, scoreA, scoreB int, status models.MatchStatus, winnerID *int) error
	UpdateVetoStart(ctx context.Context, exec SQLExecutor, id int, startedAt, deadline time.Time) error
	UpdateVetoTurn(ctx context.Context, exec SQLExecutor, id int, turn string, deadline time.Time) error
	UpdateVetoDone(ctx context.Context, exec SQLExecutor, id int, finalMapCode, serverAddr string) error
	DeleteByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) error
	ListExpiredVetoIDs(ctx context.Context, before time.Time) ([]int, error)
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

const matchColumns = `
	m.id, m.tournament_id, m.round, m.team_a_id, m.team_b_id, m.scheduled_at,
	m.status, m.score_a, m.score_b, m.winner_id,
	m.veto_state, m.veto_timeout, m.veto_deadline, m.veto_started_at,
	m.veto_turn, m.final_map_code, m.server_addr, m.created_at`

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	query := `
		INSERT INTO matches
			(tournament_id, round, team_a_id, team_b_id, scheduled_at, status,
			 score_a, score_b, winner_id, veto_state, veto_timeout, veto_turn, server_addr)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at`

	err := exec.QueryRowContext(ctx, query,
		match.TournamentID,
		match.Round,
		match.TeamAID,
		match.TeamBID,
		match.ScheduledAt,
		match.Status,
		match.ScoreA,
		match.ScoreB,
		match.WinnerID,
		match.VetoState,
		match.VetoTimeout,
		match.VetoTurn,
		match.ServerAddr,
	).Scan(&match.ID, &match.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create match: %w", err)
	}
	return nil
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id int) (*models.Match, error) {
	query := `
		SELECT` + matchColumns + `,
		       ta.id, ta.name, ta.tag, ta.captain_id,
		       tb.id, tb.name, tb.tag, tb.captain_id,
		       tw.id, tw.name, tw.tag, tw.captain_id
		FROM matches m
		LEFT JOIN teams ta ON ta.id = m.team_a_id
		LEFT JOIN teams tb ON tb.id = m.team_b_id
		LEFT JOIN teams tw ON tw.id = m.winner_id
		WHERE m.id = $1`

	match, err := r.scanMatchWithTeams(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match %d: %w", id, err)
	}
	return match, nil
}

func (r *postgresMatchRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error) {
	query := `SELECT` + matchColumns + ` FROM matches m WHERE m.id = $1 FOR UPDATE`

	match := &models.Match{}
	err := exec.QueryRowContext(ctx, query, id).Scan(matchFields(match)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to lock match %d: %w", id, err)
	}
	return match, nil
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Match, error) {
	query := `
		SELECT` + matchColumns + `,
		       ta.id, ta.name, ta.tag, ta.captain_id,
		       tb.id, tb.name, tb.tag, tb.captain_id,
		       tw.id, tw.name, tw.tag, tw.captain_id
		FROM matches m
		LEFT JOIN teams ta ON ta.id = m.team_a_id
		LEFT JOIN teams tb ON tb.id = m.team_b_id
		LEFT JOIN teams tw ON tw.id = m.winner_id
		WHERE m.tournament_id = $1
		ORDER BY m.round ASC, m.id ASC`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		match, scanErr := r.scanMatchWithTeams(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", scanErr)
		}
		matches = append(matches, match)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during match rows iteration: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) ListByTournamentForUpdate(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Match, error) {
	query := `SELECT` + matchColumns + `
		FROM matches m
		WHERE m.tournament_id = $1
		ORDER BY m.round ASC, m.id ASC
		FOR UPDATE`

	rows, err := exec.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock matches for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		match := &models.Match{}
		if scanErr := rows.Scan(matchFields(match)...); scanErr != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", scanErr)
		}
		matches = append(matches, match)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during match rows iteration: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) UpdateTeams(ctx context.Context, exec SQLExecutor, id int, teamAID, teamBID *int) error {
	query := `UPDATE matches SET team_a_id = $1, team_b_id = $2 WHERE id = $3`
	result, err := exec.ExecContext(ctx, query, teamAID, teamBID, id)
	if err != nil {
		return fmt.Errorf("failed to update teams for match %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) UpdateScoreStatusWinner(ctx context.Context, exec SQLExecutor, id int, scoreA, scoreB int, status models.MatchStatus, winnerID *int) error {
	query := `UPDATE matches SET score_a = $1, score_b = $2, status = $3, winner_id = $4 WHERE id = $5`
	result, err := exec.ExecContext(ctx, query, scoreA, scoreB, status, winnerID, id)
	if err != nil {
		return fmt.Errorf("failed to update score for match %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) UpdateVetoStart(ctx context.Context, exec SQLExecutor, id int, startedAt, deadline time.Time) error {
	query := `
		UPDATE matches
		SET veto_state = $1, veto_turn = $2, veto_started_at = $3, veto_deadline = $4
		WHERE id = $5`
	result, err := exec.ExecContext(ctx, query,
		models.VetoStateRunning, models.VetoTurnA, startedAt, deadline, id)
	if err != nil {
		return fmt.Errorf("failed to start veto for match %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) UpdateVetoTurn(ctx context.Context, exec SQLExecutor, id int, turn string, deadline time.Time) error {
	query := `UPDATE matches SET veto_turn = $1, veto_deadline = $2 WHERE id = $3`
	result, err := exec.ExecContext(ctx, query, turn, deadline, id)
	if err != nil {
		return fmt.Errorf("failed to update veto turn for match %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

// UpdateVetoDone is the single atomic write of veto completion:
// final map, terminal state, cleared deadline and server address.
func (r *postgresMatchRepository) UpdateVetoDone(ctx context.Context, exec SQLExecutor, id int, finalMapCode, serverAddr string) error {
	query := `
		UPDATE matches
		SET final_map_code = $1, veto_state = $2, veto_deadline = NULL, server_addr = $3
		WHERE id = $4`
	result, err := exec.ExecContext(ctx, query, finalMapCode, models.VetoStateDone, serverAddr, id)
	if err != nil {
		return fmt.Errorf("failed to finish veto for match %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) DeleteByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) error {
	_, err := exec.ExecContext(ctx, `DELETE FROM matches WHERE tournament_id = $1`, tournamentID)
	if err != nil {
		return fmt.Errorf("failed to delete matches for tournament %d: %w", tournamentID, err)
	}
	return nil
}

// ListExpiredVetoIDs feeds the background sweep: running vetos whose
// deadline is already in the past.
func (r *postgresMatchRepository) ListExpiredVetoIDs(ctx context.Context, before time.Time) ([]int, error) {
	query := `
		SELECT id FROM matches
		WHERE veto_state = $1 AND veto_deadline IS NOT NULL AND veto_deadline < $2
		ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, models.VetoStateRunning, before)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired vetos: %w", err)
	}
	defer rows.Close()

	ids := make([]int, 0)
	for rows.Next() {
		var id int
		if scanErr := rows.Scan(&id); scanErr != nil {
			return nil, fmt.Errorf("failed to scan expired veto id: %w", scanErr)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during expired veto iteration: %w", err)
	}
	return ids, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func matchFields(m *models.Match) []interface{} {
	return []interface{}{
		&m.ID,
		&m.TournamentID,
		&m.Round,
		&m.TeamAID,
		&m.TeamBID,
		&m.ScheduledAt,
		&m.Status,
		&m.ScoreA,
		&m.ScoreB,
		&m.WinnerID,
		&m.VetoState,
		&m.VetoTimeout,
		&m.VetoDeadline,
		&m.VetoStartedAt,
		&m.VetoTurn,
		&m.FinalMapCode,
		&m.ServerAddr,
		&m.CreatedAt,
	}
}

func (r *postgresMatchRepository) scanMatchWithTeams(row rowScanner) (*models.Match, error) {
	match := &models.Match{}
	var (
		aID, bID, wID       sql.NullInt64
		aName, bName, wName sql.NullString
		aTag, bTag, wTag    sql.NullString
		aCap, bCap, wCap    sql.NullInt64
	)

	dest := matchFields(match)
	dest = append(dest,
		&aID, &aName, &aTag, &aCap,
		&bID, &bName, &bTag, &bCap,
		&wID, &wName, &wTag, &wCap,
	)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if aID.Valid {
		match.TeamA = &models.Team{ID: int(aID.Int64), Name: aName.String, Tag: aTag.String, CaptainID: int(aCap.Int64)}
	}
	if bID.Valid {
		match.TeamB = &models.Team{ID: int(bID.Int64), Name: bName.String, Tag: bTag.String, CaptainID: int(bCap.Int64)}
	}
	if wID.Valid {
		match.Winner = &models.Team{ID: int(wID.Int64), Name: wName.String, Tag: wTag.String, CaptainID: int(wCap.Int64)}
	}
	return match, nil
}
