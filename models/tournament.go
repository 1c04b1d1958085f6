package models

import "time"

// TournamentStatus представляет статусы турнира, соответствующие ENUM в БД.
type TournamentStatus string

const (
	TournamentStatusUpcoming TournamentStatus = "upcoming"
	TournamentStatusRunning  TournamentStatus = "running"
	TournamentStatusFinished TournamentStatus = "finished"
)

// Tournament представляет турнир.
type Tournament struct {
	ID               int              `json:"id" db:"id"`
	Name             string           `json:"name" db:"name"`
	Description      *string          `json:"description,omitempty" db:"description"`
	StartDate        *time.Time       `json:"start_date,omitempty" db:"start_date"`
	EndDate          *time.Time       `json:"end_date,omitempty" db:"end_date"`
	Status           TournamentStatus `json:"status" db:"status"`
	MaxTeams         int              `json:"max_teams" db:"max_teams"`
	RegistrationOpen bool             `json:"registration_open" db:"registration_open"`
	WinnerID         *int             `json:"winner_id,omitempty" db:"winner_id"`
	CreatedByID      *int             `json:"created_by_id,omitempty" db:"created_by_id"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	LogoKey          *string          `json:"-" db:"logo_key"`
	LogoURL          *string          `json:"logo_url,omitempty" db:"-"`

	// Опциональные связанные сущности (не мапятся напрямую)
	Winner       *Team            `json:"winner,omitempty" db:"-"`
	Participants []TournamentTeam `json:"participants,omitempty" db:"-"`
	Matches      []*Match         `json:"matches,omitempty" db:"-"`
}

// IsOpenForRegistration mirrors the registration gate: status, flag and capacity.
func (t *Tournament) IsOpenForRegistration(registered int) bool {
	return t.Status == TournamentStatusUpcoming &&
		t.RegistrationOpen &&
		registered < t.MaxTeams
}

func (t *Tournament) SlotsLeft(registered int) int {
	if left := t.MaxTeams - registered; left > 0 {
		return left
	}
	return 0
}

// TournamentTeam is one registered participant of a tournament.
type TournamentTeam struct {
	ID           int       `json:"id" db:"id"`
	TournamentID int       `json:"tournament_id" db:"tournament_id"`
	TeamID       int       `json:"team_id" db:"team_id"`
	RegisteredAt time.Time `json:"registered_at" db:"registered_at"`

	Team *Team `json:"team,omitempty" db:"-"`
}
