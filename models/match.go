package models

import "time"

type MatchStatus string

const (
	MatchStatusScheduled MatchStatus = "scheduled"
	MatchStatusRunning   MatchStatus = "running"
	MatchStatusFinished  MatchStatus = "finished"
)

type VetoState string

const (
	VetoStateIdle    VetoState = "idle"
	VetoStateRunning VetoState = "running"
	VetoStateDone    VetoState = "done"
)

const (
	VetoTurnA = "A"
	VetoTurnB = "B"
)

// Match is a single-elimination bracket node. Team slots are nil until
// the previous round resolves; the embedded veto fields track the map
// ban procedure between the two teams.
type Match struct {
	ID           int         `json:"id" db:"id"`
	TournamentID int         `json:"tournament_id" db:"tournament_id"`
	Round        int         `json:"round" db:"round"`
	TeamAID      *int        `json:"team_a_id,omitempty" db:"team_a_id"`
	TeamBID      *int        `json:"team_b_id,omitempty" db:"team_b_id"`
	ScheduledAt  *time.Time  `json:"scheduled_at,omitempty" db:"scheduled_at"`
	Status       MatchStatus `json:"status" db:"status"`
	ScoreA       int         `json:"score_a" db:"score_a"`
	ScoreB       int         `json:"score_b" db:"score_b"`
	WinnerID     *int        `json:"winner_id,omitempty" db:"winner_id"`

	VetoState     VetoState  `json:"veto_state" db:"veto_state"`
	VetoTimeout   int        `json:"veto_timeout" db:"veto_timeout"` // seconds per turn
	VetoDeadline  *time.Time `json:"veto_deadline,omitempty" db:"veto_deadline"`
	VetoStartedAt *time.Time `json:"veto_started_at,omitempty" db:"veto_started_at"`
	VetoTurn      string     `json:"veto_turn" db:"veto_turn"`
	FinalMapCode  *string    `json:"final_map_code,omitempty" db:"final_map_code"`
	ServerAddr    string     `json:"server_addr" db:"server_addr"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`

	TeamA  *Team `json:"team_a,omitempty" db:"-"`
	TeamB  *Team `json:"team_b,omitempty" db:"-"`
	Winner *Team `json:"winner,omitempty" db:"-"`
}

func (m *Match) IsFinished() bool {
	return m.Status == MatchStatusFinished
}

// BothTeamsSet reports whether both bracket slots are resolved,
// the precondition for starting the veto.
func (m *Match) BothTeamsSet() bool {
	return m.TeamAID != nil && m.TeamBID != nil
}

// ConnectString is the console command players paste to join the game server.
func (m *Match) ConnectString() string {
	if m.ServerAddr == "" {
		return ""
	}
	return "connect " + m.ServerAddr
}

// CurrentVetoTeamID derives whose turn it is from ledger length parity:
// even — team A bans, odd — team B. Nil while a slot is unresolved.
func (m *Match) CurrentVetoTeamID(banCount int) *int {
	if !m.BothTeamsSet() {
		return nil
	}
	if banCount%2 == 0 {
		return m.TeamAID
	}
	return m.TeamBID
}
