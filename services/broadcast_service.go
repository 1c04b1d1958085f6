package services

import (
	"context"
	"log/slog"

	"github.com/cs2platform/backend/brackets"
	"github.com/cs2platform/backend/models"
	"github.com/cs2platform/backend/repositories"
	"golang.org/x/sync/errgroup"
)

// FinalMap is the resolved veto outcome: map code plus display label.
type FinalMap struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// MatchView is the derived, broadcast-ready state of a match: the veto
// panel and the scoreboard in one structure. It replaces the rendered
// HTML fragments the frontend used to receive; subscribers render it
// themselves.
type MatchView struct {
	Match          *models.Match      `json:"match"`
	Bans           []*models.MapBan   `json:"bans"`
	MapPool        []models.MapOption `json:"map_pool"`
	AvailableCodes []string           `json:"available_codes"`
	CurrentTeam    *models.Team       `json:"current_team,omitempty"`
	FinalMap       *FinalMap          `json:"final_map,omitempty"`
	DeadlineTS     *int64             `json:"deadline_ts,omitempty"` // unix millis
	ServerAddr     string             `json:"server_addr,omitempty"`
	ConnectCmd     string             `json:"connect_cmd,omitempty"`
	RoundLabel     string             `json:"round_label"`
}

// Broadcaster re-renders state after a mutation and fans it out to the
// relevant topic. Publishing is best-effort: failures are logged and
// never propagated to the mutation that triggered them.
type Broadcaster interface {
	MatchView(ctx context.Context, matchID int) (*MatchView, error)
	BroadcastMatchUpdate(ctx context.Context, matchID int)
	BroadcastBracketUpdate(ctx context.Context, tournamentID int)
	BroadcastMatchesEvent(tournamentID int, action, message string)
}

type broadcastService struct {
	hub       *brackets.Hub
	matchRepo repositories.MatchRepository
	banRepo   repositories.MapBanRepository
	logger    *slog.Logger
}

func NewBroadcastService(
	hub *brackets.Hub,
	matchRepo repositories.MatchRepository,
	banRepo repositories.MapBanRepository,
	logger *slog.Logger,
) Broadcaster {
	return &broadcastService{
		hub:       hub,
		matchRepo: matchRepo,
		banRepo:   banRepo,
		logger:    logger,
	}
}

// MatchView assembles the derived view. Match, ledger and sibling
// matches load in parallel; sibling matches are only needed for the
// round label.
func (s *broadcastService) MatchView(ctx context.Context, matchID int) (*MatchView, error) {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}

	var (
		bans     []*models.MapBan
		maxRound int
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		bans, err = s.banRepo.ListByMatchWithTeams(gCtx, matchID)
		return err
	})
	g.Go(func() error {
		siblings, err := s.matchRepo.ListByTournament(gCtx, match.TournamentID)
		if err != nil {
			return err
		}
		for _, m := range siblings {
			if m.Round > maxRound {
				maxRound = m.Round
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if maxRound < match.Round {
		maxRound = match.Round
	}

	view := &MatchView{
		Match:      match,
		Bans:       bans,
		MapPool:    models.MapPool,
		ServerAddr: match.ServerAddr,
		ConnectCmd: match.ConnectString(),
		RoundLabel: brackets.RoundLabel(match.Round, maxRound),
	}

	available := models.AvailableMapCodes(bans)
	view.AvailableCodes = available

	// Final map: the persisted field wins, else the single leftover.
	code := ""
	if match.FinalMapCode != nil {
		code = *match.FinalMapCode
	} else if len(available) == 1 {
		code = available[0]
	}
	if code != "" {
		view.FinalMap = &FinalMap{Code: code, Label: models.MapLabel(code)}
	}

	if view.FinalMap == nil {
		if teamID := match.CurrentVetoTeamID(len(bans)); teamID != nil {
			if match.TeamAID != nil && *teamID == *match.TeamAID {
				view.CurrentTeam = match.TeamA
			} else {
				view.CurrentTeam = match.TeamB
			}
		}
	}

	if match.VetoDeadline != nil {
		ts := match.VetoDeadline.UnixMilli()
		view.DeadlineTS = &ts
	}

	return view, nil
}

func (s *broadcastService) BroadcastMatchUpdate(ctx context.Context, matchID int) {
	view, err := s.MatchView(ctx, matchID)
	if err != nil {
		s.logger.Error("broadcast: failed to build match view",
			slog.Int("match_id", matchID), slog.Any("error", err))
		return
	}
	s.hub.BroadcastToRoom(brackets.MatchRoom(matchID), map[string]interface{}{
		"type":          "match_update",
		"match":         view,
		"veto":          view, // veto panel renders from the same view
		"show_veto_btn": view.FinalMap != nil,
	})
}

// BroadcastBracketUpdate publishes one frame per match of the
// tournament so every bracket node refreshes after progression.
func (s *broadcastService) BroadcastBracketUpdate(ctx context.Context, tournamentID int) {
	matches, err := s.matchRepo.ListByTournament(ctx, tournamentID)
	if err != nil {
		s.logger.Error("broadcast: failed to list matches",
			slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		return
	}
	maxRound := 0
	for _, m := range matches {
		if m.Round > maxRound {
			maxRound = m.Round
		}
	}
	room := brackets.TournamentRoom(tournamentID)
	for _, m := range matches {
		s.hub.BroadcastToRoom(room, map[string]interface{}{
			"type":        "bracket_update",
			"match_id":    m.ID,
			"match":       m,
			"round_label": brackets.RoundLabel(m.Round, maxRound),
		})
	}
}

func (s *broadcastService) BroadcastMatchesEvent(tournamentID int, action, message string) {
	s.hub.BroadcastToRoom(brackets.TournamentMatchesRoom(tournamentID), map[string]interface{}{
		"type":    "matches_update",
		"action":  action,
		"message": message,
	})
}
