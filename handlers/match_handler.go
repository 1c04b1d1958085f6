package handlers

import (
	"net/http"

	"github.com/cs2platform/backend/repositories"
	"github.com/cs2platform/backend/services"
)

type MatchHandler struct {
	matchService   services.MatchService
	vetoService    services.VetoService
	bracketService services.BracketService
	broadcaster    services.Broadcaster
	userRepo       repositories.UserRepository
}

func NewMatchHandler(
	matchService services.MatchService,
	vetoService services.VetoService,
	bracketService services.BracketService,
	broadcaster services.Broadcaster,
	userRepo repositories.UserRepository,
) *MatchHandler {
	return &MatchHandler{
		matchService:   matchService,
		vetoService:    vetoService,
		bracketService: bracketService,
		broadcaster:    broadcaster,
		userRepo:       userRepo,
	}
}

// GetByID отдаёт собранное состояние матча: счёт, лента банов,
// доступные карты, чья очередь и дедлайн.
func (h *MatchHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	view, err := h.broadcaster.MatchView(r.Context(), matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": view}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) ListByTournament(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	matches, err := h.matchService.ListByTournament(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"matches": matches}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// SetResult записывает счёт и прокатывает волну: обновление матча,
// продвижение сетки, обе рассылки.
func (h *MatchHandler) SetResult(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r, h.userRepo)
	if err != nil {
		unauthorizedResponse(w, r, "failed to identify current user")
		return
	}
	if !actor.IsStaff() {
		forbiddenResponse(w, r, "admin privileges required to set match result")
		return
	}

	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		ScoreA int `json:"score_a"`
		ScoreB int `json:"score_b"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matchService.SetResult(r.Context(), matchID, input.ScoreA, input.ScoreB)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := h.bracketService.UpdateBracketProgression(r.Context(), match.TournamentID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	h.broadcaster.BroadcastMatchUpdate(r.Context(), matchID)
	h.broadcaster.BroadcastBracketUpdate(r.Context(), match.TournamentID)

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// BanMap принимает бан по HTTP. Делает то же, что и ws-сообщение
// ban_map, для клиентов без открытого сокета.
func (h *MatchHandler) BanMap(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r, h.userRepo)
	if err != nil {
		unauthorizedResponse(w, r, "failed to identify current user")
		return
	}

	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		MapName string `json:"map_name"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.vetoService.BanMap(r.Context(), matchID, actor, input.MapName)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	h.broadcaster.BroadcastMatchUpdate(r.Context(), matchID)

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// StartVeto запускает вето вручную. Идемпотентен: повторный вызов на
// запущенном вето просто возвращает текущее состояние.
func (h *MatchHandler) StartVeto(w http.ResponseWriter, r *http.Request) {
	if _, err := currentUser(r, h.userRepo); err != nil {
		unauthorizedResponse(w, r, "failed to identify current user")
		return
	}

	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.vetoService.StartVeto(r.Context(), matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	h.broadcaster.BroadcastMatchUpdate(r.Context(), matchID)

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
