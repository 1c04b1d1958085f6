package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/cs2platform/backend/brackets"
	"github.com/cs2platform/backend/middleware"
	"github.com/cs2platform/backend/models"
	"github.com/cs2platform/backend/repositories"
	"github.com/cs2platform/backend/services"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// В продакшене здесь должна быть проверка Origin.
		return true
	},
}

// Входящий протокол матчевой комнаты.
type wsInbound struct {
	Type    string `json:"type"`
	MapName string `json:"map_name,omitempty"`
}

type WebSocketHandler struct {
	hub         *brackets.Hub
	vetoService services.VetoService
	broadcaster services.Broadcaster
	userRepo    repositories.UserRepository
	logger      *slog.Logger
}

func NewWebSocketHandler(
	hub *brackets.Hub,
	vetoService services.VetoService,
	broadcaster services.Broadcaster,
	userRepo repositories.UserRepository,
	logger *slog.Logger,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:         hub,
		vetoService: vetoService,
		broadcaster: broadcaster,
		userRepo:    userRepo,
		logger:      logger,
	}
}

// ServeTournament подписывает клиента на обновления сетки турнира.
func (h *WebSocketHandler) ServeTournament(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	h.serveRoom(w, r, brackets.TournamentRoom(tournamentID), nil)
}

// ServeTournamentMatches подписывает клиента на события списка матчей
// (генерация сетки и т.п.).
func (h *WebSocketHandler) ServeTournamentMatches(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	h.serveRoom(w, r, brackets.TournamentMatchesRoom(tournamentID), nil)
}

// ServeMatch подписывает клиента на комнату матча и принимает от него
// heartbeat и ban_map. Ответные ошибки уходят только отправителю,
// успешные действия рассылаются всей комнате.
func (h *WebSocketHandler) ServeMatch(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	// Авторизация опциональна: зрители смотрят, действовать могут
	// только капитаны и админы.
	var actor *models.User
	if userID, uidErr := middleware.GetUserIDFromContext(r.Context()); uidErr == nil {
		if user, userErr := h.userRepo.GetByID(r.Context(), userID); userErr == nil {
			actor = user
		}
	}

	h.serveRoom(w, r, brackets.MatchRoom(matchID), func(client *brackets.Client, data []byte) {
		h.handleMatchMessage(client, matchID, actor, data)
	})
}

func (h *WebSocketHandler) serveRoom(w http.ResponseWriter, r *http.Request, roomID string, onMessage func(*brackets.Client, []byte)) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade websocket connection",
			slog.String("room", roomID), slog.Any("error", err))
		return
	}

	client := &brackets.Client{
		Hub:  h.hub,
		Conn: conn,
		Send: make(chan []byte, 256),
		Room: roomID,
	}
	if onMessage != nil {
		client.OnMessage = func(data []byte) { onMessage(client, data) }
	}
	client.Hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}

func (h *WebSocketHandler) handleMatchMessage(client *brackets.Client, matchID int, actor *models.User, data []byte) {
	var msg wsInbound
	if err := json.Unmarshal(data, &msg); err != nil {
		client.SendJSON(jsonResponse{"type": "error", "error": "malformed message"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch msg.Type {
	case "heartbeat":
		resolved, err := h.vetoService.AutoResolveIfExpired(ctx, matchID)
		if err != nil {
			h.logger.Error("heartbeat auto-resolve failed",
				slog.Int("match_id", matchID), slog.Any("error", err))
			return
		}
		if resolved {
			h.broadcaster.BroadcastMatchUpdate(ctx, matchID)
		}

	case "ban_map":
		if msg.MapName == "" {
			client.SendJSON(jsonResponse{"type": "error", "error": "map_name is required"})
			return
		}
		if _, err := h.vetoService.BanMap(ctx, matchID, actor, msg.MapName); err != nil {
			client.SendJSON(jsonResponse{"type": "error", "error": err.Error()})
			return
		}
		h.broadcaster.BroadcastMatchUpdate(ctx, matchID)

	default:
		client.SendJSON(jsonResponse{"type": "error", "error": "unknown message type"})
	}
}
