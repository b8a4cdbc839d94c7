package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"quizclash/internal/models"
	battleRepo "quizclash/internal/repositories/battle"
	reactionRepo "quizclash/internal/repositories/reaction"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// Config holds the repositories the REST surface reads and writes
type Config struct {
	BattleRepo   battleRepo.Repository
	ReactionRepo reactionRepo.Repository
}

// Handler is the REST surface for battle setup and polling reads. Live play
// goes over the WebSocket gateway.
type Handler struct {
	config *Config
}

// New creates a new REST handler
func New(cfg *Config) (*Handler, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.BattleRepo == nil {
		return nil, errors.New("battle repository cannot be nil")
	}

	if cfg.ReactionRepo == nil {
		return nil, errors.New("reaction repository cannot be nil")
	}

	return &Handler{config: cfg}, nil
}

// Register mounts the REST routes
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/battles", h.CreateBattle).Methods(http.MethodPost)
	r.HandleFunc("/battles/{gamePin}", h.GetBattle).Methods(http.MethodGet)
	r.HandleFunc("/battles/{gamePin}/players", h.GetPlayers).Methods(http.MethodGet)
	r.HandleFunc("/battles/{gamePin}/reactions", h.GetReactions).Methods(http.MethodGet)
}

type createBattleRequest struct {
	QuizID     string             `json:"quizId"`
	HostUserID int64              `json:"hostUserId"`
	Questions  []*models.Question `json:"questions"`
}

type createBattleResponse struct {
	Battle *models.Battle `json:"battle"`
}

// CreateBattle handles POST /battles
func (h *Handler) CreateBattle(w http.ResponseWriter, r *http.Request) {
	var req createBattleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if req.QuizID == "" || req.HostUserID == 0 || len(req.Questions) == 0 {
		writeError(w, http.StatusBadRequest, "quizId, hostUserId, and questions are required")
		return
	}

	out, err := h.config.BattleRepo.CreateBattle(r.Context(), &battleRepo.CreateBattleInput{
		QuizID:     req.QuizID,
		HostUserID: req.HostUserID,
		Questions:  req.Questions,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to create battle")
		writeError(w, http.StatusInternalServerError, "failed to create battle")
		return
	}

	writeJSON(w, http.StatusCreated, &createBattleResponse{Battle: out.Battle})
}

// GetBattle handles GET /battles/{gamePin}
func (h *Handler) GetBattle(w http.ResponseWriter, r *http.Request) {
	gamePin := mux.Vars(r)["gamePin"]

	battle, err := h.config.BattleRepo.GetBattle(r.Context(), &battleRepo.GetBattleInput{GamePin: gamePin})
	if err != nil {
		if errors.Is(err, battleRepo.ErrBattleNotFound) {
			writeError(w, http.StatusNotFound, "battle not found")
			return
		}
		log.Error().Str("game_pin", gamePin).Err(err).Msg("failed to get battle")
		writeError(w, http.StatusInternalServerError, "failed to get battle")
		return
	}

	writeJSON(w, http.StatusOK, battle)
}

// GetPlayers handles GET /battles/{gamePin}/players
func (h *Handler) GetPlayers(w http.ResponseWriter, r *http.Request) {
	gamePin := mux.Vars(r)["gamePin"]

	out, err := h.config.BattleRepo.GetPlayers(r.Context(), &battleRepo.GetPlayersInput{GamePin: gamePin})
	if err != nil {
		log.Error().Str("game_pin", gamePin).Err(err).Msg("failed to get players")
		writeError(w, http.StatusInternalServerError, "failed to get players")
		return
	}

	writeJSON(w, http.StatusOK, out.Players)
}

// GetReactions handles GET /battles/{gamePin}/reactions
func (h *Handler) GetReactions(w http.ResponseWriter, r *http.Request) {
	gamePin := mux.Vars(r)["gamePin"]

	out, err := h.config.ReactionRepo.GetReactions(r.Context(), &reactionRepo.GetReactionsInput{GamePin: gamePin})
	if err != nil {
		log.Error().Str("game_pin", gamePin).Err(err).Msg("failed to get reactions")
		writeError(w, http.StatusInternalServerError, "failed to get reactions")
		return
	}

	writeJSON(w, http.StatusOK, out.Reactions)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
