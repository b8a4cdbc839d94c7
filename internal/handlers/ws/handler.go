package ws

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"quizclash/internal/common/clock"
	"quizclash/internal/models"
	battleRepo "quizclash/internal/repositories/battle"
	reactionRepo "quizclash/internal/repositories/reaction"
	"quizclash/internal/services/aggregator"
	"quizclash/internal/services/reconnect"
	"quizclash/internal/services/statesync"
	"quizclash/internal/services/token"
	"quizclash/internal/services/tracker"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Config holds everything the gateway composes
type Config struct {
	BattleRepo   battleRepo.Repository
	ReactionRepo reactionRepo.Repository
	Tracker      tracker.Service
	TokenService token.Service
	Reconnect    reconnect.Service
	StateSync    statesync.Service
	Aggregator   aggregator.Service
	Clock        clock.Clock
}

// Handler is the WebSocket gateway: one socket per player per battle, with
// join and reconnect handled at upgrade time and everything else as frames.
type Handler struct {
	config *Config
}

// New creates a new gateway handler
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

	if cfg.Tracker == nil {
		return nil, errors.New("tracker cannot be nil")
	}

	if cfg.TokenService == nil {
		return nil, errors.New("token service cannot be nil")
	}

	if cfg.Reconnect == nil {
		return nil, errors.New("reconnect service cannot be nil")
	}

	if cfg.StateSync == nil {
		return nil, errors.New("state sync cannot be nil")
	}

	if cfg.Aggregator == nil {
		return nil, errors.New("aggregator cannot be nil")
	}

	if cfg.Clock == nil {
		return nil, errors.New("clock cannot be nil")
	}

	return &Handler{config: cfg}, nil
}

// Register mounts the gateway's routes
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/ws/battles/{gamePin}", h.BattleWS).Methods(http.MethodGet)
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// BattleWS handles GET /ws/battles/{gamePin}. Query parameters: userId and
// name for a join, plus token for a reconnection.
func (h *Handler) BattleWS(w http.ResponseWriter, r *http.Request) {
	gamePin := mux.Vars(r)["gamePin"]

	userID, err := strconv.ParseInt(r.URL.Query().Get("userId"), 10, 64)
	if err != nil || userID == 0 {
		http.Error(w, "invalid userId", http.StatusBadRequest)
		return
	}

	name := strings.TrimSpace(r.URL.Query().Get("name"))
	reconnectToken := r.URL.Query().Get("token")

	battle, err := h.config.BattleRepo.GetBattle(r.Context(), &battleRepo.GetBattleInput{GamePin: gamePin})
	if err != nil {
		if errors.Is(err, battleRepo.ErrBattleNotFound) {
			http.Error(w, "battle not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	// The socket outlives the HTTP request, so the connection runs on its
	// own context
	ctx := context.Background()

	c := &client{
		handler:   h,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		gamePin:   gamePin,
		userID:    userID,
		name:      name,
		questions: battle.Questions,
	}

	if err := h.subscribe(ctx, c); err != nil {
		log.Error().Str("game_pin", gamePin).Err(err).Msg("failed to subscribe")
		conn.Close()
		return
	}

	go c.writePump()

	var snapshot *models.PlayerSnapshot
	if reconnectToken != "" {
		snapshot, err = h.reconnect(ctx, c, reconnectToken)
	} else {
		err = h.join(ctx, c, battle)
	}
	if err != nil {
		log.Warn().
			Str("game_pin", gamePin).
			Int64("user_id", userID).
			Err(err).
			Msg("connection refused")
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
			time.Now().Add(writeWait))
		conn.Close()
		c.playersSub.Close()
		c.statusSub.Close()
		c.reactionsSub.Close()
		return
	}

	err = h.config.Tracker.StartHeartbeat(ctx, &tracker.StartHeartbeatInput{
		GamePin: gamePin,
		UserID:  userID,
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to start heartbeat loop")
	}

	go c.relayEvents(ctx)

	// A lobby reconnector waits for the in_progress status event like
	// everyone else; starting early would arm timers before the host does
	if battle.Status == models.BattleStatusInProgress {
		c.startSession(ctx, snapshot)
	}

	go c.readPump(ctx)
}

// join adds a fresh player to a waiting battle and issues their first token
func (h *Handler) join(ctx context.Context, c *client, battle *models.Battle) error {
	if c.name == "" {
		return errors.New("name is required to join")
	}

	player := &models.Player{
		UserID:   c.userID,
		Name:     c.name,
		Initial:  initialOf(c.name),
		IsOnline: true,
		JoinedAt: h.config.Clock.Now().UnixMilli(),
	}

	_, err := h.config.BattleRepo.JoinBattle(ctx, &battleRepo.JoinBattleInput{
		GamePin: c.gamePin,
		Player:  player,
	})
	if err != nil && !errors.Is(err, battleRepo.ErrPlayerExists) {
		return err
	}

	err = h.config.Tracker.Initialize(ctx, &tracker.InitializeInput{
		GamePin: c.gamePin,
		UserID:  c.userID,
	})
	if err != nil {
		return err
	}

	created, err := h.config.TokenService.Create(ctx, &token.CreateInput{
		GamePin: c.gamePin,
		UserID:  c.userID,
		PlayerData: models.PlayerDescriptor{
			UserID: c.userID,
			Name:   c.name,
		},
	})
	if err != nil {
		return err
	}

	c.sendMessage(MsgJoined, &JoinedPayload{
		GamePin: c.gamePin,
		Token:   created.Token.Token,
		Player:  player,
	})

	log.Info().
		Str("game_pin", c.gamePin).
		Int64("user_id", c.userID).
		Str("name", c.name).
		Msg("player joined")

	return nil
}

// reconnect runs the resume flow and returns the restored snapshot, if one
// survived, for the session to adopt
func (h *Handler) reconnect(ctx context.Context, c *client, presented string) (*models.PlayerSnapshot, error) {
	out, err := h.config.Reconnect.Reconnect(ctx, &reconnect.ReconnectInput{
		GamePin: c.gamePin,
		UserID:  c.userID,
		Token:   presented,
	})
	if err != nil {
		return nil, err
	}

	if !out.Reconnected {
		return nil, errors.New(out.Reason)
	}

	if c.name == "" {
		c.name = out.PlayerData.Name
	}

	snapshot := out.Snapshot
	if snapshot == nil {
		snapshot = h.snapshotFromRecord(ctx, c)
	}

	payload := &ReconnectedPayload{
		GamePin:  c.gamePin,
		Token:    out.Token.Token,
		Restored: out.Snapshot != nil,
	}
	if snapshot != nil {
		payload.Score = snapshot.Score
		payload.Question = snapshot.CurrentQuestionIndex
	}
	c.sendMessage(MsgReconnected, payload)

	return snapshot, nil
}

// snapshotFromRecord rebuilds a resume point from the shared player record
// when the saved snapshot is absent or expired, so a reconnecting player
// keeps their mirrored score and question index instead of restarting at
// question zero
func (h *Handler) snapshotFromRecord(ctx context.Context, c *client) *models.PlayerSnapshot {
	player, err := h.config.BattleRepo.GetPlayer(ctx, &battleRepo.GetPlayerInput{
		GamePin: c.gamePin,
		UserID:  c.userID,
	})
	if err != nil {
		log.Warn().
			Str("game_pin", c.gamePin).
			Int64("user_id", c.userID).
			Err(err).
			Msg("failed to read player record for resume")
		return nil
	}

	if player.Score == 0 && player.CurrentQuestion == 0 && !player.Finished {
		return nil
	}

	answered := make([]int, 0, player.CurrentQuestion)
	for i := 0; i < player.CurrentQuestion; i++ {
		answered = append(answered, i)
	}

	return &models.PlayerSnapshot{
		Score:                player.Score,
		CurrentQuestionIndex: player.CurrentQuestion,
		AnsweredQuestions:    answered,
	}
}

// initialOf upper-cases the first rune of a display name
func initialOf(name string) string {
	r, _ := utf8.DecodeRuneInString(name)
	return strings.ToUpper(string(r))
}

func (h *Handler) subscribe(ctx context.Context, c *client) error {
	playersSub, err := h.config.BattleRepo.SubscribePlayers(ctx, &battleRepo.SubscribePlayersInput{GamePin: c.gamePin})
	if err != nil {
		return err
	}

	statusSub, err := h.config.BattleRepo.SubscribeStatus(ctx, &battleRepo.SubscribeStatusInput{GamePin: c.gamePin})
	if err != nil {
		playersSub.Close()
		return err
	}

	reactionsSub, err := h.config.ReactionRepo.SubscribeReactions(ctx, &reactionRepo.SubscribeReactionsInput{GamePin: c.gamePin})
	if err != nil {
		playersSub.Close()
		statusSub.Close()
		return err
	}

	c.playersSub = playersSub
	c.statusSub = statusSub
	c.reactionsSub = reactionsSub

	return nil
}
