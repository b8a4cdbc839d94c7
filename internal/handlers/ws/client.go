package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"quizclash/internal/models"
	battleRepo "quizclash/internal/repositories/battle"
	reactionRepo "quizclash/internal/repositories/reaction"
	"quizclash/internal/services/aggregator"
	"quizclash/internal/services/reconnect"
	"quizclash/internal/services/session"
	"quizclash/internal/services/statesync"
	"quizclash/internal/services/tracker"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// client is one player's live connection to a battle. It owns the player's
// quiz session and relays store-side events back over the socket.
type client struct {
	handler *Handler
	conn    *websocket.Conn
	send    chan []byte

	gamePin   string
	userID    int64
	name      string
	questions []*models.Question

	mu          sync.Mutex
	session     *session.Session
	intentional bool

	playersSub   *battleRepo.PlayersSubscription
	statusSub    *battleRepo.StatusSubscription
	reactionsSub *reactionRepo.ReactionsSubscription
}

func (c *client) sendMessage(msgType MessageType, payload any) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			log.Error().Err(err).Str("type", string(msgType)).Msg("failed to marshal payload")
			return
		}
		raw = data
	}

	frame, err := json.Marshal(&Message{Type: msgType, Payload: raw})
	if err != nil {
		log.Error().Err(err).Str("type", string(msgType)).Msg("failed to marshal frame")
		return
	}

	select {
	case c.send <- frame:
	default:
		log.Warn().
			Str("game_pin", c.gamePin).
			Int64("user_id", c.userID).
			Str("type", string(msgType)).
			Msg("send buffer full, dropping frame")
	}
}

func (c *client) sendError(message string) {
	c.sendMessage(MsgError, &ErrorPayload{Message: message})
}

func (c *client) readPump(ctx context.Context) {
	defer c.teardown(ctx)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().
					Str("game_pin", c.gamePin).
					Int64("user_id", c.userID).
					Err(err).
					Msg("websocket read error")
			}
			return
		}

		c.handleMessage(ctx, data)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) handleMessage(ctx context.Context, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("malformed message")
		return
	}

	switch msg.Type {
	case MsgHeartbeat:
		c.handleHeartbeat(ctx)
	case MsgStartBattle:
		c.handleStartBattle(ctx)
	case MsgSubmitAnswer:
		c.handleSubmitAnswer(ctx, msg.Payload)
	case MsgSendReaction:
		c.handleSendReaction(ctx, msg.Payload)
	case MsgSaveState:
		c.handleSaveState()
	case MsgLeaveBattle:
		c.handleLeaveBattle(ctx)
	default:
		c.sendError("unknown message type")
	}
}

func (c *client) handleHeartbeat(ctx context.Context) {
	err := c.handler.config.Tracker.SendHeartbeat(ctx, &tracker.SendHeartbeatInput{
		GamePin: c.gamePin,
		UserID:  c.userID,
	})
	if err != nil {
		log.Warn().
			Str("game_pin", c.gamePin).
			Int64("user_id", c.userID).
			Err(err).
			Msg("failed to record heartbeat")
	}
}

func (c *client) handleStartBattle(ctx context.Context) {
	battle, err := c.handler.config.BattleRepo.GetBattle(ctx, &battleRepo.GetBattleInput{GamePin: c.gamePin})
	if err != nil {
		c.sendError("battle not found")
		return
	}

	if battle.HostUserID != c.userID {
		c.sendError("only the host can start the battle")
		return
	}

	err = c.handler.config.BattleRepo.SetStatus(ctx, &battleRepo.SetStatusInput{
		GamePin: c.gamePin,
		Status:  models.BattleStatusInProgress,
	})
	if err != nil {
		if !errors.Is(err, battleRepo.ErrInvalidStatusTransition) {
			c.sendError("failed to start battle")
		}
		return
	}
}

func (c *client) handleSubmitAnswer(ctx context.Context, payload json.RawMessage) {
	var p SubmitAnswerPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.sendError("malformed answer")
		return
	}

	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()

	if sess == nil {
		c.sendError("battle has not started")
		return
	}

	out, err := sess.SubmitAnswer(ctx, &session.SubmitAnswerInput{
		Answer: models.SubmittedAnswer{Value: p.Value, Pairs: p.Pairs},
	})
	if err != nil {
		if errors.Is(err, session.ErrSessionPaused) {
			c.sendError("session is paused")
			return
		}
		log.Error().
			Str("game_pin", c.gamePin).
			Int64("user_id", c.userID).
			Err(err).
			Msg("failed to submit answer")
		c.sendError("failed to submit answer")
		return
	}

	c.sendMessage(MsgEvaluationResult, &EvaluationResultPayload{
		Accepted: out.Accepted,
		Credit:   out.Credit,
		Correct:  out.Correct,
		Score:    out.Score,
		Finished: out.Finished,
	})

	if out.Accepted && out.Finished {
		go c.finish(ctx, out.Score)
	}
}

func (c *client) handleSendReaction(ctx context.Context, payload json.RawMessage) {
	var p SendReactionPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Emoji == "" {
		c.sendError("malformed reaction")
		return
	}

	_, err := c.handler.config.ReactionRepo.AddReaction(ctx, &reactionRepo.AddReactionInput{
		GamePin:  c.gamePin,
		UserID:   c.userID,
		UserName: c.name,
		Emoji:    p.Emoji,
	})
	if err != nil {
		log.Warn().
			Str("game_pin", c.gamePin).
			Int64("user_id", c.userID).
			Err(err).
			Msg("failed to add reaction")
	}
}

func (c *client) handleSaveState() {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()

	if sess == nil {
		return
	}

	c.handler.config.StateSync.SaveAsync(&statesync.SaveNowInput{
		GamePin:  c.gamePin,
		UserID:   c.userID,
		Snapshot: sess.Snapshot(),
	})
}

func (c *client) handleLeaveBattle(ctx context.Context) {
	c.mu.Lock()
	c.intentional = true
	c.mu.Unlock()

	err := c.handler.config.Reconnect.Disconnect(ctx, &reconnect.DisconnectInput{
		GamePin: c.gamePin,
		UserID:  c.userID,
	})
	if err != nil {
		log.Warn().
			Str("game_pin", c.gamePin).
			Int64("user_id", c.userID).
			Err(err).
			Msg("failed to leave battle")
	}

	c.conn.Close()
}

// startSession opens the quiz for this player. Called when the host starts
// the battle, or at connect time when the battle is already running.
func (c *client) startSession(ctx context.Context, snapshot *models.PlayerSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return
	}

	sess, err := session.New(&session.Config{
		GamePin:    c.gamePin,
		UserID:     c.userID,
		Mode:       session.ModeBattle,
		Questions:  c.questions,
		BattleRepo: c.handler.config.BattleRepo,
		Clock:      c.handler.config.Clock,
	})
	if err != nil {
		log.Error().
			Str("game_pin", c.gamePin).
			Int64("user_id", c.userID).
			Err(err).
			Msg("failed to create session")
		return
	}

	if snapshot != nil {
		if err := sess.Adopt(ctx, snapshot); err != nil {
			log.Error().Err(err).Msg("failed to adopt snapshot")
			return
		}
	} else {
		if err := sess.Start(ctx); err != nil {
			log.Error().Err(err).Msg("failed to start session")
			return
		}

		// Zero-state snapshot so a drop before the first autosave still
		// restores to the battle's start
		err = c.handler.config.StateSync.SaveBaseline(ctx, &statesync.SaveBaselineInput{
			GamePin:  c.gamePin,
			UserID:   c.userID,
			Snapshot: sess.Snapshot(),
		})
		if err != nil {
			log.Warn().Err(err).Msg("failed to save baseline state")
		}
	}

	c.session = sess

	err = c.handler.config.StateSync.StartAutosave(ctx, &statesync.StartAutosaveInput{
		GamePin: c.gamePin,
		UserID:  c.userID,
		Source:  sess,
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to start autosave")
	}

	if sess.Finished() {
		go c.finish(ctx, sess.Score())
		return
	}

	c.sendMessage(MsgBattleStarted, sess.State())
}

// finish runs the completion protocol and pushes the final ranking
func (c *client) finish(ctx context.Context, score float64) {
	out, err := c.handler.config.Aggregator.AwaitCompletion(ctx, &aggregator.AwaitCompletionInput{
		GamePin:    c.gamePin,
		UserID:     c.userID,
		FinalScore: score,
	})
	if err != nil {
		log.Error().
			Str("game_pin", c.gamePin).
			Int64("user_id", c.userID).
			Err(err).
			Msg("failed to await completion")
		c.sendError("failed to finalize battle")
		return
	}

	c.sendMessage(MsgBattleCompleted, &BattleCompletedPayload{Result: out.Result})
}

// relayEvents forwards store-side changes over the socket until the
// subscriptions close.
func (c *client) relayEvents(ctx context.Context) {
	playerEvents := c.playersSub.Events()
	statusEvents := c.statusSub.Events()
	reactionEvents := c.reactionsSub.Events()

	for playerEvents != nil || statusEvents != nil || reactionEvents != nil {
		select {
		case _, ok := <-playerEvents:
			if !ok {
				playerEvents = nil
				continue
			}
			c.pushLeaderboard(ctx)

		case status, ok := <-statusEvents:
			if !ok {
				statusEvents = nil
				continue
			}
			if status == models.BattleStatusInProgress {
				c.startSession(ctx, nil)
			}

		case payload, ok := <-reactionEvents:
			if !ok {
				reactionEvents = nil
				continue
			}
			c.sendMessage(MsgReaction, json.RawMessage(payload))
		}
	}
}

// pushLeaderboard re-reads the player records and pushes the fresh view.
// Notifications only say that something changed; the records are the truth.
func (c *client) pushLeaderboard(ctx context.Context) {
	battle, err := c.handler.config.BattleRepo.GetBattle(ctx, &battleRepo.GetBattleInput{GamePin: c.gamePin})
	if err != nil {
		log.Warn().Str("game_pin", c.gamePin).Err(err).Msg("failed to read battle")
		return
	}

	players, err := c.handler.config.BattleRepo.GetPlayers(ctx, &battleRepo.GetPlayersInput{GamePin: c.gamePin})
	if err != nil {
		log.Warn().Str("game_pin", c.gamePin).Err(err).Msg("failed to read players")
		return
	}

	c.sendMessage(MsgLeaderboardUpdate, &LeaderboardUpdatePayload{
		Status:  battle.Status,
		Players: players.Players,
	})
}

// teardown runs once the socket is gone: loops stopped, subscriptions
// closed, and for an unintentional drop the deferred offline write applied
// so the grace period starts counting.
func (c *client) teardown(ctx context.Context) {
	c.conn.Close()

	c.handler.config.Tracker.StopHeartbeat(&tracker.StopHeartbeatInput{
		GamePin: c.gamePin,
		UserID:  c.userID,
	})

	c.handler.config.StateSync.StopAutosave(&statesync.StopAutosaveInput{
		GamePin: c.gamePin,
		UserID:  c.userID,
	})

	c.mu.Lock()
	sess := c.session
	intentional := c.intentional
	c.mu.Unlock()

	if sess != nil {
		// Flush the final progress so the restore on reconnection is as
		// fresh as possible
		if !intentional {
			err := c.handler.config.StateSync.SaveNow(ctx, &statesync.SaveNowInput{
				GamePin:  c.gamePin,
				UserID:   c.userID,
				Snapshot: sess.Snapshot(),
			})
			if err != nil {
				log.Warn().Err(err).Msg("failed to flush state on disconnect")
			}
		}
		sess.Stop()
	}

	if !intentional {
		err := c.handler.config.Tracker.CommitDisconnect(ctx, &tracker.CommitDisconnectInput{
			GamePin: c.gamePin,
			UserID:  c.userID,
		})
		if err != nil {
			log.Warn().
				Str("game_pin", c.gamePin).
				Int64("user_id", c.userID).
				Err(err).
				Msg("failed to commit disconnect")
		}
	}

	c.playersSub.Close()
	c.statusSub.Close()
	c.reactionsSub.Close()

	log.Info().
		Str("game_pin", c.gamePin).
		Int64("user_id", c.userID).
		Bool("intentional", intentional).
		Msg("connection closed")
}
