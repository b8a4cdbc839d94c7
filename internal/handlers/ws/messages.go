package ws

import (
	"encoding/json"

	"quizclash/internal/models"
)

// MessageType discriminates the WebSocket envelope
type MessageType string

// Client to server
const (
	MsgHeartbeat    MessageType = "heartbeat"
	MsgStartBattle  MessageType = "start_battle"
	MsgSubmitAnswer MessageType = "submit_answer"
	MsgSendReaction MessageType = "send_reaction"
	MsgSaveState    MessageType = "save_state"
	MsgLeaveBattle  MessageType = "leave_battle"
)

// Server to client
const (
	MsgJoined            MessageType = "joined"
	MsgReconnected       MessageType = "reconnected"
	MsgBattleStarted     MessageType = "battle_started"
	MsgEvaluationResult  MessageType = "evaluation_result"
	MsgLeaderboardUpdate MessageType = "leaderboard_update"
	MsgReaction          MessageType = "reaction"
	MsgBattleCompleted   MessageType = "battle_completed"
	MsgError             MessageType = "error"
)

// Message is the envelope every frame carries
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type SubmitAnswerPayload struct {
	Value string            `json:"value"`
	Pairs map[string]string `json:"pairs,omitempty"`
}

type SendReactionPayload struct {
	Emoji string `json:"emoji"`
}

type JoinedPayload struct {
	GamePin string         `json:"gamePin"`
	Token   string         `json:"token"`
	Player  *models.Player `json:"player"`
}

type ReconnectedPayload struct {
	GamePin  string  `json:"gamePin"`
	Token    string  `json:"token"`
	Score    float64 `json:"score"`
	Question int     `json:"question"`
	Restored bool    `json:"restored"`
}

type EvaluationResultPayload struct {
	Accepted bool    `json:"accepted"`
	Credit   float64 `json:"credit"`
	Correct  bool    `json:"correct"`
	Score    float64 `json:"score"`
	Finished bool    `json:"finished"`
}

type LeaderboardUpdatePayload struct {
	Status  models.BattleStatus `json:"status"`
	Players []*models.Player    `json:"players"`
}

type BattleCompletedPayload struct {
	Result *models.BattleResult `json:"result"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
