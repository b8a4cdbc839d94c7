package models

// BattleResult is the final payload handed to the result persistence
// collaborator once the aggregator declares a battle complete.
type BattleResult struct {
	// GamePin identifies the battle
	GamePin string `json:"gamePin" bson:"gamePin"`

	// QuizID references the quiz that was played
	QuizID string `json:"quizId" bson:"quizId"`

	// Players holds the final records ranked by score descending; equal
	// scores keep their read order
	Players []*Player `json:"players" bson:"players"`

	// Winner is the max-score player (first max on ties)
	Winner *Player `json:"winner" bson:"winner"`

	// CompletedAt is when completion was declared, epoch milliseconds
	CompletedAt int64 `json:"completedAt" bson:"completedAt"`
}
