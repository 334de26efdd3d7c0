package score

import (
	"maps"

	"github.com/victornm/quizduel/internal/domain"
)

// Board keeps the per-player count of correct answers of one duel.
// Only the players it was created with can score.
type Board struct {
	scores map[string]int
}

func NewBoard(playerIDs ...string) *Board {
	b := &Board{scores: make(map[string]int, len(playerIDs))}
	for _, id := range playerIDs {
		b.scores[id] = 0
	}

	return b
}

// SubmitAnswerResponse is the result of evaluating one answer.
type SubmitAnswerResponse struct {
	Correct bool
	Score   int
}

// SubmitAnswer compares answer to the question's correct value and increments
// the player's score when they match. An empty answer is never correct.
// Unknown players never score.
func (b *Board) SubmitAnswer(playerID string, q domain.Question, answer string) SubmitAnswerResponse {
	correct := answer != "" && answer == q.Answer
	if correct && b.Has(playerID) {
		b.scores[playerID]++
	}

	return SubmitAnswerResponse{
		Correct: correct,
		Score:   b.scores[playerID],
	}
}

func (b *Board) Has(playerID string) bool {
	_, ok := b.scores[playerID]
	return ok
}

func (b *Board) Score(playerID string) int {
	return b.scores[playerID]
}

// Scores returns a copy of all scores.
func (b *Board) Scores() map[string]int {
	return maps.Clone(b.scores)
}

// Outcome applies the winner rule for two players: a strictly higher score
// wins, equal scores are a draw with no winner.
func (b *Board) Outcome(a, c string) domain.Outcome {
	o := domain.Outcome{Scores: b.Scores()}

	switch sa, sc := b.scores[a], b.scores[c]; {
	case sa > sc:
		o.WinnerID = a
	case sc > sa:
		o.WinnerID = c
	default:
		o.IsDraw = true
	}

	return o
}
