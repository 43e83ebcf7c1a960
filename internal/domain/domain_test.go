package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ostanin/quizpair/internal/domain"
)

func TestQuestion_Accepts(t *testing.T) {
	q := domain.Question{
		Body:    "Capital of France?",
		Answers: []string{"Paris", " paris city "},
	}

	tests := map[string]struct {
		text string
		want bool
	}{
		"exact match":            {text: "Paris", want: true},
		"case-insensitive":       {text: "pArIs", want: true},
		"surrounding whitespace": {text: "  paris\t", want: true},
		"alternative answer":     {text: "PARIS CITY", want: true},
		"wrong answer":           {text: "london", want: false},
		"empty":                  {text: "", want: false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, q.Accepts(tt.text))
		})
	}
}

func TestGame_Clone(t *testing.T) {
	g := &domain.Game{
		GameID:    "g1",
		Status:    domain.StatusActive,
		Players:   [2]string{"u1", "u2"},
		Questions: []domain.Question{{QuestionID: "q1"}},
		Answers: map[string][]domain.Answer{
			"u1": {{QuestionID: "q1", Correct: true, ScoreDelta: 1}},
		},
		Scores: map[string]int{"u1": 1},
	}

	c := g.Clone()
	require.Equal(t, g, c)

	c.Answers["u1"] = append(c.Answers["u1"], domain.Answer{QuestionID: "q2"})
	c.Scores["u1"] = 5

	assert.Len(t, g.Answers["u1"], 1, "mutating the clone must not touch the original")
	assert.Equal(t, 1, g.Scores["u1"])
}

func TestGame_Progress(t *testing.T) {
	g := &domain.Game{
		Players:   [2]string{"u1", "u2"},
		Questions: make([]domain.Question, domain.QuestionsPerGame),
		Answers: map[string][]domain.Answer{
			"u1": make([]domain.Answer, domain.QuestionsPerGame),
			"u2": {{Correct: true}, {Correct: false}, {Correct: true}},
		},
	}

	assert.True(t, g.Completed("u1"))
	assert.False(t, g.Completed("u2"))
	assert.Equal(t, 3, g.Progress("u2"))
	assert.Equal(t, 2, g.CorrectCount("u2"))
	assert.Equal(t, "u2", g.Opponent("u1"))
	assert.True(t, g.HasPlayer("u2"))
	assert.False(t, g.HasPlayer("u3"))
}
