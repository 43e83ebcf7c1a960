package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// GameStatus is the lifecycle state of a pair game.
// Transitions are monotonic: PendingSecondPlayer -> Active -> Finished.
type GameStatus string

const (
	StatusPendingSecondPlayer GameStatus = "PendingSecondPlayer"
	StatusActive              GameStatus = "Active"
	StatusFinished            GameStatus = "Finished"
)

// QuestionsPerGame is the fixed length of a game's question sequence.
const QuestionsPerGame = 5

// Question is a quiz question with its accepted answers.
// Once published it is immutable from the engine's point of view: a game
// stores its own copy of the drawn questions.
type Question struct {
	QuestionID string
	Body       string
	Answers    []string
	Published  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Accepts reports whether the submitted text matches one of the accepted
// answers, compared case-insensitively after trimming whitespace.
func (q Question) Accepts(text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	for _, a := range q.Answers {
		if strings.ToLower(strings.TrimSpace(a)) == text {
			return true
		}
	}
	return false
}

// Answer is a single recorded submission of a player within a game.
type Answer struct {
	QuestionID string
	Text       string
	Correct    bool
	ScoreDelta int
	AnsweredAt time.Time
}

// Game is the pair-game aggregate: two players working through the same
// fixed question sequence.
type Game struct {
	GameID  string
	Status  GameStatus
	Players [2]string // [0] initiator, [1] joiner; [1] empty while pending

	Questions []Question
	Answers   map[string][]Answer // player -> answers, in question order
	Scores    map[string]int

	// BonusTo is the player awarded the single finish bonus, empty if none.
	BonusTo string

	CreatedAt  time.Time // pair created (first player enqueued)
	StartedAt  time.Time // second player joined, questions drawn
	FinishedAt time.Time

	// GraceDeadline is set when the first player completes all questions;
	// an Active game past this deadline is force-completed.
	GraceDeadline time.Time
}

// HasPlayer reports whether id is one of the game's players.
func (g *Game) HasPlayer(id string) bool {
	return id != "" && (g.Players[0] == id || g.Players[1] == id)
}

// Opponent returns the other player of the pair, or empty if none joined yet.
func (g *Game) Opponent(id string) string {
	if g.Players[0] == id {
		return g.Players[1]
	}
	return g.Players[0]
}

// Progress returns how many questions the player has answered.
func (g *Game) Progress(id string) int {
	return len(g.Answers[id])
}

// Completed reports whether the player has answered the whole sequence.
func (g *Game) Completed(id string) bool {
	return g.Progress(id) >= len(g.Questions)
}

// CorrectCount returns how many of the player's answers were correct.
func (g *Game) CorrectCount(id string) int {
	n := 0
	for _, a := range g.Answers[id] {
		if a.Correct {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the game, safe to hand out as a snapshot.
func (g *Game) Clone() *Game {
	c := *g
	c.Questions = append([]Question(nil), g.Questions...)
	c.Answers = make(map[string][]Answer, len(g.Answers))
	for p, as := range g.Answers {
		c.Answers[p] = append([]Answer(nil), as...)
	}
	c.Scores = make(map[string]int, len(g.Scores))
	for p, s := range g.Scores {
		c.Scores[p] = s
	}
	return &c
}

// PlayerStats are the per-player aggregates over finished games.
type PlayerStats struct {
	PlayerID string
	Games    int
	Wins     int
	Losses   int
	Draws    int
	SumScore int
	AvgScore decimal.Decimal
}

// User is a registered account, referenced by games and blog content.
type User struct {
	UserID    string
	Login     string
	Email     string
	CreatedAt time.Time
}

// Blog is a named collection of posts owned by a user.
type Blog struct {
	BlogID      string
	Name        string
	Description string
	WebsiteURL  string
	OwnerID     string
	CreatedAt   time.Time
}

// Post belongs to a blog.
type Post struct {
	PostID     string
	BlogID     string
	Title      string
	ShortDescr string
	Content    string
	CreatedAt  time.Time
}

// Comment belongs to a post and a user.
type Comment struct {
	CommentID string
	PostID    string
	UserID    string
	Content   string
	CreatedAt time.Time
}

// Page describes a pagination request. Sort fields are validated by each
// service against its own allow-list.
type Page struct {
	Number   int
	Size     int
	SortBy   string
	SortDesc bool
}

// Normalize clamps the page to sane defaults.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 || p.Size > 100 {
		p.Size = 10
	}
	return p
}

// Offset returns the SQL offset for the page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// Paginated wraps one page of items together with the total count.
type Paginated[T any] struct {
	TotalCount int `json:"totalCount"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	Items      []T `json:"items"`
}
