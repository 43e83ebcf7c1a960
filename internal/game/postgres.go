package game

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ostanin/quizpair/internal/domain"
)

// PostgresRepository stores games in the quiz_games and quiz_answers tables.
// The drawn question sequence is written once as JSONB at pairing time, so a
// running game is never affected by later question edits.
type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectGameStmt = `
SELECT game_id, status, player_one, COALESCE(player_two, ''), COALESCE(bonus_to, ''),
       questions, created_at, started_at, finished_at, grace_deadline
FROM quiz_games
`

func (r *PostgresRepository) Get(ctx context.Context, gameID string) (*domain.Game, error) {
	return r.selectOne(ctx, selectGameStmt+`WHERE game_id = $1;`, gameID)
}

func (r *PostgresRepository) GetByPlayer(ctx context.Context, playerID string) (*domain.Game, error) {
	return r.selectOne(ctx,
		selectGameStmt+`WHERE status <> $2 AND (player_one = $1 OR player_two = $1);`,
		playerID, domain.StatusFinished)
}

func (r *PostgresRepository) FindPending(ctx context.Context) (*domain.Game, error) {
	return r.selectOne(ctx,
		selectGameStmt+`WHERE status = $1 ORDER BY created_at LIMIT 1;`,
		domain.StatusPendingSecondPlayer)
}

func (r *PostgresRepository) selectOne(ctx context.Context, stmt string, args ...any) (*domain.Game, error) {
	g := &domain.Game{
		Answers: make(map[string][]domain.Answer),
		Scores:  make(map[string]int),
	}

	var (
		questions  []byte
		startedAt  *time.Time
		finishedAt *time.Time
		deadline   *time.Time
	)
	err := r.db.QueryRow(ctx, stmt, args...).Scan(
		&g.GameID, &g.Status, &g.Players[0], &g.Players[1], &g.BonusTo,
		&questions, &g.CreatedAt, &startedAt, &finishedAt, &deadline,
	)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select game: %w", err)
	}

	if questions != nil {
		if err := json.Unmarshal(questions, &g.Questions); err != nil {
			return nil, fmt.Errorf("unmarshal questions: %w", err)
		}
	}
	if startedAt != nil {
		g.StartedAt = *startedAt
	}
	if finishedAt != nil {
		g.FinishedAt = *finishedAt
	}
	if deadline != nil {
		g.GraceDeadline = *deadline
	}

	for _, p := range g.Players {
		if p != "" {
			g.Scores[p] = 0
		}
	}

	if err := r.loadAnswers(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (r *PostgresRepository) loadAnswers(ctx context.Context, g *domain.Game) error {
	const stmt = `
SELECT player_id, question_id, answer_text, is_correct, score_delta, answered_at
FROM quiz_answers
WHERE game_id = $1
ORDER BY player_id, idx;`

	rows, err := r.db.Query(ctx, stmt, g.GameID)
	if err != nil {
		return fmt.Errorf("select answers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			player string
			a      domain.Answer
		)
		if err := rows.Scan(&player, &a.QuestionID, &a.Text, &a.Correct, &a.ScoreDelta, &a.AnsweredAt); err != nil {
			return fmt.Errorf("scan answer: %w", err)
		}
		g.Answers[player] = append(g.Answers[player], a)
		g.Scores[player] += a.ScoreDelta
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate answers: %w", err)
	}

	if g.BonusTo != "" {
		g.Scores[g.BonusTo]++
	}
	return rows.Err()
}

func (r *PostgresRepository) Create(ctx context.Context, g *domain.Game) error {
	const stmt = `
INSERT INTO quiz_games (game_id, status, player_one, created_at)
VALUES ($1, $2, $3, $4);`

	if _, err := r.db.Exec(ctx, stmt, g.GameID, g.Status, g.Players[0], g.CreatedAt); err != nil {
		return fmt.Errorf("insert game: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, g *domain.Game) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	questions, err := json.Marshal(g.Questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}

	const updStmt = `
UPDATE quiz_games
SET status = $2, player_two = NULLIF($3, ''), bonus_to = NULLIF($4, ''),
    questions = $5, started_at = $6, finished_at = $7, grace_deadline = $8
WHERE game_id = $1;`

	_, err = tx.Exec(ctx, updStmt, g.GameID, g.Status, g.Players[1], g.BonusTo,
		questions, nullTime(g.StartedAt), nullTime(g.FinishedAt), nullTime(g.GraceDeadline))
	if err != nil {
		return fmt.Errorf("update game: %w", err)
	}

	// Answers are append-only, re-inserting existing rows is a no-op.
	const insAnswerStmt = `
INSERT INTO quiz_answers (game_id, player_id, idx, question_id, answer_text, is_correct, score_delta, answered_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (game_id, player_id, idx) DO NOTHING;`

	for p, answers := range g.Answers {
		for i, a := range answers {
			_, err = tx.Exec(ctx, insAnswerStmt, g.GameID, p, i, a.QuestionID, a.Text, a.Correct, a.ScoreDelta, a.AnsweredAt)
			if err != nil {
				return fmt.Errorf("insert answer: %w", err)
			}
		}
	}

	return tx.Commit(ctx)
}

func (r *PostgresRepository) CompareAndSwapStatus(ctx context.Context, gameID string, from, to domain.GameStatus) (bool, error) {
	const stmt = `UPDATE quiz_games SET status = $3 WHERE game_id = $1 AND status = $2;`

	tag, err := r.db.Exec(ctx, stmt, gameID, from, to)
	if err != nil {
		return false, fmt.Errorf("swap status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
