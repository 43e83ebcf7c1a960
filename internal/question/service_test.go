package question_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ostanin/quizpair/internal/domain"
	"github.com/ostanin/quizpair/internal/errors"
	"github.com/ostanin/quizpair/internal/question"
)

func TestService_CreateAndPublish(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	q, err := s.Create(ctx, question.CreateRequest{
		Body:    "What is the capital of France?",
		Answers: []string{" Paris ", "", "paris"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, q.QuestionID)
	require.Equal(t, []string{"Paris", "paris"}, q.Answers, "blank answers are dropped, the rest trimmed")
	require.False(t, q.Published)

	require.NoError(t, s.SetPublished(ctx, q.QuestionID, true))

	got, err := s.List(ctx, question.ListRequest{Filter: question.Filter{Published: ptr(true)}})
	require.NoError(t, err)
	require.Equal(t, 1, got.TotalCount)
	require.True(t, got.Items[0].Published)
}

func TestService_Create_Validation(t *testing.T) {
	s := makeService(t)

	_, err := s.Create(context.Background(), question.CreateRequest{Body: "short", Answers: []string{"x"}})
	require.True(t, errors.IsCode(err, errors.CodeInvalidArgument))
}

func TestService_Publish_NeedsAnswers(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	q, err := s.Create(ctx, question.CreateRequest{Body: "A question with no answers yet"})
	require.NoError(t, err)

	err = s.SetPublished(ctx, q.QuestionID, true)
	require.True(t, errors.IsCode(err, errors.CodeInvalidArgument))

	err = s.SetPublished(ctx, "missing", true)
	require.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestService_Update(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	q, err := s.Create(ctx, question.CreateRequest{
		Body:    "What is the answer to everything?",
		Answers: []string{"42"},
	})
	require.NoError(t, err)
	require.NoError(t, s.SetPublished(ctx, q.QuestionID, true))

	_, err = s.Update(ctx, question.UpdateRequest{
		QuestionID: q.QuestionID,
		Body:       "What is the answer to everything?",
		Answers:    []string{"  "},
	})
	require.True(t, errors.IsCode(err, errors.CodeInvalidArgument), "published question cannot lose all answers")

	upd, err := s.Update(ctx, question.UpdateRequest{
		QuestionID: q.QuestionID,
		Body:       "What is the answer to life, the universe and everything?",
		Answers:    []string{"42", "forty-two"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"42", "forty-two"}, upd.Answers)

	_, err = s.Update(ctx, question.UpdateRequest{QuestionID: "missing", Body: "Long enough body here", Answers: []string{"a"}})
	require.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestService_Delete(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	q, err := s.Create(ctx, question.CreateRequest{Body: "A question to be deleted soon", Answers: []string{"yes"}})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, q.QuestionID))
	require.True(t, errors.IsCode(s.Delete(ctx, q.QuestionID), errors.CodeNotFound))
}

func TestService_Draw(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		q, err := s.Create(ctx, question.CreateRequest{
			Body:    fmt.Sprintf("Question number %d, padded out", i),
			Answers: []string{fmt.Sprintf("answer-%d", i)},
		})
		require.NoError(t, err)
		if i < 4 {
			require.NoError(t, s.SetPublished(ctx, q.QuestionID, true))
		}
	}

	_, err := s.Draw(ctx, domain.QuestionsPerGame)
	require.True(t, errors.IsCode(err, errors.CodeResourceExhausted), "4 published of 5 needed: %v", err)

	got, err := s.List(ctx, question.ListRequest{Filter: question.Filter{Published: ptr(false)}})
	require.NoError(t, err)
	require.NoError(t, s.SetPublished(ctx, got.Items[0].QuestionID, true))

	qs, err := s.Draw(ctx, domain.QuestionsPerGame)
	require.NoError(t, err)
	require.Len(t, qs, domain.QuestionsPerGame)

	seen := make(map[string]bool)
	for _, q := range qs {
		require.True(t, q.Published)
		require.False(t, seen[q.QuestionID], "draw is without replacement")
		seen[q.QuestionID] = true
	}
}

func TestService_List_Pagination(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		_, err := s.Create(ctx, question.CreateRequest{
			Body:    fmt.Sprintf("Question number %d, padded out", i),
			Answers: []string{"a"},
		})
		require.NoError(t, err)
	}

	got, err := s.List(ctx, question.ListRequest{Page: domain.Page{Number: 2, Size: 5}})
	require.NoError(t, err)
	require.Equal(t, 12, got.TotalCount)
	require.Equal(t, 2, got.Page)
	require.Len(t, got.Items, 5)

	last, err := s.List(ctx, question.ListRequest{Page: domain.Page{Number: 3, Size: 5}})
	require.NoError(t, err)
	require.Len(t, last.Items, 2)
}

func makeService(t *testing.T) *question.Service {
	t.Helper()
	return question.NewService(question.Config{Repo: question.NewMemoryRepository()})
}

func ptr[T any](v T) *T { return &v }
