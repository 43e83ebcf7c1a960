package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/ostanin/quizpair/internal/blog"
	"github.com/ostanin/quizpair/internal/comment"
	"github.com/ostanin/quizpair/internal/domain"
	"github.com/ostanin/quizpair/internal/errors"
	"github.com/ostanin/quizpair/internal/event"
	"github.com/ostanin/quizpair/internal/game"
	"github.com/ostanin/quizpair/internal/post"
	"github.com/ostanin/quizpair/internal/question"
	"github.com/ostanin/quizpair/internal/stats"
	"github.com/ostanin/quizpair/internal/user"
)

// userIDHeader carries the caller's identity. Authentication is delegated to
// the edge; the id in this header is trusted as-is.
const userIDHeader = "X-User-Id"

type Config struct {
	Router   *gin.Engine
	EventBus *event.Bus

	Game     *game.Service
	Question *question.Service
	Stats    *stats.Service

	// Blog CRUD services; nil when Postgres is not configured, which
	// disables their routes.
	User    *user.Service
	Blog    *blog.Service
	Post    *post.Service
	Comment *comment.Service

	// Redis carries per-player notifications; nil disables pub/sub and /ws.
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

type API struct {
	gs *game.Service
	qs *question.Service
	ps *stats.Service

	us *user.Service
	bs *blog.Service
	pp *post.Service
	cs *comment.Service

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		gs:     c.Game,
		qs:     c.Question,
		ps:     c.Stats,
		us:     c.User,
		bs:     c.Blog,
		pp:     c.Post,
		cs:     c.Comment,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	a.routes(c.Router)

	if a.redis != nil {
		c.EventBus.Subscribe(domain.EventNameGamePaired, func(ctx context.Context, e event.Event) error {
			return a.PublishGamePaired(ctx, e.(domain.EventGamePaired))
		})
		c.EventBus.Subscribe(domain.EventNameGameFinished, func(ctx context.Context, e event.Event) error {
			return a.PublishGameFinished(ctx, e.(domain.EventGameFinished))
		})
	}

	return a
}

func (a *API) routes(r *gin.Engine) {
	root := r.Group("/api")

	quiz := root.Group("/pair-game-quiz")
	quiz.POST("/pairs/connection", a.connect)
	quiz.POST("/pairs/my-current/answers", a.submitAnswer)
	quiz.GET("/pairs/my-current", a.findCurrentGame)
	quiz.GET("/pairs/:id", a.findGame)
	if a.ps != nil {
		quiz.GET("/users/my-statistic", a.myStatistic)
		quiz.GET("/users/top", a.topPlayers)
	}

	sa := root.Group("/sa/quiz/questions")
	sa.GET("", a.listQuestions)
	sa.POST("", a.createQuestion)
	sa.PUT("/:id", a.updateQuestion)
	sa.DELETE("/:id", a.deleteQuestion)
	sa.PUT("/:id/publish", a.publishQuestion)

	if a.us != nil {
		root.GET("/users", a.listUsers)
		root.POST("/users", a.createUser)
		root.GET("/users/:id", a.getUser)
		root.DELETE("/users/:id", a.deleteUser)
	}

	if a.bs != nil {
		root.GET("/blogs", a.listBlogs)
		root.POST("/blogs", a.createBlog)
		root.GET("/blogs/:id", a.getBlog)
		root.PUT("/blogs/:id", a.updateBlog)
		root.DELETE("/blogs/:id", a.deleteBlog)
		root.GET("/blogs/:id/posts", a.listBlogPosts)
		root.POST("/blogs/:id/posts", a.createPost)
	}

	if a.pp != nil {
		root.GET("/posts", a.listPosts)
		root.GET("/posts/:id", a.getPost)
		root.PUT("/posts/:id", a.updatePost)
		root.DELETE("/posts/:id", a.deletePost)
		root.GET("/posts/:id/comments", a.listPostComments)
		root.POST("/posts/:id/comments", a.createComment)
	}

	if a.cs != nil {
		root.GET("/comments/:id", a.getComment)
		root.PUT("/comments/:id", a.updateComment)
		root.DELETE("/comments/:id", a.deleteComment)
	}

	if a.redis != nil {
		r.GET("/ws", a.serveWS)
	}
}

// --- pair game ---

func (a *API) connect(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}

	g, err := a.gs.Connect(c.Request.Context(), uid)
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gameView(g))
}

func (a *API) submitAnswer(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}

	var req struct {
		Answer string `json:"answer"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortErr(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request body")))
		return
	}

	g, err := a.gs.FindCurrentGame(c.Request.Context(), uid)
	if err != nil {
		abortErr(c, err)
		return
	}

	ans, err := a.gs.SubmitAnswer(c.Request.Context(), game.SubmitAnswerRequest{
		PlayerID: uid,
		GameID:   g.GameID,
		Text:     req.Answer,
	})
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, answerView(*ans))
}

func (a *API) findCurrentGame(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}

	g, err := a.gs.FindCurrentGame(c.Request.Context(), uid)
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gameView(g))
}

func (a *API) findGame(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}

	g, err := a.gs.FindGame(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortErr(c, err)
		return
	}
	if !g.HasPlayer(uid) {
		abortErr(c, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("game %s belongs to another pair", g.GameID)))
		return
	}
	c.JSON(http.StatusOK, gameView(g))
}

// --- statistics ---

func (a *API) myStatistic(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}

	st, err := a.ps.Get(c.Request.Context(), uid)
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, statsView(*st))
}

func (a *API) topPlayers(c *gin.Context) {
	top, err := a.ps.Top(c.Request.Context(), stats.TopRequest{Page: pageQuery(c)})
	if err != nil {
		abortErr(c, err)
		return
	}

	items := make([]StatsView, 0, len(top.Items))
	for _, st := range top.Items {
		items = append(items, statsView(st))
	}
	c.JSON(http.StatusOK, domain.Paginated[StatsView]{
		TotalCount: top.TotalCount,
		Page:       top.Page,
		PageSize:   top.PageSize,
		Items:      items,
	})
}

// --- question admin ---

func (a *API) listQuestions(c *gin.Context) {
	f := question.Filter{BodySearch: c.Query("bodySearchTerm")}
	switch c.DefaultQuery("publishedStatus", "all") {
	case "published":
		f.Published = ptr(true)
	case "notPublished":
		f.Published = ptr(false)
	}

	qs, err := a.qs.List(c.Request.Context(), question.ListRequest{Filter: f, Page: pageQuery(c)})
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, qs)
}

func (a *API) createQuestion(c *gin.Context) {
	var req struct {
		Body    string   `json:"body"`
		Answers []string `json:"correctAnswers"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortErr(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request body")))
		return
	}

	q, err := a.qs.Create(c.Request.Context(), question.CreateRequest{Body: req.Body, Answers: req.Answers})
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, q)
}

func (a *API) updateQuestion(c *gin.Context) {
	var req struct {
		Body    string   `json:"body"`
		Answers []string `json:"correctAnswers"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortErr(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request body")))
		return
	}

	q, err := a.qs.Update(c.Request.Context(), question.UpdateRequest{
		QuestionID: c.Param("id"),
		Body:       req.Body,
		Answers:    req.Answers,
	})
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (a *API) deleteQuestion(c *gin.Context) {
	if err := a.qs.Delete(c.Request.Context(), c.Param("id")); err != nil {
		abortErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) publishQuestion(c *gin.Context) {
	var req struct {
		Published bool `json:"published"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortErr(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request body")))
		return
	}

	if err := a.qs.SetPublished(c.Request.Context(), c.Param("id"), req.Published); err != nil {
		abortErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- users ---

func (a *API) listUsers(c *gin.Context) {
	us, err := a.us.List(c.Request.Context(), user.ListRequest{
		SearchLoginTerm: c.Query("searchLoginTerm"),
		SearchEmailTerm: c.Query("searchEmailTerm"),
		Page:            pageQuery(c),
	})
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, us)
}

func (a *API) createUser(c *gin.Context) {
	var req struct {
		Login string `json:"login"`
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortErr(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request body")))
		return
	}

	u, err := a.us.Create(c.Request.Context(), user.CreateRequest{Login: req.Login, Email: req.Email})
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (a *API) getUser(c *gin.Context) {
	u, err := a.us.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (a *API) deleteUser(c *gin.Context) {
	if err := a.us.Delete(c.Request.Context(), c.Param("id")); err != nil {
		abortErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- blogs ---

func (a *API) listBlogs(c *gin.Context) {
	bs, err := a.bs.List(c.Request.Context(), blog.ListRequest{
		SearchNameTerm: c.Query("searchNameTerm"),
		Page:           pageQuery(c),
	})
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, bs)
}

func (a *API) createBlog(c *gin.Context) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		WebsiteURL  string `json:"websiteUrl"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortErr(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request body")))
		return
	}

	b, err := a.bs.Create(c.Request.Context(), blog.CreateRequest{
		Name:        req.Name,
		Description: req.Description,
		WebsiteURL:  req.WebsiteURL,
		OwnerID:     c.GetHeader(userIDHeader),
	})
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (a *API) getBlog(c *gin.Context) {
	b, err := a.bs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (a *API) updateBlog(c *gin.Context) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		WebsiteURL  string `json:"websiteUrl"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortErr(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request body")))
		return
	}

	b, err := a.bs.Update(c.Request.Context(), blog.UpdateRequest{
		BlogID:      c.Param("id"),
		Name:        req.Name,
		Description: req.Description,
		WebsiteURL:  req.WebsiteURL,
	})
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (a *API) deleteBlog(c *gin.Context) {
	if err := a.bs.Delete(c.Request.Context(), c.Param("id")); err != nil {
		abortErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- posts ---

func (a *API) listBlogPosts(c *gin.Context) {
	ps, err := a.pp.List(c.Request.Context(), post.ListRequest{BlogID: c.Param("id"), Page: pageQuery(c)})
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, ps)
}

func (a *API) createPost(c *gin.Context) {
	var req struct {
		Title      string `json:"title"`
		ShortDescr string `json:"shortDescription"`
		Content    string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortErr(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request body")))
		return
	}

	p, err := a.pp.Create(c.Request.Context(), post.CreateRequest{
		BlogID:     c.Param("id"),
		Title:      req.Title,
		ShortDescr: req.ShortDescr,
		Content:    req.Content,
	})
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (a *API) listPosts(c *gin.Context) {
	ps, err := a.pp.List(c.Request.Context(), post.ListRequest{Page: pageQuery(c)})
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, ps)
}

func (a *API) getPost(c *gin.Context) {
	p, err := a.pp.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (a *API) updatePost(c *gin.Context) {
	var req struct {
		Title      string `json:"title"`
		ShortDescr string `json:"shortDescription"`
		Content    string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortErr(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request body")))
		return
	}

	p, err := a.pp.Update(c.Request.Context(), post.UpdateRequest{
		PostID:     c.Param("id"),
		Title:      req.Title,
		ShortDescr: req.ShortDescr,
		Content:    req.Content,
	})
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (a *API) deletePost(c *gin.Context) {
	if err := a.pp.Delete(c.Request.Context(), c.Param("id")); err != nil {
		abortErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- comments ---

func (a *API) listPostComments(c *gin.Context) {
	cs, err := a.cs.ListByPost(c.Request.Context(), comment.ListRequest{PostID: c.Param("id"), Page: pageQuery(c)})
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, cs)
}

func (a *API) createComment(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortErr(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request body")))
		return
	}

	cm, err := a.cs.Create(c.Request.Context(), comment.CreateRequest{
		PostID:  c.Param("id"),
		UserID:  uid,
		Content: req.Content,
	})
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, cm)
}

func (a *API) getComment(c *gin.Context) {
	cm, err := a.cs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, cm)
}

func (a *API) updateComment(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortErr(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request body")))
		return
	}

	cm, err := a.cs.Update(c.Request.Context(), comment.UpdateRequest{
		CommentID: c.Param("id"),
		UserID:    uid,
		Content:   req.Content,
	})
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, cm)
}

func (a *API) deleteComment(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}

	if err := a.cs.Delete(c.Request.Context(), c.Param("id"), uid); err != nil {
		abortErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- views ---

type GameView struct {
	ID         string                  `json:"id"`
	Status     string                  `json:"status"`
	Players    []string                `json:"players"`
	Questions  []QuestionView          `json:"questions,omitempty"`
	Answers    map[string][]AnswerView `json:"answers"`
	Scores     map[string]int          `json:"scores"`
	BonusTo    string                  `json:"bonusTo,omitempty"`
	CreatedAt  time.Time               `json:"pairCreatedDate"`
	StartedAt  *time.Time              `json:"startGameDate,omitempty"`
	FinishedAt *time.Time              `json:"finishGameDate,omitempty"`
}

// QuestionView deliberately omits the accepted answers.
type QuestionView struct {
	ID   string `json:"id"`
	Body string `json:"body"`
}

type AnswerView struct {
	QuestionID string    `json:"questionId"`
	Text       string    `json:"answer"`
	Correct    bool      `json:"correct"`
	AnsweredAt time.Time `json:"addedAt"`
}

type StatsView struct {
	PlayerID string  `json:"playerId"`
	Games    int     `json:"gamesCount"`
	Wins     int     `json:"winsCount"`
	Losses   int     `json:"lossesCount"`
	Draws    int     `json:"drawsCount"`
	SumScore int     `json:"sumScore"`
	AvgScore float64 `json:"avgScores"`
}

func gameView(g *domain.Game) GameView {
	v := GameView{
		ID:         g.GameID,
		Status:     string(g.Status),
		Players:    []string{g.Players[0]},
		Answers:    make(map[string][]AnswerView, len(g.Answers)),
		Scores:     g.Scores,
		BonusTo:    g.BonusTo,
		CreatedAt:  g.CreatedAt,
		StartedAt:  timePtr(g.StartedAt),
		FinishedAt: timePtr(g.FinishedAt),
	}
	if g.Players[1] != "" {
		v.Players = append(v.Players, g.Players[1])
	}

	for _, q := range g.Questions {
		v.Questions = append(v.Questions, QuestionView{ID: q.QuestionID, Body: q.Body})
	}
	for p, as := range g.Answers {
		vs := make([]AnswerView, 0, len(as))
		for _, a := range as {
			vs = append(vs, answerView(a))
		}
		v.Answers[p] = vs
	}
	return v
}

func answerView(a domain.Answer) AnswerView {
	return AnswerView{
		QuestionID: a.QuestionID,
		Text:       a.Text,
		Correct:    a.Correct,
		AnsweredAt: a.AnsweredAt,
	}
}

func statsView(st domain.PlayerStats) StatsView {
	return StatsView{
		PlayerID: st.PlayerID,
		Games:    st.Games,
		Wins:     st.Wins,
		Losses:   st.Losses,
		Draws:    st.Draws,
		SumScore: st.SumScore,
		AvgScore: st.AvgScore.InexactFloat64(),
	}
}

// --- helpers ---

func callerID(c *gin.Context) (string, bool) {
	uid := c.GetHeader(userIDHeader)
	if uid == "" {
		abortErr(c, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("missing %s header", userIDHeader)))
		return "", false
	}
	return uid, true
}

func abortErr(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}

func pageQuery(c *gin.Context) domain.Page {
	num, _ := strconv.Atoi(c.Query("pageNumber"))
	size, _ := strconv.Atoi(c.Query("pageSize"))
	return domain.Page{
		Number:   num,
		Size:     size,
		SortBy:   c.Query("sortBy"),
		SortDesc: c.DefaultQuery("sortDirection", "desc") == "desc",
	}.Normalize()
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func ptr[T any](v T) *T { return &v }
