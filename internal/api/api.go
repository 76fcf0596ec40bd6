package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/ehunt/internal/clock"
	"github.com/victornm/ehunt/internal/domain"
	"github.com/victornm/ehunt/internal/event"
	"github.com/victornm/ehunt/internal/leaderboard"
	"github.com/victornm/ehunt/internal/progression"
	"github.com/victornm/ehunt/internal/quiz"
	"github.com/victornm/ehunt/internal/team"
)

type Config struct {
	Engine      *gin.Engine
	EventBus    *event.Bus
	Clock       *clock.Service
	Progression *progression.Service
	Quiz        *quiz.Service
	Team        *team.Service
	Leaderboard *leaderboard.Service
	Checkpoints Checkpoints

	Redis        Redis
	PubsubPrefix string

	JWTSecret []byte
	Admin     gin.Accounts

	// Now defaults to time.Now.
	Now func() time.Time
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type Checkpoints interface {
	CheckpointByCode(ctx context.Context, code string) (domain.Checkpoint, error)
}

type API struct {
	clock       *clock.Service
	progression *progression.Service
	quiz        *quiz.Service
	team        *team.Service
	leaderboard *leaderboard.Service
	checkpoints Checkpoints

	redis  Redis
	prefix string

	secret []byte
	now    func() time.Time
}

func New(c Config) *API {
	a := &API{
		clock:       c.Clock,
		progression: c.Progression,
		quiz:        c.Quiz,
		team:        c.Team,
		leaderboard: c.Leaderboard,
		checkpoints: c.Checkpoints,
		redis:       c.Redis,
		prefix:      c.PubsubPrefix,
		secret:      c.JWTSecret,
		now:         c.Now,
	}

	if a.now == nil {
		a.now = time.Now
	}

	a.routes(c.Engine, c.Admin)

	// Register event handlers
	if a.redis != nil {
		c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
			return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
		})
		c.EventBus.Subscribe(domain.EventNameTeamAdvanced, func(ctx context.Context, e event.Event) error {
			return a.PublishTeamAdvanced(ctx, e.(domain.EventTeamAdvanced))
		})
		c.EventBus.Subscribe(domain.EventNameQuizSubmitted, func(ctx context.Context, e event.Event) error {
			return a.PublishQuizSubmitted(ctx, e.(domain.EventQuizSubmitted))
		})
		c.EventBus.Subscribe(domain.EventNameClockChanged, func(ctx context.Context, e event.Event) error {
			return a.PublishClockChanged(ctx, e.(domain.EventClockChanged))
		})
	}

	return a
}

func (a *API) routes(e *gin.Engine, admin gin.Accounts) {
	r := e.Group("/api")

	r.GET("/game/status", a.GameStatus)
	r.GET("/leaderboard", a.GetLeaderboard)

	t := r.Group("", a.authenticate)
	t.POST("/hunt/scan", a.Scan)
	t.POST("/hunt/verify", a.Verify)
	t.GET("/quiz", a.GetQuiz)
	t.POST("/quiz/submit", a.SubmitQuiz)
	t.GET("/team/me", a.Me)
	t.GET("/team/clue", a.CurrentClue)
	t.GET("/team/hints", a.Hints)
	t.GET("/team/qualified", a.Qualification)

	ad := r.Group("/admin", gin.BasicAuth(admin))
	ad.POST("/game/toggle", a.ToggleGame)
	ad.POST("/teams/:id/reset", a.ResetTeam)
	ad.POST("/teams/:id/adjust-time", a.AdjustTime)
	ad.POST("/teams/:id/remove-penalty", a.RemovePenalty)
	ad.DELETE("/teams/:id", a.DeleteTeam)
	ad.GET("/qualifiers", a.Qualifiers)
	ad.GET("/checkpoints/:code/qr.png", a.CheckpointQR)
}
