package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/ehunt/internal/api"
	"github.com/victornm/ehunt/internal/clock"
	"github.com/victornm/ehunt/internal/cooldown"
	"github.com/victornm/ehunt/internal/domain"
	"github.com/victornm/ehunt/internal/event"
	"github.com/victornm/ehunt/internal/leaderboard"
	"github.com/victornm/ehunt/internal/progression"
	"github.com/victornm/ehunt/internal/quiz"
	"github.com/victornm/ehunt/internal/store"
	"github.com/victornm/ehunt/internal/team"
)

var (
	t0     = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	secret = []byte("test-secret")
)

const prefix = "ehunt-test"

type server struct {
	engine *gin.Engine
	eb     *event.Bus
	redis  *redis.Client
	store  *store.Memory
}

// newServer serves a hunt of a single step for team "red", ten minutes into a running event.
func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	st := store.NewMemory()
	_, err := st.PutCheckpoint(ctx, domain.Checkpoint{CheckpointID: "cp-1", Code: "CP-1", Order: 1, Category: domain.DivisionAny})
	require.NoError(t, err)
	_, err = st.PutChallenge(ctx, domain.Challenge{ChallengeID: "q-1", Step: 1, Category: domain.DivisionAny, Prompt: "Tallest?", CorrectAnswer: "Eiffel Tower", Points: 100})
	require.NoError(t, err)
	_, err = st.PutChallenge(ctx, domain.Challenge{ChallengeID: "quiz-1", Step: 1, Category: domain.DivisionAny, Prompt: "Capital?", CorrectAnswer: "Paris", Points: 20})
	require.NoError(t, err)
	_, err = st.CreateTeam(ctx, domain.Team{TeamID: "red", Name: "Red Foxes", Category: "A"})
	require.NoError(t, err)
	_, err = st.UpdateSettings(ctx, func(s *domain.EventSettings) (bool, error) {
		end := t0.Add(2 * time.Hour)
		s.Started, s.StartTime, s.EndTime, s.DurationMinutes = true, &t0, &end, 120
		return true, nil
	})
	require.NoError(t, err)

	rs := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: rs.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	eb := event.NewBus()
	e := gin.New()

	api.New(api.Config{
		Engine:   e,
		EventBus: eb,
		Clock:    clock.NewService(clock.Config{Store: st, EventBus: eb}),
		Progression: progression.NewService(progression.Config{
			Store:     st,
			EventBus:  eb,
			Guard:     cooldown.NewGuard(time.Minute, cooldown.Penalty{}),
			Divisions: []domain.Division{"A"},
		}),
		Quiz:         quiz.NewService(quiz.Config{Store: st, EventBus: eb}),
		Team:         team.NewService(team.Config{Store: st, EventBus: eb}),
		Leaderboard:  leaderboard.NewService(leaderboard.Config{EventBus: eb, Redis: rdb, Prefix: prefix}),
		Checkpoints:  st,
		Redis:        rdb,
		PubsubPrefix: prefix,
		JWTSecret:    secret,
		Admin:        gin.Accounts{"admin": "pass"},
		Now:          func() time.Time { return t0.Add(10 * time.Minute) },
	})

	return &server{engine: e, eb: eb, redis: rdb, store: st}
}

type request struct {
	method string
	path   string
	body   any
	token  string
	admin  bool
}

func (s *server) do(t *testing.T, r request) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if r.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(r.body))
	}

	req := httptest.NewRequest(r.method, r.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	if r.admin {
		req.SetBasicAuth("admin", "pass")
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func token(t *testing.T, teamID string) string {
	t.Helper()
	tok, err := api.SignTeamToken(secret, teamID, time.Hour)
	require.NoError(t, err)
	return tok
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
	return m
}

func TestAPI_Errors(t *testing.T) {
	tests := map[string]struct {
		req        request
		wantStatus int
		wantReason string
	}{
		"scan without token": {
			req:        request{method: http.MethodPost, path: "/api/hunt/scan", body: map[string]string{"code": "CP-1"}},
			wantStatus: http.StatusUnauthorized,
			wantReason: "Unauthenticated",
		},
		"scan with a forged token": {
			req:        request{method: http.MethodPost, path: "/api/hunt/scan", body: map[string]string{"code": "CP-1"}, token: "not.a.jwt"},
			wantStatus: http.StatusUnauthorized,
			wantReason: "Unauthenticated",
		},
		"scan of an unknown code": {
			req:        request{method: http.MethodPost, path: "/api/hunt/scan", body: map[string]string{"code": "NOPE"}},
			wantStatus: http.StatusNotFound,
			wantReason: "UnknownCode",
		},
		"verify with a malformed body": {
			req:        request{method: http.MethodPost, path: "/api/hunt/verify", body: "oops"},
			wantStatus: http.StatusBadRequest,
			wantReason: "InvalidInput",
		},
		"quiz before the first checkpoint": {
			req:        request{method: http.MethodGet, path: "/api/quiz"},
			wantStatus: http.StatusBadRequest,
			wantReason: "InvalidInput",
		},
		"leaderboard with a bad limit": {
			req:        request{method: http.MethodGet, path: "/api/leaderboard?limit=ten"},
			wantStatus: http.StatusBadRequest,
			wantReason: "InvalidInput",
		},
		"toggle with an unknown action": {
			req:        request{method: http.MethodPost, path: "/api/admin/game/toggle", body: map[string]string{"action": "rewind"}, admin: true},
			wantStatus: http.StatusBadRequest,
			wantReason: "InvalidInput",
		},
		"qr of an unknown checkpoint": {
			req:        request{method: http.MethodGet, path: "/api/admin/checkpoints/NOPE/qr.png", admin: true},
			wantStatus: http.StatusNotFound,
			wantReason: "NotFound",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s := newServer(t)
			if tt.req.token == "" && tt.wantStatus != http.StatusUnauthorized && !tt.req.admin {
				tt.req.token = token(t, "red")
			}

			w := s.do(t, tt.req)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, tt.wantReason, decode(t, w)["reason"])
		})
	}
}

func TestAPI_AdminRequiresBasicAuth(t *testing.T) {
	s := newServer(t)

	w := s.do(t, request{method: http.MethodPost, path: "/api/admin/game/toggle", body: map[string]string{"action": "pause"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, request{method: http.MethodPost, path: "/api/admin/game/toggle", body: map[string]string{"action": "pause"}, admin: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "paused", decode(t, w)["status"])
}

func TestAPI_HuntFlow(t *testing.T) {
	s := newServer(t)
	tok := token(t, "red")

	sub := s.redis.Subscribe(context.Background(), prefix+":team:red")
	defer sub.Close()
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	w := s.do(t, request{method: http.MethodGet, path: "/api/game/status"})
	require.Equal(t, http.StatusOK, w.Code)
	status := decode(t, w)
	assert.Equal(t, "running", status["status"])
	assert.EqualValues(t, 110*60, status["remainingSeconds"])

	w = s.do(t, request{method: http.MethodPost, path: "/api/hunt/scan", body: map[string]string{"code": " CP-1 "}, token: tok})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	scan := decode(t, w)
	assert.Equal(t, "cp-1", scan["checkpointId"])
	challenge := scan["challenge"].(map[string]any)
	assert.Equal(t, "q-1", challenge["id"])
	assert.Equal(t, []any{}, challenge["options"])
	assert.NotContains(t, w.Body.String(), "Eiffel")

	w = s.do(t, request{method: http.MethodPost, path: "/api/hunt/verify", token: tok, body: map[string]any{
		"checkpointId": "cp-1", "challengeId": "q-1", "answer": "  EIFFEL   tower! ", "timeTaken": 42,
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	verify := decode(t, w)
	assert.EqualValues(t, 96, verify["pointsAwarded"])
	assert.EqualValues(t, 96, verify["score"])
	assert.NotContains(t, verify, "totalScore")
	assert.EqualValues(t, 2, verify["nextStep"])
	assert.Equal(t, true, verify["isFinished"])
	assert.Nil(t, verify["nextClue"])

	assert.ElementsMatch(t,
		[]string{domain.EventNameTeamAdvanced, domain.EventNameLeaderboardUpdated},
		receive(t, sub.Channel(), 2),
	)

	w = s.do(t, request{method: http.MethodGet, path: "/api/quiz", token: tok})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decode(t, w)["questions"], 2)

	w = s.do(t, request{method: http.MethodPost, path: "/api/quiz/submit", token: tok, body: map[string]any{
		"answers": []map[string]string{
			{"questionId": "q-1", "answer": "Eiffel Tower"},
			{"questionId": "quiz-1", "answer": "paris"},
		},
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	submit := decode(t, w)
	assert.EqualValues(t, 2, submit["correctCount"])
	assert.EqualValues(t, 115, submit["scoreEarned"])
	assert.EqualValues(t, 211, submit["totalScore"])

	w = s.do(t, request{method: http.MethodPost, path: "/api/quiz/submit", token: tok, body: map[string]any{
		"answers": []map[string]string{{"questionId": "q-1", "answer": "x"}},
	}})
	require.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, request{method: http.MethodGet, path: "/api/team/me", token: tok})
	require.Equal(t, http.StatusOK, w.Code)
	me := decode(t, w)
	assert.Equal(t, "Red Foxes", me["name"])
	assert.EqualValues(t, 211, me["score"])
	assert.EqualValues(t, 1, me["totalSteps"])

	s.eb.Stop()

	w = s.do(t, request{method: http.MethodGet, path: "/api/leaderboard"})
	require.Equal(t, http.StatusOK, w.Code)
	var l api.Leaderboard
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &l))
	assert.Equal(t, []api.LeaderboardEntry{{Rank: 1, TeamID: "red", Name: "Red Foxes", Score: 211}}, l.Entries)
}

func TestAPI_VerifyReportsAwardAndTotal(t *testing.T) {
	s := newServer(t)
	_, err := s.store.UpdateTeam(context.Background(), "red", func(t *domain.Team) error { t.Score = 50; return nil }, nil)
	require.NoError(t, err)
	tok := token(t, "red")

	w := s.do(t, request{method: http.MethodPost, path: "/api/hunt/scan", body: map[string]string{"code": "CP-1"}, token: tok})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, request{method: http.MethodPost, path: "/api/hunt/verify", token: tok, body: map[string]any{
		"checkpointId": "cp-1", "challengeId": "q-1", "answer": "eiffel tower",
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	verify := decode(t, w)
	assert.EqualValues(t, 96, verify["pointsAwarded"], "points of this answer only")
	assert.EqualValues(t, 146, verify["score"], "team total after the answer")
	s.eb.Stop()
}

func TestAPI_Standing(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	for _, tm := range []domain.Team{
		{TeamID: "blue", Name: "Blue Jays", Category: "A", Score: 100, Penalties: 1, StartTime: &t0},
		{TeamID: "green", Name: "Green Owls", Category: "A", Score: 100, StartTime: &t0},
	} {
		_, err := s.store.CreateTeam(ctx, tm)
		require.NoError(t, err)
		s.eb.Publish(ctx, domain.EventScoreUpdated{TeamID: tm.TeamID, TotalScore: tm.Score})
	}
	s.eb.Stop()
	_, err := s.store.PutHint(ctx, domain.Hint{HintID: "h-1", Step: 1, Category: domain.DivisionAny, Title: "Look up", Content: "It is tall", Active: true, CreateTime: t0})
	require.NoError(t, err)
	tok := token(t, "red")

	t.Run("hints of the current step", func(t *testing.T) {
		w := s.do(t, request{method: http.MethodGet, path: "/api/team/hints", token: tok})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		hints := decode(t, w)["hints"].([]any)
		require.Len(t, hints, 1)
		assert.Equal(t, "Look up", hints[0].(map[string]any)["title"])
	})

	t.Run("leaderboard breaks a score tie on penalties", func(t *testing.T) {
		w := s.do(t, request{method: http.MethodGet, path: "/api/leaderboard?limit=1"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var l api.Leaderboard
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &l))
		assert.Equal(t, []api.LeaderboardEntry{{Rank: 1, TeamID: "green", Name: "Green Owls", Score: 100}}, l.Entries)
	})

	t.Run("qualification", func(t *testing.T) {
		tests := map[string]struct {
			path     string
			want     bool
			position any
		}{
			"outside the default top 2": {path: "/api/team/qualified", want: false, position: nil},
			"inside a top 3":            {path: "/api/team/qualified?top=3", want: true, position: float64(3)},
		}

		for name, tc := range tests {
			t.Run(name, func(t *testing.T) {
				w := s.do(t, request{method: http.MethodGet, path: tc.path, token: tok})
				require.Equal(t, http.StatusOK, w.Code, w.Body.String())
				got := decode(t, w)
				assert.Equal(t, tc.want, got["qualified"])
				assert.Equal(t, tc.position, got["position"])
				assert.Equal(t, "green", got["top"].([]any)[0].(map[string]any)["id"])
			})
		}

		w := s.do(t, request{method: http.MethodGet, path: "/api/team/qualified?top=0", token: tok})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("admin qualifiers", func(t *testing.T) {
		w := s.do(t, request{method: http.MethodGet, path: "/api/admin/qualifiers", admin: true})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		got := decode(t, w)
		assert.EqualValues(t, 2, got["topN"])
		a := got["qualifiers"].(map[string]any)["A"].([]any)
		require.Len(t, a, 2)
		assert.Equal(t, "green", a[0].(map[string]any)["id"])
		assert.Equal(t, "blue", a[1].(map[string]any)["id"])
	})

	t.Run("admin deletes a team", func(t *testing.T) {
		w := s.do(t, request{method: http.MethodDelete, path: "/api/admin/teams/green", admin: true})
		require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
		s.eb.Stop()

		w = s.do(t, request{method: http.MethodGet, path: "/api/leaderboard"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var l api.Leaderboard
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &l))
		require.Len(t, l.Entries, 1)
		assert.Equal(t, "blue", l.Entries[0].TeamID)

		w = s.do(t, request{method: http.MethodDelete, path: "/api/admin/teams/green", admin: true})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAPI_AdminTeamOperations(t *testing.T) {
	s := newServer(t)
	_, err := s.store.UpdateTeam(context.Background(), "red", func(t *domain.Team) error {
		t.Score, t.Penalties, t.CurrentStep = 300, 2, 3
		return nil
	}, nil)
	require.NoError(t, err)

	w := s.do(t, request{method: http.MethodPost, path: "/api/admin/teams/red/remove-penalty", admin: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, decode(t, w)["penalties"])

	w = s.do(t, request{method: http.MethodPost, path: "/api/admin/teams/red/adjust-time", body: map[string]int{"minutes": 5}, admin: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, t0.Add(-5*time.Minute).Format(time.RFC3339), decode(t, w)["startTime"])

	w = s.do(t, request{method: http.MethodPost, path: "/api/admin/teams/red/reset", admin: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	reset := decode(t, w)
	assert.EqualValues(t, 0, reset["score"])
	assert.EqualValues(t, 1, reset["currentStep"])

	w = s.do(t, request{method: http.MethodPost, path: "/api/admin/teams/blue/reset", admin: true})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_CheckpointQR(t *testing.T) {
	s := newServer(t)

	w := s.do(t, request{method: http.MethodGet, path: "/api/admin/checkpoints/CP-1/qr.png?size=128", admin: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, []byte("\x89PNG"), w.Body.Bytes()[:4])
}

func receive(t *testing.T, ch <-chan *redis.Message, n int) []string {
	t.Helper()

	var events []string
	timeout := time.After(2 * time.Second)
	for len(events) < n {
		select {
		case msg := <-ch:
			var notif api.Notification
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &notif))
			events = append(events, notif.Event)
		case <-timeout:
			t.Fatalf("got %v, want %d notifications", events, n)
		}
	}
	return events
}
