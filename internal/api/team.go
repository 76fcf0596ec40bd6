package api

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/victornm/ehunt/internal/domain"
	"github.com/victornm/ehunt/internal/errors"
	"github.com/victornm/ehunt/internal/leaderboard"
)

type Team struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Category          string     `json:"category"`
	CurrentStep       int        `json:"currentStep"`
	Score             int64      `json:"score"`
	Penalties         int        `json:"penalties"`
	LastWrongScanTime *time.Time `json:"lastWrongScanTime"`
	StartTime         *time.Time `json:"startTime"`
}

func newTeam(t domain.Team) Team {
	return Team{
		ID:                t.TeamID,
		Name:              t.Name,
		Category:          string(t.Category),
		CurrentStep:       t.CurrentStep,
		Score:             t.Score,
		Penalties:         t.Penalties,
		LastWrongScanTime: t.LastWrongScanTime,
		StartTime:         t.StartTime,
	}
}

type meResponse struct {
	Team
	TotalSteps int `json:"totalSteps"`
}

func (a *API) Me(c *gin.Context) {
	resp, err := a.team.Me(c.Request.Context(), teamID(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, meResponse{Team: newTeam(resp.Team), TotalSteps: resp.TotalSteps})
}

type Hint struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

func (a *API) Hints(c *gin.Context) {
	hints, err := a.team.Hints(c.Request.Context(), teamID(c))
	if err != nil {
		writeError(c, err)
		return
	}

	data := make([]Hint, 0, len(hints))
	for _, h := range hints {
		data = append(data, Hint{ID: h.HintID, Title: h.Title, Content: h.Content, CreatedAt: h.CreateTime})
	}

	c.JSON(http.StatusOK, gin.H{"hints": data})
}

type qualificationResponse struct {
	Qualified bool   `json:"qualified"`
	Position  *int   `json:"position"`
	Top       []Team `json:"top"`
}

func (a *API) Qualification(c *gin.Context) {
	top, err := queryTop(c)
	if err != nil {
		writeError(c, err)
		return
	}

	resp, err := a.team.Qualification(c.Request.Context(), teamID(c), top)
	if err != nil {
		writeError(c, err)
		return
	}

	data := qualificationResponse{Qualified: resp.Qualified, Top: newTeams(resp.Top)}
	if resp.Qualified {
		data.Position = &resp.Position
	}
	c.JSON(http.StatusOK, data)
}

// queryTop reads the optional top query parameter, zero when absent.
func queryTop(c *gin.Context) (int, error) {
	raw := c.Query("top")
	if raw == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.InvalidInput("top must be a positive integer")
	}
	return n, nil
}

func newTeams(teams []domain.Team) []Team {
	res := make([]Team, 0, len(teams))
	for _, t := range teams {
		res = append(res, newTeam(t))
	}
	return res
}

func (a *API) CurrentClue(c *gin.Context) {
	clue, err := a.team.CurrentClue(c.Request.Context(), teamID(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, newClue(clue))
}

type (
	Leaderboard struct {
		Entries []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		Rank   int    `json:"rank"`
		TeamID string `json:"teamId"`
		Name   string `json:"name"`
		Score  int64  `json:"score"`
	}
)

func (a *API) GetLeaderboard(c *gin.Context) {
	var limit int
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(c, errors.InvalidInput("limit must be an integer"))
			return
		}
		limit = n
	}

	l, err := a.leaderboard.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{Limit: limit})
	if err != nil {
		writeError(c, err)
		return
	}

	data, err := a.newLeaderboard(c.Request.Context(), *l, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, data)
}

// newLeaderboard ranks the entries, breaking score ties with domain.CompareStanding,
// cuts them to limit and attaches team names. Entries of teams that no longer exist
// keep an empty name. limit follows leaderboard.GetLeaderboardRequest.
func (a *API) newLeaderboard(ctx context.Context, l domain.Leaderboard, limit int) (Leaderboard, error) {
	teams, err := a.team.List(ctx)
	if err != nil {
		return Leaderboard{}, fmt.Errorf("list teams: %w", err)
	}

	byID := make(map[string]domain.Team, len(teams))
	for _, t := range teams {
		byID[t.TeamID] = t
	}

	standings := make([]domain.Team, 0, len(l.Entries))
	for _, e := range l.Entries {
		t, ok := byID[e.TeamID]
		if !ok {
			t = domain.Team{TeamID: e.TeamID}
		}
		t.Score = int64(e.Score)
		standings = append(standings, t)
	}
	slices.SortStableFunc(standings, domain.CompareStanding)

	if limit == 0 {
		limit = leaderboard.DefaultLimit
	}
	if limit > 0 && len(standings) > limit {
		standings = standings[:limit]
	}

	data := Leaderboard{Entries: make([]LeaderboardEntry, 0, len(standings))}
	for i, t := range standings {
		data.Entries = append(data.Entries, LeaderboardEntry{
			Rank:   i + 1,
			TeamID: t.TeamID,
			Name:   t.Name,
			Score:  t.Score,
		})
	}

	return data, nil
}
