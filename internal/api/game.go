package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/victornm/ehunt/internal/clock"
)

type gameStatusResponse struct {
	Started          bool       `json:"started"`
	Paused           bool       `json:"paused"`
	Status           string     `json:"status"`
	StartTime        *time.Time `json:"startTime"`
	EndTime          *time.Time `json:"endTime"`
	DurationMinutes  int        `json:"durationMinutes"`
	ServerTime       time.Time  `json:"serverTime"`
	RemainingSeconds int        `json:"remainingSeconds"`
}

func newGameStatus(s *clock.StatusResponse) gameStatusResponse {
	return gameStatusResponse{
		Started:          s.Settings.Started,
		Paused:           s.Settings.Paused,
		Status:           string(s.Status),
		StartTime:        s.Settings.StartTime,
		EndTime:          s.Settings.EndTime,
		DurationMinutes:  s.Settings.DurationMinutes,
		ServerTime:       s.ServerTime,
		RemainingSeconds: s.RemainingSeconds,
	}
}

func (a *API) GameStatus(c *gin.Context) {
	resp, err := a.clock.Status(c.Request.Context(), a.now())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, newGameStatus(resp))
}

type toggleGameRequest struct {
	Action          string `json:"action"`
	DurationMinutes int    `json:"durationMinutes"`
}

func (a *API) ToggleGame(c *gin.Context) {
	var req toggleGameRequest
	if !bind(c, &req) {
		return
	}

	resp, err := a.clock.Toggle(c.Request.Context(), clock.ToggleRequest{
		Action:          clock.Action(req.Action),
		DurationMinutes: req.DurationMinutes,
		Now:             a.now(),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, newGameStatus(resp))
}
