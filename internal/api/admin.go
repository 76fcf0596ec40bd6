package api

import (
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"github.com/victornm/ehunt/internal/errors"
	"github.com/victornm/ehunt/internal/store"
	"github.com/victornm/ehunt/internal/team"
)

const (
	defaultQRSize = 256
	maxQRSize     = 2048
)

func (a *API) ResetTeam(c *gin.Context) {
	t, err := a.team.Reset(c.Request.Context(), c.Param("id"), a.now())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, newTeam(*t))
}

type adjustTimeRequest struct {
	Minutes int `json:"minutes"`
}

func (a *API) AdjustTime(c *gin.Context) {
	var req adjustTimeRequest
	if !bind(c, &req) {
		return
	}

	t, err := a.team.AdjustTime(c.Request.Context(), c.Param("id"), req.Minutes, a.now())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, newTeam(*t))
}

func (a *API) RemovePenalty(c *gin.Context) {
	t, err := a.team.RemovePenalty(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, newTeam(*t))
}

func (a *API) DeleteTeam(c *gin.Context) {
	if err := a.team.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type qualifiersResponse struct {
	Qualifiers map[string][]Team `json:"qualifiers"`
	TopN       int               `json:"topN"`
}

func (a *API) Qualifiers(c *gin.Context) {
	top, err := queryTop(c)
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := a.team.Qualifiers(c.Request.Context(), top)
	if err != nil {
		writeError(c, err)
		return
	}

	if top == 0 {
		top = team.DefaultQualifiers
	}
	data := qualifiersResponse{Qualifiers: make(map[string][]Team, len(res)), TopN: top}
	for d, teams := range res {
		data.Qualifiers[string(d)] = newTeams(teams)
	}
	c.JSON(http.StatusOK, data)
}

// CheckpointQR renders the code of a checkpoint as a PNG to print and post on site.
func (a *API) CheckpointQR(c *gin.Context) {
	size := defaultQRSize
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 64 || n > maxQRSize {
			writeError(c, errors.InvalidInput("size must be between 64 and %d", maxQRSize))
			return
		}
		size = n
	}

	cp, err := a.checkpoints.CheckpointByCode(c.Request.Context(), c.Param("code"))
	if stderrors.Is(err, store.ErrNotFound) {
		writeError(c, errors.NotFound("checkpoint %q", c.Param("code")))
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	png, err := qrcode.Encode(cp.Code, qrcode.Medium, size)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}
