// Package clock owns the competition timer that every scoring and gating decision reads.
package clock

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/victornm/ehunt/internal/domain"
	"github.com/victornm/ehunt/internal/errors"
	"github.com/victornm/ehunt/internal/event"
	"github.com/victornm/ehunt/internal/store"
	"github.com/victornm/ehunt/internal/telemetry"
)

const DefaultDurationMinutes = 120

type Action string

const (
	ActionStart Action = "start"
	ActionPause Action = "pause"
	ActionStop  Action = "stop"
)

type Config struct {
	Store                  store.Store
	EventBus               *event.Bus
	DefaultDurationMinutes int
}

type Service struct {
	store    store.Store
	eb       *event.Bus
	duration int
}

func NewService(c Config) *Service {
	d := c.DefaultDurationMinutes
	if d <= 0 {
		d = DefaultDurationMinutes
	}

	return &Service{
		store:    c.Store,
		eb:       c.EventBus,
		duration: d,
	}
}

type StatusResponse struct {
	Settings         domain.EventSettings
	Status           domain.ClockStatus
	ServerTime       time.Time
	RemainingSeconds int
}

// Status returns the clock as seen at now.
func (s *Service) Status(ctx context.Context, now time.Time) (*StatusResponse, error) {
	settings, err := s.store.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}

	return statusAt(settings, now), nil
}

func statusAt(settings domain.EventSettings, now time.Time) *StatusResponse {
	resp := &StatusResponse{
		Settings:   settings,
		Status:     settings.Status(),
		ServerTime: now,
	}

	if resp.Status == domain.ClockRunning && settings.EndTime != nil {
		if left := settings.EndTime.Sub(now); left > 0 {
			resp.RemainingSeconds = int(math.Ceil(left.Seconds()))
		}
	}

	return resp
}

type ToggleRequest struct {
	Action Action
	// DurationMinutes applies to start only. Zero means the configured default.
	DurationMinutes int
	Now             time.Time
}

// Toggle applies an admin action to the clock.
//
// start (re)starts the clock at Now and rebases the start time of every team.
// pause flips the paused flag of a started clock and leaves the timestamps alone.
// stop ends the event and keeps its timestamps; stopping twice is a no-op.
func (s *Service) Toggle(ctx context.Context, req ToggleRequest) (*StatusResponse, error) {
	var apply store.SettingsUpdate

	switch req.Action {
	case ActionStart:
		if req.DurationMinutes < 0 {
			return nil, errors.InvalidInput("duration must not be negative: %d", req.DurationMinutes)
		}

		duration := req.DurationMinutes
		if duration == 0 {
			duration = s.duration
		}

		apply = func(st *domain.EventSettings) (bool, error) {
			start, end := req.Now, req.Now.Add(time.Duration(duration)*time.Minute)
			st.Started = true
			st.Paused = false
			st.StartTime = &start
			st.EndTime = &end
			st.DurationMinutes = duration
			return true, nil
		}

	case ActionPause:
		apply = func(st *domain.EventSettings) (bool, error) {
			if !st.Started {
				return false, errors.EventNotRunning("event is not running, cannot pause")
			}
			st.Paused = !st.Paused
			return false, nil
		}

	case ActionStop:
		apply = func(st *domain.EventSettings) (bool, error) {
			st.Started = false
			st.Paused = false
			return false, nil
		}

	default:
		return nil, errors.InvalidInput("unknown action: %q", req.Action)
	}

	settings, err := s.store.UpdateSettings(ctx, apply)
	if err != nil {
		return nil, err
	}

	telemetry.ClockTransitions.WithLabelValues(string(req.Action)).Inc()
	slog.InfoContext(ctx, "clock: toggled",
		"action", req.Action,
		"status", settings.Status(),
		"duration", settings.DurationMinutes,
	)

	s.eb.Publish(ctx, domain.EventClockChanged{
		Settings: settings,
		Action:   string(req.Action),
	})

	return statusAt(settings, req.Now), nil
}

// ElapsedMinutes is the scoring time of a running event: whole seconds since the
// start, in minutes. ok is false when the clock is not running.
func ElapsedMinutes(settings domain.EventSettings, now time.Time) (minutes float64, ok bool) {
	if settings.Status() != domain.ClockRunning {
		return 0, false
	}
	return SinceStart(settings, now)
}

// SinceStart measures from the start time whatever the clock status is. ok is false
// when the event has never started.
func SinceStart(settings domain.EventSettings, now time.Time) (minutes float64, ok bool) {
	if settings.StartTime == nil {
		return 0, false
	}

	seconds := math.Floor(now.Sub(*settings.StartTime).Seconds())
	return max(0, seconds) / 60, true
}
