package leaderboard

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/ehunt/internal/domain"
	"github.com/victornm/ehunt/internal/event"
)

// DefaultLimit is the number of teams a leaderboard shows when no limit is asked for.
const DefaultLimit = 10

const publishInterval = 200 * time.Millisecond

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

// Service projects team scores into a redis sorted set. The store stays the source of
// truth; the set is rebuilt from it with Rebuild.
type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameScoreUpdated, func(ctx context.Context, e event.Event) error {
		return s.UpdateLeaderboard(ctx, e.(domain.EventScoreUpdated))
	})
	s.eb.Subscribe(domain.EventNameTeamRemoved, func(ctx context.Context, e event.Event) error {
		return s.Remove(ctx, e.(domain.EventTeamRemoved).TeamID)
	})

	return s
}

type GetLeaderboardRequest struct {
	// Limit caps the number of entries. Zero means the top 10, negative means everyone.
	Limit int
}

// GetLeaderboard returns teams by score, highest first. Teams tied with the last entry
// are returned too, even past the limit, so callers can break ties on other criteria
// before cutting.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	stop := int64(req.Limit) - 1
	switch {
	case req.Limit == 0:
		stop = DefaultLimit - 1
	case req.Limit < 0:
		stop = -1
	}

	res, err := s.redis.ZRevRangeWithScores(ctx, s.key(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if stop >= 0 && int64(len(res)) == stop+1 {
		last := strconv.FormatFloat(res[len(res)-1].Score, 'f', -1, 64)
		tied, err := s.redis.ZRevRangeByScoreWithScores(ctx, s.key(), &redis.ZRangeBy{Min: last, Max: last}).Result()
		if err != nil {
			return nil, fmt.Errorf("get leaderboard ties: %w", err)
		}
		for _, z := range tied {
			if !slices.ContainsFunc(res, func(other redis.Z) bool { return other.Member == z.Member }) {
				res = append(res, z)
			}
		}
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.LeaderboardEntry{
			TeamID: z.Member.(string),
			Score:  z.Score,
		})
	}

	return &domain.Leaderboard{Entries: entries}, nil
}

// UpdateLeaderboard overwrites the team's score in the leaderboard.
func (s *Service) UpdateLeaderboard(ctx context.Context, e domain.EventScoreUpdated) error {
	if err := s.redis.ZAdd(ctx, s.key(), redis.Z{
		Score:  float64(e.TotalScore),
		Member: e.TeamID,
	}).Err(); err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	return s.schedulePublishLeaderboard(ctx)
}

// Remove drops a team from the leaderboard.
func (s *Service) Remove(ctx context.Context, teamID string) error {
	if err := s.redis.ZRem(ctx, s.key(), teamID).Err(); err != nil {
		return fmt.Errorf("remove from leaderboard: %w", err)
	}

	return s.schedulePublishLeaderboard(ctx)
}

// Rebuild replaces the projection with the given teams, used at boot.
func (s *Service) Rebuild(ctx context.Context, teams []domain.Team) error {
	_, err := s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.key())
		for _, t := range teams {
			p.ZAdd(ctx, s.key(), redis.Z{Score: float64(t.Score), Member: t.TeamID})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("rebuild leaderboard: %w", err)
	}
	return nil
}

// schedulePublishLeaderboard publishes at most one leaderboard.updated per interval.
// Scores of many teams change in bursts, right after the clock starts for example.
func (s *Service) schedulePublishLeaderboard(ctx context.Context) error {
	// SetNX keeps several instances from publishing in the same interval.
	ok, err := s.redis.SetNX(ctx, s.timeKey(), time.Now().UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{})
	if err != nil {
		return err
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return nil
}

func (s *Service) key() string {
	return fmt.Sprintf("%s:leaderboard", s.prefix)
}

func (s *Service) timeKey() string {
	return fmt.Sprintf("%s:leaderboard:time", s.prefix)
}
