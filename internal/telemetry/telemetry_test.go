package telemetry_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/victornm/ehunt/internal/telemetry"
)

func TestMonitorRedis(t *testing.T) {
	rs := miniredis.RunT(t)
	r := redis.NewClient(&redis.Options{Addr: rs.Addr()})
	t.Cleanup(func() { _ = r.Close() })

	require.NoError(t, telemetry.MonitorRedis(r))

	ctx := context.Background()
	require.NoError(t, r.Set(ctx, "k", "v", 0).Err())
	require.ErrorIs(t, r.Get(ctx, "missing").Err(), redis.Nil)

	_, err := r.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, "n")
		p.Incr(ctx, "n")
		return nil
	})
	require.NoError(t, err)
	n, err := rs.Get("n")
	require.NoError(t, err)
	assert.Equal(t, "2", n)
}

func TestResult(t *testing.T) {
	assert.Equal(t, "ok", telemetry.Result(""))
	assert.Equal(t, "Locked", telemetry.Result("Locked"))

	before := testutil.ToFloat64(telemetry.Scans.WithLabelValues("ok"))
	telemetry.Scans.WithLabelValues(telemetry.Result("")).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(telemetry.Scans.WithLabelValues("ok")))
}

func TestGRPCServerOptions(t *testing.T) {
	s := grpc.NewServer(telemetry.GRPCServerOptions()...)
	s.Stop()
}
