package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubHealth struct {
	err   error
	calls atomic.Int32
}

func (s *stubHealth) Health(ctx context.Context) error {
	s.calls.Add(1)
	return s.err
}

type stubHeartbeater struct {
	calls atomic.Int32
}

func (s *stubHeartbeater) Heartbeat(ctx context.Context, instance string) {
	s.calls.Add(1)
}

func TestStartRunsInitialStatusRefresh(t *testing.T) {
	health := &stubHealth{}
	s := New(health, nil, nil)
	s.Start()
	defer s.Stop()

	assert.Equal(t, int32(1), health.calls.Load(), "status refresh runs once at startup")
}

func TestRefreshStatusSurvivesFailure(t *testing.T) {
	health := &stubHealth{err: errors.New("connection refused")}
	s := New(health, &stubHeartbeater{}, nil)

	s.refreshStatus()
	assert.Equal(t, int32(1), health.calls.Load())
}

func TestHeartbeatUsesRelay(t *testing.T) {
	hb := &stubHeartbeater{}
	s := New(&stubHealth{}, hb, nil)

	s.heartbeat()
	assert.Equal(t, int32(1), hb.calls.Load())
}
