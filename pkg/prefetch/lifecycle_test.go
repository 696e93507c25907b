package prefetch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePauser struct {
	mu      sync.Mutex
	paused  bool
	pauses  int
	resumes int
}

func (p *fakePauser) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		p.paused = true
		p.pauses++
	}
}

func (p *fakePauser) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		p.paused = false
		p.resumes++
	}
}

func (p *fakePauser) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *fakePauser) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pauses, p.resumes
}

func TestLifecyclePausesOnHiddenAndResumesOnVisible(t *testing.T) {
	p := &fakePauser{}
	l := NewLifecycle(p, nil)

	l.SetHidden(true)
	l.SetHidden(true)
	assert.True(t, p.IsPaused())

	l.SetHidden(false)
	l.SetHidden(false)
	assert.False(t, p.IsPaused())

	pauses, resumes := p.counts()
	assert.Equal(t, 1, pauses)
	assert.Equal(t, 1, resumes)
}

func TestLifecycleWaitsForAllReasonsToClear(t *testing.T) {
	p := &fakePauser{}
	l := NewLifecycle(p, nil)

	l.SetHidden(true)
	l.SetOnline(false)
	assert.ElementsMatch(t, []string{"hidden", "offline"}, l.Reasons())

	l.SetHidden(false)
	assert.True(t, p.IsPaused(), "still offline")

	l.SetOnline(true)
	assert.False(t, p.IsPaused())
	assert.False(t, l.Suspended())

	pauses, resumes := p.counts()
	assert.Equal(t, 1, pauses)
	assert.Equal(t, 1, resumes)
}

func TestLifecycleLeavesUserPauseAlone(t *testing.T) {
	p := &fakePauser{}
	l := NewLifecycle(p, nil)

	p.Pause()
	l.SetHidden(true)
	l.SetHidden(false)
	assert.True(t, p.IsPaused(), "a pause the controller did not cause is not undone")

	p.Resume()
	l.SetOnline(false)
	l.Release()
	l.SetOnline(true)
	assert.True(t, p.IsPaused(), "released pauses belong to the user")
}

type flakyProber struct {
	fail atomic.Bool
}

func (f *flakyProber) Ping(ctx context.Context) error {
	if f.fail.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func TestMonitorConnectivity(t *testing.T) {
	p := &fakePauser{}
	l := NewLifecycle(p, nil)
	prober := &flakyProber{}
	prober.fail.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.MonitorConnectivity(ctx, prober, 5*time.Millisecond) }()

	require.Eventually(t, p.IsPaused, time.Second, time.Millisecond)

	prober.fail.Store(false)
	require.Eventually(t, func() bool { return !p.IsPaused() }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestLifecyclePausesTargetResumedElsewhere(t *testing.T) {
	p := &fakePauser{}
	l := NewLifecycle(p, nil)

	l.SetHidden(true)
	require.True(t, p.IsPaused())

	p.Resume()
	l.Release()
	l.SetOnline(false)
	assert.True(t, p.IsPaused(), "a new reason pauses again")

	l.SetHidden(false)
	l.SetOnline(true)
	assert.False(t, p.IsPaused(), "the controller resumes a pause it caused")
}
