package cron

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCron(t *testing.T) {
	assert.Equal(t, "0 0 3 * * *", normalizeCron("0 3 * * *"))
	assert.Equal(t, "*/5 * * * * *", normalizeCron("*/5 * * * * *"))
	assert.Equal(t, "@daily", normalizeCron("@daily"))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("@daily"))
	assert.NoError(t, Validate("30 2 * * *"))
	assert.Error(t, Validate("every day"))
	assert.Error(t, Validate(""))
}

func TestAddRejectsBadSchedule(t *testing.T) {
	s := NewScheduler()
	_, err := s.Add("cleanup", "not a schedule", func() error { return nil })
	require.Error(t, err)
	assert.Empty(t, s.Tasks())
}

func TestRunNowRecordsRuns(t *testing.T) {
	s := NewScheduler()
	calls := 0
	task, err := s.Add("cleanup", "@daily", func() error {
		calls++
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.RunNow(task.ID))
	require.NoError(t, s.RunNow(task.ID))
	assert.Equal(t, 2, calls)

	tasks := s.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, 2, tasks[0].Runs)
	assert.NotNil(t, tasks[0].LastRun)

	assert.Error(t, s.RunNow("missing"))
}

func TestRunNowPropagatesError(t *testing.T) {
	s := NewScheduler()
	boom := errors.New("boom")
	task, err := s.Add("cleanup", "@hourly", func() error { return boom })
	require.NoError(t, err)
	assert.ErrorIs(t, s.RunNow(task.ID), boom)
}

func TestScheduledTaskFires(t *testing.T) {
	s := NewScheduler()
	fired := make(chan struct{}, 1)
	_, err := s.Add("tick", "* * * * * *", func() error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	})
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("task did not fire")
	}
}

func TestNext(t *testing.T) {
	s := NewScheduler()
	task, err := s.Add("cleanup", "@hourly", func() error { return nil })
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	next, ok := s.Next(task.ID)
	assert.True(t, ok)
	assert.True(t, next.After(time.Now().Add(-time.Second)))

	_, ok = s.Next("missing")
	assert.False(t, ok)
}
