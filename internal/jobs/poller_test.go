package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/brunopistone/sm-iot-end-to-end/internal/model"
)

func awaitAsync(t *testing.T, p *Poller, mock *clock.Mock, step time.Duration) (TerminalStatus, error) {
	t.Helper()

	type outcome struct {
		res TerminalStatus
		err error
	}
	done := make(chan struct{})
	out := make(chan outcome, 1)
	go func() {
		res, err := p.AwaitTerminal(context.Background(), model.KindCompilation, "neo-1")
		out <- outcome{res, err}
		close(done)
	}()
	drive(mock, step, done)
	o := <-out
	return o.res, o.err
}

func TestAwaitTerminalReturnsImmediatelyOnTerminalStatus(t *testing.T) {
	mock := clock.NewMock()
	svc := &scriptedService{statuses: []model.JobStatus{model.StatusCompleted}}
	p := NewPoller(svc, WithClock(mock), WithInterval(time.Minute), WithMaxWait(time.Hour))

	res, err := p.AwaitTerminal(context.Background(), model.KindTraining, "train-1")
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, res.Status())
	require.Equal(t, 1, res.Polls)
	require.Zero(t, res.Elapsed)
	require.False(t, res.TimedOut)
	require.True(t, res.Terminal())
	require.Equal(t, "train-1", res.Job.ID)
}

func TestAwaitTerminalFollowsStatusSequence(t *testing.T) {
	mock := clock.NewMock()
	svc := &scriptedService{statuses: []model.JobStatus{
		model.StatusStarting, model.StatusInProgress, model.StatusFailed,
	}}
	p := NewPoller(svc, WithClock(mock), WithInterval(30*time.Second), WithMaxWait(time.Hour))

	res, err := awaitAsync(t, p, mock, 30*time.Second)
	require.NoError(t, err)
	require.Equal(t, model.StatusFailed, res.Status())
	require.Equal(t, 3, res.Polls)
	require.Equal(t, 3, svc.describeCount())
	require.False(t, res.TimedOut)
}

func TestAwaitTerminalTimesOutWithLastStatus(t *testing.T) {
	mock := clock.NewMock()
	svc := &scriptedService{statuses: []model.JobStatus{model.StatusStarting, model.StatusInProgress}}
	p := NewPoller(svc, WithClock(mock), WithInterval(30*time.Second), WithMaxWait(2*time.Minute))

	res, err := awaitAsync(t, p, mock, 30*time.Second)
	require.NoError(t, err)
	require.True(t, res.TimedOut)
	require.False(t, res.Terminal())
	require.Equal(t, model.StatusInProgress, res.Status())
	require.GreaterOrEqual(t, res.Elapsed, 2*time.Minute)
	require.GreaterOrEqual(t, res.Polls, 2)
}

func TestAwaitTerminalZeroBudgetPollsOnce(t *testing.T) {
	mock := clock.NewMock()
	svc := &scriptedService{statuses: []model.JobStatus{model.StatusInProgress}}
	p := NewPoller(svc, WithClock(mock), WithMaxWait(0))

	res, err := p.AwaitTerminal(context.Background(), model.KindPackaging, "pkg-1")
	require.NoError(t, err)
	require.True(t, res.TimedOut)
	require.Equal(t, 1, res.Polls)
}

func TestAwaitTerminalUnknownStatusKeepsPolling(t *testing.T) {
	mock := clock.NewMock()
	svc := &scriptedService{statuses: []model.JobStatus{
		model.ParseJobStatus("PENDING_REVIEW"), model.StatusCompleted,
	}}
	p := NewPoller(svc, WithClock(mock), WithInterval(time.Second), WithMaxWait(time.Hour))

	res, err := awaitAsync(t, p, mock, time.Second)
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, res.Status())
	require.Equal(t, 2, res.Polls)
}

func TestAwaitTerminalQueryErrorIsFatal(t *testing.T) {
	boom := errors.New("throttled")
	svc := &scriptedService{queryErr: boom}
	p := NewPoller(svc, WithClock(clock.NewMock()))

	res, err := p.AwaitTerminal(context.Background(), model.KindProcessing, "proc-1")
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, res.Polls)
}

func TestAwaitTerminalStopsOnContextCancel(t *testing.T) {
	mock := clock.NewMock()
	svc := &scriptedService{statuses: []model.JobStatus{model.StatusInProgress}}
	p := NewPoller(svc, WithClock(mock), WithInterval(time.Minute), WithMaxWait(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.AwaitTerminal(ctx, model.KindTraining, "train-2")
	require.ErrorIs(t, err, context.Canceled)
}
