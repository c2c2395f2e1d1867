package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/brunopistone/sm-iot-end-to-end/internal/model"
)

func TestSubmitNamesJobFromClock(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.UnixMilli(1700000000123))
	svc := &scriptedService{}
	c := NewClient(svc, mock, zerolog.Nop())

	id, err := c.Submit(context.Background(), model.KindTraining, Spec{NamePrefix: "train"})
	require.NoError(t, err)
	require.Equal(t, "train-1700000000123", id)
	require.Equal(t, []string{id}, svc.created)
}

func TestSubmitDefaultsPrefixToKind(t *testing.T) {
	mock := clock.NewMock()
	c := NewClient(&scriptedService{}, mock, zerolog.Nop())

	id, err := c.Submit(context.Background(), model.KindProcessing, Spec{})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(id, "processing-"))
}

func TestSubmitRejectionIsSubmissionError(t *testing.T) {
	boom := errors.New("ResourceLimitExceeded")
	svc := &scriptedService{createErr: boom}
	c := NewClient(svc, clock.NewMock(), zerolog.Nop())

	_, err := c.Submit(context.Background(), model.KindTraining, Spec{NamePrefix: "train"})
	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	require.Equal(t, model.KindTraining, subErr.Kind)
	require.NotEmpty(t, subErr.JobID)
	require.ErrorIs(t, err, boom)
}

func TestSubmitCompilationNeedsSettings(t *testing.T) {
	svc := &scriptedService{}
	c := NewClient(svc, clock.NewMock(), zerolog.Nop())

	_, err := c.Submit(context.Background(), model.KindCompilation, Spec{})
	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	require.Empty(t, svc.created)
}

func TestJobNameFitsProviderLimit(t *testing.T) {
	name := JobName(strings.Repeat("very_long.prefix", 10), time.UnixMilli(1700000000123))
	require.LessOrEqual(t, len(name), MaxNameLength)
	require.True(t, strings.HasSuffix(name, "-1700000000123"))
	require.NotContains(t, name, "_")
	require.NotContains(t, name, ".")
}
