package deployment

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusCreated, StatusProvisioning, true},
		{StatusCreated, StatusFailed, true},
		{StatusProvisioning, StatusSucceeded, true},
		{StatusProvisioning, StatusFailed, true},
		{StatusSucceeded, StatusValidating, true},
		{StatusValidating, StatusValidated, true},
		{StatusValidating, StatusValidationFailed, true},
		{StatusValidationFailed, StatusValidating, true},
		{StatusFailed, StatusCleaned, true},
		{StatusValidated, StatusCleaned, true},
		{StatusProvisioning, StatusValidating, false},
		{StatusFailed, StatusProvisioning, false},
		{StatusCleaned, StatusCreated, false},
		{StatusValidating, StatusCleaned, true},
		{StatusValidating, StatusProvisioning, false},
		{StatusSucceeded, StatusProvisioning, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestRecordTransition(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("settled state stamps terminal time", func(t *testing.T) {
		r := Record{ID: "d1", Status: StatusProvisioning}
		require.NoError(t, r.Fail("timeout", now))
		assert.Equal(t, StatusFailed, r.Status)
		assert.Equal(t, "timeout", r.ErrorDetail)
		require.NotNil(t, r.TerminalAt)
		assert.Equal(t, now, *r.TerminalAt)
	})

	t.Run("non settled state leaves terminal time", func(t *testing.T) {
		r := Record{ID: "d1", Status: StatusProvisioning}
		require.NoError(t, r.Transition(StatusSucceeded, now))
		assert.Nil(t, r.TerminalAt)
	})

	t.Run("illegal edge", func(t *testing.T) {
		r := Record{ID: "d1", Status: StatusCleaned}
		err := r.Transition(StatusProvisioning, now)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, StatusCleaned, r.Status)
	})
}

func TestRecordClone(t *testing.T) {
	t.Parallel()
	now := time.Now()
	r := Record{ID: "d1", LastPolledAt: &now}
	c := r.Clone()
	later := now.Add(time.Hour)
	*c.LastPolledAt = later

	assert.Equal(t, now, *r.LastPolledAt)
}

func TestStatusPredicates(t *testing.T) {
	t.Parallel()
	assert.True(t, StatusProvisioning.InFlight())
	assert.False(t, StatusSucceeded.InFlight())
	assert.True(t, StatusValidationFailed.Failing())
	assert.False(t, StatusValidated.Failing())
	assert.True(t, StatusCleaned.Settled())
	assert.False(t, StatusValidating.Settled())
	assert.False(t, Status("Bogus").IsValid())
}

func TestErrorKinds(t *testing.T) {
	t.Parallel()

	base := errors.New("boom")
	err := NewError(KindSubmission, "submit", "d1", base)

	assert.True(t, IsKind(err, KindSubmission))
	assert.False(t, IsKind(err, KindConfig))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "SubmissionError: submit d1: boom", err.Error())
	assert.Nil(t, NewError(KindSubmission, "submit", "d1", nil))

	cfgErr := ConfigError("resolve", errors.New("topologySize 2"))
	assert.ErrorIs(t, cfgErr, ErrInvalidConfig)
	assert.True(t, IsKind(cfgErr, KindConfig))
}
