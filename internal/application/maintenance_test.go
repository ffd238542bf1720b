package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanocasa/casa/internal/application"
	"github.com/nanocasa/casa/internal/domain/model"
)

func TestLogPruner_DeletesBeforePreviousDay(t *testing.T) {
	now := time.Now().UTC()
	y, m, d := now.Date()
	yesterday := time.Date(y, m, d-1, 0, 0, 0, 0, time.UTC)

	runs := newMockJobRunStore()
	runs.logs = []model.LogEntry{
		{JobRunID: 1, Timestamp: yesterday.Add(-time.Second), Message: "old"},
		{JobRunID: 1, Timestamp: yesterday, Message: "yesterday"},
		{JobRunID: 1, Timestamp: now, Message: "today"},
	}

	require.NoError(t, application.NewLogPruner(runs).Prune(context.Background(), discardLogger()))

	assert.Equal(t, yesterday, runs.logCutoff)
	require.Len(t, runs.logs, 2)
	assert.Equal(t, "yesterday", runs.logs[0].Message)
}
