package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventdesk/backoffice/jobs"
)

func TestBuildTask(t *testing.T) {
	task, err := BuildTask(jobs.TaskQuotesExpireSweep)
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskQuotesExpireSweep, task.Type())

	_, err = BuildTask("analytics:warmup")
	assert.Error(t, err)
}

func TestWriteStats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteStats(&buf, []QueueStats{
		{Queue: jobs.QueueDefault, Pending: 2},
		{Queue: jobs.QueueNotifications, Retry: 1},
	}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "QUEUE"))
	assert.Contains(t, lines[1], "default")
	assert.Contains(t, lines[2], "notifications")
}
