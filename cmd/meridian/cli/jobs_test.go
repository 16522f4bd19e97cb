package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTriggerRejectsUnknownJob(t *testing.T) {
	cli, err := NewJobsCLI("127.0.0.1:6379")
	require.NoError(t, err)
	defer func() { _ = cli.Close() }()

	_, err = cli.Trigger(context.Background(), "privileges:expiry")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported job")

	_, err = cli.Trigger(context.Background(), "nonsense")
	require.Error(t, err)
}

func TestTriggerRequiresClient(t *testing.T) {
	var cli *JobsCLI
	_, err := cli.Trigger(context.Background(), "privileges:sweep")
	require.Error(t, err)

	empty := &JobsCLI{}
	_, err = empty.Trigger(context.Background(), "privileges:sweep")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not configured")
}
