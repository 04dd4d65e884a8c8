package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateGraphTool(t *testing.T) {
	runner, store := setupRunner(t, fullFeed())
	handler := NewVizHandlers(runner, store)
	ctx := context.Background()

	_, err := runner.RunAll(ctx, "test")
	require.NoError(t, err)

	_, out, err := handler.GenerateGraph(ctx, nil, GenerateGraphInput{Account: "500"})
	require.NoError(t, err)
	assert.Equal(t, "Acme", out.Account)
	assert.Contains(t, out.DOTSource, "digraph")
	assert.Contains(t, out.DOTSource, "Jane Doe")
	assert.Greater(t, out.EdgeCount, 0)

	_, all, err := handler.GenerateGraph(ctx, nil, GenerateGraphInput{})
	require.NoError(t, err)
	assert.Contains(t, all.DOTSource, "Gazette")
	assert.Empty(t, all.Account)

	_, _, err = handler.GenerateGraph(ctx, nil, GenerateGraphInput{Account: "nope"})
	assert.Error(t, err)
}

func TestDashboardTool(t *testing.T) {
	runner, store := setupRunner(t, fullFeed())
	handler := NewVizHandlers(runner, store)
	ctx := context.Background()

	_, err := runner.RunAll(ctx, "test")
	require.NoError(t, err)

	_, out, err := handler.Dashboard(ctx, nil, DashboardInput{})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "CRMSYNC DASHBOARD")
	assert.Contains(t, out.Text, "Qualification")
}
