package nodeobserver_test

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cardano-forge/forgeguard/pkg/nodeobserver"
)

func listenUnix(t *testing.T, path string) func() {
	t.Helper()
	l, err := net.Listen("unix", path)
	require.NoError(t, err)
	return func() { _ = l.Close() }
}

func TestObserveMonotonicTransitions(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "node.socket")

	obs := nodeobserver.New(sockPath, "cardano-node", false, zap.NewNop())

	present, transition := obs.Observe()
	assert.False(t, present)
	assert.Equal(t, nodeobserver.TransitionNone, transition)

	closeSock := listenUnix(t, sockPath)
	present, transition = obs.Observe()
	assert.True(t, present)
	assert.Equal(t, nodeobserver.TransitionNodeReady, transition)

	present, transition = obs.Observe()
	assert.True(t, present)
	assert.Equal(t, nodeobserver.TransitionNone, transition, "no duplicate ready events while still present")

	closeSock()
	present, transition = obs.Observe()
	assert.False(t, present)
	assert.Equal(t, nodeobserver.TransitionNodeFailure, transition)
}

func TestStablyPresentRequiresDwell(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "node.socket")
	defer listenUnix(t, sockPath)()

	obs := nodeobserver.New(sockPath, "cardano-node", false, zap.NewNop())
	assert.False(t, obs.StablyPresent())

	obs.Observe()
	assert.False(t, obs.StablyPresent(), "one positive check is not enough")

	obs.Observe()
	assert.True(t, obs.StablyPresent(), "two consecutive positive checks satisfy the dwell rule")
}

func TestDisableSocketCheckBypassesGating(t *testing.T) {
	obs := nodeobserver.New("/nonexistent/socket", "cardano-node", true, zap.NewNop())
	assert.True(t, obs.IsNodePresent())
}
