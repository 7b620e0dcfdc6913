package viewer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eng-cc/agent-world-sub009/internal/viewer"
)

// A fresh server starts in play mode, as reported by the shared Control
// state returned by Server.Control().
func TestServerControlDefaultsToPlay(t *testing.T) {
	s := viewer.NewServer("world-1")
	mode, _, _ := s.Control().Snapshot()
	require.Equal(t, viewer.ControlPlay, mode)
}
