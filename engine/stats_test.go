package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatsStringIsValidJson(t *testing.T) {
	stats := Stats{
		FrameTime:       16.5,
		SceneUpdateTime: 1.25,
		MeshDrawTime:    4.5,
		TriangleCount:   1200,
		DrawcallCount:   4,
	}

	var decoded map[string]float64
	err := json.Unmarshal([]byte(stats.String()), &decoded)
	require.NoError(t, err)

	require.InDelta(t, 16.5, decoded["FrameTimeMs"], 0.0001)
	require.InDelta(t, 4.5, decoded["MeshDrawTimeMs"], 0.0001)
	require.EqualValues(t, 1200, decoded["TriangleCount"])
	require.EqualValues(t, 4, decoded["DrawcallCount"])
}
