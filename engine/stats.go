package engine

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// Stats carries rolling per-frame timing and workload counters. Times are in
// milliseconds.
type Stats struct {
	FrameTime       float32
	SceneUpdateTime float32
	MeshDrawTime    float32
	TriangleCount   int
	DrawcallCount   int
}

// BuildStatsString writes the current counters as a json object.
func (s *Stats) BuildStatsString(writer *jwriter.Writer) {
	o := writer.Object()
	defer o.End()

	o.Name("FrameTimeMs").Float64(float64(s.FrameTime))
	o.Name("SceneUpdateTimeMs").Float64(float64(s.SceneUpdateTime))
	o.Name("MeshDrawTimeMs").Float64(float64(s.MeshDrawTime))
	o.Name("TriangleCount").Int(s.TriangleCount)
	o.Name("DrawcallCount").Int(s.DrawcallCount)
}

// String renders the counters as a json document for logging.
func (s *Stats) String() string {
	writer := jwriter.NewWriter()
	s.BuildStatsString(&writer)
	return string(writer.Bytes())
}
