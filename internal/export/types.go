package export

// Request describes one timeline export. The clips come from the
// project's stored timeline, not from the request body.
type Request struct {
	Format    string  `json:"format"`
	FrameRate float64 `json:"frame_rate,omitempty"`
	OutputDir string  `json:"output_dir"`
}

// ResolvedClip is one timeline clip whose media asset is still present
// in the catalog. Tick bounds address the source file.
type ResolvedClip struct {
	ClipName  string
	MediaPath string
	InTicks   int64
	OutTicks  int64
	SegmentID int64
}

type Response struct {
	Status          string   `json:"status"`
	Format          string   `json:"format"`
	OutputPath      string   `json:"output_path"`
	ClipCount       int      `json:"clip_count"`
	UnresolvedClips []string `json:"unresolved_clips"`
}
