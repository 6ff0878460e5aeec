package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ldang04/vibecut/internal/catalog"
	"github.com/ldang04/vibecut/internal/timeline"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	// ErrEmptyTimeline means the project has nothing on its timeline yet.
	ErrEmptyTimeline = errors.New("timeline has no clips")
	// ErrNoClipsResolved means every clip's asset has left the catalog.
	ErrNoClipsResolved = errors.New("no clips could be resolved")
)

const defaultTitle = "vibecut_export"

// Exporter renders stored timelines to files on disk.
type Exporter struct {
	repo   catalog.Repository
	logger *slog.Logger
}

func NewExporter(repo catalog.Repository, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{repo: repo, logger: logger.With("component", "export")}
}

// Export renders the project's current timeline to an EDL file in the
// requested directory. Clips whose asset is gone from the catalog are
// skipped and reported; a timeline where none survive is an error.
func (e *Exporter) Export(ctx context.Context, projectID int64, req Request) (*Response, error) {
	project, err := e.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	if project == nil {
		return nil, ErrProjectNotFound
	}

	stored, err := e.repo.GetTimeline(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load timeline: %w", err)
	}
	var blob string
	if stored != nil {
		blob = stored.JSONBlob
	}
	tl := timeline.Parse(blob)
	if !tl.HasClips() {
		return nil, ErrEmptyTimeline
	}

	frameRate := req.FrameRate
	if frameRate <= 0 {
		frameRate = tl.Settings.FPS
	}

	resolved, unresolved, err := e.resolveClips(ctx, tl.PrimaryTrack().Clips)
	if err != nil {
		return nil, err
	}
	if len(resolved) == 0 {
		return nil, ErrNoClipsResolved
	}

	title := SanitizeName(project.Name, 120)
	if title == "" {
		title = defaultTitle
	}

	edl := GenerateEDL(resolved, title, frameRate)
	outputPath := filepath.Join(req.OutputDir, title+".edl")
	if err := os.WriteFile(outputPath, []byte(edl), 0o644); err != nil {
		return nil, fmt.Errorf("write export file: %w", err)
	}

	e.logger.Info("timeline exported", "project_id", projectID,
		"path", outputPath, "clips", len(resolved), "unresolved", len(unresolved))

	return &Response{
		Status:          "ok",
		Format:          "edl",
		OutputPath:      outputPath,
		ClipCount:       len(resolved),
		UnresolvedClips: unresolved,
	}, nil
}

func (e *Exporter) resolveClips(ctx context.Context, clips []timeline.Clip) ([]ResolvedClip, []string, error) {
	resolved := make([]ResolvedClip, 0, len(clips))
	unresolved := make([]string, 0)

	for _, clip := range clips {
		asset, err := e.repo.GetMediaAsset(ctx, clip.AssetID)
		if err != nil {
			return nil, nil, fmt.Errorf("load asset %d: %w", clip.AssetID, err)
		}
		if asset == nil {
			unresolved = append(unresolved, strconv.FormatInt(clip.AssetID, 10))
			continue
		}
		resolved = append(resolved, ResolvedClip{
			ClipName:  e.clipName(ctx, clip, asset),
			MediaPath: asset.Path,
			InTicks:   clip.InTicks,
			OutTicks:  clip.OutTicks,
			SegmentID: clip.SegmentID,
		})
	}
	return resolved, unresolved, nil
}

// clipName prefers the segment's summary, then the media filename.
func (e *Exporter) clipName(ctx context.Context, clip timeline.Clip, asset *catalog.MediaAsset) string {
	if clip.SegmentID != 0 {
		seg, err := e.repo.GetSegment(ctx, clip.SegmentID)
		if err == nil && seg != nil && seg.SummaryText != "" {
			if name := SanitizeName(seg.SummaryText, 160); name != "" {
				return name
			}
		}
	}
	return filepath.Base(asset.Path)
}
