// Package media wraps the ffmpeg/ffprobe CLI tools for probing,
// proxy generation, and thumbnail extraction.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ldang04/vibecut/internal/catalog"
)

// Info is what probing a media file yields. Duration is expressed in
// ticks so downstream code never re-derives it from float seconds.
type Info struct {
	DurationTicks int64
	FPSNum        int
	FPSDen        int
	Width         int
	Height        int
	HasAudio      bool
}

type FFmpeg interface {
	Probe(ctx context.Context, path string) (*Info, error)
	GenerateProxy(ctx context.Context, inputPath, outputPath string, width, height int) error
	ExtractThumbnails(ctx context.Context, inputPath, outputDir string) (string, error)
}

// CLIFFmpeg shells out to ffprobe and ffmpeg on PATH.
type CLIFFmpeg struct {
	logger *slog.Logger
}

func NewCLIFFmpeg(logger *slog.Logger) *CLIFFmpeg {
	return &CLIFFmpeg{logger: logger}
}

type probeOutput struct {
	Format  *probeFormat  `json:"format"`
	Streams []probeStream `json:"streams"`
}

type probeFormat struct {
	Duration string `json:"duration"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
}

func (f *CLIFFmpeg) Probe(ctx context.Context, path string) (*Info, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration:stream=codec_type,width,height,r_frame_rate,avg_frame_rate",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("ffprobe failed for %s: %s", path, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("failed to execute ffprobe (is ffmpeg installed?): %w", err)
	}
	return parseProbeOutput(out)
}

func parseProbeOutput(data []byte) (*Info, error) {
	var probe probeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	var durationSeconds float64
	if probe.Format != nil && probe.Format.Duration != "" {
		durationSeconds, _ = strconv.ParseFloat(probe.Format.Duration, 64)
	}

	info := &Info{
		DurationTicks: catalog.SecondsToTicks(durationSeconds),
		FPSNum:        30,
		FPSDen:        1,
	}

	for _, s := range probe.Streams {
		switch s.CodecType {
		case "video":
			if info.Width == 0 {
				info.Width = s.Width
				info.Height = s.Height
				fpsStr := s.RFrameRate
				if fpsStr == "" {
					fpsStr = s.AvgFrameRate
				}
				if num, den, ok := parseFrameRate(fpsStr); ok {
					info.FPSNum = num
					info.FPSDen = den
				}
			}
		case "audio":
			info.HasAudio = true
		}
	}

	return info, nil
}

// parseFrameRate splits ffprobe's "30000/1001" rational form.
func parseFrameRate(s string) (int, int, bool) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return 0, 0, false
	}
	num, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	den, err := strconv.Atoi(parts[1])
	if err != nil || den == 0 || num <= 0 {
		return 0, 0, false
	}
	return num, den, true
}

func (f *CLIFFmpeg) GenerateProxy(ctx context.Context, inputPath, outputPath string, width, height int) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create proxy directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", inputPath,
		"-vf", fmt.Sprintf("scale=%d:%d", width, height),
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "128k",
		"-y",
		outputPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg proxy generation failed: %s", tailLines(string(out), 3))
	}
	return nil
}

// ExtractThumbnails writes one frame per second of source video as
// t_0000.jpg, t_0001.jpg, ... under outputDir and returns the directory.
func (f *CLIFFmpeg) ExtractThumbnails(ctx context.Context, inputPath, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create thumbnail directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", inputPath,
		"-vf", "fps=1,scale=320:-1",
		"-start_number", "0",
		"-y",
		filepath.Join(outputDir, "t_%04d.jpg"),
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffmpeg thumbnail extraction failed: %s", tailLines(string(out), 3))
	}
	return outputDir, nil
}

// tailLines keeps ffmpeg error output readable: the useful message is
// at the end of a long banner.
func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) <= n {
		return strings.Join(lines, " | ")
	}
	return strings.Join(lines[len(lines)-n:], " | ")
}
