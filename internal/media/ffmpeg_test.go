package media

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ldang04/vibecut/internal/catalog"
)

func TestParseProbeOutput(t *testing.T) {
	data := []byte(`{
		"format": {"duration": "12.500000"},
		"streams": [
			{"codec_type": "video", "width": 1920, "height": 1080, "r_frame_rate": "30000/1001", "avg_frame_rate": "30000/1001"},
			{"codec_type": "audio"}
		]
	}`)

	info, err := parseProbeOutput(data)
	if err != nil {
		t.Fatalf("parseProbeOutput: %v", err)
	}
	if info.DurationTicks != catalog.SecondsToTicks(12.5) {
		t.Errorf("duration = %d ticks, want %d", info.DurationTicks, catalog.SecondsToTicks(12.5))
	}
	if info.Width != 1920 || info.Height != 1080 {
		t.Errorf("dimensions = %dx%d, want 1920x1080", info.Width, info.Height)
	}
	if info.FPSNum != 30000 || info.FPSDen != 1001 {
		t.Errorf("fps = %d/%d, want 30000/1001", info.FPSNum, info.FPSDen)
	}
	if !info.HasAudio {
		t.Error("expected HasAudio for file with an audio stream")
	}
}

func TestParseProbeOutput_NoVideoStream(t *testing.T) {
	data := []byte(`{
		"format": {"duration": "3.0"},
		"streams": [{"codec_type": "audio"}]
	}`)

	info, err := parseProbeOutput(data)
	if err != nil {
		t.Fatalf("parseProbeOutput: %v", err)
	}
	if info.Width != 0 || info.Height != 0 {
		t.Errorf("dimensions = %dx%d, want 0x0 for audio-only file", info.Width, info.Height)
	}
	if info.FPSNum != 30 || info.FPSDen != 1 {
		t.Errorf("fps = %d/%d, want default 30/1", info.FPSNum, info.FPSDen)
	}
	if !info.HasAudio {
		t.Error("expected HasAudio")
	}
}

func TestParseProbeOutput_FirstVideoStreamWins(t *testing.T) {
	data := []byte(`{
		"format": {"duration": "1.0"},
		"streams": [
			{"codec_type": "video", "width": 1280, "height": 720, "r_frame_rate": "25/1"},
			{"codec_type": "video", "width": 640, "height": 360, "r_frame_rate": "15/1"}
		]
	}`)

	info, err := parseProbeOutput(data)
	if err != nil {
		t.Fatalf("parseProbeOutput: %v", err)
	}
	if info.Width != 1280 || info.Height != 720 {
		t.Errorf("dimensions = %dx%d, want the first video stream's 1280x720", info.Width, info.Height)
	}
}

func TestParseProbeOutput_BadJSON(t *testing.T) {
	if _, err := parseProbeOutput([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed ffprobe output")
	}
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		in     string
		num    int
		den    int
		wantOK bool
	}{
		{"30/1", 30, 1, true},
		{"30000/1001", 30000, 1001, true},
		{"0/0", 0, 0, false},
		{"24/0", 0, 0, false},
		{"", 0, 0, false},
		{"30", 0, 0, false},
		{"abc/def", 0, 0, false},
	}

	for _, tt := range tests {
		num, den, ok := parseFrameRate(tt.in)
		if ok != tt.wantOK {
			t.Errorf("parseFrameRate(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			continue
		}
		if ok && (num != tt.num || den != tt.den) {
			t.Errorf("parseFrameRate(%q) = %d/%d, want %d/%d", tt.in, num, den, tt.num, tt.den)
		}
	}
}

func TestComputeChecksum(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	sum, err := ComputeChecksum(path)
	if err != nil {
		t.Fatalf("ComputeChecksum: %v", err)
	}
	// sha256("hello")
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if sum != want {
		t.Errorf("checksum = %s, want %s", sum, want)
	}

	sum2, err := ComputeChecksum(path)
	if err != nil {
		t.Fatal(err)
	}
	if sum2 != sum {
		t.Error("checksum not stable across reads")
	}
}

func TestComputeChecksum_MissingFile(t *testing.T) {
	if _, err := ComputeChecksum(filepath.Join(t.TempDir(), "nope.mp4")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestScanFolder(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.mp4", "a.MOV", "notes.txt", ".hidden.mp4", "clip.webm"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "nested", "deep.mp4"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	paths, err := ScanFolder(dir)
	if err != nil {
		t.Fatalf("ScanFolder: %v", err)
	}

	want := []string{
		filepath.Join(dir, "a.MOV"),
		filepath.Join(dir, "b.mp4"),
		filepath.Join(dir, "clip.webm"),
	}
	if len(paths) != len(want) {
		t.Fatalf("found %d videos %v, want %d", len(paths), paths, len(want))
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %s, want %s", i, paths[i], want[i])
		}
	}
}

func TestScanFolder_Missing(t *testing.T) {
	if _, err := ScanFolder(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing folder")
	}
}
