package playback

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ldang04/vibecut/internal/catalog"
)

// Service streams one of a project's media assets over HTTP.
type Service interface {
	ServeAsset(w http.ResponseWriter, r *http.Request, projectID, assetID int64) error
}

// Server resolves assets through the catalog and serves their files
// with range support. When a proxy transcode exists and the request
// asks for it, the proxy file is served in place of the original.
type Server struct {
	repo   catalog.Repository
	logger *slog.Logger
}

func NewServer(repo catalog.Repository, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{repo: repo, logger: logger.With("component", "playback")}
}

// contentTypes covers the video containers the importer accepts. The
// OS mime table is consulted for anything else.
var contentTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".webm": "video/webm",
}

func contentTypeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// ServeAsset streams the asset's media file. Missing assets, assets
// outside the project, and files gone from disk all answer 404; a
// malformed Range header degrades to the full file and a range past
// the end answers 416.
func (s *Server) ServeAsset(w http.ResponseWriter, r *http.Request, projectID, assetID int64) error {
	asset, err := s.repo.GetMediaAsset(r.Context(), assetID)
	if err != nil {
		return fmt.Errorf("load asset: %w", err)
	}
	if asset == nil || asset.ProjectID != projectID {
		http.Error(w, "asset not found", http.StatusNotFound)
		return nil
	}

	path := asset.Path
	if r.URL.Query().Get("proxy") == "1" {
		proxy, err := s.repo.GetProxyByAsset(r.Context(), assetID)
		if err != nil {
			return fmt.Errorf("load proxy: %w", err)
		}
		if proxy != nil {
			path = proxy.Path
		}
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// The source file moved or was deleted after import.
			http.Error(w, "media file missing from disk", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("open media file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat media file: %w", err)
	}
	size := stat.Size()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentTypeFor(path))

	span, err := ParseRange(r.Header.Get("Range"), size)
	switch {
	case errors.Is(err, ErrUnsatisfiable):
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	case errors.Is(err, ErrMalformed):
		span = nil
	case err != nil:
		return err
	}

	if span == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		// Copy errors past this point are client disconnects, not
		// server faults.
		io.Copy(w, file)
		return nil
	}

	s.logger.Debug("serving range", "asset_id", assetID, "start", span.Start, "end", span.End)
	w.Header().Set("Content-Length", strconv.FormatInt(span.Length(), 10))
	w.Header().Set("Content-Range", span.ContentRange(size))
	w.WriteHeader(http.StatusPartialContent)

	if _, err := file.Seek(span.Start, io.SeekStart); err != nil {
		return fmt.Errorf("seek media file: %w", err)
	}
	io.CopyN(w, file, span.Length())
	return nil
}
