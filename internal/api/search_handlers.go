package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ldang04/vibecut/internal/analysis"
	"github.com/ldang04/vibecut/internal/catalog"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100

	// Kind filtering happens after retrieval, so fetch a deeper pool.
	searchOverfetch = 50
)

func assetFilterFor(name string) (catalog.AssetFilter, bool) {
	switch name {
	case "", "raw":
		return catalog.RawOnly, true
	case "references":
		return catalog.ReferencesOnly, true
	case "all":
		return catalog.AllAssets, true
	}
	return catalog.RawOnly, false
}

func toSearchResult(segmentID int64, score float64, seg *catalog.Segment) SearchResult {
	return SearchResult{
		SegmentID:   segmentID,
		Score:       score,
		AssetID:     seg.MediaAssetID,
		SummaryText: seg.SummaryText,
		SegmentKind: seg.SegmentKind,
		Transcript:  seg.Transcript,
		StartSec:    catalog.TicksToSeconds(seg.SrcInTicks),
		EndSec:      catalog.TicksToSeconds(seg.SrcOutTicks),
	}
}

// searchHandler answers natural-language queries over a project's
// footage. The query is embedded by the Analysis Service, matched
// against stored embeddings, and the hits are hydrated from the
// catalog.
func searchHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project := requireProject(cfg, w, r)
		if project == nil {
			return
		}

		var req SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			WriteError(w, http.StatusBadRequest, "query is required", "BAD_REQUEST")
			return
		}
		filter, ok := assetFilterFor(req.Assets)
		if !ok {
			WriteError(w, http.StatusBadRequest, "assets must be raw, references, or all", "BAD_REQUEST")
			return
		}
		limit := req.Limit
		if limit <= 0 || limit > maxSearchLimit {
			limit = defaultSearchLimit
		}

		queryVec, err := cfg.Analysis.EmbedText(r.Context(), req.Query)
		if err != nil {
			var se *analysis.ServiceError
			if errors.As(err, &se) {
				cfg.Logger.Error("query embedding rejected", "status", se.StatusCode, "error", err)
			} else {
				cfg.Logger.Error("query embedding failed", "error", err)
			}
			WriteError(w, http.StatusBadGateway, "analysis service error", "ANALYSIS_ERROR")
			return
		}

		fetch := limit
		if req.SegmentKind != "" && fetch < searchOverfetch {
			fetch = searchOverfetch
		}
		matches, model, err := cfg.Semantic.SearchFusionFirst(r.Context(), project.ID, queryVec, filter, fetch)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "search failed", "INTERNAL_ERROR")
			return
		}

		results := make([]SearchResult, 0, limit)
		for _, m := range matches {
			seg, err := cfg.Repository.GetSegment(r.Context(), m.SegmentID)
			if err != nil {
				WriteError(w, http.StatusInternalServerError, "failed to load segment", "INTERNAL_ERROR")
				return
			}
			if seg == nil {
				continue
			}
			if req.SegmentKind != "" && seg.SegmentKind != req.SegmentKind {
				continue
			}
			results = append(results, toSearchResult(m.SegmentID, m.Score, seg))
			if len(results) == limit {
				break
			}
		}

		WriteJSON(w, http.StatusOK, SearchResponse{Results: results, Model: model})
	}
}

// keywordSearchHandler runs the query against the local full-text
// index. It needs no Analysis Service and works offline.
func keywordSearchHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project := requireProject(cfg, w, r)
		if project == nil {
			return
		}

		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if q == "" {
			WriteError(w, http.StatusBadRequest, "q is required", "BAD_REQUEST")
			return
		}
		if cfg.Keyword == nil {
			WriteError(w, http.StatusServiceUnavailable, "keyword index not available", "UNAVAILABLE")
			return
		}

		limit := defaultSearchLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > maxSearchLimit {
				WriteError(w, http.StatusBadRequest, "invalid limit", "BAD_REQUEST")
				return
			}
			limit = n
		}

		hits, err := cfg.Keyword.Search(project.ID, q, limit)
		if err != nil {
			// Almost always malformed query syntax from the search box.
			WriteError(w, http.StatusBadRequest, "invalid search query", "BAD_REQUEST")
			return
		}

		results := make([]KeywordSearchResult, 0, len(hits))
		for _, h := range hits {
			seg, err := cfg.Repository.GetSegment(r.Context(), h.SegmentID)
			if err != nil {
				WriteError(w, http.StatusInternalServerError, "failed to load segment", "INTERNAL_ERROR")
				return
			}
			if seg == nil {
				continue
			}
			results = append(results, KeywordSearchResult{
				SearchResult: toSearchResult(h.SegmentID, h.Score, seg),
				Fragments:    h.Fragments,
			})
		}

		WriteJSON(w, http.StatusOK, KeywordSearchResponse{Results: results})
	}
}
