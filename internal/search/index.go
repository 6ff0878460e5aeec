package search

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/ldang04/vibecut/internal/catalog"
)

// Index is the bleve keyword index over segment text. Documents are
// keyed by segment id and re-indexed whenever metadata lands, so the
// index always reflects the latest enrichment pass.
type Index struct {
	index bleve.Index
}

// IndexedSegment is the document shape stored in bleve. ProjectID is
// indexed untokenized so queries can scope to one project.
type IndexedSegment struct {
	ID          string   `json:"id"`
	ProjectID   string   `json:"project_id"`
	AssetID     string   `json:"asset_id"`
	SummaryText string   `json:"summary_text"`
	Transcript  string   `json:"transcript"`
	Keywords    []string `json:"keywords"`
	Tags        []string `json:"tags"`
	SegmentKind string   `json:"segment_kind"`
}

// KeywordResult is one hit from a keyword query.
type KeywordResult struct {
	SegmentID int64               `json:"segment_id"`
	Score     float64             `json:"score"`
	Fragments map[string][]string `json:"fragments,omitempty"`
}

// OpenIndex opens the index at path, creating it with the segment
// mapping on first use.
func OpenIndex(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create search index: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open search index: %w", err)
	}
	return &Index{index: idx}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	textFieldMapping := bleve.NewTextFieldMapping()

	summaryFieldMapping := bleve.NewTextFieldMapping()
	summaryFieldMapping.Analyzer = "en"

	keywordFieldMapping := bleve.NewTextFieldMapping()
	keywordFieldMapping.Analyzer = "keyword"

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("project_id", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("asset_id", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("summary_text", summaryFieldMapping)
	docMapping.AddFieldMappingsAt("transcript", textFieldMapping)
	docMapping.AddFieldMappingsAt("keywords", textFieldMapping)
	docMapping.AddFieldMappingsAt("tags", textFieldMapping)
	docMapping.AddFieldMappingsAt("segment_kind", keywordFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.AddDocumentMapping("_default", docMapping)
	return indexMapping
}

func (i *Index) Close() error {
	return i.index.Close()
}

// IndexSegment adds or replaces the segment's document.
func (i *Index) IndexSegment(seg *catalog.Segment) error {
	doc := segmentDocument(seg)
	return i.index.Index(doc.ID, doc)
}

// IndexSegments batches many segments in one commit.
func (i *Index) IndexSegments(segs []*catalog.Segment) error {
	batch := i.index.NewBatch()
	for _, seg := range segs {
		doc := segmentDocument(seg)
		if err := batch.Index(doc.ID, doc); err != nil {
			return fmt.Errorf("batch index segment %s: %w", doc.ID, err)
		}
	}
	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("commit index batch: %w", err)
	}
	return nil
}

// DeleteSegments drops the given segment ids from the index.
func (i *Index) DeleteSegments(ids []int64) error {
	batch := i.index.NewBatch()
	for _, id := range ids {
		batch.Delete(strconv.FormatInt(id, 10))
	}
	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("commit delete batch: %w", err)
	}
	return nil
}

// Search runs a query-string query scoped to one project.
func (i *Index) Search(projectID int64, queryStr string, limit int) ([]KeywordResult, error) {
	if limit <= 0 {
		limit = 20
	}

	userQuery := bleve.NewQueryStringQuery(queryStr)

	projectQuery := query.NewTermQuery(strconv.FormatInt(projectID, 10))
	projectQuery.SetField("project_id")

	search := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(userQuery, projectQuery), limit, 0, false)
	search.Highlight = bleve.NewHighlightWithStyle("html")

	results, err := i.index.Search(search)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	var out []KeywordResult
	for _, hit := range results.Hits {
		segID, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, KeywordResult{
			SegmentID: segID,
			Score:     hit.Score,
			Fragments: hit.Fragments,
		})
	}
	return out, nil
}

// Count returns the number of indexed documents.
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}

func segmentDocument(seg *catalog.Segment) *IndexedSegment {
	doc := &IndexedSegment{
		ID:          strconv.FormatInt(seg.ID, 10),
		ProjectID:   strconv.FormatInt(seg.ProjectID, 10),
		AssetID:     strconv.FormatInt(seg.MediaAssetID, 10),
		SummaryText: seg.SummaryText,
		Transcript:  seg.Transcript,
		Keywords:    seg.Keywords,
		SegmentKind: seg.SegmentKind,
	}
	if seg.Scene != nil {
		doc.Tags = seg.Scene.Tags
	}
	doc.SummaryText = strings.TrimSpace(doc.SummaryText)
	doc.Transcript = strings.TrimSpace(doc.Transcript)
	return doc
}
