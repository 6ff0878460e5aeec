package catalog

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/ldang04/vibecut/internal/embedding"
)

// Src bounds are coalesced to the build-time window so rows predating
// the src columns still read back usable values.
const segmentColumns = `id, media_asset_id, project_id, start_ticks, end_ticks,
	COALESCE(src_in_ticks, start_ticks), COALESCE(src_out_ticks, end_ticks),
	segment_kind, summary_text, keywords_json, quality_json, subject_json, scene_json,
	capture_time, transcript, speaker`

type keywordsDoc struct {
	Keywords []string `json:"keywords"`
}

func optJSON[T any](v *T) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func fromJSON[T any](s sql.NullString) *T {
	if !s.Valid || s.String == "" {
		return nil
	}
	var v T
	if err := json.Unmarshal([]byte(s.String), &v); err != nil {
		return nil
	}
	return &v
}

func (r *SQLiteRepository) CreateSegment(ctx context.Context, s *Segment) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO segments (media_asset_id, project_id, start_ticks, end_ticks,
			src_in_ticks, src_out_ticks, segment_kind, capture_time, transcript, speaker)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.MediaAssetID, s.ProjectID, s.StartTicks, s.EndTicks,
		s.SrcInTicks, s.SrcOutTicks, nullString(s.SegmentKind),
		nullString(s.CaptureTime), nullString(s.Transcript), nullString(s.Speaker))
	if err != nil {
		return err
	}
	s.ID, err = res.LastInsertId()
	return err
}

func (r *SQLiteRepository) GetSegment(ctx context.Context, id int64) (*Segment, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+segmentColumns+" FROM segments WHERE id = ?", id)

	var s Segment
	var kind, summary, keywords, quality, subject, scene, captureTime, transcript, speaker sql.NullString

	err := row.Scan(&s.ID, &s.MediaAssetID, &s.ProjectID, &s.StartTicks, &s.EndTicks,
		&s.SrcInTicks, &s.SrcOutTicks,
		&kind, &summary, &keywords, &quality, &subject, &scene,
		&captureTime, &transcript, &speaker)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	fillSegment(&s, kind, summary, keywords, quality, subject, scene, captureTime, transcript, speaker)
	return &s, nil
}

func fillSegment(s *Segment, kind, summary, keywords, quality, subject, scene, captureTime, transcript, speaker sql.NullString) {
	s.SegmentKind = kind.String
	s.SummaryText = summary.String
	if doc := fromJSON[keywordsDoc](keywords); doc != nil {
		s.Keywords = doc.Keywords
	}
	s.Quality = fromJSON[QualityInfo](quality)
	s.Subject = fromJSON[SubjectInfo](subject)
	s.Scene = fromJSON[SceneInfo](scene)
	s.CaptureTime = captureTime.String
	s.Transcript = transcript.String
	s.Speaker = speaker.String
}

func (r *SQLiteRepository) querySegments(ctx context.Context, query string, args ...any) ([]*Segment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var segments []*Segment
	for rows.Next() {
		var s Segment
		var kind, summary, keywords, quality, subject, scene, captureTime, transcript, speaker sql.NullString

		if err := rows.Scan(&s.ID, &s.MediaAssetID, &s.ProjectID, &s.StartTicks, &s.EndTicks,
			&s.SrcInTicks, &s.SrcOutTicks,
			&kind, &summary, &keywords, &quality, &subject, &scene,
			&captureTime, &transcript, &speaker); err != nil {
			return nil, err
		}
		fillSegment(&s, kind, summary, keywords, quality, subject, scene, captureTime, transcript, speaker)
		segments = append(segments, &s)
	}
	return segments, rows.Err()
}

func (r *SQLiteRepository) ListSegmentsByAsset(ctx context.Context, assetID int64) ([]*Segment, error) {
	return r.querySegments(ctx,
		"SELECT "+segmentColumns+" FROM segments WHERE media_asset_id = ? ORDER BY start_ticks ASC", assetID)
}

func (r *SQLiteRepository) ListSegmentsByProject(ctx context.Context, projectID int64) ([]*Segment, error) {
	return r.querySegments(ctx,
		"SELECT "+segmentColumns+" FROM segments WHERE project_id = ? ORDER BY media_asset_id ASC, start_ticks ASC", projectID)
}

func (r *SQLiteRepository) CountSegmentsByAsset(ctx context.Context, assetID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM segments WHERE media_asset_id = ?", assetID).Scan(&count)
	return count, err
}

func (r *SQLiteRepository) CountProjectSegments(ctx context.Context, projectID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM segments WHERE project_id = ?", projectID).Scan(&count)
	return count, err
}

func (r *SQLiteRepository) UpdateSegmentTranscript(ctx context.Context, id int64, transcript string) error {
	_, err := r.db.ExecContext(ctx, "UPDATE segments SET transcript = ? WHERE id = ?", transcript, id)
	return err
}

func (r *SQLiteRepository) UpdateSegmentVision(ctx context.Context, id int64, quality *QualityInfo, scene *SceneInfo) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE segments SET quality_json = ?, scene_json = ? WHERE id = ?
	`, optJSON(quality), optJSON(scene), id)
	return err
}

func (r *SQLiteRepository) UpdateSegmentMetadata(ctx context.Context, id int64, summary string, keywords []string, subject *SubjectInfo, kind string) error {
	if keywords == nil {
		keywords = []string{}
	}
	doc := keywordsDoc{Keywords: keywords}
	_, err := r.db.ExecContext(ctx, `
		UPDATE segments SET summary_text = ?, keywords_json = ?, subject_json = ?, segment_kind = ? WHERE id = ?
	`, summary, optJSON(&doc), optJSON(subject), nullString(kind), id)
	return err
}

func (r *SQLiteRepository) DeleteSegmentsByAsset(ctx context.Context, assetID int64) error {
	if _, err := r.db.ExecContext(ctx,
		"DELETE FROM embeddings WHERE segment_id IN (SELECT id FROM segments WHERE media_asset_id = ?)", assetID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, "DELETE FROM segments WHERE media_asset_id = ?", assetID)
	return err
}

func (r *SQLiteRepository) UpsertEmbedding(ctx context.Context, e *Embedding) error {
	blob := embedding.Serialize(e.Vector)
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO embeddings (segment_id, embedding_type, model_name, model_version, vector_blob, semantic_text)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(segment_id, embedding_type, model_name) DO UPDATE SET
			model_version = excluded.model_version,
			vector_blob = excluded.vector_blob,
			semantic_text = excluded.semantic_text
	`, e.SegmentID, e.Type, e.ModelName, nullString(e.ModelVersion), blob, nullString(e.SemanticText))
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil && id > 0 {
		e.ID = id
	}
	return nil
}

func (r *SQLiteRepository) HasEmbedding(ctx context.Context, segmentID int64, embType, model string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM embeddings WHERE segment_id = ? AND embedding_type = ? AND model_name = ?
	`, segmentID, embType, model).Scan(&count)
	return count > 0, err
}

func (r *SQLiteRepository) GetEmbedding(ctx context.Context, segmentID int64, embType, model string) (*Embedding, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, segment_id, embedding_type, model_name, model_version, vector_blob, semantic_text
		FROM embeddings WHERE segment_id = ? AND embedding_type = ? AND model_name = ?
	`, segmentID, embType, model)

	var e Embedding
	var modelVersion, semanticText sql.NullString
	var blob []byte

	err := row.Scan(&e.ID, &e.SegmentID, &e.Type, &e.ModelName, &modelVersion, &blob, &semanticText)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	e.ModelVersion = modelVersion.String
	e.SemanticText = semanticText.String
	e.Vector = embedding.Deserialize(blob)
	return &e, nil
}

func (r *SQLiteRepository) ListEmbeddings(ctx context.Context, projectID int64, embType, model string, filter AssetFilter) ([]*Embedding, error) {
	query := `
		SELECT e.id, e.segment_id, e.embedding_type, e.model_name, e.model_version, e.vector_blob, e.semantic_text
		FROM embeddings e
		JOIN segments s ON e.segment_id = s.id
		JOIN media_assets m ON s.media_asset_id = m.id
		WHERE e.embedding_type = ? AND e.model_name = ? AND s.project_id = ?`
	switch filter {
	case RawOnly:
		query += " AND (m.is_reference IS NULL OR m.is_reference = 0)"
	case ReferencesOnly:
		query += " AND m.is_reference = 1"
	}
	query += " ORDER BY e.segment_id ASC"

	rows, err := r.db.QueryContext(ctx, query, embType, model, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var embeddings []*Embedding
	for rows.Next() {
		var e Embedding
		var modelVersion, semanticText sql.NullString
		var blob []byte

		if err := rows.Scan(&e.ID, &e.SegmentID, &e.Type, &e.ModelName, &modelVersion, &blob, &semanticText); err != nil {
			return nil, err
		}
		e.ModelVersion = modelVersion.String
		e.SemanticText = semanticText.String
		e.Vector = embedding.Deserialize(blob)
		embeddings = append(embeddings, &e)
	}
	return embeddings, rows.Err()
}

func (r *SQLiteRepository) CountEmbeddedSegments(ctx context.Context, projectID int64, embType, model string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT s.id) FROM segments s
		JOIN embeddings e ON s.id = e.segment_id
		WHERE s.project_id = ? AND e.embedding_type = ? AND e.model_name = ?
	`, projectID, embType, model).Scan(&count)
	return count, err
}

func (r *SQLiteRepository) SetAssetTranscript(ctx context.Context, assetID int64, transcriptJSON string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO asset_transcripts (asset_id, transcript_json) VALUES (?, ?)
		ON CONFLICT(asset_id) DO UPDATE SET transcript_json = excluded.transcript_json
	`, assetID, transcriptJSON)
	return err
}

func (r *SQLiteRepository) GetAssetTranscript(ctx context.Context, assetID int64) (string, error) {
	var transcriptJSON string
	err := r.db.QueryRowContext(ctx,
		"SELECT transcript_json FROM asset_transcripts WHERE asset_id = ?", assetID).Scan(&transcriptJSON)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return transcriptJSON, err
}

func (r *SQLiteRepository) SetAssetVision(ctx context.Context, assetID int64, visionJSON string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO asset_vision (asset_id, vision_json) VALUES (?, ?)
		ON CONFLICT(asset_id) DO UPDATE SET vision_json = excluded.vision_json
	`, assetID, visionJSON)
	return err
}

func (r *SQLiteRepository) GetAssetVision(ctx context.Context, assetID int64) (string, error) {
	var visionJSON string
	err := r.db.QueryRowContext(ctx,
		"SELECT vision_json FROM asset_vision WHERE asset_id = ?", assetID).Scan(&visionJSON)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return visionJSON, err
}
