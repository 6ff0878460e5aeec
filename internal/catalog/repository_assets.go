package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const assetColumns = `id, project_id, path, checksum, duration_ticks, fps_num, fps_den,
	width, height, has_audio, is_reference, thumbnail_dir,
	segments_built_at, transcript_ready_at, vision_ready_at, metadata_ready_at, embeddings_ready_at`

// readyColumns whitelists the readiness fields that MarkAssetReady and
// AssetReady may touch. Column names are never taken from callers.
var readyColumns = map[string]string{
	ReadySegmentsBuilt: "segments_built_at",
	ReadyTranscript:    "transcript_ready_at",
	ReadyVision:        "vision_ready_at",
	ReadyMetadata:      "metadata_ready_at",
	ReadyEmbeddings:    "embeddings_ready_at",
}

func (r *SQLiteRepository) UpsertMediaAsset(ctx context.Context, a *MediaAsset) error {
	var existingID int64
	err := r.db.QueryRowContext(ctx,
		"SELECT id FROM media_assets WHERE project_id = ? AND path = ?",
		a.ProjectID, a.Path,
	).Scan(&existingID)

	if err == nil {
		_, err = r.db.ExecContext(ctx, `
			UPDATE media_assets SET checksum = ?, duration_ticks = ?, fps_num = ?, fps_den = ?,
				width = ?, height = ?, has_audio = ?, is_reference = ?
			WHERE id = ?
		`, nullString(a.Checksum), a.DurationTicks, a.FPSNum, a.FPSDen,
			a.Width, a.Height, boolToInt(a.HasAudio), boolToInt(a.IsReference), existingID)
		a.ID = existingID
		return err
	}
	if err != sql.ErrNoRows {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO media_assets (project_id, path, checksum, duration_ticks, fps_num, fps_den,
			width, height, has_audio, is_reference, thumbnail_dir)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ProjectID, a.Path, nullString(a.Checksum), a.DurationTicks, a.FPSNum, a.FPSDen,
		a.Width, a.Height, boolToInt(a.HasAudio), boolToInt(a.IsReference), nullString(a.ThumbnailDir))
	if err != nil {
		return err
	}
	a.ID, err = res.LastInsertId()
	return err
}

func (r *SQLiteRepository) GetMediaAsset(ctx context.Context, id int64) (*MediaAsset, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+assetColumns+" FROM media_assets WHERE id = ?", id)
	return r.scanAsset(row)
}

func (r *SQLiteRepository) scanAsset(row *sql.Row) (*MediaAsset, error) {
	var a MediaAsset
	var checksum, thumbnailDir sql.NullString
	var hasAudio, isReference int
	var segmentsBuilt, transcriptReady, visionReady, metadataReady, embeddingsReady sql.NullString

	err := row.Scan(&a.ID, &a.ProjectID, &a.Path, &checksum, &a.DurationTicks, &a.FPSNum, &a.FPSDen,
		&a.Width, &a.Height, &hasAudio, &isReference, &thumbnailDir,
		&segmentsBuilt, &transcriptReady, &visionReady, &metadataReady, &embeddingsReady)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	a.Checksum = checksum.String
	a.ThumbnailDir = thumbnailDir.String
	a.HasAudio = hasAudio == 1
	a.IsReference = isReference == 1
	a.SegmentsBuiltAt = parseTimePtr(segmentsBuilt)
	a.TranscriptReadyAt = parseTimePtr(transcriptReady)
	a.VisionReadyAt = parseTimePtr(visionReady)
	a.MetadataReadyAt = parseTimePtr(metadataReady)
	a.EmbeddingsReadyAt = parseTimePtr(embeddingsReady)
	return &a, nil
}

func (r *SQLiteRepository) ListMediaAssets(ctx context.Context, projectID int64, filter AssetFilter) ([]*MediaAsset, error) {
	query := "SELECT " + assetColumns + " FROM media_assets WHERE project_id = ?"
	switch filter {
	case RawOnly:
		query += " AND (is_reference IS NULL OR is_reference = 0)"
	case ReferencesOnly:
		query += " AND is_reference = 1"
	}
	query += " ORDER BY id ASC"

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []*MediaAsset
	for rows.Next() {
		var a MediaAsset
		var checksum, thumbnailDir sql.NullString
		var hasAudio, isReference int
		var segmentsBuilt, transcriptReady, visionReady, metadataReady, embeddingsReady sql.NullString

		if err := rows.Scan(&a.ID, &a.ProjectID, &a.Path, &checksum, &a.DurationTicks, &a.FPSNum, &a.FPSDen,
			&a.Width, &a.Height, &hasAudio, &isReference, &thumbnailDir,
			&segmentsBuilt, &transcriptReady, &visionReady, &metadataReady, &embeddingsReady); err != nil {
			return nil, err
		}
		a.Checksum = checksum.String
		a.ThumbnailDir = thumbnailDir.String
		a.HasAudio = hasAudio == 1
		a.IsReference = isReference == 1
		a.SegmentsBuiltAt = parseTimePtr(segmentsBuilt)
		a.TranscriptReadyAt = parseTimePtr(transcriptReady)
		a.VisionReadyAt = parseTimePtr(visionReady)
		a.MetadataReadyAt = parseTimePtr(metadataReady)
		a.EmbeddingsReadyAt = parseTimePtr(embeddingsReady)
		assets = append(assets, &a)
	}
	return assets, rows.Err()
}

func (r *SQLiteRepository) DeleteMediaAsset(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM media_assets WHERE id = ?", id)
	return err
}

func (r *SQLiteRepository) CountProjectAssets(ctx context.Context, projectID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM media_assets
		WHERE project_id = ? AND (is_reference IS NULL OR is_reference = 0)
	`, projectID).Scan(&count)
	return count, err
}

func (r *SQLiteRepository) ListProjectAssetIDs(ctx context.Context, projectID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id FROM media_assets WHERE project_id = ?", projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SQLiteRepository) MarkAssetReady(ctx context.Context, assetID int64, field string) error {
	col, ok := readyColumns[field]
	if !ok {
		return fmt.Errorf("unknown readiness field %q", field)
	}
	_, err := r.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE media_assets SET %s = ? WHERE id = ?", col),
		time.Now().UTC().Format(time.RFC3339), assetID)
	return err
}

// AssetReady reports whether every named readiness timestamp is set on
// the asset. A missing asset is an error, not a false.
func (r *SQLiteRepository) AssetReady(ctx context.Context, assetID int64, fields ...string) (bool, error) {
	for _, field := range fields {
		col, ok := readyColumns[field]
		if !ok {
			return false, fmt.Errorf("unknown readiness field %q", field)
		}
		var ready int
		err := r.db.QueryRowContext(ctx,
			fmt.Sprintf("SELECT %s IS NOT NULL FROM media_assets WHERE id = ?", col),
			assetID,
		).Scan(&ready)
		if err != nil {
			return false, err
		}
		if ready != 1 {
			return false, nil
		}
	}
	return true, nil
}

func (r *SQLiteRepository) SetThumbnailDir(ctx context.Context, assetID int64, dir string) error {
	_, err := r.db.ExecContext(ctx, "UPDATE media_assets SET thumbnail_dir = ? WHERE id = ?", dir, assetID)
	return err
}

func (r *SQLiteRepository) CreateProxy(ctx context.Context, p *Proxy) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO proxies (media_asset_id, path, codec, width, height)
		VALUES (?, ?, ?, ?, ?)
	`, p.MediaAssetID, p.Path, p.Codec, p.Width, p.Height)
	if err != nil {
		return err
	}
	p.ID, err = res.LastInsertId()
	return err
}

func (r *SQLiteRepository) GetProxyByAsset(ctx context.Context, assetID int64) (*Proxy, error) {
	var p Proxy
	err := r.db.QueryRowContext(ctx, `
		SELECT id, media_asset_id, path, codec, width, height
		FROM proxies WHERE media_asset_id = ? ORDER BY id DESC LIMIT 1
	`, assetID).Scan(&p.ID, &p.MediaAssetID, &p.Path, &p.Codec, &p.Width, &p.Height)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
