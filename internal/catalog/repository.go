package catalog

import (
	"context"
	"database/sql"
	"time"
)

// AssetFilter narrows queries to raw footage, reference material, or both.
type AssetFilter int

const (
	AllAssets AssetFilter = iota
	RawOnly
	ReferencesOnly
)

type Repository interface {
	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id int64) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)
	DeleteProject(ctx context.Context, id int64) error
	UpdateProjectStyleProfile(ctx context.Context, id, styleProfileID int64) error

	UpsertMediaAsset(ctx context.Context, a *MediaAsset) error
	GetMediaAsset(ctx context.Context, id int64) (*MediaAsset, error)
	ListMediaAssets(ctx context.Context, projectID int64, filter AssetFilter) ([]*MediaAsset, error)
	DeleteMediaAsset(ctx context.Context, id int64) error
	CountProjectAssets(ctx context.Context, projectID int64) (int, error)
	ListProjectAssetIDs(ctx context.Context, projectID int64) ([]int64, error)
	MarkAssetReady(ctx context.Context, assetID int64, field string) error
	AssetReady(ctx context.Context, assetID int64, fields ...string) (bool, error)
	SetThumbnailDir(ctx context.Context, assetID int64, dir string) error
	CreateProxy(ctx context.Context, p *Proxy) error
	GetProxyByAsset(ctx context.Context, assetID int64) (*Proxy, error)

	CreateSegment(ctx context.Context, s *Segment) error
	GetSegment(ctx context.Context, id int64) (*Segment, error)
	ListSegmentsByAsset(ctx context.Context, assetID int64) ([]*Segment, error)
	ListSegmentsByProject(ctx context.Context, projectID int64) ([]*Segment, error)
	CountSegmentsByAsset(ctx context.Context, assetID int64) (int, error)
	CountProjectSegments(ctx context.Context, projectID int64) (int, error)
	UpdateSegmentTranscript(ctx context.Context, id int64, transcript string) error
	UpdateSegmentVision(ctx context.Context, id int64, quality *QualityInfo, scene *SceneInfo) error
	UpdateSegmentMetadata(ctx context.Context, id int64, summary string, keywords []string, subject *SubjectInfo, kind string) error
	DeleteSegmentsByAsset(ctx context.Context, assetID int64) error

	UpsertEmbedding(ctx context.Context, e *Embedding) error
	HasEmbedding(ctx context.Context, segmentID int64, embType, model string) (bool, error)
	GetEmbedding(ctx context.Context, segmentID int64, embType, model string) (*Embedding, error)
	ListEmbeddings(ctx context.Context, projectID int64, embType, model string, filter AssetFilter) ([]*Embedding, error)
	CountEmbeddedSegments(ctx context.Context, projectID int64, embType, model string) (int, error)

	SetAssetTranscript(ctx context.Context, assetID int64, transcriptJSON string) error
	GetAssetTranscript(ctx context.Context, assetID int64) (string, error)
	SetAssetVision(ctx context.Context, assetID int64, visionJSON string) error
	GetAssetVision(ctx context.Context, assetID int64) (string, error)

	CreateJob(ctx context.Context, j *Job) error
	GetJob(ctx context.Context, id int64) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
	ListPendingJobs(ctx context.Context) ([]*Job, error)
	ListJobsByStatus(ctx context.Context, statuses ...string) ([]*Job, error)
	ClaimJob(ctx context.Context, id int64) (bool, error)
	UpdateJobStatus(ctx context.Context, id int64, status, errorMsg string) error
	UpdateJobProgress(ctx context.Context, id int64, progress float64) error
	CancelPendingJob(ctx context.Context, id int64) (bool, error)

	UpsertTimeline(ctx context.Context, projectID int64, jsonBlob string) error
	GetTimeline(ctx context.Context, projectID int64) (*Timeline, error)

	CreateStyleProfile(ctx context.Context, sp *StyleProfile) error
	GetStyleProfile(ctx context.Context, id int64) (*StyleProfile, error)

	CreateMessage(ctx context.Context, m *ConversationMessage) error
	ListMessages(ctx context.Context, projectID int64, limit int) ([]*ConversationMessage, error)
	CreateProposal(ctx context.Context, p *Proposal) error
	GetLatestProposal(ctx context.Context, projectID int64) (*Proposal, error)
	CreateApplyRecord(ctx context.Context, a *ApplyRecord) error
	CreateEditLog(ctx context.Context, e *EditLog) error

	CreateConfirmToken(ctx context.Context, t *ConfirmToken) error
	ConsumeConfirmToken(ctx context.Context, token string, projectID int64) (bool, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateProject(ctx context.Context, p *Project) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO projects (name, cache_dir, style_profile_id, created_at)
		VALUES (?, ?, ?, ?)
	`, p.Name, p.CacheDir, nullInt64(p.StyleProfileID), p.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return err
	}
	p.ID, err = res.LastInsertId()
	return err
}

func (r *SQLiteRepository) GetProject(ctx context.Context, id int64) (*Project, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, cache_dir, style_profile_id, created_at
		FROM projects WHERE id = ?
	`, id)
	return r.scanProject(row)
}

func (r *SQLiteRepository) scanProject(row *sql.Row) (*Project, error) {
	var p Project
	var styleProfileID sql.NullInt64
	var createdAt string

	err := row.Scan(&p.ID, &p.Name, &p.CacheDir, &styleProfileID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.StyleProfileID = styleProfileID.Int64
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &p, nil
}

func (r *SQLiteRepository) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, cache_dir, style_profile_id, created_at
		FROM projects ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		var p Project
		var styleProfileID sql.NullInt64
		var createdAt string

		if err := rows.Scan(&p.ID, &p.Name, &p.CacheDir, &styleProfileID, &createdAt); err != nil {
			return nil, err
		}
		p.StyleProfileID = styleProfileID.Int64
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

func (r *SQLiteRepository) DeleteProject(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	return err
}

func (r *SQLiteRepository) UpdateProjectStyleProfile(ctx context.Context, id, styleProfileID int64) error {
	_, err := r.db.ExecContext(ctx, "UPDATE projects SET style_profile_id = ? WHERE id = ?", styleProfileID, id)
	return err
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt64(n int64) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: n, Valid: true}
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}
