package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

func (r *SQLiteRepository) UpsertTimeline(ctx context.Context, projectID int64, jsonBlob string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO timeline_projects (project_id, json_blob, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			json_blob = excluded.json_blob,
			updated_at = excluded.updated_at
	`, projectID, jsonBlob, now, now)
	return err
}

func (r *SQLiteRepository) GetTimeline(ctx context.Context, projectID int64) (*Timeline, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, project_id, json_blob, created_at, updated_at
		FROM timeline_projects WHERE project_id = ?
	`, projectID)

	var t Timeline
	var createdAt, updatedAt string
	err := row.Scan(&t.ID, &t.ProjectID, &t.JSONBlob, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.CreatedAt = parseStoredTime(createdAt)
	t.UpdatedAt = parseStoredTime(updatedAt)
	return &t, nil
}

func (r *SQLiteRepository) CreateStyleProfile(ctx context.Context, sp *StyleProfile) error {
	if sp.CreatedAt.IsZero() {
		sp.CreatedAt = time.Now().UTC()
	}
	refIDs, err := json.Marshal(sp.ReferenceAssetIDs)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO style_profiles (name, project_id, reference_asset_ids_json, json_blob, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, sp.Name, nullInt64(sp.ProjectID), string(refIDs), sp.JSONBlob, sp.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return err
	}
	sp.ID, err = res.LastInsertId()
	return err
}

func (r *SQLiteRepository) GetStyleProfile(ctx context.Context, id int64) (*StyleProfile, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, project_id, reference_asset_ids_json, json_blob, created_at
		FROM style_profiles WHERE id = ?
	`, id)

	var sp StyleProfile
	var projectID sql.NullInt64
	var refIDs sql.NullString
	var createdAt string

	err := row.Scan(&sp.ID, &sp.Name, &projectID, &refIDs, &sp.JSONBlob, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sp.ProjectID = projectID.Int64
	if refIDs.Valid && refIDs.String != "" {
		_ = json.Unmarshal([]byte(refIDs.String), &sp.ReferenceAssetIDs)
	}
	sp.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &sp, nil
}

func (r *SQLiteRepository) CreateMessage(ctx context.Context, m *ConversationMessage) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO orchestrator_messages (project_id, role, content, created_at)
		VALUES (?, ?, ?, ?)
	`, m.ProjectID, m.Role, m.Content, m.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return err
	}
	m.ID, err = res.LastInsertId()
	return err
}

func (r *SQLiteRepository) ListMessages(ctx context.Context, projectID int64, limit int) ([]*ConversationMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, role, content, created_at
		FROM orchestrator_messages WHERE project_id = ?
		ORDER BY id DESC LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*ConversationMessage
	for rows.Next() {
		var m ConversationMessage
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Stored newest-first for the LIMIT, returned oldest-first for display.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *SQLiteRepository) CreateProposal(ctx context.Context, p *Proposal) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO orchestrator_proposals (project_id, proposal_json, created_at)
		VALUES (?, ?, ?)
	`, p.ProjectID, p.ProposalJSON, p.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return err
	}
	p.ID, err = res.LastInsertId()
	return err
}

func (r *SQLiteRepository) GetLatestProposal(ctx context.Context, projectID int64) (*Proposal, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, project_id, proposal_json, created_at
		FROM orchestrator_proposals WHERE project_id = ?
		ORDER BY id DESC LIMIT 1
	`, projectID)

	var p Proposal
	var createdAt string
	err := row.Scan(&p.ID, &p.ProjectID, &p.ProposalJSON, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &p, nil
}

func (r *SQLiteRepository) CreateApplyRecord(ctx context.Context, a *ApplyRecord) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO orchestrator_applies (project_id, edit_plan_json, created_at)
		VALUES (?, ?, ?)
	`, a.ProjectID, a.EditPlanJSON, a.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return err
	}
	a.ID, err = res.LastInsertId()
	return err
}

func (r *SQLiteRepository) CreateEditLog(ctx context.Context, e *EditLog) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO edit_logs (project_id, diff_json, created_at)
		VALUES (?, ?, ?)
	`, e.ProjectID, e.DiffJSON, e.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return err
	}
	e.ID, err = res.LastInsertId()
	return err
}

func (r *SQLiteRepository) CreateConfirmToken(ctx context.Context, t *ConfirmToken) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO confirm_tokens (token, project_id, action, created_at)
		VALUES (?, ?, ?, ?)
	`, t.Token, t.ProjectID, t.Action, t.CreatedAt.Format(time.RFC3339))
	return err
}

// ConsumeConfirmToken burns a token in the same conditional-update style
// as ClaimJob: a token can authorize exactly one destructive apply.
func (r *SQLiteRepository) ConsumeConfirmToken(ctx context.Context, token string, projectID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE confirm_tokens SET consumed_at = datetime('now')
		WHERE token = ? AND project_id = ? AND consumed_at IS NULL
	`, token, projectID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
