package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, tenant_id, name, status, contact_ids, custom_variables, daily_limit,
    delay_min_seconds, delay_max_seconds, track_opens, track_clicks, steps, started_at, created_at, updated_at`

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	c.CreatedAt = time.Now().UTC()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	vars, steps, err := encodeCampaignDocs(c)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO campaigns (id, tenant_id, name, status, contact_ids, custom_variables, daily_limit,
            delay_min_seconds, delay_max_seconds, track_opens, track_clicks, steps, started_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
    `
	_, err = r.DB.ExecContext(ctx, query,
		c.ID, c.TenantID, c.Name, c.Status, pq.Array(c.ContactIDs), vars, c.DailyLimit,
		c.DelayMinSeconds, c.DelayMaxSeconds, c.TrackOpens, c.TrackClicks, steps, c.StartedAt, c.CreatedAt)
	return err
}

func (r *CampaignRepository) Update(ctx context.Context, c *model.Campaign) error {
	vars, steps, err := encodeCampaignDocs(c)
	if err != nil {
		return err
	}
	query := `
        UPDATE campaigns
        SET name=$1, status=$2, contact_ids=$3, custom_variables=$4, daily_limit=$5, delay_min_seconds=$6,
            delay_max_seconds=$7, track_opens=$8, track_clicks=$9, steps=$10, started_at=$11, updated_at=NOW()
        WHERE id=$12 AND tenant_id=$13
    `
	res, err := r.DB.ExecContext(ctx, query,
		c.Name, c.Status, pq.Array(c.ContactIDs), vars, c.DailyLimit, c.DelayMinSeconds,
		c.DelayMaxSeconds, c.TrackOpens, c.TrackClicks, steps, c.StartedAt, c.ID, c.TenantID)
	if err != nil {
		return err
	}
	return requireAffected(res, appErrors.NewCampaignNotFound(c.ID))
}

func (r *CampaignRepository) UpdateStatus(ctx context.Context, campaignID string, status model.CampaignStatus) error {
	query := `UPDATE campaigns SET status=$1, updated_at=$2 WHERE id=$3`
	_, err := r.DB.ExecContext(ctx, query, status, time.Now().UTC(), campaignID)
	return err
}

func (r *CampaignRepository) GetByID(ctx context.Context, tenantID, id string) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1 AND tenant_id=$2`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id, tenantID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) List(ctx context.Context, tenantID string, offset, limit int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	where := ` WHERE tenant_id=$1`
	args := []interface{}{tenantID}
	argPos := 2

	if status != "" {
		where += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, total, rows.Err()
}

// Delete relies on ON DELETE CASCADE for queue_items and delivery_records.
func (r *CampaignRepository) Delete(ctx context.Context, tenantID, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM campaigns WHERE id=$1 AND tenant_id=$2`, id, tenantID)
	if err != nil {
		return err
	}
	return requireAffected(res, appErrors.NewCampaignNotFound(id))
}

func (r *CampaignRepository) Count(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns WHERE tenant_id=$1`, tenantID).Scan(&n)
	return n, err
}

func (r *CampaignRepository) CountByStatus(ctx context.Context, tenantID string) (map[model.CampaignStatus]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM campaigns WHERE tenant_id=$1 GROUP BY status`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[model.CampaignStatus]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[model.CampaignStatus(status)] = count
	}
	return stats, rows.Err()
}

func encodeCampaignDocs(c *model.Campaign) ([]byte, []byte, error) {
	vars := c.CustomVariables
	if vars == nil {
		vars = map[string]string{}
	}
	varsJSON, err := json.Marshal(vars)
	if err != nil {
		return nil, nil, fmt.Errorf("encode custom variables: %w", err)
	}
	steps := c.Steps
	if steps == nil {
		steps = []model.Step{}
	}
	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return nil, nil, fmt.Errorf("encode steps: %w", err)
	}
	return varsJSON, stepsJSON, nil
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var c model.Campaign
	var status string
	var contactIDs pq.StringArray
	var varsJSON, stepsJSON []byte
	if err := row.Scan(&c.ID, &c.TenantID, &c.Name, &status, &contactIDs, &varsJSON, &c.DailyLimit,
		&c.DelayMinSeconds, &c.DelayMaxSeconds, &c.TrackOpens, &c.TrackClicks, &stepsJSON,
		&c.StartedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Status = model.CampaignStatus(status)
	c.ContactIDs = []string(contactIDs)
	if len(varsJSON) > 0 {
		if err := json.Unmarshal(varsJSON, &c.CustomVariables); err != nil {
			return nil, fmt.Errorf("decode custom variables of campaign %s: %w", c.ID, err)
		}
	}
	if len(stepsJSON) > 0 {
		if err := json.Unmarshal(stepsJSON, &c.Steps); err != nil {
			return nil, fmt.Errorf("decode steps of campaign %s: %w", c.ID, err)
		}
	}
	return &c, nil
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
