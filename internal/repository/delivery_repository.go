package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/unclebandit/outreach-backend/internal/model"
)

type DeliveryRepository struct {
	DB *sql.DB
}

const deliveryColumns = `id, tenant_id, queue_item_id, campaign_id, step_id, variation_id, contact_id, sending_account_id,
    tracking_token, message_id, sent_at, delivered_at, opened_at, open_count, clicked_at, clicks, bounced_at, replied_at`

func (r *DeliveryRepository) Create(ctx context.Context, d *model.DeliveryRecord) error {
	clicks := d.Clicks
	if clicks == nil {
		clicks = []model.Click{}
	}
	clicksJSON, err := json.Marshal(clicks)
	if err != nil {
		return fmt.Errorf("encode clicks: %w", err)
	}
	query := `
        INSERT INTO delivery_records (id, tenant_id, queue_item_id, campaign_id, step_id, variation_id, contact_id,
            sending_account_id, tracking_token, message_id, sent_at, delivered_at, opened_at, open_count,
            clicked_at, clicks, bounced_at, replied_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
    `
	_, err = r.DB.ExecContext(ctx, query,
		d.ID, d.TenantID, d.QueueItemID, d.CampaignID, d.StepID, d.VariationID, d.ContactID,
		d.SendingAccountID, d.TrackingToken, d.MessageID, d.SentAt, d.DeliveredAt, d.OpenedAt, d.OpenCount,
		d.ClickedAt, clicksJSON, d.BouncedAt, d.RepliedAt)
	return err
}

// GetByToken returns nil, nil for an unknown token.
func (r *DeliveryRepository) GetByToken(ctx context.Context, token string) (*model.DeliveryRecord, error) {
	query := `SELECT ` + deliveryColumns + ` FROM delivery_records WHERE tracking_token=$1`
	d, err := scanDelivery(r.DB.QueryRowContext(ctx, query, token))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

// MarkOpened keeps the first open time and counts every hit.
func (r *DeliveryRepository) MarkOpened(ctx context.Context, token string, at time.Time) (bool, error) {
	query := `
        UPDATE delivery_records
        SET opened_at = COALESCE(opened_at, $2), open_count = open_count + 1
        WHERE tracking_token = $1
    `
	res, err := r.DB.ExecContext(ctx, query, token, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *DeliveryRepository) RecordClick(ctx context.Context, token, url string, at time.Time) (bool, error) {
	click, err := json.Marshal([]model.Click{{URL: url, At: at}})
	if err != nil {
		return false, err
	}
	query := `
        UPDATE delivery_records
        SET clicked_at = COALESCE(clicked_at, $2), clicks = clicks || $3::jsonb
        WHERE tracking_token = $1
    `
	res, err := r.DB.ExecContext(ctx, query, token, at, string(click))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *DeliveryRepository) Aggregate(ctx context.Context, campaignID string) ([]model.DeliveryStats, error) {
	query := `
        SELECT step_id, variation_id,
            COUNT(*),
            COUNT(opened_at),
            COUNT(clicked_at),
            COUNT(bounced_at),
            COUNT(replied_at),
            COALESCE(SUM(open_count), 0),
            COALESCE(SUM(jsonb_array_length(clicks)), 0)
        FROM delivery_records
        WHERE campaign_id = $1
        GROUP BY step_id, variation_id
        ORDER BY step_id, variation_id
    `
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := []model.DeliveryStats{}
	for rows.Next() {
		var s model.DeliveryStats
		if err := rows.Scan(&s.StepID, &s.VariationID, &s.Sent, &s.Opened, &s.Clicked, &s.Bounced,
			&s.Replied, &s.TotalOpens, &s.TotalClicks); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func (r *DeliveryRepository) TenantTotals(ctx context.Context, tenantID string) (model.DeliveryStats, error) {
	var s model.DeliveryStats
	err := r.DB.QueryRowContext(ctx, `
        SELECT COUNT(*), COUNT(opened_at), COUNT(clicked_at), COUNT(bounced_at), COUNT(replied_at),
            COALESCE(SUM(open_count), 0), COALESCE(SUM(jsonb_array_length(clicks)), 0)
        FROM delivery_records
        WHERE tenant_id = $1
    `, tenantID).Scan(&s.Sent, &s.Opened, &s.Clicked, &s.Bounced, &s.Replied, &s.TotalOpens, &s.TotalClicks)
	return s, err
}

func (r *DeliveryRepository) CountSentSince(ctx context.Context, tenantID string, since time.Time) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM delivery_records WHERE tenant_id=$1 AND sent_at >= $2`, tenantID, since).Scan(&n)
	return n, err
}

func scanDelivery(row rowScanner) (*model.DeliveryRecord, error) {
	var d model.DeliveryRecord
	var clicksJSON []byte
	if err := row.Scan(&d.ID, &d.TenantID, &d.QueueItemID, &d.CampaignID, &d.StepID, &d.VariationID,
		&d.ContactID, &d.SendingAccountID, &d.TrackingToken, &d.MessageID, &d.SentAt, &d.DeliveredAt,
		&d.OpenedAt, &d.OpenCount, &d.ClickedAt, &clicksJSON, &d.BouncedAt, &d.RepliedAt); err != nil {
		return nil, err
	}
	if len(clicksJSON) > 0 {
		if err := json.Unmarshal(clicksJSON, &d.Clicks); err != nil {
			return nil, fmt.Errorf("decode clicks of delivery %s: %w", d.ID, err)
		}
	}
	return &d, nil
}

var _ DeliveryRepositoryInterface = (*DeliveryRepository)(nil)
