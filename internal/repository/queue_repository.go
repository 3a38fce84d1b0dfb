package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

type QueueRepository struct {
	DB *sql.DB
}

const queueColumns = `id, tenant_id, campaign_id, step_id, variation_id, contact_id, sending_account_id, status,
    scheduled_at, attempts, max_attempts, error_message, sent_at, created_at, updated_at`

// CreateBatch inserts all items in one transaction; either every item is queued or none is.
func (r *QueueRepository) CreateBatch(ctx context.Context, items []*model.QueueItem) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO queue_items (id, tenant_id, campaign_id, step_id, variation_id, contact_id, sending_account_id,
            status, scheduled_at, attempts, max_attempts, error_message, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
    `)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, it := range items {
		if it.Status == "" {
			it.Status = model.QueuePending
		}
		if it.MaxAttempts == 0 {
			it.MaxAttempts = model.DefaultMaxAttempts
		}
		it.CreatedAt, it.UpdatedAt = now, now
		if _, err := stmt.ExecContext(ctx, it.ID, it.TenantID, it.CampaignID, it.StepID, it.VariationID,
			it.ContactID, it.SendingAccountID, it.Status, it.ScheduledAt, it.Attempts, it.MaxAttempts,
			it.ErrorMessage, now); err != nil {
			if isUniqueViolation(err) {
				return appErrors.NewConflict("campaign %s already queued step %s for contact %s", it.CampaignID, it.StepID, it.ContactID)
			}
			return fmt.Errorf("insert queue item %s: %w", it.ID, err)
		}
	}
	return tx.Commit()
}

func (r *QueueRepository) Keys(ctx context.Context, campaignID string) (map[model.QueueKey]bool, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT contact_id, step_id FROM queue_items WHERE campaign_id=$1`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := map[model.QueueKey]bool{}
	for rows.Next() {
		var k model.QueueKey
		if err := rows.Scan(&k.ContactID, &k.StepID); err != nil {
			return nil, err
		}
		keys[k] = true
	}
	return keys, rows.Err()
}

// GetByID returns nil, nil when the item no longer exists (its campaign was deleted).
func (r *QueueRepository) GetByID(ctx context.Context, id string) (*model.QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM queue_items WHERE id=$1`
	it, err := scanQueueItem(r.DB.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return it, err
}

func (r *QueueRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.QueueItem, error) {
	query := `
        SELECT q.id, q.tenant_id, q.campaign_id, q.step_id, q.variation_id, q.contact_id, q.sending_account_id,
            q.status, q.scheduled_at, q.attempts, q.max_attempts, q.error_message, q.sent_at, q.created_at, q.updated_at
        FROM queue_items q
        JOIN campaigns c ON c.id = q.campaign_id
        WHERE q.status = 'pending'
          AND q.scheduled_at <= $1
          AND q.attempts < q.max_attempts
          AND c.status IN ('scheduled', 'sending')
        ORDER BY q.scheduled_at, q.created_at, q.id
        LIMIT $2
    `
	return r.query(ctx, query, now, limit)
}

func (r *QueueRepository) ListByCampaign(ctx context.Context, campaignID, status string, offset, limit int) ([]*model.QueueItem, int, error) {
	where := ` WHERE campaign_id=$1`
	args := []interface{}{campaignID}
	argPos := 2
	if status != "" {
		where += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue_items`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + queueColumns + ` FROM queue_items` + where +
		fmt.Sprintf(" ORDER BY scheduled_at, created_at, id LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	items, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *QueueRepository) CountByStatus(ctx context.Context, campaignID string) (map[model.QueueStatus]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM queue_items WHERE campaign_id=$1 GROUP BY status`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[model.QueueStatus]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[model.QueueStatus(status)] = n
	}
	return counts, rows.Err()
}

func (r *QueueRepository) MarkSent(ctx context.Context, id, accountID string, sentAt time.Time) (bool, error) {
	query := `
        UPDATE queue_items
        SET status='sent', sending_account_id=$2, sent_at=$3, error_message='', updated_at=NOW()
        WHERE id=$1 AND status='pending'
    `
	res, err := r.DB.ExecContext(ctx, query, id, accountID, sentAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *QueueRepository) MarkRetry(ctx context.Context, id string, attempts int, next time.Time, message string) error {
	query := `
        UPDATE queue_items
        SET attempts=$2, scheduled_at=$3, error_message=$4, updated_at=NOW()
        WHERE id=$1 AND status='pending'
    `
	_, err := r.DB.ExecContext(ctx, query, id, attempts, next, message)
	return err
}

func (r *QueueRepository) MarkFailed(ctx context.Context, id string, attempts int, message string) error {
	query := `
        UPDATE queue_items
        SET status='failed', attempts=$2, error_message=$3, updated_at=NOW()
        WHERE id=$1 AND status='pending'
    `
	_, err := r.DB.ExecContext(ctx, query, id, attempts, message)
	return err
}

func (r *QueueRepository) Defer(ctx context.Context, id string, next time.Time, message string) error {
	query := `
        UPDATE queue_items
        SET scheduled_at=$2, error_message=$3, updated_at=NOW()
        WHERE id=$1 AND status='pending'
    `
	_, err := r.DB.ExecContext(ctx, query, id, next, message)
	return err
}

func (r *QueueRepository) query(ctx context.Context, query string, args ...interface{}) ([]*model.QueueItem, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []*model.QueueItem{}
	for rows.Next() {
		it, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanQueueItem(row rowScanner) (*model.QueueItem, error) {
	var it model.QueueItem
	var status string
	if err := row.Scan(&it.ID, &it.TenantID, &it.CampaignID, &it.StepID, &it.VariationID, &it.ContactID,
		&it.SendingAccountID, &status, &it.ScheduledAt, &it.Attempts, &it.MaxAttempts, &it.ErrorMessage,
		&it.SentAt, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return nil, err
	}
	it.Status = model.QueueStatus(status)
	it.ScheduledAt = it.ScheduledAt.UTC()
	return &it, nil
}

var _ QueueRepositoryInterface = (*QueueRepository)(nil)
