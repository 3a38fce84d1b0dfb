package repository

import (
	"context"
	"database/sql"
	"time"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

type SendingAccountRepository struct {
	DB *sql.DB
}

const accountColumns = `id, tenant_id, name, provider, from_email, from_name, smtp_host, smtp_port, smtp_username,
    smtp_password, use_tls, api_key, is_active, daily_limit, daily_sent_count, usage_date, consecutive_failures,
    last_error, created_at, updated_at`

func (r *SendingAccountRepository) Create(ctx context.Context, a *model.SendingAccount) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	query := `
        INSERT INTO sending_accounts (id, tenant_id, name, provider, from_email, from_name, smtp_host, smtp_port,
            smtp_username, smtp_password, use_tls, api_key, is_active, daily_limit, daily_sent_count, usage_date,
            consecutive_failures, last_error, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
    `
	_, err := r.DB.ExecContext(ctx, query,
		a.ID, a.TenantID, a.Name, a.Provider, a.FromEmail, a.FromName, a.SMTPHost, a.SMTPPort,
		a.SMTPUsername, a.SMTPPassword, a.UseTLS, a.APIKey, a.IsActive, a.DailyLimit, a.DailySentCount,
		a.UsageDate, a.ConsecutiveFailures, a.LastError, a.CreatedAt)
	return err
}

func (r *SendingAccountRepository) Update(ctx context.Context, a *model.SendingAccount) error {
	query := `
        UPDATE sending_accounts
        SET name=$1, provider=$2, from_email=$3, from_name=$4, smtp_host=$5, smtp_port=$6, smtp_username=$7,
            smtp_password=$8, use_tls=$9, api_key=$10, is_active=$11, daily_limit=$12,
            consecutive_failures=CASE WHEN $11 THEN 0 ELSE consecutive_failures END, updated_at=NOW()
        WHERE id=$13 AND tenant_id=$14
    `
	res, err := r.DB.ExecContext(ctx, query,
		a.Name, a.Provider, a.FromEmail, a.FromName, a.SMTPHost, a.SMTPPort, a.SMTPUsername,
		a.SMTPPassword, a.UseTLS, a.APIKey, a.IsActive, a.DailyLimit, a.ID, a.TenantID)
	if err != nil {
		return err
	}
	return requireAffected(res, appErrors.NewAccountNotFound(a.ID))
}

func (r *SendingAccountRepository) Delete(ctx context.Context, tenantID, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM sending_accounts WHERE id=$1 AND tenant_id=$2`, id, tenantID)
	if err != nil {
		return err
	}
	return requireAffected(res, appErrors.NewAccountNotFound(id))
}

func (r *SendingAccountRepository) GetByID(ctx context.Context, tenantID, id string) (*model.SendingAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM sending_accounts WHERE id=$1 AND tenant_id=$2`
	a, err := scanAccount(r.DB.QueryRowContext(ctx, query, id, tenantID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewAccountNotFound(id)
		}
		return nil, err
	}
	return a, nil
}

// List returns the tenant's accounts in creation order, which is the rotation tie-break order.
func (r *SendingAccountRepository) List(ctx context.Context, tenantID string) ([]*model.SendingAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM sending_accounts WHERE tenant_id=$1 ORDER BY created_at, id`
	rows, err := r.DB.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []*model.SendingAccount{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *SendingAccountRepository) Count(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM sending_accounts WHERE tenant_id=$1`, tenantID).Scan(&n)
	return n, err
}

// IncrementSent is a single conditional UPDATE so the row lock serialises concurrent senders;
// a stale usage_date counts as zero and is rolled over to day.
func (r *SendingAccountRepository) IncrementSent(ctx context.Context, id, day string) (bool, error) {
	query := `
        UPDATE sending_accounts
        SET daily_sent_count = CASE WHEN usage_date = $2 THEN daily_sent_count + 1 ELSE 1 END,
            usage_date = $2,
            updated_at = NOW()
        WHERE id = $1
          AND is_active
          AND (CASE WHEN usage_date = $2 THEN daily_sent_count ELSE 0 END) < daily_limit
        RETURNING id
    `
	var got string
	err := r.DB.QueryRowContext(ctx, query, id, day).Scan(&got)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *SendingAccountRepository) RecordFailure(ctx context.Context, id, message string, threshold int) (bool, error) {
	query := `
        UPDATE sending_accounts
        SET consecutive_failures = consecutive_failures + 1,
            last_error = $2,
            is_active = CASE WHEN $3::int > 0 AND consecutive_failures + 1 >= $3::int THEN FALSE ELSE is_active END,
            updated_at = NOW()
        WHERE id = $1
        RETURNING consecutive_failures
    `
	var failures int
	err := r.DB.QueryRowContext(ctx, query, id, message, threshold).Scan(&failures)
	if err == sql.ErrNoRows {
		return false, appErrors.NewAccountNotFound(id)
	}
	if err != nil {
		return false, err
	}
	return threshold > 0 && failures == threshold, nil
}

func (r *SendingAccountRepository) ResetFailures(ctx context.Context, id string) error {
	query := `UPDATE sending_accounts SET consecutive_failures=0, last_error='', updated_at=NOW() WHERE id=$1 AND consecutive_failures > 0`
	_, err := r.DB.ExecContext(ctx, query, id)
	return err
}

func (r *SendingAccountRepository) ResetDailyCounts(ctx context.Context, day string) (int64, error) {
	query := `
        UPDATE sending_accounts
        SET daily_sent_count = 0, usage_date = $1, updated_at = NOW()
        WHERE usage_date <> $1
    `
	res, err := r.DB.ExecContext(ctx, query, day)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanAccount(row rowScanner) (*model.SendingAccount, error) {
	var a model.SendingAccount
	var provider string
	if err := row.Scan(&a.ID, &a.TenantID, &a.Name, &provider, &a.FromEmail, &a.FromName, &a.SMTPHost,
		&a.SMTPPort, &a.SMTPUsername, &a.SMTPPassword, &a.UseTLS, &a.APIKey, &a.IsActive, &a.DailyLimit,
		&a.DailySentCount, &a.UsageDate, &a.ConsecutiveFailures, &a.LastError, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Provider = model.Provider(provider)
	return &a, nil
}

var _ SendingAccountRepositoryInterface = (*SendingAccountRepository)(nil)
