package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

// ContactRepository is the Postgres implementation
type ContactRepository struct {
	DB *sql.DB
}

const contactColumns = `id, tenant_id, first_name, last_name, email, company, phone, tags, created_at, updated_at`

func (r *ContactRepository) Create(ctx context.Context, c *model.Contact) error {
	c.CreatedAt = time.Now().UTC()
	c.Email = model.NormalizeEmail(c.Email)
	query := `
        INSERT INTO contacts (id, tenant_id, first_name, last_name, email, company, phone, tags, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `
	_, err := r.DB.ExecContext(ctx, query, c.ID, c.TenantID, c.FirstName, c.LastName, c.Email,
		c.Company, c.Phone, pq.Array(nonNilTags(c.Tags)), c.CreatedAt)
	if isUniqueViolation(err) {
		return appErrors.NewConflict("contact with email %s already exists", c.Email)
	}
	return err
}

// Update changes profile fields only; tenant and email are the contact's identity.
func (r *ContactRepository) Update(ctx context.Context, c *model.Contact) error {
	query := `
        UPDATE contacts
        SET first_name=$1, last_name=$2, company=$3, phone=$4, tags=$5, updated_at=NOW()
        WHERE id=$6 AND tenant_id=$7
    `
	res, err := r.DB.ExecContext(ctx, query, c.FirstName, c.LastName, c.Company, c.Phone,
		pq.Array(nonNilTags(c.Tags)), c.ID, c.TenantID)
	if err != nil {
		return err
	}
	return requireAffected(res, appErrors.NewContactNotFound(c.ID))
}

func (r *ContactRepository) Delete(ctx context.Context, tenantID, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM contacts WHERE id=$1 AND tenant_id=$2`, id, tenantID)
	if err != nil {
		return err
	}
	return requireAffected(res, appErrors.NewContactNotFound(id))
}

// GetByID fetches a contact by ID
func (r *ContactRepository) GetByID(ctx context.Context, tenantID, id string) (*model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id=$1 AND tenant_id=$2`
	c, err := scanContact(r.DB.QueryRowContext(ctx, query, id, tenantID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewContactNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

// GetByEmail returns nil, nil when no contact uses the address.
func (r *ContactRepository) GetByEmail(ctx context.Context, tenantID, email string) (*model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE tenant_id=$1 AND email=$2`
	c, err := scanContact(r.DB.QueryRowContext(ctx, query, tenantID, model.NormalizeEmail(email)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func (r *ContactRepository) List(ctx context.Context, tenantID string, f ContactFilter) ([]*model.Contact, int, error) {
	where := ` WHERE tenant_id=$1`
	args := []interface{}{tenantID}
	argPos := 2

	if s := strings.TrimSpace(f.Search); s != "" {
		where += fmt.Sprintf(" AND (first_name ILIKE $%d OR last_name ILIKE $%d OR email ILIKE $%d OR company ILIKE $%d)",
			argPos, argPos, argPos, argPos)
		args = append(args, "%"+s+"%")
		argPos++
	}
	if len(f.Tags) > 0 {
		where += fmt.Sprintf(" AND tags && $%d", argPos)
		args = append(args, pq.Array(f.Tags))
		argPos++
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + contactColumns + ` FROM contacts` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, f.Limit, f.Offset)

	contacts, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return contacts, total, nil
}

// ListByIDs silently skips ids that do not belong to the tenant.
func (r *ContactRepository) ListByIDs(ctx context.Context, tenantID string, ids []string) ([]*model.Contact, error) {
	if len(ids) == 0 {
		return []*model.Contact{}, nil
	}
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE tenant_id=$1 AND id = ANY($2) ORDER BY created_at, id`
	return r.query(ctx, query, tenantID, pq.Array(ids))
}

func (r *ContactRepository) Count(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts WHERE tenant_id=$1`, tenantID).Scan(&n)
	return n, err
}

func (r *ContactRepository) CountCreatedSince(ctx context.Context, tenantID string, since time.Time) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts WHERE tenant_id=$1 AND created_at >= $2`, tenantID, since).Scan(&n)
	return n, err
}

func (r *ContactRepository) query(ctx context.Context, query string, args ...interface{}) ([]*model.Contact, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []*model.Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func scanContact(row rowScanner) (*model.Contact, error) {
	var c model.Contact
	var tags pq.StringArray
	if err := row.Scan(&c.ID, &c.TenantID, &c.FirstName, &c.LastName, &c.Email, &c.Company, &c.Phone,
		&tags, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Tags = []string(tags)
	return &c, nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
