package repository

import (
	"context"
	"database/sql"
	"time"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

type TenantRepository struct {
	DB *sql.DB
}

func (r *TenantRepository) Create(ctx context.Context, t *model.Tenant) error {
	t.CreatedAt = time.Now().UTC()
	if t.Plan == "" {
		t.Plan = model.PlanFree
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO tenants (id, name, plan, created_at) VALUES ($1, $2, $3, $4)`,
		t.ID, t.Name, t.Plan, t.CreatedAt)
	return err
}

func (r *TenantRepository) GetByID(ctx context.Context, id string) (*model.Tenant, error) {
	var t model.Tenant
	var plan string
	err := r.DB.QueryRowContext(ctx, `SELECT id, name, plan, created_at FROM tenants WHERE id=$1`, id).
		Scan(&t.ID, &t.Name, &plan, &t.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewTenantNotFound(id)
		}
		return nil, err
	}
	t.Plan = model.PlanName(plan)
	return &t, nil
}

func (r *TenantRepository) UpdatePlan(ctx context.Context, id string, plan model.PlanName) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE tenants SET plan=$1 WHERE id=$2`, plan, id)
	if err != nil {
		return err
	}
	return requireAffected(res, appErrors.NewTenantNotFound(id))
}

var _ TenantRepositoryInterface = (*TenantRepository)(nil)
