package service

import (
	"context"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

type ContactInput struct {
	FirstName string   `json:"first_name" validate:"max=100"`
	LastName  string   `json:"last_name" validate:"max=100"`
	Email     string   `json:"email" validate:"omitempty,email,max=254"`
	Company   string   `json:"company" validate:"max=200"`
	Phone     string   `json:"phone" validate:"max=50"`
	Tags      []string `json:"tags" validate:"max=50,dive,max=50"`
}

type ContactService struct {
	Store         *repository.Store
	Subscriptions *SubscriptionService
	Log           zerolog.Logger
	NewID         func() string
}

func NewContactService(store *repository.Store, subs *SubscriptionService, log zerolog.Logger) *ContactService {
	return &ContactService{
		Store:         store,
		Subscriptions: subs,
		Log:           log.With().Str("component", "contacts").Logger(),
		NewID:         uuid.NewString,
	}
}

func (s *ContactService) Create(ctx context.Context, tenantID string, in ContactInput) (*model.Contact, error) {
	plan, err := s.Subscriptions.Plan(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	count, err := s.Store.Contacts.Count(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := checkAllowance(plan, "contacts", plan.MaxContacts, count); err != nil {
		return nil, err
	}

	c := &model.Contact{ID: s.NewID(), TenantID: tenantID}
	if err := applyContactInput(c, in); err != nil {
		return nil, err
	}
	if err := s.Store.Contacts.Create(ctx, c); err != nil {
		return nil, err
	}
	s.Log.Debug().Str("tenant", tenantID).Str("contact", c.ID).Msg("contact created")
	return c, nil
}

// Update changes profile fields. The email is the contact's identity and cannot change.
func (s *ContactService) Update(ctx context.Context, tenantID, id string, in ContactInput) (*model.Contact, error) {
	c, err := s.Store.Contacts.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if in.Email != "" && model.NormalizeEmail(in.Email) != c.Email {
		return nil, appErrors.NewValidationError("email cannot be changed; create a new contact instead")
	}
	in.Email = c.Email
	if err := applyContactInput(c, in); err != nil {
		return nil, err
	}
	if err := s.Store.Contacts.Update(ctx, c); err != nil {
		return nil, err
	}
	return s.Store.Contacts.GetByID(ctx, tenantID, id)
}

func (s *ContactService) Get(ctx context.Context, tenantID, id string) (*model.Contact, error) {
	return s.Store.Contacts.GetByID(ctx, tenantID, id)
}

// Delete keeps queue items that point at the contact; the executor fails them when they come due.
func (s *ContactService) Delete(ctx context.Context, tenantID, id string) error {
	return s.Store.Contacts.Delete(ctx, tenantID, id)
}

func (s *ContactService) List(ctx context.Context, tenantID string, page, pageSize int, search string, tags []string) ([]*model.Contact, Pagination, error) {
	page, pageSize, offset := paging(page, pageSize)
	contacts, total, err := s.Store.Contacts.List(ctx, tenantID, repository.ContactFilter{
		Search: strings.TrimSpace(search),
		Tags:   normalizeTags(tags),
		Offset: offset,
		Limit:  pageSize,
	})
	if err != nil {
		return nil, Pagination{}, err
	}
	return contacts, newPagination(page, pageSize, total), nil
}

func applyContactInput(c *model.Contact, in ContactInput) error {
	email := model.NormalizeEmail(in.Email)
	if email == "" {
		return appErrors.NewValidationError("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return appErrors.NewValidationError("email is not a valid address")
	}
	c.FirstName = strings.TrimSpace(in.FirstName)
	c.LastName = strings.TrimSpace(in.LastName)
	c.Email = email
	c.Company = strings.TrimSpace(in.Company)
	c.Phone = strings.TrimSpace(in.Phone)
	c.Tags = normalizeTags(in.Tags)
	return nil
}

// normalizeTags lower-cases, trims and de-duplicates, keeping first-seen order.
func normalizeTags(tags []string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Pagination mirrors the page metadata returned by every list endpoint.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

func paging(page, pageSize int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize, (page - 1) * pageSize
}

func newPagination(page, pageSize, total int) Pagination {
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
		TotalPages: (total + pageSize - 1) / pageSize,
	}
}
