// internal/model/contact.go
package model

import (
	"strings"
	"time"
)

type Contact struct {
	ID        string     `db:"id" json:"id"`
	TenantID  string     `db:"tenant_id" json:"tenant_id"`
	FirstName string     `db:"first_name" json:"first_name"`
	LastName  string     `db:"last_name" json:"last_name"`
	Email     string     `db:"email" json:"email"`
	Company   string     `db:"company" json:"company,omitempty"`
	Phone     string     `db:"phone" json:"phone,omitempty"`
	Tags      []string   `db:"tags" json:"tags"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

func (c *Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// NormalizeEmail is the identity form of an address; uniqueness per tenant is checked on it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
