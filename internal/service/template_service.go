package service

import (
	"regexp"
	"sort"
	"strings"

	"github.com/unclebandit/outreach-backend/internal/model"
)

// tokenPattern matches {{ name }}. Names may not contain braces.
var tokenPattern = regexp.MustCompile(`\{\{\s*([^{}]*?)\s*\}\}`)

// StandardVariables are always resolvable from a contact, even when the field is empty.
var StandardVariables = []string{"first_name", "last_name", "full_name", "email", "company", "phone"}

// ContactVariables returns the standard fields of a contact keyed by token name.
func ContactVariables(c *model.Contact) map[string]string {
	if c == nil {
		return map[string]string{}
	}
	return map[string]string{
		"first_name": c.FirstName,
		"last_name":  c.LastName,
		"full_name":  c.FullName(),
		"email":      c.Email,
		"company":    c.Company,
		"phone":      c.Phone,
	}
}

// Render substitutes {{name}} tokens. Contact fields resolve first and customVars override or
// extend them. Unknown tokens stay in place so callers can detect unresolved variables.
func Render(template string, contact *model.Contact, customVars map[string]string) string {
	values := ContactVariables(contact)
	for k, v := range customVars {
		values[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return tokenPattern.ReplaceAllStringFunc(template, func(token string) string {
		name := strings.ToLower(tokenPattern.FindStringSubmatch(token)[1])
		if v, ok := values[name]; ok {
			return v
		}
		return token
	})
}

// ExtractVariables returns the lower-cased, de-duplicated, sorted token names used by template.
func ExtractVariables(template string) []string {
	seen := map[string]struct{}{}
	for _, m := range tokenPattern.FindAllStringSubmatch(template, -1) {
		name := strings.ToLower(m[1])
		if name == "" {
			continue
		}
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnresolvedVariables lists the tokens of template that neither a contact nor customVars can fill.
func UnresolvedVariables(template string, customVars map[string]string) []string {
	known := map[string]bool{}
	for _, name := range StandardVariables {
		known[name] = true
	}
	for k := range customVars {
		known[strings.ToLower(strings.TrimSpace(k))] = true
	}
	var missing []string
	for _, name := range ExtractVariables(template) {
		if !known[name] {
			missing = append(missing, name)
		}
	}
	return missing
}
