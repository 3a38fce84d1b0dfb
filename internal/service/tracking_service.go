package service

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/metrics"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

var (
	hrefPattern   = regexp.MustCompile(`(?i)href\s*=\s*(["'])(https?://[^"']+)(["'])`)
	markupPattern = regexp.MustCompile(`<[a-zA-Z/!][^>]*>`)
)

// Instrument adds the open pixel and rewrites links for tracked campaigns. Only HTML
// content is touched; plain text goes out as written.
func Instrument(content, baseURL, token string, opens, clicks bool) string {
	if token == "" || !markupPattern.MatchString(content) {
		return content
	}
	base := strings.TrimRight(baseURL, "/")
	if clicks {
		content = hrefPattern.ReplaceAllStringFunc(content, func(attr string) string {
			m := hrefPattern.FindStringSubmatch(attr)
			tracked := fmt.Sprintf("%s/track/click/%s?url=%s", base, url.PathEscape(token), url.QueryEscape(m[2]))
			return "href=" + m[1] + tracked + m[3]
		})
	}
	if opens {
		pixel := fmt.Sprintf(`<img src="%s/track/pixel/%s" width="1" height="1" alt="" style="display:none" />`,
			base, url.PathEscape(token))
		if i := strings.LastIndex(strings.ToLower(content), "</body>"); i >= 0 {
			content = content[:i] + pixel + content[i:]
		} else {
			content += pixel
		}
	}
	return content
}

// TrackingService records open and click callbacks. Unknown tokens are not errors: the
// recipient still gets the pixel or the redirect.
type TrackingService struct {
	Deliveries repository.DeliveryRepositoryInterface
	Clock      Clock
	Log        zerolog.Logger
}

func NewTrackingService(deliveries repository.DeliveryRepositoryInterface, log zerolog.Logger) *TrackingService {
	return &TrackingService{
		Deliveries: deliveries,
		Clock:      SystemClock,
		Log:        log.With().Str("component", "tracking").Logger(),
	}
}

func (s *TrackingService) RecordOpen(ctx context.Context, token string) error {
	known, err := s.Deliveries.MarkOpened(ctx, token, s.Clock.Now())
	if err != nil {
		return err
	}
	metrics.IncTrackingEvent("open", known)
	if !known {
		s.Log.Debug().Str("token", token).Msg("open for unknown tracking token")
	}
	return nil
}

// ValidateRedirect accepts absolute http(s) URLs only.
func ValidateRedirect(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", appErrors.NewValidationError("url must be an absolute http or https URL")
	}
	return u.String(), nil
}

// RecordClick validates the target and returns it for the redirect. Only tokens minted for a
// delivery redirect; anything else is NotFound so the endpoint cannot bounce arbitrary URLs.
func (s *TrackingService) RecordClick(ctx context.Context, token, rawURL string) (string, error) {
	target, err := ValidateRedirect(rawURL)
	if err != nil {
		return "", err
	}
	known, err := s.Deliveries.RecordClick(ctx, token, target, s.Clock.Now())
	if err != nil {
		// the recipient still gets where they were going
		s.Log.Error().Err(err).Str("token", token).Msg("record click")
		return target, nil
	}
	metrics.IncTrackingEvent("click", known)
	if !known {
		s.Log.Warn().Str("token", token).Str("url", target).Msg("click for unknown tracking token refused")
		return "", appErrors.NewNotFound("tracking token", token)
	}
	return target, nil
}
