package appErrors

import (
	"errors"
	"fmt"
)

type TransportCategory string

const (
	TransportAuthFailure       TransportCategory = "auth"
	TransportConnectionFailure TransportCategory = "connection"
	TransportTLSFailure        TransportCategory = "tls"
	TransportUnknownFailure    TransportCategory = "unknown"
)

const gmailAppPasswordGuidance = "Gmail rejected the credentials. Gmail requires an App Password for SMTP: " +
	"enable 2-Step Verification on the Google account, create an App Password at " +
	"https://myaccount.google.com/apppasswords and use it instead of the account password."

// TransportError is a classified failure from the mail transport. Every category consumes
// an attempt and goes through the retry policy.
type TransportError struct {
	Category TransportCategory
	Raw      string
	Gmail    bool
	cause    error
}

func (e *TransportError) Error() string {
	switch e.Category {
	case TransportAuthFailure:
		if e.Gmail {
			return fmt.Sprintf("authentication failed: %s. %s", e.Raw, gmailAppPasswordGuidance)
		}
		return fmt.Sprintf("authentication failed: %s. Check the username and password of the sending account", e.Raw)
	case TransportConnectionFailure:
		return fmt.Sprintf("could not connect to mail server: %s", e.Raw)
	case TransportTLSFailure:
		return fmt.Sprintf("SSL/TLS negotiation failed: %s. Check the port and TLS setting of the sending account", e.Raw)
	default:
		return fmt.Sprintf("send failed: %s", e.Raw)
	}
}

func (e *TransportError) Unwrap() error { return e.cause }

// ErrorType is the stable identifier reported by the account connection test.
func (e *TransportError) ErrorType() string {
	switch e.Category {
	case TransportAuthFailure:
		if e.Gmail {
			return "gmail_app_password_required"
		}
		return "authentication_failed"
	case TransportConnectionFailure:
		return "connection_failed"
	case TransportTLSFailure:
		return "ssl_tls_error"
	default:
		return "unknown_error"
	}
}

func NewTransportError(category TransportCategory, cause error, gmail bool) *TransportError {
	raw := "unknown error"
	if cause != nil {
		raw = cause.Error()
	}
	return &TransportError{Category: category, Raw: raw, Gmail: gmail, cause: cause}
}

func AsTransportError(err error) (*TransportError, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
