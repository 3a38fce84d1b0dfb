package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/textproto"
	"strings"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

// Classify maps a raw transport failure to a TransportError category.
func Classify(err error, account *model.SendingAccount) *appErrors.TransportError {
	if err == nil {
		return nil
	}
	if te, ok := appErrors.AsTransportError(err); ok {
		return te
	}
	gmail := account != nil && account.IsGmail()
	return appErrors.NewTransportError(category(err), err, gmail)
}

func category(err error) appErrors.TransportCategory {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		switch protoErr.Code {
		case 530, 534, 535:
			return appErrors.TransportAuthFailure
		}
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == 401 || statusErr.StatusCode == 403:
			return appErrors.TransportAuthFailure
		case statusErr.StatusCode >= 500:
			return appErrors.TransportConnectionFailure
		}
		return appErrors.TransportUnknownFailure
	}

	var (
		recordErr  tls.RecordHeaderError
		alertErr   tls.AlertError
		verifyErr  *tls.CertificateVerificationError
		unknownCA  x509.UnknownAuthorityError
		hostErr    x509.HostnameError
		invalidErr x509.CertificateInvalidError
	)
	if errors.As(err, &recordErr) || errors.As(err, &alertErr) || errors.As(err, &verifyErr) ||
		errors.As(err, &unknownCA) || errors.As(err, &hostErr) || errors.As(err, &invalidErr) {
		return appErrors.TransportTLSFailure
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "username and password not accepted", "authentication failed", "auth failed",
		"invalid credentials", "application-specific password"):
		return appErrors.TransportAuthFailure
	case containsAny(msg, "tls", "ssl", "certificate", "x509", "unencrypted connection"):
		return appErrors.TransportTLSFailure
	}

	var netErr net.Error
	var dnsErr *net.DNSError
	var opErr *net.OpError
	if errors.As(err, &dnsErr) || errors.As(err, &opErr) || errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) {
		return appErrors.TransportConnectionFailure
	}
	if containsAny(msg, "connection refused", "no such host", "timeout", "timed out", "connection reset",
		"network is unreachable", "eof") {
		return appErrors.TransportConnectionFailure
	}
	return appErrors.TransportUnknownFailure
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
