package faults

import (
	"fmt"
	"strings"
)

// Kind enumerates every failure the download pipeline distinguishes.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetworkTimeout
	KindNetworkUnreachable
	KindNetworkConnRefused
	KindNetworkSlowConnection
	KindHTTPServerError
	KindHTTPClientError
	KindHTTPRedirectLoop
	KindInsufficientSpace
	KindPermissionDenied
	KindCorruptedDownload
	KindIOError
	KindInvalidBrowserType
	KindInvalidVersion
	KindInvalidPlatform
	KindDownloadURLNotFound
	KindResourceExhausted
	KindProcessError
)

var kindNames = map[Kind]string{
	KindUnknown:               "unknown",
	KindNetworkTimeout:        "network_timeout",
	KindNetworkUnreachable:    "network_unreachable",
	KindNetworkConnRefused:    "network_conn_refused",
	KindNetworkSlowConnection: "network_slow_connection",
	KindHTTPServerError:       "http_server_error",
	KindHTTPClientError:       "http_client_error",
	KindHTTPRedirectLoop:      "http_redirect_loop",
	KindInsufficientSpace:     "fs_insufficient_space",
	KindPermissionDenied:      "fs_permission_denied",
	KindCorruptedDownload:     "fs_corrupted_download",
	KindIOError:               "fs_io_error",
	KindInvalidBrowserType:    "invalid_browser_type",
	KindInvalidVersion:        "invalid_version",
	KindInvalidPlatform:       "invalid_platform",
	KindDownloadURLNotFound:   "download_url_not_found",
	KindResourceExhausted:     "system_resource_exhausted",
	KindProcessError:          "system_process_error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Origin groups kinds by where the failure came from.
func (k Kind) Origin() string {
	switch k {
	case KindNetworkTimeout, KindNetworkUnreachable, KindNetworkConnRefused, KindNetworkSlowConnection:
		return "network"
	case KindHTTPServerError, KindHTTPClientError, KindHTTPRedirectLoop:
		return "http"
	case KindInsufficientSpace, KindPermissionDenied, KindCorruptedDownload, KindIOError:
		return "filesystem"
	case KindInvalidBrowserType, KindInvalidVersion, KindInvalidPlatform, KindDownloadURLNotFound:
		return "application"
	case KindResourceExhausted, KindProcessError:
		return "system"
	default:
		return "unknown"
	}
}

// Severity is a coarse ordinal ranking independent of retryability.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// AtLeastHigh reports whether the severity counts toward task circuit breaking.
func (s Severity) AtLeastHigh() bool {
	return s >= SeverityHigh
}

// Error is a classified download failure. StatusCode is set for the HTTP
// kinds; Detail carries the message for KindIOError and KindUnknown.
type Error struct {
	Kind       Kind
	StatusCode int
	Detail     string
}

func New(kind Kind) Error { return Error{Kind: kind} }

func HTTPServerError(code int) Error { return Error{Kind: KindHTTPServerError, StatusCode: code} }

func HTTPClientError(code int) Error { return Error{Kind: KindHTTPClientError, StatusCode: code} }

func IOError(detail string) Error { return Error{Kind: KindIOError, Detail: detail} }

func Unknown(message string) Error { return Error{Kind: KindUnknown, Detail: message} }

// Error implements the error interface with the technical representation.
func (e Error) Error() string {
	return e.TechnicalDetails()
}

// Retryable reports whether the failure is worth another attempt.
func (e Error) Retryable() bool {
	switch e.Kind {
	case KindNetworkTimeout, KindNetworkUnreachable, KindNetworkConnRefused, KindNetworkSlowConnection:
		return true
	case KindHTTPServerError:
		return true
	case KindHTTPClientError:
		return e.StatusCode == 429
	case KindCorruptedDownload, KindIOError:
		return true
	case KindResourceExhausted, KindProcessError:
		return true
	case KindHTTPRedirectLoop, KindInsufficientSpace, KindPermissionDenied,
		KindInvalidBrowserType, KindInvalidVersion, KindInvalidPlatform, KindDownloadURLNotFound,
		KindUnknown:
		return false
	default:
		return false
	}
}

// Severity ranks the failure.
func (e Error) Severity() Severity {
	switch e.Kind {
	case KindNetworkSlowConnection:
		return SeverityLow
	case KindNetworkTimeout, KindNetworkUnreachable, KindNetworkConnRefused,
		KindHTTPServerError, KindCorruptedDownload:
		return SeverityMedium
	case KindInsufficientSpace, KindPermissionDenied, KindResourceExhausted, KindHTTPRedirectLoop:
		return SeverityHigh
	case KindProcessError:
		return SeverityCritical
	default:
		return SeverityMedium
	}
}

// Strategy returns the default retry strategy for the failure's typical cause.
func (e Error) Strategy() Strategy {
	switch e.Kind {
	case KindNetworkTimeout, KindNetworkUnreachable, KindNetworkConnRefused:
		return Exponential(5, 1000*msec, 30000*msec, 2.0)
	case KindNetworkSlowConnection:
		return Linear(2, 5000*msec)
	case KindHTTPServerError:
		return Exponential(3, 2000*msec, 15000*msec, 1.5)
	case KindHTTPClientError:
		if e.StatusCode == 429 {
			return Linear(3, 10000*msec)
		}
		return NoRetry()
	case KindCorruptedDownload, KindIOError:
		return Exponential(2, 1000*msec, 5000*msec, 2.0)
	case KindResourceExhausted, KindProcessError:
		return Linear(3, 3000*msec)
	default:
		return NoRetry()
	}
}

// TechnicalDetails renders the full structured representation for logs.
func (e Error) TechnicalDetails() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, "(%d)", e.StatusCode)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, ": %q", e.Detail)
	}
	return b.String()
}
