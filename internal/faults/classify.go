package faults

import (
	"regexp"
	"strconv"
	"strings"
)

var statusCodePatterns = []*regexp.Regexp{
	regexp.MustCompile(`http\s+(\d{3})\b`),
	regexp.MustCompile(`status\s*:\s*(\d{3})\b`),
	regexp.MustCompile(`error\s+(\d{3})\b`),
}

type cue struct {
	needles []string
	kind    Kind
}

var networkCues = []cue{
	{[]string{"timeout", "timed out"}, KindNetworkTimeout},
	{[]string{"network unreachable", "no route to host"}, KindNetworkUnreachable},
	{[]string{"connection refused", "econnrefused"}, KindNetworkConnRefused},
	{[]string{"slow", "bandwidth"}, KindNetworkSlowConnection},
}

var filesystemCues = []cue{
	{[]string{"no space", "disk full"}, KindInsufficientSpace},
	{[]string{"permission denied", "access denied"}, KindPermissionDenied},
	{[]string{"corrupted", "checksum"}, KindCorruptedDownload},
}

var applicationCues = []cue{
	{[]string{"invalid browser"}, KindInvalidBrowserType},
	{[]string{"invalid version", "version not found"}, KindInvalidVersion},
	{[]string{"platform not supported", "invalid platform"}, KindInvalidPlatform},
	{[]string{"url not found", "download not available"}, KindDownloadURLNotFound},
}

var resourceCues = []cue{
	{[]string{"resource exhausted", "out of memory"}, KindResourceExhausted},
	{[]string{"process"}, KindProcessError},
}

// Classify maps free-text failure output onto the taxonomy. Cues are checked
// in order (network, HTTP, filesystem, application, resource) and the first
// match wins. Classify never fails: unmatched text yields Unknown(message).
func Classify(message string) Error {
	lower := strings.ToLower(message)

	if kind, ok := matchCues(lower, networkCues); ok {
		return New(kind)
	}
	if strings.Contains(lower, "redirect loop") || strings.Contains(lower, "too many redirects") {
		return New(KindHTTPRedirectLoop)
	}
	if code, ok := ExtractStatusCode(lower); ok {
		switch {
		case code >= 500:
			return HTTPServerError(code)
		case code >= 400:
			return HTTPClientError(code)
		default:
			return Unknown(message)
		}
	}
	if kind, ok := matchCues(lower, filesystemCues); ok {
		return New(kind)
	}
	if strings.Contains(lower, "i/o error") || strings.Contains(lower, "input/output error") {
		return IOError(strings.TrimSpace(message))
	}
	if kind, ok := matchCues(lower, applicationCues); ok {
		return New(kind)
	}
	if kind, ok := matchCues(lower, resourceCues); ok {
		return New(kind)
	}
	return Unknown(message)
}

// ExtractStatusCode finds a 3-digit status code in phrases such as
// "http 404", "status: 500" or "error 503" (case-insensitive).
func ExtractStatusCode(message string) (int, bool) {
	lower := strings.ToLower(message)
	for _, re := range statusCodePatterns {
		match := re.FindStringSubmatch(lower)
		if len(match) < 2 {
			continue
		}
		code, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		return code, true
	}
	return 0, false
}

func matchCues(lower string, cues []cue) (Kind, bool) {
	for _, c := range cues {
		for _, needle := range c.needles {
			if strings.Contains(lower, needle) {
				return c.kind, true
			}
		}
	}
	return KindUnknown, false
}
