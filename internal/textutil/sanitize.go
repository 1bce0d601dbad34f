package textutil

import "strings"

var segmentReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	" ", "_",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
	"\x00", "",
)

// SanitizePathSegment turns value into a single safe directory name. Separators
// become dashes, shell-hostile characters are dropped, and leading dots are
// stripped so the result can never be "." or "..". Empty input yields "unknown".
func SanitizePathSegment(value string) string {
	out := strings.TrimSpace(segmentReplacer.Replace(strings.TrimSpace(value)))
	out = strings.TrimLeft(out, ".")
	if out == "" {
		return "unknown"
	}
	return out
}
