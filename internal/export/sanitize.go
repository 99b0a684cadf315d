package export

import "strings"

var sanitizer = strings.NewReplacer(
	"[", "",
	"]", "",
	"\\", "_",
	"/", "_",
)

// Sanitize maps an object display name to a filesystem-safe file name. Bracket
// quoting from the source system is stripped; path separators become
// underscores so a qualified name cannot escape its planned directory. Total
// over all inputs: unsupported characters are replaced, never rejected.
func Sanitize(name string) string {
	return sanitizer.Replace(name)
}
