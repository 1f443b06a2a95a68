package research

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
)

var nameCharset = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeName reduces an editor name to an identifier-safe ASCII token.
// Names with no usable characters (for example fully non-Latin names) map to
// a stable token derived from a hash of the input, so the same name always
// yields the same identifier. The function is idempotent.
func SanitizeName(name string) string {
	sanitized := nameCharset.ReplaceAllString(name, "")
	if sanitized == "" {
		sum := md5.Sum([]byte(name))
		return "editor_" + hex.EncodeToString(sum[:])[:8]
	}
	return sanitized
}
