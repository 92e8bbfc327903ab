package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// GenerateETag returns a strong ETag for content.
func GenerateETag(content []byte) string {
	hash := sha256.Sum256(content)
	return `"` + hex.EncodeToString(hash[:16]) + `"`
}

// ParseIfNoneMatch splits an If-None-Match header into its entity tags.
func ParseIfNoneMatch(header string) []string {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil
	}
	if header == "*" {
		return []string{"*"}
	}

	var tags []string
	for _, part := range strings.Split(header, ",") {
		tag := strings.TrimSpace(part)
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// MatchesETag reports whether etag matches one of tags using the weak
// comparison If-None-Match requires.
func MatchesETag(etag string, tags []string) bool {
	bare := strings.TrimPrefix(etag, "W/")
	for _, tag := range tags {
		if tag == "*" || strings.TrimPrefix(tag, "W/") == bare {
			return true
		}
	}
	return false
}
