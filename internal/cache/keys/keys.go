// Package keys builds cache entry keys and Redis key names.
package keys

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const maxNameLen = 80

// URL is the entry key of a request URL: decoded path plus raw query, no
// fragment. Same-origin absolute URLs reduce to the same key as their
// relative form, and "%20" and " " spellings of a path agree.
func URL(u *url.URL) string {
	if u == nil {
		return ""
	}
	p := u.Path
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		return p + "?" + u.RawQuery
	}
	return p
}

// PathURL turns a generated path into a request URL. Generated paths are
// written unescaped ("Azue Lane(JP)"), so a parse failure or an absolute
// result falls back to the raw path. URL(PathURL(p)) is the entry key of p.
func PathURL(p string) *url.URL {
	if u, err := url.Parse(p); err == nil && !u.IsAbs() {
		return u
	}
	return &url.URL{Path: p}
}

// Namespace is the Redis hash holding a namespace's entries. The readable part
// is sanitized and truncated; the hash suffix keeps distinct names distinct.
func Namespace(prefix, name string) string {
	safe := sanitize(strings.TrimSpace(name))
	if len(safe) > maxNameLen {
		safe = safe[:maxNameLen]
	}
	return fmt.Sprintf("%s:ns:%s:h=%016x", prefix, safe, xxhash.Sum64String(name))
}

// Index is the Redis set listing every namespace name.
func Index(prefix string) string {
	return prefix + ":namespaces"
}

func sanitize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case unicode.IsSpace(r):
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '.':
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
