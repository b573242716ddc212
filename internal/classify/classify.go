// Package classify maps request URLs to the resource class that picks their caching strategy.
package classify

import (
	"net/http"
	"net/url"
	"strings"
)

type Class int

const (
	Dynamic Class = iota
	VersionedAsset
	StaticCode
)

func (c Class) String() string {
	switch c {
	case VersionedAsset:
		return "versioned-asset"
	case StaticCode:
		return "static-code"
	default:
		return "dynamic"
	}
}

// substrings marking model, animation, texture and audio data
var assetPatterns = []string{
	".model3.json",
	".moc3",
	".physics3.json",
	".motion3.json",
	".pose3.json",
	".userdata3.json",
	"/model/",
	"/textures/",
	"/motions/",
	".png",
	".ogg",
	".wav",
	".mp3",
}

var codeSuffixes = []string{".js", ".css"}

type Classifier struct {
	codeSuffixes []string
}

// New builds a classifier. withManifest also treats *.webmanifest as static code.
func New(withManifest bool) *Classifier {
	sfx := append([]string(nil), codeSuffixes...)
	if withManifest {
		sfx = append(sfx, ".webmanifest")
	}
	return &Classifier{codeSuffixes: sfx}
}

// Classify is case-sensitive; asset patterns win over code suffixes.
func (c *Classifier) Classify(path string) Class {
	for _, p := range assetPatterns {
		if strings.Contains(path, p) {
			return VersionedAsset
		}
	}
	for _, s := range c.codeSuffixes {
		if strings.HasSuffix(path, s) {
			return StaticCode
		}
	}
	return Dynamic
}

// Eligible reports whether a request may be served by a strategy: GET only,
// and only for the origin host. Relative URLs count as same-origin.
func Eligible(method string, u *url.URL, origin *url.URL) bool {
	if method != http.MethodGet {
		return false
	}
	if u == nil {
		return false
	}
	if u.Host == "" {
		return true
	}
	if origin == nil {
		return false
	}
	return strings.EqualFold(u.Host, origin.Host) && (u.Scheme == "" || u.Scheme == origin.Scheme)
}
