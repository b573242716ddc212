package classify

import (
	"net/url"
	"testing"
)

func TestClassify(t *testing.T) {
	c := New(false)
	cases := []struct {
		path string
		want Class
	}{
		{"/model/Azue Lane(JP)/z23/z23.model3.json", VersionedAsset},
		{"/model/Azue Lane(JP)/z23/z23.moc3", VersionedAsset},
		{"/x/textures/texture_00.png", VersionedAsset},
		{"/x/motions/idle.motion3.json", VersionedAsset},
		{"/sounds/hello.ogg", VersionedAsset},
		{"/img/logo.png", VersionedAsset},
		{"/model/loader.js", VersionedAsset}, // asset patterns are checked first
		{"/live2d_3/js/main.js", StaticCode},
		{"/live2d_3/css/bootstrap.min.css", StaticCode},
		{"/live2d_3/js/MAIN.JS", Dynamic}, // case-sensitive
		{"/", Dynamic},
		{"/index.html", Dynamic},
		{"/manifest.webmanifest", Dynamic},
		{"/api/chars.json", Dynamic},
		{"/logo.PNG", Dynamic},
	}
	for _, tc := range cases {
		if got := c.Classify(tc.path); got != tc.want {
			t.Errorf("Classify(%q)=%s want %s", tc.path, got, tc.want)
		}
	}
}

func TestClassify_WebManifestOptIn(t *testing.T) {
	if got := New(true).Classify("/manifest.webmanifest"); got != StaticCode {
		t.Fatalf("got %s want static-code", got)
	}
}

func TestEligible(t *testing.T) {
	origin, _ := url.Parse("http://viewer.local:8080")
	mustURL := func(s string) *url.URL {
		u, err := url.Parse(s)
		if err != nil {
			t.Fatal(err)
		}
		return u
	}
	cases := []struct {
		method string
		u      string
		want   bool
	}{
		{"GET", "/index.html", true},
		{"GET", "http://viewer.local:8080/a.js", true},
		{"GET", "http://VIEWER.local:8080/a.js", true},
		{"GET", "https://viewer.local:8080/a.js", false},
		{"GET", "http://cdn.example.com/a.js", false},
		{"POST", "/index.html", false},
		{"HEAD", "/index.html", false},
	}
	for _, tc := range cases {
		if got := Eligible(tc.method, mustURL(tc.u), origin); got != tc.want {
			t.Errorf("Eligible(%s %s)=%v want %v", tc.method, tc.u, got, tc.want)
		}
	}
}
