package keys

import (
	"regexp"
	"strings"
	"testing"
)

func TestCatalog_Deterministic(t *testing.T) {
	e := "https://api.github.com/repos/MEADecarb/st-gis/contents/data"
	if Catalog(e) != Catalog(e) {
		t.Fatalf("same endpoint produced different keys")
	}
}

func TestCatalog_NormalizesEquivalentEndpoints(t *testing.T) {
	a := Catalog("  https://API.github.com/repos/x/y/contents/data/ ")
	b := Catalog("https://api.github.com/repos/x/y/contents/data")
	if a != b {
		t.Fatalf("normalized keys differ:\n a=%s\n b=%s", a, b)
	}
}

func TestCatalog_PathCaseMatters(t *testing.T) {
	a := Catalog("https://api.github.com/repos/x/y/contents/Data")
	b := Catalog("https://api.github.com/repos/x/y/contents/data")
	if a == b {
		t.Fatalf("paths differing in case must not share a key")
	}
}

func TestCatalog_Shape(t *testing.T) {
	k := Catalog("https://api.github.com:443/repos/x/y/contents/data")
	if !strings.HasPrefix(k, "catalog:api.github.com-443:") {
		t.Fatalf("key=%s", k)
	}
	if !regexp.MustCompile(`^catalog:[A-Za-z0-9._-]*:[0-9a-f]{16}$`).MatchString(k) {
		t.Fatalf("key contains disallowed characters: %s", k)
	}
}
