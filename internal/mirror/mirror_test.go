package mirror

import (
	"math/rand"
	"strings"
	"testing"
)

var testAllowHosts = []string{"github.com", "raw.githubusercontent.com"}

func newTestRegistry(t *testing.T, entries []Entry) *Registry {
	t.Helper()
	r, err := New(entries, testAllowHosts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.rng = rand.New(rand.NewSource(42))
	return r
}

func TestNewRejectsInvalidEntries(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
	}{
		{"unknown mode", Entry{Mode: "rewrite", BaseURL: "https://mirror.example.com/"}},
		{"relative base url", Entry{Mode: ModePrefix, BaseURL: "mirror.example.com/"}},
		{"empty base url", Entry{Mode: ModeReplace, BaseURL: ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New([]Entry{tt.entry}, testAllowHosts); err == nil {
				t.Fatalf("expected error for entry %+v", tt.entry)
			}
		})
	}
}

func TestRewriteUnlistedHostGoesDirect(t *testing.T) {
	r := newTestRegistry(t, []Entry{
		{Mode: ModePrefix, BaseURL: "https://mirror.example.com/"},
	})

	urls := []string{
		"https://example.com/some/file.tar.gz",
		"https://gitlab.com/group/project/-/archive/main.zip",
		"not a url at all",
	}

	for _, u := range urls {
		res := r.Rewrite(u, NoIndex)
		if res.EffectiveURL != u {
			t.Errorf("url %q: expected unchanged, got %q", u, res.EffectiveURL)
		}
		if res.Index != NoIndex {
			t.Errorf("url %q: expected NoIndex, got %d", u, res.Index)
		}
		if res.Mirrored {
			t.Errorf("url %q: expected direct", u)
		}
		if res.Description != "direct" {
			t.Errorf("url %q: expected description 'direct', got %q", u, res.Description)
		}
	}
}

func TestRewriteEmptyRegistry(t *testing.T) {
	r := newTestRegistry(t, nil)

	res := r.Rewrite("https://github.com/owner/repo/archive/main.tar.gz", NoIndex)
	if res.Mirrored {
		t.Fatal("expected direct result from empty registry")
	}
	if res.EffectiveURL != "https://github.com/owner/repo/archive/main.tar.gz" {
		t.Errorf("expected unchanged url, got %q", res.EffectiveURL)
	}
	if !strings.Contains(res.Description, "no mirrors configured") {
		t.Errorf("expected description to mention missing mirrors, got %q", res.Description)
	}
}

func TestRewritePrefixMode(t *testing.T) {
	original := "https://github.com/owner/repo/releases/download/v1.0/asset.zip"
	base := "https://mirror.example.com/"
	r := newTestRegistry(t, []Entry{{Mode: ModePrefix, BaseURL: base}})

	res := r.Rewrite(original, NoIndex)
	if !res.Mirrored {
		t.Fatal("expected mirrored result")
	}
	if res.Index != 0 {
		t.Errorf("expected index 0, got %d", res.Index)
	}
	// Prefix mode appends the full original URL, scheme included.
	if want := base + original; res.EffectiveURL != want {
		t.Errorf("expected %q, got %q", want, res.EffectiveURL)
	}
}

func TestRewriteReplaceMode(t *testing.T) {
	base := "https://mirror.example.com/github.com/"
	r := newTestRegistry(t, []Entry{{Mode: ModeReplace, BaseURL: base}})

	tests := []struct {
		original string
		tail     string
	}{
		{"https://github.com/owner/repo/archive/main.tar.gz", "owner/repo/archive/main.tar.gz"},
		{"https://github.com/owner/repo/file?token=abc&x=1", "owner/repo/file?token=abc&x=1"},
		{"https://github.com", ""},
	}

	for _, tt := range tests {
		res := r.Rewrite(tt.original, NoIndex)
		if !res.Mirrored {
			t.Fatalf("url %q: expected mirrored result", tt.original)
		}
		if want := base + tt.tail; res.EffectiveURL != want {
			t.Errorf("url %q: expected %q, got %q", tt.original, want, res.EffectiveURL)
		}
	}
}

func TestRewriteExcludesPreviousIndex(t *testing.T) {
	r := newTestRegistry(t, []Entry{
		{Mode: ModePrefix, BaseURL: "https://a.example.com/"},
		{Mode: ModePrefix, BaseURL: "https://b.example.com/"},
		{Mode: ModePrefix, BaseURL: "https://c.example.com/"},
	})

	url := "https://github.com/owner/repo/archive/main.tar.gz"
	prev := NoIndex
	for i := 0; i < 200; i++ {
		res := r.Rewrite(url, prev)
		if !res.Mirrored {
			t.Fatal("expected mirrored result")
		}
		if prev != NoIndex && res.Index == prev {
			t.Fatalf("iteration %d: selected excluded index %d", i, res.Index)
		}
		prev = res.Index
	}
}

func TestRewriteSingleEntryIgnoresExclusion(t *testing.T) {
	r := newTestRegistry(t, []Entry{
		{Mode: ModePrefix, BaseURL: "https://only.example.com/"},
	})

	// With a single entry the exclusion cannot apply, otherwise selection
	// would loop forever.
	res := r.Rewrite("https://github.com/owner/repo", 0)
	if !res.Mirrored || res.Index != 0 {
		t.Fatalf("expected index 0 despite exclusion, got %+v", res)
	}
}

func TestSplitHost(t *testing.T) {
	tests := []struct {
		url  string
		host string
		tail string
		ok   bool
	}{
		{"https://github.com/a/b", "github.com", "a/b", true},
		{"http://raw.githubusercontent.com/o/r/main/README.md", "raw.githubusercontent.com", "o/r/main/README.md", true},
		{"https://github.com", "github.com", "", true},
		{"github.com/a/b", "", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		host, tail, ok := splitHost(tt.url)
		if ok != tt.ok || host != tt.host || tail != tt.tail {
			t.Errorf("splitHost(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.url, host, tail, ok, tt.host, tt.tail, tt.ok)
		}
	}
}
