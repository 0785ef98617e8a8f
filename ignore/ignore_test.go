package ignore

import (
	"testing"

	"github.com/spf13/afero"
)

const testRoot = "/vol"

func newTestMatcher(t *testing.T, files map[string]string, options MatcherOptions) *Matcher {
	t.Helper()
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll(testRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		if err := afero.WriteFile(fs, testRoot+"/"+name, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	options.Fs = fs
	options.RootDir = testRoot
	return NewMatcher(options)
}

func Test_Matcher_DefaultDirs(t *testing.T) {
	matcher := newTestMatcher(t, nil, MatcherOptions{})

	tests := []struct {
		dir     string
		ignored bool
	}{
		{"$RECYCLE.BIN", true},
		{"System Volume Information", true},
		{"projects/app/node_modules", true},
		{".git", true},
		{"windows", true},
		{"Documents", false},
		{"projects/src", false},
	}

	for _, tt := range tests {
		got := matcher.ShouldIgnoreDir(tt.dir)
		if got != tt.ignored {
			t.Errorf("ShouldIgnoreDir(%s) = %v, want %v", tt.dir, got, tt.ignored)
		}
	}
}

func Test_Matcher_DirNamesOnlyApplyToDirs(t *testing.T) {
	matcher := newTestMatcher(t, nil, MatcherOptions{})

	if matcher.ShouldIgnore("notes/windows", false) {
		t.Error("expected a file named like an excluded dir to be kept")
	}
}

func Test_Matcher_DefaultExtensions(t *testing.T) {
	matcher := newTestMatcher(t, nil, MatcherOptions{})

	if !matcher.ShouldIgnore("scratch/file.TMP", false) {
		t.Error("expected .tmp files to be ignored")
	}
	if matcher.ShouldIgnore("docs/report.pdf", false) {
		t.Error("expected .pdf files to NOT be ignored")
	}
}

func Test_Matcher_DisabledDefaults(t *testing.T) {
	matcher := newTestMatcher(t, nil, MatcherOptions{
		ExcludeDirs:       []string{},
		ExcludeExtensions: []string{},
	})

	if matcher.ShouldIgnoreDir("node_modules") {
		t.Error("expected empty exclude list to disable default dirs")
	}
	if matcher.ShouldIgnore("a.tmp", false) {
		t.Error("expected empty exclude list to disable default extensions")
	}
}

func Test_Matcher_GitignoreIntegration(t *testing.T) {
	matcher := newTestMatcher(t, map[string]string{
		".gitignore": "*.generated.go\nsecret/\n",
	}, MatcherOptions{})

	if !matcher.ShouldIgnore("models.generated.go", false) {
		t.Error("expected .gitignore pattern to ignore *.generated.go")
	}
	if !matcher.ShouldIgnoreDir("secret") {
		t.Error("expected .gitignore pattern to ignore secret/")
	}
	if matcher.ShouldIgnore("main.go", false) {
		t.Error("expected normal files to NOT be ignored by .gitignore")
	}
}

func Test_Matcher_VolindexignoreIntegration(t *testing.T) {
	matcher := newTestMatcher(t, map[string]string{
		IgnoreFileName: "archive/\n*.iso\n",
	}, MatcherOptions{})

	if !matcher.ShouldIgnore("images/ubuntu.iso", false) {
		t.Error("expected .volindexignore pattern to ignore *.iso")
	}
	if !matcher.ShouldIgnoreDir("archive") {
		t.Error("expected .volindexignore pattern to ignore archive/")
	}
}

func Test_Matcher_CustomPatterns(t *testing.T) {
	matcher := newTestMatcher(t, nil, MatcherOptions{
		CustomPatterns: []string{"*.custom", "cache/**", "[invalid"},
	})

	if !matcher.ShouldIgnore("data.custom", false) {
		t.Error("expected custom pattern to ignore *.custom files")
	}
	if !matcher.ShouldIgnore("deep/dir/data.custom", false) {
		t.Error("expected basename match for nested *.custom files")
	}
	if !matcher.ShouldIgnore("cache/a/b.bin", false) {
		t.Error("expected doublestar pattern to ignore cache/**")
	}
	if matcher.ShouldIgnore("src/main.go", false) {
		t.Error("expected unrelated files to be kept")
	}
}

func Test_Matcher_Reload(t *testing.T) {
	fs := afero.NewMemMapFs()
	matcher := NewMatcher(MatcherOptions{Fs: fs, RootDir: testRoot})
	if matcher.ShouldIgnore("big.iso", false) {
		t.Fatal("expected no rule before the ignore file exists")
	}

	if err := afero.WriteFile(fs, testRoot+"/"+IgnoreFileName, []byte("*.iso\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	matcher.Reload()

	if !matcher.ShouldIgnore("big.iso", false) {
		t.Error("expected reloaded rule to apply")
	}
}

func Test_IsIgnoreFile(t *testing.T) {
	if !IsIgnoreFile(".gitignore") || !IsIgnoreFile(IgnoreFileName) {
		t.Error("expected ignore files to be recognized")
	}
	if IsIgnoreFile("readme.md") {
		t.Error("expected ordinary files to not trigger reload")
	}
}

func Test_Matcher_RootIsNeverIgnored(t *testing.T) {
	matcher := newTestMatcher(t, nil, MatcherOptions{})
	if matcher.ShouldIgnoreDir("") || matcher.ShouldIgnoreDir(".") {
		t.Error("expected the root itself to never be ignored")
	}
}
