package ignore

// DefaultExcludeDirs lists directory names skipped during a volume walk.
// Matching is case-insensitive on the directory's own name.
var DefaultExcludeDirs = []string{
	// Windows system locations
	"$Recycle.Bin",
	"System Volume Information",
	"Windows",
	"Program Files",
	"Program Files (x86)",
	"ProgramData",
	"Recovery",
	"PerfLogs",

	// macOS / Linux system locations
	".Trashes",
	".Spotlight-V100",
	".fseventsd",
	"lost+found",

	// Version control
	".git",
	".svn",
	".hg",

	// Dependency and cache trees
	"node_modules",
	"__pycache__",
}

// DefaultExcludeExtensions lists file extensions (without the dot) that are
// never indexed.
var DefaultExcludeExtensions = []string{
	"tmp",
	"temp",
	"bak",
}

// IgnoreFileName is the per-root ignore file, in .gitignore syntax.
const IgnoreFileName = ".volindexignore"
