package category

import (
	"slices"
	"strings"

	"github.com/lexandro/volindex-mcp/entry"
	"github.com/lexandro/volindex-mcp/tokens"
)

// Other is reported for files whose extension is not recognized.
const Other = "other"

// Directory is reported for directory entries.
const Directory = "directory"

// ExtensionToCategory maps file extensions (without dot) to storage categories.
var ExtensionToCategory = map[string]string{
	// Models
	"gguf": "model", "safetensors": "model", "bin": "model", "pt": "model", "pth": "model",
	"onnx": "model", "h5": "model", "pb": "model", "tflite": "model", "mlmodel": "model",
	// Video
	"mp4": "video", "mkv": "video", "avi": "video", "mov": "video", "wmv": "video",
	"flv": "video", "webm": "video", "m4v": "video",
	// Images
	"jpg": "image", "jpeg": "image", "png": "image", "gif": "image", "bmp": "image",
	"tiff": "image", "webp": "image", "svg": "image", "psd": "image", "raw": "image",
	// Audio
	"mp3": "audio", "wav": "audio", "flac": "audio", "aac": "audio", "ogg": "audio",
	"wma": "audio", "m4a": "audio",
	// Archives
	"zip": "archive", "rar": "archive", "7z": "archive", "tar": "archive", "gz": "archive",
	"bz2": "archive", "xz": "archive", "iso": "archive",
	// Documents
	"pdf": "document", "doc": "document", "docx": "document", "xls": "document",
	"xlsx": "document", "ppt": "document", "pptx": "document", "odt": "document",
	"txt": "document", "md": "document", "rtf": "document",
	// Code
	"py": "code", "js": "code", "ts": "code", "rs": "code", "go": "code", "java": "code",
	"c": "code", "cpp": "code", "h": "code", "cs": "code", "sh": "code", "ps1": "code",
	// Data
	"json": "data", "xml": "data", "yaml": "data", "yml": "data", "csv": "data",
	"sql": "data", "db": "data", "sqlite": "data", "toml": "data",
	// Executables
	"exe": "executable", "dll": "executable", "msi": "executable", "so": "executable",
	"dylib": "executable",
	// Cache / temporary
	"cache": "cache", "tmp": "cache", "temp": "cache", "log": "cache", "bak": "cache",
}

// Detect returns the category for a file name based on its extension.
// Returns Other if the extension is not recognized.
func Detect(name string) string {
	if c, ok := ExtensionToCategory[tokens.Extension(name)]; ok {
		return c
	}
	return Other
}

// Of returns the category of e.
func Of(e entry.Entry) string {
	if e.IsDirectory {
		return Directory
	}
	return Detect(e.Name)
}

// Total is the aggregate of one category.
type Total struct {
	Category string
	Count    int
	Size     uint64
}

// Breakdown aggregates files by category, largest total size first. Ties
// order by category name. Directories are not counted.
func Breakdown(entries []entry.Entry) []Total {
	byCategory := make(map[string]*Total)
	for _, e := range entries {
		if e.IsDirectory {
			continue
		}
		c := Detect(e.Name)
		t, ok := byCategory[c]
		if !ok {
			t = &Total{Category: c}
			byCategory[c] = t
		}
		t.Count++
		t.Size += e.Size
	}

	totals := make([]Total, 0, len(byCategory))
	for _, t := range byCategory {
		totals = append(totals, *t)
	}
	slices.SortFunc(totals, func(a, b Total) int {
		switch {
		case a.Size > b.Size:
			return -1
		case a.Size < b.Size:
			return 1
		}
		return strings.Compare(a.Category, b.Category)
	})
	return totals
}
