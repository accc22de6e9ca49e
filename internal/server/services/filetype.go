package services

import (
	"path/filepath"
	"strings"
)

// File categories derived from the name's extension.
const (
	FileTypeText  = "Text"
	FileTypeImage = "Image"
)

var extensionTypes = map[string]string{
	".txt":  FileTypeText,
	".md":   FileTypeText,
	".csv":  FileTypeText,
	".log":  FileTypeText,
	".json": FileTypeText,
	".xml":  FileTypeText,
	".yaml": FileTypeText,
	".yml":  FileTypeText,
	".toml": FileTypeText,
	".ini":  FileTypeText,
	".html": FileTypeText,
	".css":  FileTypeText,
	".js":   FileTypeText,
	".ts":   FileTypeText,
	".go":   FileTypeText,
	".rs":   FileTypeText,
	".py":   FileTypeText,
	".c":    FileTypeText,
	".h":    FileTypeText,
	".cpp":  FileTypeText,
	".java": FileTypeText,
	".sh":   FileTypeText,
	".sql":  FileTypeText,

	".png":  FileTypeImage,
	".jpg":  FileTypeImage,
	".jpeg": FileTypeImage,
	".gif":  FileTypeImage,
	".bmp":  FileTypeImage,
	".webp": FileTypeImage,
	".svg":  FileTypeImage,
	".ico":  FileTypeImage,
	".tif":  FileTypeImage,
	".tiff": FileTypeImage,
}

// fileTypeOf classifies name by extension, case-insensitively. Unknown
// extensions yield "".
func fileTypeOf(name string) string {
	return extensionTypes[strings.ToLower(filepath.Ext(name))]
}
