package core

import (
	"path/filepath"
	"strings"
)

// FormatID enumerates every recognised container.
type FormatID string

const (
	FmtJPEG FormatID = "jpeg"

	FmtMP4  FormatID = "mp4"
	FmtMOV  FormatID = "mov"
	FmtMPEG FormatID = "mpeg"
	Fmt3GP  FormatID = "3gp"
	FmtAVI  FormatID = "avi"
	FmtMKV  FormatID = "mkv"
	FmtWebM FormatID = "webm"
	FmtWMV  FormatID = "wmv"
	FmtFLV  FormatID = "flv"

	FmtUnknown FormatID = "unknown"
)

// CanonicalVideoExt is the extension of the container all ingested video is
// normalized to.
const CanonicalVideoExt = ".mp4"

// extMap maps lowercase extensions to format IDs.
var extMap = map[string]FormatID{
	".jpg":  FmtJPEG,
	".jpeg": FmtJPEG,

	".mp4":  FmtMP4,
	".m4v":  FmtMP4,
	".mov":  FmtMOV,
	".qt":   FmtMOV,
	".mpg":  FmtMPEG,
	".mpeg": FmtMPEG,
	".3gp":  Fmt3GP,
	".avi":  FmtAVI,
	".mkv":  FmtMKV,
	".webm": FmtWebM,
	".wmv":  FmtWMV,
	".flv":  FmtFLV,
}

// Ext returns the lowercase extension of path including the dot.
func Ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// FormatFor returns the FormatID for path based on its extension.
func FormatFor(path string) FormatID {
	if id, ok := extMap[Ext(path)]; ok {
		return id
	}
	return FmtUnknown
}

// IsPhoto reports whether path has a JPEG extension.
func IsPhoto(path string) bool {
	return FormatFor(path) == FmtJPEG
}

// IsCanonicalVideo reports whether path already carries the canonical
// container extension.
func IsCanonicalVideo(path string) bool {
	return Ext(path) == CanonicalVideoExt
}

// CanonicalVideoPath returns path with its extension replaced by the
// canonical container extension. Paths already canonical are returned as is,
// whatever the case of their extension.
func CanonicalVideoPath(path string) string {
	if IsCanonicalVideo(path) {
		return path
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + CanonicalVideoExt
}

// ExtensionAllowed reports whether the extension of path, without the dot,
// is in allowed. Entries of allowed are compared case-insensitively and may
// be given with or without a leading dot.
func ExtensionAllowed(path string, allowed []string) bool {
	ext := strings.TrimPrefix(Ext(path), ".")
	if ext == "" {
		return false
	}
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimPrefix(strings.TrimSpace(a), "."), ext) {
			return true
		}
	}
	return false
}

// MediaTypeFor returns the media kind for a format.
func MediaTypeFor(id FormatID) Kind {
	switch id {
	case FmtJPEG:
		return KindPhoto
	case FmtMP4, FmtMOV, FmtMPEG, Fmt3GP, FmtAVI, FmtMKV, FmtWebM, FmtWMV, FmtFLV:
		return KindVideo
	default:
		return ""
	}
}
