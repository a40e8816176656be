package download

import (
	"mime"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/hbomb79/Reelgest/internal/media"
)

const maxFilenameStemLength = 120

var (
	knownExtensions = map[string]struct{}{
		".mp4": {}, ".mov": {}, ".m4v": {}, ".webm": {},
		".mkv": {}, ".avi": {}, ".3gp": {}, ".ts": {},
	}

	mimeExtensions = map[string]string{
		"video/mp4":        ".mp4",
		"video/quicktime":  ".mov",
		"video/webm":       ".webm",
		"video/x-matroska": ".mkv",
		"video/x-msvideo":  ".avi",
		"video/3gpp":       ".3gp",
		"video/mp2t":       ".ts",
		"video/x-m4v":      ".m4v",
	}

	schemePrefix     = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://`)
	unsafeCharacters = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// ResolveExtension chooses the file extension for a media reference. The
// extension of the transport URL path is used if it's a known media
// extension, otherwise the MIME type of the reference is consulted, and
// finally the fallback is returned.
func ResolveExtension(ref media.MediaReference, fallback string) string {
	if u, err := url.Parse(ref.URL); err == nil {
		if ext := strings.ToLower(path.Ext(u.Path)); ext != "" {
			if _, ok := knownExtensions[ext]; ok {
				return ext
			}
		}
	}

	if ref.MimeType != "" {
		if mediaType, _, err := mime.ParseMediaType(ref.MimeType); err == nil {
			if ext, ok := mimeExtensions[strings.ToLower(mediaType)]; ok {
				return ext
			}
		}
	}

	if fallback != "" && !strings.HasPrefix(fallback, ".") {
		return "." + fallback
	}

	return fallback
}

// SafeFilename derives a filesystem-safe filename for the identifier
// provided. The result is deterministic, so the same identifier always maps
// to the same file; this is what allows an existing download to be reused.
func SafeFilename(identifier string, ext string) string {
	stem := schemePrefix.ReplaceAllString(strings.TrimSpace(identifier), "")
	stem = unsafeCharacters.ReplaceAllString(stem, "_")
	stem = strings.Trim(stem, "_.")
	if len(stem) > maxFilenameStemLength {
		stem = strings.TrimRight(stem[:maxFilenameStemLength], "_.")
	}
	if stem == "" {
		stem = "item"
	}

	return stem + ext
}
