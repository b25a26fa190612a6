package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path"
	"strings"
)

// knownAudioExts are the extensions treated as directly cacheable audio
// files. Anything else falls back to the generic extension.
var knownAudioExts = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".ogg":  true,
	".oga":  true,
	".flac": true,
	".m4a":  true,
	".aac":  true,
	".aiff": true,
	".aif":  true,
	".opus": true,
}

// GenericExt is used when a source URL carries no recognized audio
// extension.
const GenericExt = ".bin"

// Key derives the stable source key for an originating URL. The same
// logical asset fetched through different relays always resolves to the
// same key because relays never appear in the input.
func Key(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:16])
}

// ExtForURL infers the cached file extension from the trailing token of
// the URL path, ignoring query and fragment. Unrecognized extensions
// map to GenericExt.
func ExtForURL(rawURL string) string {
	ext := trailingExt(rawURL)
	if knownAudioExts[ext] {
		return ext
	}
	return GenericExt
}

// IsDirectFileURL reports whether the URL points at a directly cacheable
// audio file type.
func IsDirectFileURL(rawURL string) bool {
	return knownAudioExts[trailingExt(rawURL)]
}

func trailingExt(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return strings.ToLower(path.Ext(p))
}

// assetRelPath builds the manifest-relative location of an asset file.
func assetRelPath(category, sourceKey, ext string) string {
	return path.Join(category, sourceKey+ext)
}

// categoryOf recovers the category from a manifest-relative path.
func categoryOf(relPath string) string {
	dir := path.Dir(relPath)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}
