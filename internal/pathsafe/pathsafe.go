// Package pathsafe turns untrusted client-supplied filenames into safe
// object-key segments and builds namespaced object keys from them.
//
// The key layout is load-bearing: AccessController's namespace check and
// the lifecycle scans both depend on keys having the exact shape
// receipts/{ownerID}/{token}_{name}{ext}.
package pathsafe

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/receiptvault/internal/common"
)

// RootPrefix scopes every object this core manages.
const RootPrefix = "receipts/"

// TokenLength is the number of hex characters in a generated unique token.
const TokenLength = 16

// MaxNameLength caps the filename segment of an object key. Common
// filesystems (ext4 included) limit directory entries to 255 bytes.
const MaxNameLength = 255

// reservedNames are Windows device names that must not appear as a bare
// base name. Matched case-insensitively, pre-extension.
var reservedNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {},
	"COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {},
	"LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// SanitizeFilename normalizes a raw filename into a safe key segment.
//
// Traversal sequences and absolute paths are rejected outright, never
// repaired. Directory components are stripped, every character outside
// [A-Za-z0-9._-] is replaced with an underscore, and reserved device
// names are disarmed with an underscore suffix. Null bytes and control
// characters end up replaced here as well, but callers performing the
// full upload security check reject on those grounds before this
// function is reached.
func SanitizeFilename(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty filename", common.ErrUnsafePath)
	}
	if strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: traversal sequence in %q", common.ErrUnsafePath, name)
	}
	if strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: absolute path %q", common.ErrUnsafePath, name)
	}

	// Keep only the final path segment; accept both separator styles.
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return "", fmt.Errorf("%w: no filename component", common.ErrUnsafePath)
	}

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name = b.String()

	base, ext := SplitExt(name)
	if _, ok := reservedNames[strings.ToUpper(base)]; ok {
		base += "_"
	}
	return base + ext, nil
}

// SplitExt splits a filename into base and extension (extension includes
// the leading dot; empty when absent). A leading dot alone is treated as
// part of the base, matching path.Ext semantics for dotfiles.
func SplitExt(name string) (base, ext string) {
	ext = path.Ext(name)
	if ext == name {
		// dotfile such as ".profile": no extension
		return name, ""
	}
	return strings.TrimSuffix(name, ext), ext
}

// NewToken returns a fresh random token of TokenLength hex characters.
// Uniqueness is probabilistic; at expected volumes the collision chance
// is negligible.
func NewToken() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return hex[:TokenLength]
}

// OwnerPrefix returns the namespace prefix scoping all objects owned by
// the given principal.
func OwnerPrefix(ownerID int64) string {
	return fmt.Sprintf("%s%d/", RootPrefix, ownerID)
}

// BuildObjectKey sanitizes filename and composes a collision-resistant
// object key under the owner's namespace:
//
//	receipts/{ownerID}/{token}_{base}{ext}
//
// It does not check the backend for existing keys; uniqueness comes from
// the token. Callers that pre-select a key without a token should rely on
// the backend's availability fallback instead.
func BuildObjectKey(ownerID int64, filename string) (string, error) {
	if ownerID <= 0 {
		return "", fmt.Errorf("%w: owner id must be positive", common.ErrUnsafePath)
	}
	if filename == "" {
		return "", fmt.Errorf("%w: empty filename", common.ErrUnsafePath)
	}
	sanitized, err := SanitizeFilename(filename)
	if err != nil {
		return "", err
	}
	base, ext := SplitExt(sanitized)

	// The token prefix must not push the filename segment past
	// MaxNameLength; truncate the base and keep the extension intact.
	// Sanitized names are ASCII, so byte slicing cannot split a rune.
	maxBase := MaxNameLength - TokenLength - 1 - len(ext)
	if maxBase < 0 {
		ext = ext[:MaxNameLength-TokenLength-1]
		maxBase = 0
	}
	if len(base) > maxBase {
		base = base[:maxBase]
	}
	return fmt.Sprintf("%s%s_%s%s", OwnerPrefix(ownerID), NewToken(), base, ext), nil
}
