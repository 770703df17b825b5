// Package validation inspects uploaded receipt payloads before they
// reach a storage backend: size limits, extension allowlists, magic-byte
// signatures, executable/script rejection, declared-type consistency,
// filename security, and an optional fail-closed malware scan.
package validation

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// DefaultMaxSize is the upload size ceiling unless configured otherwise.
const DefaultMaxSize = 10 << 20 // 10 MiB

// MaxFilenameLength is the longest accepted filename.
const MaxFilenameLength = 255

// headerWindow is how many leading bytes are inspected for signatures
// and script-injection markers.
const headerWindow = 512

// Rule identifiers reported on rejection. The first violated rule wins.
const (
	RuleSize         = "size"
	RuleExtension    = "extension"
	RuleSignature    = "signature"
	RuleExecutable   = "executable"
	RuleTypeMismatch = "type_mismatch"
	RuleFilename     = "filename"
	RuleScan         = "malware_scan"
)

// Error is a rejection of an upload, carrying the first violated rule.
// It marks bad or unsafe input; never retried, always surfaced to the
// uploader.
type Error struct {
	Rule    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Rule, e.Message)
}

func reject(rule, format string, args ...any) error {
	return &Error{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// Scanner is an external malware scanner. Fail-closed: the validator
// treats any returned error, including timeouts, as a rejection.
type Scanner interface {
	// Scan returns nil when the content is clean and an error otherwise.
	Scan(ctx context.Context, r io.Reader) error
}

// signature maps a magic-byte prefix to the MIME type it proves.
type signature struct {
	prefix []byte
	mime   string
}

var signatures = []signature{
	{[]byte{0xFF, 0xD8, 0xFF}, "image/jpeg"},
	{[]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
	{[]byte("GIF87a"), "image/gif"},
	{[]byte("GIF89a"), "image/gif"},
	{[]byte("%PDF-"), "application/pdf"},
}

// executableMagics match Windows PE, ELF and Mach-O headers. Enforced
// regardless of declared type or extension.
var executableMagics = [][]byte{
	[]byte("MZ"),
	{0x7F, 0x45, 0x4C, 0x46},
	{0xCF, 0xFA, 0xED, 0xFE},
	{0xFE, 0xED, 0xFA, 0xCE},
}

// scriptMarkers are matched case-insensitively anywhere in the inspected
// header window.
var scriptMarkers = []string{
	"<script",
	"javascript:",
	"<?php",
	"<%",
	"eval(",
}

// Config controls a Validator. Zero values fall back to defaults where
// noted; allowlists must be provided.
type Config struct {
	// MaxSize is the upload ceiling in bytes; DefaultMaxSize when zero.
	MaxSize int64
	// AllowedExtensions is the lowercase extension allowlist, dots
	// included (".jpg").
	AllowedExtensions []string
	// AllowedMIMETypes is the set of acceptable declared/detected types.
	AllowedMIMETypes []string
	// Scanner, when non-nil, is consulted last. Fail-closed.
	Scanner Scanner
}

// Validator applies all upload checks. Construct with New or one of the
// preset constructors; the zero value rejects everything.
type Validator struct {
	maxSize     int64
	allowedExts map[string]struct{}
	allowedMIME map[string]struct{}
	scanner     Scanner
}

// New builds a Validator from cfg.
func New(cfg Config) *Validator {
	v := &Validator{
		maxSize:     cfg.MaxSize,
		allowedExts: make(map[string]struct{}, len(cfg.AllowedExtensions)),
		allowedMIME: make(map[string]struct{}, len(cfg.AllowedMIMETypes)),
		scanner:     cfg.Scanner,
	}
	if v.maxSize <= 0 {
		v.maxSize = DefaultMaxSize
	}
	for _, ext := range cfg.AllowedExtensions {
		v.allowedExts[strings.ToLower(ext)] = struct{}{}
	}
	for _, m := range cfg.AllowedMIMETypes {
		v.allowedMIME[strings.ToLower(m)] = struct{}{}
	}
	return v
}

// NewReceiptValidator accepts the full receipt set: JPEG, PNG, GIF, PDF.
func NewReceiptValidator(maxSize int64, scanner Scanner) *Validator {
	return New(Config{
		MaxSize:           maxSize,
		AllowedExtensions: []string{".jpg", ".jpeg", ".png", ".gif", ".pdf"},
		AllowedMIMETypes:  []string{"image/jpeg", "image/jpg", "image/png", "image/gif", "application/pdf"},
		Scanner:           scanner,
	})
}

// NewImageValidator accepts images only.
func NewImageValidator(maxSize int64, scanner Scanner) *Validator {
	return New(Config{
		MaxSize:           maxSize,
		AllowedExtensions: []string{".jpg", ".jpeg", ".png", ".gif"},
		AllowedMIMETypes:  []string{"image/jpeg", "image/jpg", "image/png", "image/gif"},
		Scanner:           scanner,
	})
}

// NewPDFValidator accepts PDFs only.
func NewPDFValidator(maxSize int64, scanner Scanner) *Validator {
	return New(Config{
		MaxSize:           maxSize,
		AllowedExtensions: []string{".pdf"},
		AllowedMIMETypes:  []string{"application/pdf"},
		Scanner:           scanner,
	})
}

// DetectSignature matches the header against the known signature table
// and reports the proven MIME type.
func DetectSignature(header []byte) (string, bool) {
	for _, sig := range signatures {
		if bytes.HasPrefix(header, sig.prefix) {
			return sig.mime, true
		}
	}
	return "", false
}

// Validate runs every check in order and returns a *Error on the first
// violation. It consumes a read cursor from r; callers must rewind the
// stream before handing it to a backend.
func (v *Validator) Validate(ctx context.Context, filename, declaredType string, size int64, r io.Reader) error {
	if size == 0 {
		return reject(RuleSize, "empty file")
	}
	if size < 0 {
		return reject(RuleSize, "negative size %d", size)
	}
	if size > v.maxSize {
		return reject(RuleSize, "file size %d exceeds limit %d", size, v.maxSize)
	}

	ext := strings.ToLower(extOf(filename))
	if _, ok := v.allowedExts[ext]; !ok {
		return reject(RuleExtension, "file type not allowed: %q", ext)
	}

	header := make([]byte, headerWindow)
	n, err := io.ReadFull(r, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return fmt.Errorf("read header: %w", err)
	}
	header = header[:n]

	detected, detectedOK := DetectSignature(header)
	if detectedOK {
		if _, ok := v.allowedMIME[detected]; !ok {
			return reject(RuleSignature, "detected type %s is not allowed", detected)
		}
	}

	if err := checkExecutable(header); err != nil {
		return err
	}

	if detectedOK && declaredType != "" {
		declared := strings.ToLower(strings.TrimSpace(declaredType))
		if !typesConsistent(detected, declared) {
			return reject(RuleTypeMismatch, "declared type %s does not match detected %s", declared, detected)
		}
	}

	if err := CheckFilename(filename); err != nil {
		return err
	}

	if v.scanner != nil {
		// The scanner sees the already-read header plus the rest of the
		// stream. Fail-closed: an unreachable scanner is a rejection.
		if err := v.scanner.Scan(ctx, io.MultiReader(bytes.NewReader(header), r)); err != nil {
			return reject(RuleScan, "malware scan rejected the file: %v", err)
		}
	}
	return nil
}

// typesConsistent reports whether declared matches detected, tolerating
// the JPEG/JPG alias pair.
func typesConsistent(detected, declared string) bool {
	if detected == declared {
		return true
	}
	if detected == "image/jpeg" && (declared == "image/jpg" || declared == "image/jpeg") {
		return true
	}
	return false
}

func checkExecutable(header []byte) error {
	for _, magic := range executableMagics {
		if bytes.HasPrefix(header, magic) {
			return reject(RuleExecutable, "executable content detected")
		}
	}
	lower := strings.ToLower(string(header))
	for _, marker := range scriptMarkers {
		if strings.Contains(lower, marker) {
			return reject(RuleExecutable, "script content detected")
		}
	}
	return nil
}

// CheckFilename applies the filename security rules: traversal sequences
// (raw or percent-encoded), null bytes, control characters other than
// tab/CR/LF, and length.
func CheckFilename(filename string) error {
	if filename == "" {
		return reject(RuleFilename, "empty filename")
	}
	if len(filename) > MaxFilenameLength {
		return reject(RuleFilename, "filename exceeds %d characters", MaxFilenameLength)
	}
	candidates := []string{filename}
	if decoded, err := url.PathUnescape(filename); err == nil && decoded != filename {
		candidates = append(candidates, decoded)
	}
	for _, c := range candidates {
		if strings.Contains(c, "..") || strings.HasPrefix(c, "/") {
			return reject(RuleFilename, "path traversal in filename")
		}
		for _, r := range c {
			if r == 0 {
				return reject(RuleFilename, "null byte in filename")
			}
			if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
				return reject(RuleFilename, "control character in filename")
			}
			if r == 0x7F {
				return reject(RuleFilename, "control character in filename")
			}
		}
	}
	return nil
}

func extOf(filename string) string {
	if i := strings.LastIndex(filename, "."); i >= 0 {
		return filename[i:]
	}
	return ""
}
