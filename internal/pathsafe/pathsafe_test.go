package pathsafe

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/dmitrijs2005/receiptvault/internal/common"
)

func TestSanitizeFilename_RejectsTraversal(t *testing.T) {
	tests := []string{
		"../etc/passwd",
		"..\\windows\\system32",
		"a/../b.jpg",
		"..",
		"receipt..jpg",
		"/etc/shadow",
		"/absolute.png",
	}
	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := SanitizeFilename(name); !errors.Is(err, common.ErrUnsafePath) {
				t.Fatalf("expected ErrUnsafePath for %q, got %v", name, err)
			}
		})
	}
}

func TestSanitizeFilename_StripsDirectories(t *testing.T) {
	got, err := SanitizeFilename(`uploads/2024/receipt.jpg`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "receipt.jpg" {
		t.Fatalf("expected receipt.jpg, got %q", got)
	}

	got, err = SanitizeFilename(`C:\temp\scan.pdf`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "scan.pdf" {
		t.Fatalf("expected scan.pdf, got %q", got)
	}
}

func TestSanitizeFilename_ReplacesUnsafeCharacters(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"my receipt (1).jpg", "my_receipt__1_.jpg"},
		{"café.png", "caf_.png"},
		{"a;b|c&d.pdf", "a_b_c_d.pdf"},
		{"normal-name_1.2.gif", "normal-name_1.2.gif"},
		{"x\x00y.jpg", "x_y.jpg"},
	}
	for _, tc := range tests {
		got, err := SanitizeFilename(tc.in)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("SanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeFilename_DisarmsReservedNames(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"CON.pdf", "CON_.pdf"},
		{"con.jpg", "con_.jpg"},
		{"Nul.png", "Nul_.png"},
		{"COM7.gif", "COM7_.gif"},
		{"lpt9.pdf", "lpt9_.pdf"},
		{"CONSOLE.pdf", "CONSOLE.pdf"},
		{"com10.pdf", "com10.pdf"},
	}
	for _, tc := range tests {
		got, err := SanitizeFilename(tc.in)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("SanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSplitExt(t *testing.T) {
	tests := []struct {
		in, base, ext string
	}{
		{"receipt.jpg", "receipt", ".jpg"},
		{"archive.tar.gz", "archive.tar", ".gz"},
		{"noext", "noext", ""},
		{".profile", ".profile", ""},
	}
	for _, tc := range tests {
		base, ext := SplitExt(tc.in)
		if base != tc.base || ext != tc.ext {
			t.Fatalf("SplitExt(%q) = (%q, %q), want (%q, %q)", tc.in, base, ext, tc.base, tc.ext)
		}
	}
}

func TestNewToken_HexAndLength(t *testing.T) {
	seen := map[string]struct{}{}
	hex := regexp.MustCompile(`^[0-9a-f]+$`)
	for i := 0; i < 100; i++ {
		tok := NewToken()
		if len(tok) != TokenLength {
			t.Fatalf("expected token length %d, got %d (%q)", TokenLength, len(tok), tok)
		}
		if !hex.MatchString(tok) {
			t.Fatalf("token %q is not lowercase hex", tok)
		}
		if _, dup := seen[tok]; dup {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = struct{}{}
	}
}

func TestBuildObjectKey_Shape(t *testing.T) {
	key, err := BuildObjectKey(42, "grocery receipt.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pattern := regexp.MustCompile(`^receipts/42/[0-9a-f]{16}_grocery_receipt\.jpg$`)
	if !pattern.MatchString(key) {
		t.Fatalf("key %q does not match expected shape", key)
	}
	if !strings.HasPrefix(key, OwnerPrefix(42)) {
		t.Fatalf("key %q not under owner prefix %q", key, OwnerPrefix(42))
	}
}

func TestBuildObjectKey_DistinctKeysForSameName(t *testing.T) {
	a, err := BuildObjectKey(7, "receipt.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := BuildObjectKey(7, "receipt.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct keys, both were %q", a)
	}
}

func TestBuildObjectKey_TruncatesLongNameToSegmentLimit(t *testing.T) {
	// 251-char base + ".jpg" is 255 chars and passes the upload checks,
	// but the token prefix must not push the segment past the limit.
	name := strings.Repeat("a", 251) + ".jpg"
	key, err := BuildObjectKey(42, name)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	segment := key[strings.LastIndex(key, "/")+1:]
	if len(segment) > MaxNameLength {
		t.Fatalf("segment length = %d, want <= %d", len(segment), MaxNameLength)
	}
	if !strings.HasSuffix(segment, ".jpg") {
		t.Fatalf("segment %q lost its extension", segment)
	}
	pattern := regexp.MustCompile(`^[0-9a-f]{16}_a+\.jpg$`)
	if !pattern.MatchString(segment) {
		t.Fatalf("segment %q does not match expected shape", segment)
	}
}

func TestBuildObjectKey_ShortNameNotTruncated(t *testing.T) {
	key, err := BuildObjectKey(42, "short.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(key, "_short.jpg") {
		t.Fatalf("key %q unexpectedly altered the base", key)
	}
}

func TestBuildObjectKey_Rejections(t *testing.T) {
	if _, err := BuildObjectKey(0, "a.jpg"); !errors.Is(err, common.ErrUnsafePath) {
		t.Fatalf("expected rejection for zero owner, got %v", err)
	}
	if _, err := BuildObjectKey(-3, "a.jpg"); !errors.Is(err, common.ErrUnsafePath) {
		t.Fatalf("expected rejection for negative owner, got %v", err)
	}
	if _, err := BuildObjectKey(5, ""); !errors.Is(err, common.ErrUnsafePath) {
		t.Fatalf("expected rejection for empty filename, got %v", err)
	}
	if _, err := BuildObjectKey(5, "../../x.jpg"); !errors.Is(err, common.ErrUnsafePath) {
		t.Fatalf("expected rejection for traversal, got %v", err)
	}
}

func TestOwnerPrefix(t *testing.T) {
	if got := OwnerPrefix(42); got != "receipts/42/" {
		t.Fatalf("unexpected prefix %q", got)
	}
	want := fmt.Sprintf("%s%d/", RootPrefix, 9)
	if got := OwnerPrefix(9); got != want {
		t.Fatalf("unexpected prefix %q", got)
	}
}
