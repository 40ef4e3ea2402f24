package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeScratchFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write scratch file: %v", err)
	}
	return path
}

// TestLocalPromoteRoundTrip verifies promote, stat, download, and checksum agree
func TestLocalPromoteRoundTrip(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	ctx := context.Background()

	content := "fake mp3 payload"
	src := writeScratchFile(t, t.TempDir(), "clip.mp3", content)

	stat, err := store.Promote(ctx, "alice/job-1/clip.mp3", src)
	if err != nil {
		t.Fatalf("Promote() error = %v", err)
	}
	if stat.Size != int64(len(content)) {
		t.Errorf("Promote() size = %d, want %d", stat.Size, len(content))
	}

	sum := sha256.Sum256([]byte(content))
	if want := hex.EncodeToString(sum[:]); stat.SHA256 != want {
		t.Errorf("Promote() checksum = %s, want %s", stat.SHA256, want)
	}

	// Source is consumed by promotion.
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("Promote() must remove the source file")
	}

	size, err := store.Stat(ctx, "alice/job-1/clip.mp3")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if size != stat.Size {
		t.Errorf("Stat() = %d, want %d", size, stat.Size)
	}

	reader, err := store.Download(ctx, "alice/job-1/clip.mp3")
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("reading artifact: %v", err)
	}
	if string(data) != content {
		t.Errorf("Download() = %q, want %q", data, content)
	}
}

// TestLocalExistsAndDelete verifies existence checks and idempotent deletes
func TestLocalExistsAndDelete(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	ctx := context.Background()

	src := writeScratchFile(t, t.TempDir(), "thumb.jpg", "jpeg bytes")
	if _, err := store.Promote(ctx, "bob/job-2/thumb.jpg", src); err != nil {
		t.Fatalf("Promote() error = %v", err)
	}

	exists, err := store.Exists(ctx, "bob/job-2/thumb.jpg")
	if err != nil || !exists {
		t.Errorf("Exists() = %v, %v; want true", exists, err)
	}
	exists, err = store.Exists(ctx, "bob/job-2/missing.mp4")
	if err != nil || exists {
		t.Errorf("Exists() for missing key = %v, %v; want false", exists, err)
	}

	if err := store.Delete(ctx, "bob/job-2/thumb.jpg"); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
	// Deleting again must stay quiet.
	if err := store.Delete(ctx, "bob/job-2/thumb.jpg"); err != nil {
		t.Errorf("repeated Delete() error = %v", err)
	}
}

// TestLocalDeletePrefix verifies a job directory is removed as one unit
func TestLocalDeletePrefix(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	ctx := context.Background()
	scratch := t.TempDir()

	for _, name := range []string{"clip.mp3", "clip.mp4", "clip_thumb.jpg"} {
		src := writeScratchFile(t, scratch, name, "data-"+name)
		if _, err := store.Promote(ctx, "carol/job-3/"+name, src); err != nil {
			t.Fatalf("Promote(%s) error = %v", name, err)
		}
	}
	// A second job that must survive the cleanup.
	other := writeScratchFile(t, scratch, "other.mp3", "other")
	if _, err := store.Promote(ctx, "carol/job-4/other.mp3", other); err != nil {
		t.Fatalf("Promote(other) error = %v", err)
	}

	if err := store.DeletePrefix(ctx, "carol/job-3"); err != nil {
		t.Fatalf("DeletePrefix() error = %v", err)
	}

	for _, name := range []string{"clip.mp3", "clip.mp4", "clip_thumb.jpg"} {
		if exists, _ := store.Exists(ctx, "carol/job-3/"+name); exists {
			t.Errorf("artifact %s should be gone after DeletePrefix", name)
		}
	}
	if exists, _ := store.Exists(ctx, "carol/job-4/other.mp3"); !exists {
		t.Error("DeletePrefix must not touch sibling jobs")
	}
}

// TestValidateKey verifies namespace escape protection
func TestValidateKey(t *testing.T) {
	testCases := []struct {
		name    string
		key     string
		want    string
		wantErr bool
	}{
		{"plain key", "alice/job-1/clip.mp3", "alice/job-1/clip.mp3", false},
		{"leading slash stripped", "/alice/clip.mp3", "alice/clip.mp3", false},
		{"dot segments cleaned", "alice/./job/../clip.mp3", "alice/clip.mp3", false},
		{"empty", "", "", true},
		{"parent escape", "../etc/passwd", "", true},
		{"nested escape", "a/../../etc", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateKey(tc.key)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ValidateKey(%q) expected error, got %q", tc.key, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateKey(%q) error = %v", tc.key, err)
			}
			if got != tc.want {
				t.Errorf("ValidateKey(%q) = %q, want %q", tc.key, got, tc.want)
			}
		})
	}
}

// TestSanitizeSegment verifies hostile names become safe path segments
func TestSanitizeSegment(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  string
	}{
		{"plain title", "My Favorite Song", "My Favorite Song"},
		{"separators replaced", `a/b\c:d`, "a_b_c_d"},
		{"shell noise replaced", `what? "really" <yes>|no*`, "what_ _really_ _yes__no_"},
		{"surrounding dots stripped", "..hidden..", "hidden"},
		{"empty input", "", "download"},
		{"only invalid chars", "???", "___"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSegment(tc.input); got != tc.want {
				t.Errorf("SanitizeSegment(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}

	long := make([]byte, 0, 300)
	for i := 0; i < 300; i++ {
		long = append(long, 'x')
	}
	if got := SanitizeSegment(string(long)); len(got) != 200 {
		t.Errorf("SanitizeSegment long input length = %d, want 200", len(got))
	}
}
