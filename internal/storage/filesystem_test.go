package storage

import (
	"context"
	"errors"
	"os"
	"testing"
)

func TestWriteReadDeleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	key, err := s.Write(ctx, "packages/job-1.zip", []byte("zip-bytes"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if key != "packages/job-1.zip" {
		t.Fatalf("canonical key = %q", key)
	}
	data, err := s.Read(ctx, key)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "zip-bytes" {
		t.Fatalf("read back %q", data)
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read(ctx, key); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Read after delete err = %v, want ErrNotExist", err)
	}
	// Deleting again stays quiet.
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestSanitizeKeyRejectsTraversal(t *testing.T) {
	cases := []struct {
		name string
		key  string
		ok   bool
	}{
		{"plain", "previews/a.html", true},
		{"leading slash stripped", "/previews/a.html", true},
		{"dot prefix stripped", "./previews/a.html", true},
		{"inner dots collapse", "previews/../previews/a.html", true},
		{"escape above root", "../secrets", false},
		{"deep escape", "a/../../secrets", false},
		{"empty", "", false},
		{"dot only", ".", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := sanitizeKey(tc.key)
			if tc.ok && err != nil {
				t.Fatalf("sanitizeKey(%q) = %v, want ok", tc.key, err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("sanitizeKey(%q) accepted", tc.key)
			}
		})
	}
}

func TestImageStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	files, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	images := NewImageStore(files)

	ref, err := images.Store(ctx, []byte("png-bytes"), "image/png")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	data, mime, err := images.Fetch(ctx, ref)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "png-bytes" || mime != "image/png" {
		t.Fatalf("fetched %q with mime %q", data, mime)
	}
}
