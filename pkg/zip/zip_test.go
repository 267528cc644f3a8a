package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
)

func TestArchiveDeterministic(t *testing.T) {
	a := []Asset{
		{Filename: "src/App.jsx", Data: []byte("export default function App() {}\n")},
		{Filename: "index.html", Data: []byte("<!DOCTYPE html>\n")},
	}
	// Same assets in reversed order.
	b := []Asset{a[1], a[0]}

	first, err := Archive(a)
	if err != nil {
		t.Fatalf("Archive error: %v", err)
	}
	second, err := Archive(b)
	if err != nil {
		t.Fatalf("Archive error: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("archives differ for identical inputs")
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	data, err := Archive([]Asset{
		{Filename: "index.html", Data: []byte("<main></main>")},
		{Filename: "styles.css", Data: []byte("main { display: grid; }")},
	})
	if err != nil {
		t.Fatalf("Archive error: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("unexpected entry count: %d", len(zr.File))
	}
	// Sorted order.
	if zr.File[0].Name != "index.html" || zr.File[1].Name != "styles.css" {
		t.Fatalf("unexpected order: %s, %s", zr.File[0].Name, zr.File[1].Name)
	}
	rc, err := zr.File[1].Open()
	if err != nil {
		t.Fatalf("open entry: %v", err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read entry: %v", err)
	}
	if string(body) != "main { display: grid; }" {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestArchiveRejectsUnnamedAsset(t *testing.T) {
	if _, err := Archive([]Asset{{Data: []byte("x")}}); err == nil {
		t.Fatalf("expected error for unnamed asset")
	}
}
