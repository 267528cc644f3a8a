// Package zip builds deterministic archives: identical inputs produce
// byte-identical output, which downstream reproducibility checks rely on.
package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
	"sort"
	"time"
)

// Asset is one file to include in an archive.
type Asset struct {
	Filename string
	Data     []byte
}

// Archive writes the assets into a zip. Entries are sorted by filename and
// carry a fixed modification time so the output bytes do not depend on wall
// clock or input order.
func Archive(assets []Asset) ([]byte, error) {
	sorted := make([]Asset, len(assets))
	copy(sorted, assets)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Filename < sorted[j].Filename })

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, asset := range sorted {
		if asset.Filename == "" {
			return nil, fmt.Errorf("zip: asset without filename")
		}
		hdr := &zip.FileHeader{
			Name:     asset.Filename,
			Method:   zip.Deflate,
			Modified: time.Unix(0, 0).UTC(),
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, fmt.Errorf("zip: create %s: %w", asset.Filename, err)
		}
		if _, err := w.Write(asset.Data); err != nil {
			return nil, fmt.Errorf("zip: write %s: %w", asset.Filename, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: close: %w", err)
	}
	return buf.Bytes(), nil
}
