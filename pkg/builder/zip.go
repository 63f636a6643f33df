package builder

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Archives are deterministic: fixed timestamps, sorted entries, stable
// mode bits. Two stagings with identical contents produce byte-identical
// zips, which makes the content hash reproducible across machines.
var zipEpoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

type zipEntry struct {
	// Name is the slash-separated path inside the archive.
	Name string
	// Path locates the file on disk.
	Path string
}

// collectEntries walks a staged tree and returns its archive entries,
// skipping anything the prune filter rejects.
func collectEntries(root, prefix string) ([]zipEntry, error) {
	var entries []zipEntry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, rerr := filepath.Rel(root, path)
		if rerr != nil {
			return rerr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && shouldPruneDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if shouldPruneFile(rel) {
			return nil
		}

		name := rel
		if prefix != "" {
			name = prefix + "/" + rel
		}
		entries = append(entries, zipEntry{Name: name, Path: path})
		return nil
	})
	return entries, err
}

// writeArchive produces the deterministic zip for a set of entries.
func writeArchive(w io.Writer, entries []zipEntry) error {
	sorted := make([]zipEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	zw := zip.NewWriter(w)
	for _, e := range sorted {
		hdr := &zip.FileHeader{
			Name:     e.Name,
			Method:   zip.Deflate,
			Modified: zipEpoch,
		}
		hdr.SetMode(0644)

		dst, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", e.Name, err)
		}

		src, err := os.Open(e.Path)
		if err != nil {
			return err
		}
		if _, err := io.Copy(dst, src); err != nil {
			src.Close()
			return fmt.Errorf("failed to write %s: %w", e.Name, err)
		}
		src.Close()
	}
	return zw.Close()
}

// archiveTree zips a staged directory under an optional archive prefix.
func archiveTree(root, prefix string) ([]byte, error) {
	entries, err := collectEntries(root, prefix)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := writeArchive(&buf, entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
