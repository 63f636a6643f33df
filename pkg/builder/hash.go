package builder

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// InputHash computes the cache key for a build: a digest over the unit's
// source tree plus any extra input fields (runtime, private dependency
// set). Identical inputs always produce the identical hash.
//
// Encoding rules:
//   - files are (relative path, content sha256) pairs sorted by path
//   - every field is length-prefixed to avoid concatenation ambiguity
//   - build droppings (__pycache__, *.pyc) are excluded so a local test
//     run does not invalidate the cache
func InputHash(root string, extras ...string) (string, error) {
	type fileDigest struct {
		rel string
		sum [sha256.Size]byte
	}

	var files []fileDigest
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
			if d.Name() == "__pycache__" || d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(rel) == ".pyc" {
			return nil
		}

		sum, herr := hashFile(path)
		if herr != nil {
			return herr
		}
		files = append(files, fileDigest{rel: rel, sum: sum})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].rel < files[j].rel })

	h := sha256.New()
	writeField := func(data []byte) {
		var prefix [8]byte
		binary.BigEndian.PutUint64(prefix[:], uint64(len(data)))
		h.Write(prefix[:])
		h.Write(data)
	}

	for _, f := range files {
		writeField([]byte(f.rel))
		writeField(f.sum[:])
	}

	sortedExtras := make([]string, len(extras))
	copy(sortedExtras, extras)
	sort.Strings(sortedExtras)
	for _, e := range sortedExtras {
		writeField([]byte(e))
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashFile(path string) ([sha256.Size]byte, error) {
	var sum [sha256.Size]byte

	f, err := os.Open(path)
	if err != nil {
		return sum, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return sum, err
	}
	copy(sum[:], h.Sum(nil))
	return sum, nil
}
