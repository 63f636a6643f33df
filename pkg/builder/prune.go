package builder

import (
	"path"
	"strings"
)

// Pruning keeps artifacts minimal: test suites, caches, docs and package
// metadata contribute nothing at runtime but routinely dominate layer size.

var prunedDirs = map[string]bool{
	"__pycache__": true,
	"tests":       true,
	"test":        true,
	"docs":        true,
	"examples":    true,
	"benchmarks":  true,
	".git":        true,
	"bin":         true,
}

var prunedExts = map[string]bool{
	".pyc": true,
	".pyo": true,
	".pyi": true,
}

func shouldPruneDir(name string) bool {
	if prunedDirs[name] {
		return true
	}
	return strings.HasSuffix(name, ".dist-info") || strings.HasSuffix(name, ".egg-info")
}

func shouldPruneFile(rel string) bool {
	base := path.Base(rel)
	if prunedExts[path.Ext(base)] {
		return true
	}
	switch base {
	case "LICENSE", "LICENSE.txt", "NOTICE", "README", "README.md", "README.rst":
		return true
	}
	return false
}
