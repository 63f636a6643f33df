package builder

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/DrSkyle/layerline/pkg/catalog"
)

// checkClosure verifies that a function's import graph is satisfied by the
// union of layer-provided names, its vendored private packages, its own
// local modules and the standard library. A name outside that union would
// only fail at invocation time, which is exactly what this check prevents.
func checkClosure(unitID, srcDir string, provided, vendored map[string]bool) error {
	imports, err := scanImports(srcDir)
	if err != nil {
		return err
	}

	local, err := localModules(srcDir)
	if err != nil {
		return err
	}

	var missing []string
	for _, name := range imports {
		key := catalog.NormalizeName(name)
		switch {
		case pythonStdlib[name]:
		case local[name]:
		case vendored[strings.ToLower(name)]:
		case provided[key]:
		case provided[importAliases[name]]:
		default:
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return &ClosureError{UnitID: unitID, Missing: missing}
	}
	return nil
}

// scanImports extracts top-level imported module names from the unit's
// Python sources. Line-based on purpose: a full parser buys little here,
// and conditional imports inside functions still name the same modules.
func scanImports(dir string) ([]string, error) {
	seen := make(map[string]bool)

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "__pycache__" {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".py" {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			var module string
			switch {
			case strings.HasPrefix(line, "import "):
				module = strings.TrimPrefix(line, "import ")
			case strings.HasPrefix(line, "from "):
				module = strings.TrimPrefix(line, "from ")
			default:
				continue
			}

			// "import a.b as c, d" / "from a.b import c" -> "a", "d".
			module = strings.SplitN(module, " import", 2)[0]
			for _, part := range strings.Split(module, ",") {
				name := strings.TrimSpace(part)
				name = strings.SplitN(name, " ", 2)[0]
				name = strings.SplitN(name, ".", 2)[0]
				if name == "" || strings.HasPrefix(name, ".") {
					continue // relative import, unit-local
				}
				seen[name] = true
			}
		}
		return scanner.Err()
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// localModules lists importable names defined by the unit itself.
func localModules(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	local := make(map[string]bool)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			local[name] = true
			continue
		}
		if strings.HasSuffix(name, ".py") {
			local[strings.TrimSuffix(name, ".py")] = true
		}
	}
	return local, nil
}

// topLevelNames lists the import names a vendor directory provides.
func topLevelNames(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, err
	}

	names := make(map[string]bool)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			if shouldPruneDir(name) {
				continue
			}
			names[strings.ToLower(name)] = true
			continue
		}
		if strings.HasSuffix(name, ".py") {
			names[strings.ToLower(strings.TrimSuffix(name, ".py"))] = true
		}
	}
	return names, nil
}

// importAliases maps import names to their distribution names where the
// two differ. Covers the packages seen across the managed repos.
var importAliases = map[string]string{
	"yaml":     "pyyaml",
	"dotenv":   "python-dotenv",
	"dateutil": "python-dateutil",
	"bs4":      "beautifulsoup4",
	"PIL":      "pillow",
	"cv2":      "opencv-python",
	"jose":     "python-jose",
	"firebase_admin":  "firebase-admin",
	"googleapiclient": "google-api-python-client",
}

// pythonStdlib is the stdlib allowlist for the closure check. Not the full
// module index, just everything the managed functions plausibly touch;
// unknown names fail closed and get caught in review.
var pythonStdlib = map[string]bool{
	"abc": true, "argparse": true, "asyncio": true, "base64": true,
	"binascii": true, "bisect": true, "calendar": true, "collections": true,
	"concurrent": true, "contextlib": true, "copy": true, "csv": true,
	"dataclasses": true, "datetime": true, "decimal": true, "difflib": true,
	"email": true, "enum": true, "functools": true, "gzip": true,
	"hashlib": true, "heapq": true, "hmac": true, "html": true,
	"http": true, "importlib": true, "inspect": true, "io": true,
	"itertools": true, "json": true, "logging": true, "math": true,
	"mimetypes": true, "multiprocessing": true, "operator": true, "os": true,
	"pathlib": true, "pickle": true, "platform": true, "pprint": true,
	"queue": true, "random": true, "re": true, "secrets": true,
	"shutil": true, "signal": true, "socket": true, "sqlite3": true,
	"ssl": true, "statistics": true, "string": true, "struct": true,
	"subprocess": true, "sys": true, "tempfile": true, "textwrap": true,
	"threading": true, "time": true, "traceback": true, "types": true,
	"typing": true, "unicodedata": true, "unittest": true, "urllib": true,
	"uuid": true, "warnings": true, "weakref": true, "xml": true,
	"zipfile": true, "zlib": true, "zoneinfo": true,
}
