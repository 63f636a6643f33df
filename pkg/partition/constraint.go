package partition

import (
	"strconv"
	"strings"
)

// Compatible reports whether a function's constraint can be satisfied by
// the layer's copy of the same dependency.
//
// The layer pins its closure with exact versions, so the common case is an
// exact layer pin checked against the function's range. When the layer
// constraint is itself a range (or absent) there is no concrete version to
// test; only two contradictory exact pins are rejected then. Anything this
// parser cannot interpret is treated as compatible — pip re-validates the
// full constraint set at resolve time.
func Compatible(fnConstraint, layerConstraint string) bool {
	if fnConstraint == "" || layerConstraint == "" {
		return true
	}

	layerOp, layerVer := splitConstraint(layerConstraint)
	fnOp, fnVer := splitConstraint(fnConstraint)

	if layerOp == "==" {
		return satisfies(layerVer, fnOp, fnVer)
	}
	if layerOp != "" && fnOp == "==" {
		// Mirror case: exact function pin against a layer range.
		return satisfies(fnVer, layerOp, layerVer)
	}
	return true
}

// splitConstraint takes the first clause of a constraint expression:
// ">=2.0,<3" -> (">=", "2.0").
func splitConstraint(c string) (op, version string) {
	c = strings.SplitN(c, ",", 2)[0]
	for _, candidate := range []string{"==", ">=", "<=", "~=", "!=", ">", "<"} {
		if strings.HasPrefix(c, candidate) {
			return candidate, strings.TrimSpace(c[len(candidate):])
		}
	}
	return "", strings.TrimSpace(c)
}

// satisfies checks a concrete version against one constraint clause.
func satisfies(version, op, constraintVer string) bool {
	cmp := compareVersions(version, constraintVer)
	switch op {
	case "", "==":
		return cmp == 0
	case "!=":
		return cmp != 0
	case ">=":
		return cmp >= 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case "<":
		return cmp < 0
	case "~=":
		// Compatible release: >= X.Y and same release series as X.
		if cmp < 0 {
			return false
		}
		return sameSeries(version, constraintVer)
	default:
		return true
	}
}

// compareVersions compares dotted numeric versions segment-wise.
// Non-numeric segments compare lexically; missing segments are zero.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")

	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}

	for i := 0; i < n; i++ {
		av, bv := "0", "0"
		if i < len(as) {
			av = as[i]
		}
		if i < len(bs) {
			bv = bs[i]
		}

		ai, aerr := strconv.Atoi(av)
		bi, berr := strconv.Atoi(bv)
		if aerr == nil && berr == nil {
			if ai != bi {
				if ai < bi {
					return -1
				}
				return 1
			}
			continue
		}
		if av != bv {
			return strings.Compare(av, bv)
		}
	}
	return 0
}

// sameSeries reports whether version stays within the release series of
// the ~= anchor: for anchor X.Y.Z the series is X.Y.
func sameSeries(version, anchor string) bool {
	parts := strings.Split(anchor, ".")
	if len(parts) < 2 {
		return true
	}
	series := strings.Join(parts[:len(parts)-1], ".")
	return version == series || strings.HasPrefix(version, series+".")
}
