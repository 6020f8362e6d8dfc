package registry

import (
	"strings"
)

// Unconstrained is the requirement that matches any version.
const Unconstrained = "*"

// extractVersion pulls every maximal digit run out of a version string, in
// order. "v2.10.1-beta" becomes [2 10 1]. A string with no digits compares
// as [0].
func extractVersion(s string) []int {
	var parts []int
	current := -1

	for _, r := range s {
		if r >= '0' && r <= '9' {
			if current < 0 {
				current = 0
			}
			current = current*10 + int(r-'0')
			continue
		}
		if current >= 0 {
			parts = append(parts, current)
			current = -1
		}
	}
	if current >= 0 {
		parts = append(parts, current)
	}

	if len(parts) == 0 {
		return []int{0}
	}
	return parts
}

// compareTuples compares two integer sequences lexicographically, with
// missing positions treated as zero.
func compareTuples(a, b []int) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		av, bv := 0, 0
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

// CompareVersions compares two version strings under the given relational
// operator. Unknown operators compare false.
func CompareVersions(a, b, op string) bool {
	cmp := compareTuples(extractVersion(a), extractVersion(b))

	switch op {
	case ">=":
		return cmp >= 0
	case ">":
		return cmp > 0
	case "==":
		return cmp == 0
	case "<=":
		return cmp <= 0
	case "<":
		return cmp < 0
	default:
		return false
	}
}

// parseRequirement splits a requirement string such as ">=1.2" into its
// operator and version. A bare version means "==". Empty or "*" means
// unconstrained (empty operator).
func parseRequirement(req string) (op, version string) {
	req = strings.TrimSpace(req)
	if req == "" || req == Unconstrained {
		return "", ""
	}

	for _, candidate := range []string{">=", "<=", "==", ">", "<"} {
		if strings.HasPrefix(req, candidate) {
			return candidate, strings.TrimSpace(req[len(candidate):])
		}
	}
	return "==", req
}

// Satisfies reports whether version meets the requirement string.
func Satisfies(version, requirement string) bool {
	op, want := parseRequirement(requirement)
	if op == "" {
		return true
	}
	return CompareVersions(version, want, op)
}
