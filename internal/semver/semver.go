// internal/semver/semver.go

// Package semver parses and orders semantic version strings as they appear in
// git tag names. It accepts a leading "v" and tolerates missing minor/patch
// components ("v1", "2.3") so that common tag styles compare sensibly.
package semver

import (
	"errors"
	"slices"
	"strconv"
	"strings"

	modsemver "golang.org/x/mod/semver"
)

// ErrInvalid is returned for strings that are not semantic versions.
var ErrInvalid = errors.New("invalid semantic version")

// Version is a parsed semantic version.
type Version struct {
	Major, Minor, Patch uint64
	Prerelease          []string
	Build               string
	Original            string
}

// Parse parses s, which may carry a "v" or "V" prefix.
func Parse(s string) (Version, error) {
	v := Version{Original: s}
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "v"), "V")
	if s == "" {
		return Version{}, ErrInvalid
	}

	if i := strings.IndexByte(s, '+'); i >= 0 {
		v.Build = s[i+1:]
		s = s[:i]
		if v.Build == "" {
			return Version{}, ErrInvalid
		}
	}
	if i := strings.IndexByte(s, '-'); i >= 0 {
		pre := s[i+1:]
		s = s[:i]
		if pre == "" {
			return Version{}, ErrInvalid
		}
		v.Prerelease = strings.Split(pre, ".")
		for _, id := range v.Prerelease {
			if id == "" {
				return Version{}, ErrInvalid
			}
		}
	}

	parts := strings.Split(s, ".")
	if len(parts) > 3 {
		return Version{}, ErrInvalid
	}
	nums := make([]uint64, 3)
	for i, p := range parts {
		if p == "" || (len(p) > 1 && p[0] == '0') {
			return Version{}, ErrInvalid
		}
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return Version{}, ErrInvalid
		}
		nums[i] = n
	}
	v.Major, v.Minor, v.Patch = nums[0], nums[1], nums[2]
	if !modsemver.IsValid(v.canonical()) {
		return Version{}, ErrInvalid
	}
	return v, nil
}

// canonical is the "v"-prefixed full form x/mod/semver understands.
func (v Version) canonical() string { return "v" + v.String() }

// Valid reports whether s parses as a version.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// IsPrerelease reports whether v carries prerelease identifiers.
func (v Version) IsPrerelease() bool { return len(v.Prerelease) > 0 }

// String renders the normalized form without a "v" prefix.
func (v Version) String() string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(v.Major, 10))
	b.WriteByte('.')
	b.WriteString(strconv.FormatUint(v.Minor, 10))
	b.WriteByte('.')
	b.WriteString(strconv.FormatUint(v.Patch, 10))
	if len(v.Prerelease) > 0 {
		b.WriteByte('-')
		b.WriteString(strings.Join(v.Prerelease, "."))
	}
	if v.Build != "" {
		b.WriteByte('+')
		b.WriteString(v.Build)
	}
	return b.String()
}

// Compare returns -1, 0 or +1. Build metadata is ignored.
func (v Version) Compare(o Version) int {
	return modsemver.Compare(v.canonical(), o.canonical())
}

// Compare parses and compares two version strings. Invalid strings sort before valid ones.
func Compare(a, b string) int {
	va, errA := Parse(a)
	vb, errB := Parse(b)
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return va.Compare(vb)
}

// Sort orders version strings ascending in place.
func Sort(vs []string) {
	slices.SortStableFunc(vs, Compare)
}

// Latest returns the highest valid version among names. Stable releases win
// over prereleases. ok is false when no name parses.
func Latest(names []string) (latest string, ok bool) {
	var best Version
	for _, n := range names {
		v, err := Parse(n)
		if err != nil {
			continue
		}
		if !ok {
			best, latest, ok = v, n, true
			continue
		}
		if best.IsPrerelease() && !v.IsPrerelease() {
			best, latest = v, n
			continue
		}
		if v.IsPrerelease() && !best.IsPrerelease() {
			continue
		}
		if v.Compare(best) > 0 {
			best, latest = v, n
		}
	}
	return latest, ok
}
