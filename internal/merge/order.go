// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package merge

import (
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Key is the merge ordering key of one staged file. Year is parsed from the
// leading digits of the first underscore-delimited segment of the name.
// Files without a parsable year sort after every file that has one.
type Key struct {
	Year    int
	HasYear bool
	Name    string
}

// KeyFor derives the merge key from a file name.
func KeyFor(name string) Key {
	seg, _, _ := strings.Cut(name, "_")
	seg = strings.TrimSpace(seg)
	end := strings.IndexFunc(seg, func(r rune) bool { return !unicode.IsDigit(r) })
	if end < 0 {
		end = len(seg)
	}
	k := Key{Name: name}
	if end > 0 {
		if y, err := strconv.Atoi(seg[:end]); err == nil {
			k.Year = y
			k.HasYear = true
		}
	}
	return k
}

// Less orders by year descending, then name ascending. Keys without a year
// come last and are ordered by name among themselves.
func Less(a, b Key) bool {
	if a.HasYear != b.HasYear {
		return a.HasYear
	}
	if a.HasYear && a.Year != b.Year {
		return a.Year > b.Year
	}
	return a.Name < b.Name
}

// SortNames sorts file names in place into merge order.
func SortNames(names []string) {
	keys := make(map[string]Key, len(names))
	for _, n := range names {
		keys[n] = KeyFor(n)
	}
	sort.SliceStable(names, func(i, j int) bool {
		return Less(keys[names[i]], keys[names[j]])
	})
}
