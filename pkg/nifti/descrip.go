package nifti

import (
	"sort"
	"strings"
)

// Description is the semicolon-delimited key=value content of the
// description header field.
type Description map[string]string

// ParseDescription splits s into key/value pairs. An empty field yields an
// empty map; an entry without '=' maps its text to an empty value.
func ParseDescription(s string) Description {
	d := Description{}
	s = strings.TrimRight(s, "\x00 ")
	if s == "" {
		return d
	}
	for _, entry := range strings.Split(s, ";") {
		if entry == "" {
			continue
		}
		key, value, _ := strings.Cut(entry, "=")
		d[key] = value
	}
	return d
}

// String formats the pairs with keys in sorted order.
func (d Description) String() string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + d[k]
	}
	return strings.Join(parts, ";")
}
