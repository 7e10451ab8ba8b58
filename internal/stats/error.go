package stats

import (
	"crypto/md5"
	"encoding/hex"
)

// ErrorEntry is a bucket of occurrences for one distinct (method, name,
// errorText) combination, keyed by its fingerprint (spec.md §3).
type ErrorEntry struct {
	Method      string
	Name        string
	ErrorText   string
	Occurrences int64
}

// fingerprint identifies a distinct error. crypto/md5's Sum never fails in
// Go, so the spec's "fallback to concatenation if hash fails" clause has no
// reachable branch here; it is satisfied trivially rather than implemented.
func fingerprint(method, name, errorText string) string {
	h := md5.Sum([]byte(method + name + errorText))
	return hex.EncodeToString(h[:])
}
