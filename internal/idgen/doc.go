// Package idgen produces run and message identifiers. Callers treat them as
// opaque strings; tests replace NewFunc to get predictable ids.
package idgen
