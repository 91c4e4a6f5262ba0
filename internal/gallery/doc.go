// Package gallery implements the archive's read side: per-identity folder
// and image listings backed by memoizing caches, the hidden-folder visibility
// rules, and the recursive resolver that derives a representative thumbnail
// for folders without direct images. Service is the single entry point used
// by the HTTP layer; every exported operation validates its raw path itself.
package gallery
