// Package cache is the disk-backed derivative store. It maps a Locator (a
// slash-separated path relative to the photo root, such as
// "Pets/.thumbs/cat.jpg-300.webp" or "Pets/thumb-300") to a file under that
// root. Writes go through a temp file in the destination directory followed
// by a rename, so readers never observe a partially written derivative.
// Concurrent writers of the same Locator are serialised by a per-entry lock.
package cache
