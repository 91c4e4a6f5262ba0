// Package thumbnail maps (source image, size) pairs to persisted WebP
// derivatives. A derivative that already exists on disk is returned as-is and
// never re-rendered; a missing one is generated once, even under concurrent
// requests, and written atomically through the derivative store.
//
// Layout under the photo root R:
//
//	R/<sub>/.thumbs/<file>.<ext>-<size>.webp   image derivative
//	R/<folder>/thumb-<size>                    folder representative
package thumbnail
