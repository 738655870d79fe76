// Package compression packs file system images for storage and transport.
//
// A freshly formatted image is almost entirely null bytes: everything past the
// inode table is untouched until files are written. Images are first run-length
// encoded, then gzipped. RLE alone removes the long null runs; gzip takes care
// of what's left, including the RLE output's own repetition.
//
// The run-length encoding is RLE8, the scheme used by the BMP file format. A
// byte that occurs N >= 2 times in a row is written twice, followed by one
// unsigned byte giving the number of additional repeats (N - 2). A single byte
// is written as itself. For example:
//
//	WXXXXXXXXXXXXXXXYZZ
//	W XX 13 Y ZZ 0
//
// One group covers at most 257 bytes. Longer runs are split, so 300 "X" bytes
// become `XX 255 XX 41`.
package compression
