// Package reembed regenerates the vectors of every stored chunk, for use
// after the embedding model changes. Chunk text is read back from storage,
// embedded again in batches with retry, normalized and written in place.
package reembed
