package rag

import "errors"

var (
	// ErrIndexNotBuilt is returned when a search is attempted before any
	// documents have been loaded. Callers need to distinguish "not ready"
	// from "no matches", so this is an error rather than an empty result.
	ErrIndexNotBuilt = errors.New("vector index not built")

	// ErrDimensionMismatch is returned when vectors of a different
	// dimension than the index was built with are loaded or searched.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrModelMismatch is returned when a snapshot produced by one
	// embedding model is loaded into a system running another. Mixing
	// models silently produces meaningless similarity scores.
	ErrModelMismatch = errors.New("snapshot embedding model mismatch")

	// ErrLengthMismatch is returned when the vector and chunk slices
	// handed to an index differ in length.
	ErrLengthMismatch = errors.New("chunks and vectors length mismatch")
)
