package repository

import (
	"context"
	"errors"

	"polegrid/internal/model"
)

// Package repository contains data access layer abstractions.
// Implementations live in subpackages (jsonfile, postgres) inside this directory.

// ErrUnknownCollection is returned for collection keys outside model.Collections.
var ErrUnknownCollection = errors.New("unknown collection")

// RecordStore persists the record document. No business logic here, strictly persistence operations.
// Implementations must serialize mutations so concurrent appends are never lost.
type RecordStore interface {
	// Read returns the full document with every known collection present.
	Read(ctx context.Context) (model.Document, error)

	// Write replaces the whole persisted document.
	Write(ctx context.Context, doc model.Document) error

	// Append adds a record to the end of a collection and persists it.
	Append(ctx context.Context, collection string, rec model.Record) error

	// List returns all records of a collection in insertion order. The slice is never nil.
	List(ctx context.Context, collection string) ([]model.Record, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// KnownCollection reports whether name is one of model.Collections.
func KnownCollection(name string) bool {
	for _, c := range model.Collections {
		if c == name {
			return true
		}
	}
	return false
}
