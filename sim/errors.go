package sim

import "errors"

var (
	// ErrUnknownPatient is returned by commands naming a patient the content does not define.
	ErrUnknownPatient = errors.New("unknown patient")

	// ErrUnknownCatalogItem is returned by PlaceOrder for an ID missing from the catalog.
	ErrUnknownCatalogItem = errors.New("unknown catalog item")

	// ErrSchemaMismatch is returned when a snapshot's version differs from SnapshotVersion.
	// Callers treat it as absence of prior state.
	ErrSchemaMismatch = errors.New("snapshot schema mismatch")
)
