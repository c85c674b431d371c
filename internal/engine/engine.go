// Package engine defines the content-addressed transfer engine the sessions
// are built on: blob ingestion, collection assembly, sharing, and the
// receiver-side event stream. The core treats any implementation as an
// opaque collaborator; this package ships the interface, the shared blob
// store, and an in-memory engine pair for tests.
package engine

import (
	"context"
	"errors"

	"github.com/arkdrop/arkdrop/pkg/collection"
)

var (
	// ErrNotFound indicates a blob that is not present in the local store.
	ErrNotFound = errors.New("blob not found")
	// ErrUnsupportedFormat indicates a locator that does not name a
	// recognized collection format.
	ErrUnsupportedFormat = errors.New("unsupported collection format")
	// ErrBadConfirmation indicates a confirmation byte the sender rejected.
	ErrBadConfirmation = errors.New("confirmation code rejected")
)

// Share is an active offer of a collection: the locator to hand out inside a
// ticket, the confirmation byte the receiver must echo, and a handle to stop
// serving.
type Share struct {
	Locator      string
	Confirmation uint8

	// Events is the sender-side progress feed: the same event union the
	// receiver consumes, describing what has been served to peers. The
	// feed is best-effort (slow observers lose events) and is closed by
	// Stop. Nil when the engine does not report serving progress.
	Events <-chan Event

	// Stop tears down the listener for this share. Idempotent; serving in
	// progress is not interrupted but no new work is accepted.
	Stop func()
}

// Engine is the content-addressed transfer engine consumed by the sessions.
// Blocking operations take a Context and honor cancellation between units of
// work.
type Engine interface {
	// Import ingests the file at path into the local store and returns its
	// content hash.
	Import(ctx context.Context, path string) (collection.Hash, error)

	// CreateCollection stores the metadata blob and hash sequence for the
	// ordered items and returns the collection (hash sequence) hash.
	CreateCollection(ctx context.Context, items []collection.Item) (collection.Hash, error)

	// ShareCollection starts serving root to peers and returns the share.
	ShareCollection(ctx context.Context, root collection.Hash) (Share, error)

	// DownloadHashSeq connects to the peer named by locator and downloads
	// the collection addressed by it, yielding the low-level event stream.
	// The channel is closed when the transfer ends, with or without a
	// terminal AllDone event. Transferred blobs land in the local store.
	DownloadHashSeq(ctx context.Context, locator string, confirmation uint8) (<-chan Event, error)

	// ReadToBytes returns the full contents of a locally stored blob.
	ReadToBytes(ctx context.Context, h collection.Hash) ([]byte, error)

	// Has reports whether blob h is in the local store. Non-blocking.
	Has(h collection.Hash) bool

	// GetCollection resolves root's hash sequence and metadata from the
	// local store into the ordered (name, hash) listing with known sizes.
	GetCollection(ctx context.Context, root collection.Hash) (collection.Collection, error)
}
