package engine

import "github.com/arkdrop/arkdrop/pkg/collection"

// Event is one element of the receiver-side download stream. The set of
// variants is closed; consumers type-switch exhaustively and route unknown
// variants to an explicit ignored arm.
//
// Events for a given item ID arrive in production order: found, zero or more
// progress ticks, done. Streams for different IDs may interleave freely.
type Event interface {
	isEvent()
}

// Connected reports that the peer connection is up. Connection chatter; the
// reconciler ignores it.
type Connected struct {
	Remote string
}

// HashSeqFound reports that the hash sequence blob is available in the local
// store under Hash.
type HashSeqFound struct {
	Hash collection.Hash
}

// ItemFound announces one item of the collection: the transport-assigned ID
// used by later events, the content hash, and the total size in bytes.
type ItemFound struct {
	ID   uint64
	Hash collection.Hash
	Size uint64
}

// Progress reports that Offset bytes of the item are now in the local store.
type Progress struct {
	ID     uint64
	Offset uint64
}

// ItemDone reports that the item is fully transferred. Some transports omit
// a final 100% Progress tick, so consumers snap to the total on ItemDone.
type ItemDone struct {
	ID uint64
}

// LocalFound reports content that was already present locally, short-
// circuiting the transfer for that item.
type LocalFound struct {
	Hash collection.Hash
	Size uint64
}

// AllDone is the authoritative terminal event: the whole collection is in
// the local store.
type AllDone struct{}

// Disconnected reports that the peer connection closed. Connection chatter;
// the reconciler ignores it.
type Disconnected struct {
	Remote string
}

func (Connected) isEvent()    {}
func (Disconnected) isEvent() {}
func (HashSeqFound) isEvent() {}
func (ItemFound) isEvent()    {}
func (Progress) isEvent()     {}
func (ItemDone) isEvent()     {}
func (LocalFound) isEvent()   {}
func (AllDone) isEvent()      {}
