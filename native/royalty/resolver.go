package royalty

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrMalformedRoyaltyData is returned when the stored payload is not a
	// whole number of fixed-width royalty records. The resolver never
	// truncates or best-effort parses a damaged payload.
	ErrMalformedRoyaltyData = errors.New("royalty: malformed royalty data")

	errNilStore = errors.New("royalty: metadata store not configured")
)

// RecipientsKey is the well-known ERC725Y data key under which royalty
// recipients are recorded for an asset collection
// (keccak256("LSP18RoyaltiesRecipients")).
var RecipientsKey = [32]byte{
	0xc0, 0x56, 0x9c, 0xa6, 0xc9, 0x18, 0x0a, 0xcc,
	0x2c, 0x35, 0x90, 0xf3, 0x63, 0x30, 0xa3, 0x6a,
	0xe1, 0x90, 0x15, 0xa1, 0x9f, 0x4e, 0x85, 0xc2,
	0x8a, 0x76, 0x31, 0xe3, 0x31, 0x7e, 0x6b, 0x9d,
}

// recordWidth is the packed size of one royalty record:
// 4-byte selector, 20-byte recipient, 4-byte big-endian share.
const recordWidth = 28

// Record is a single decoded royalty entry. The selector is a type tag kept
// opaque by the marketplace; the share is expressed in basis points.
type Record struct {
	Selector  [4]byte
	Recipient [20]byte
	ShareBps  uint32
}

// MetadataStore reads raw ERC725Y-style data for an asset collection.
type MetadataStore interface {
	GetData(collection [20]byte, key [32]byte) ([]byte, error)
}

// Resolver decodes the royalty recipients recorded against an asset
// collection in the external metadata store.
type Resolver struct {
	store MetadataStore
}

// NewResolver constructs a resolver bound to the supplied metadata store.
func NewResolver(store MetadataStore) *Resolver {
	return &Resolver{store: store}
}

// SetStore configures the metadata store used by the resolver.
func (r *Resolver) SetStore(store MetadataStore) { r.store = store }

// Resolve reads and decodes the royalty records for the collection. A missing
// or empty payload resolves to no records. The full sequence is decoded and
// validated even though settlement only consults the first record.
func (r *Resolver) Resolve(collection [20]byte) ([]Record, error) {
	if r == nil || r.store == nil {
		return nil, errNilStore
	}
	data, err := r.store.GetData(collection, RecipientsKey)
	if err != nil {
		return nil, fmt.Errorf("royalty: read metadata: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	if len(data)%recordWidth != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrMalformedRoyaltyData, len(data), recordWidth)
	}
	records := make([]Record, 0, len(data)/recordWidth)
	for off := 0; off < len(data); off += recordWidth {
		var rec Record
		copy(rec.Selector[:], data[off:off+4])
		copy(rec.Recipient[:], data[off+4:off+24])
		rec.ShareBps = binary.BigEndian.Uint32(data[off+24 : off+28])
		records = append(records, rec)
	}
	return records, nil
}

// Encode packs records into the compact on-store representation. It is the
// inverse of Resolve and is used to seed fixtures and genesis metadata.
func Encode(records ...Record) []byte {
	out := make([]byte, 0, len(records)*recordWidth)
	for _, rec := range records {
		out = append(out, rec.Selector[:]...)
		out = append(out, rec.Recipient[:]...)
		var share [4]byte
		binary.BigEndian.PutUint32(share[:], rec.ShareBps)
		out = append(out, share[:]...)
	}
	return out
}
