package market

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"lyxmarket/core/events"
	"lyxmarket/core/types"
)

var errNilRegistryState = errors.New("listing registry: state not configured")
var errNilAssets = errors.New("listing registry: asset ownership not configured")

// AssetOwnership is the external contract tracking who controls each asset.
// Transfer must be atomic and fail loudly rather than silently no-op.
type AssetOwnership interface {
	OwnerOf(collection [20]byte, assetID [32]byte) ([20]byte, error)
	Transfer(collection [20]byte, assetID [32]byte, from, to [20]byte) error
}

type registryState interface {
	ListingPut(*Listing) error
	ListingGet(id [32]byte) (*Listing, bool)
	ListingActiveGet(collection [20]byte, assetID [32]byte) ([32]byte, bool)
	ListingActiveSet(collection [20]byte, assetID [32]byte, id [32]byte) error
	ListingActiveClear(collection [20]byte, assetID [32]byte) error
	ListingSeqNext() (uint64, error)
}

// Registry owns the mapping from (collection, asset) to the active listing
// and enforces at most one active listing per asset. Activation and
// deactivation run under a single lock so concurrent purchases observe the
// active flag as a compare-and-set.
type Registry struct {
	mu      sync.Mutex
	state   registryState
	assets  AssetOwnership
	emitter events.Emitter
	nowFn   func() int64
}

// NewRegistry creates a listing registry with a no-op emitter.
func NewRegistry() *Registry {
	return &Registry{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the registry.
func (r *Registry) SetState(state registryState) { r.state = state }

// SetAssets configures the external asset ownership interface.
func (r *Registry) SetAssets(assets AssetOwnership) { r.assets = assets }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// SetNowFunc overrides the time source, primarily used in tests.
func (r *Registry) SetNowFunc(now func() int64) {
	if now == nil {
		r.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	r.nowFn = now
}

func (r *Registry) emit(evt *types.Event) {
	if r == nil || r.emitter == nil || evt == nil {
		return
	}
	r.emitter.Emit(marketEvent{evt: evt})
}

func (r *Registry) now() int64 {
	if r == nil || r.nowFn == nil {
		return time.Now().Unix()
	}
	return r.nowFn()
}

// CreateListing publishes a new fixed-price listing. The caller must control
// the asset according to the ownership contract, and the asset must not have
// an active listing already.
func (r *Registry) CreateListing(collection [20]byte, assetID [32]byte, seller [20]byte, price *big.Int, metadataRef string) (*Listing, error) {
	if r == nil || r.state == nil {
		return nil, errNilRegistryState
	}
	if r.assets == nil {
		return nil, errNilAssets
	}
	if price == nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("market: listing price must be positive")
	}
	owner, err := r.assets.OwnerOf(collection, assetID)
	if err != nil {
		return nil, fmt.Errorf("market: owner lookup: %w", err)
	}
	if owner != seller {
		return nil, ErrNotAssetOwner
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.state.ListingActiveGet(collection, assetID); ok {
		return nil, ErrAlreadyListed
	}
	seq, err := r.state.ListingSeqNext()
	if err != nil {
		return nil, err
	}
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	id := ethcrypto.Keccak256Hash(collection[:], assetID[:], seqBytes[:])
	listing := &Listing{
		ID:          id,
		Collection:  collection,
		AssetID:     assetID,
		Seller:      seller,
		Price:       new(big.Int).Set(price),
		MetadataRef: strings.TrimSpace(metadataRef),
		Active:      true,
		CreatedAt:   r.now(),
	}
	if err := r.state.ListingPut(listing); err != nil {
		return nil, err
	}
	if err := r.state.ListingActiveSet(collection, assetID, id); err != nil {
		return nil, err
	}
	r.emit(NewListedEvent(listing))
	return listing.Clone(), nil
}

// CancelListing withdraws an active listing. Only the seller may cancel, and
// only while no trade exists against the listing. No funds move.
func (r *Registry) CancelListing(id [32]byte, caller [20]byte) error {
	if r == nil || r.state == nil {
		return errNilRegistryState
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	listing, ok := r.state.ListingGet(id)
	if !ok {
		return ErrNotFound
	}
	if listing.Seller != caller {
		return ErrUnauthorized
	}
	if !listing.Active {
		return ErrNotListed
	}
	listing.Active = false
	if err := r.state.ListingPut(listing); err != nil {
		return err
	}
	if err := r.state.ListingActiveClear(listing.Collection, listing.AssetID); err != nil {
		return err
	}
	r.emit(NewCancelledEvent(listing))
	return nil
}

// Deactivate commits the "no longer listed" fact at purchase time. It is
// invoked exactly once per sale by the trade engine; a second attempt fails
// with ErrInvalidState, which is what makes concurrent purchases of the same
// listing mutually exclusive.
func (r *Registry) Deactivate(id [32]byte) error {
	if r == nil || r.state == nil {
		return errNilRegistryState
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	listing, ok := r.state.ListingGet(id)
	if !ok {
		return ErrNotFound
	}
	if !listing.Active {
		return ErrInvalidState
	}
	listing.Active = false
	if err := r.state.ListingPut(listing); err != nil {
		return err
	}
	return r.state.ListingActiveClear(listing.Collection, listing.AssetID)
}

// reactivate undoes a purchase-time deactivation when a later step of the
// purchase fails. Only the trade engine's rollback path uses it.
func (r *Registry) reactivate(id [32]byte) error {
	if r == nil || r.state == nil {
		return errNilRegistryState
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	listing, ok := r.state.ListingGet(id)
	if !ok {
		return ErrNotFound
	}
	if listing.Active {
		return ErrInvalidState
	}
	listing.Active = true
	if err := r.state.ListingPut(listing); err != nil {
		return err
	}
	return r.state.ListingActiveSet(listing.Collection, listing.AssetID, listing.ID)
}

// Get returns the listing for the supplied identifier.
func (r *Registry) Get(id [32]byte) (*Listing, error) {
	if r == nil || r.state == nil {
		return nil, errNilRegistryState
	}
	listing, ok := r.state.ListingGet(id)
	if !ok {
		return nil, ErrNotFound
	}
	return listing.Clone(), nil
}
