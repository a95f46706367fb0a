package market

import (
	"fmt"
	"math/big"
	"strings"
)

// Listing is a seller's standing offer to sell one asset at a fixed price.
// Listings are never deleted; purchase, cancellation and timeout reclaim flip
// Active to false and a relist mints a fresh listing with a new identifier.
type Listing struct {
	ID          [32]byte
	Collection  [20]byte
	AssetID     [32]byte
	Seller      [20]byte
	Price       *big.Int
	MetadataRef string
	Active      bool
	CreatedAt   int64
}

// Clone returns a deep copy of the listing so callers can safely mutate the
// copy without affecting the stored instance.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	if l.Price != nil {
		clone.Price = new(big.Int).Set(l.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	return &clone
}

// SanitizeListing validates the supplied listing and returns a cloned
// instance with a non-nil price. The function does not mutate the original.
func SanitizeListing(l *Listing) (*Listing, error) {
	if l == nil {
		return nil, fmt.Errorf("market: nil listing")
	}
	clone := l.Clone()
	if clone.Price.Sign() <= 0 {
		return nil, fmt.Errorf("market: listing price must be positive")
	}
	clone.MetadataRef = strings.TrimSpace(clone.MetadataRef)
	return clone, nil
}

// TradeStatus represents the lifecycle phases of a trade. The implicit
// "listed" phase is an active listing with no trade yet; a trade only comes
// into existence escrowed.
type TradeStatus uint8

const (
	TradeEscrowed TradeStatus = iota + 1
	TradeSettled
	TradeRefunded
	TradeDisputed
)

// Valid reports whether the trade status value is supported.
func (s TradeStatus) Valid() bool {
	switch s {
	case TradeEscrowed, TradeSettled, TradeRefunded, TradeDisputed:
		return true
	default:
		return false
	}
}

// String returns the canonical lowercase label for the status.
func (s TradeStatus) String() string {
	switch s {
	case TradeEscrowed:
		return "escrowed"
	case TradeSettled:
		return "settled"
	case TradeRefunded:
		return "refunded"
	case TradeDisputed:
		return "disputed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Trade captures the immutable metadata and runtime status of a single
// purchase. Amount is fixed at creation and never mutated.
type Trade struct {
	ID         [32]byte
	ListingID  [32]byte
	Collection [20]byte
	AssetID    [32]byte
	Buyer      [20]byte
	Seller     [20]byte
	Amount     *big.Int
	CreatedAt  int64
	Status     TradeStatus
}

// Clone returns a deep copy of the trade.
func (t *Trade) Clone() *Trade {
	if t == nil {
		return nil
	}
	clone := *t
	if t.Amount != nil {
		clone.Amount = new(big.Int).Set(t.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// SanitizeTrade validates the supplied trade definition and returns a cloned
// instance with a non-nil amount. The function does not mutate the original.
func SanitizeTrade(t *Trade) (*Trade, error) {
	if t == nil {
		return nil, fmt.Errorf("market: nil trade")
	}
	clone := t.Clone()
	if clone.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("market: trade amount must be positive")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("market: invalid trade status %d", clone.Status)
	}
	return clone, nil
}

// EntryStatus represents the custody state of an escrow entry.
type EntryStatus uint8

const (
	EntryHeld EntryStatus = iota + 1
	EntryReleased
	EntryRefunded
)

// Valid reports whether the entry status value is supported.
func (s EntryStatus) Valid() bool {
	switch s {
	case EntryHeld, EntryReleased, EntryRefunded:
		return true
	default:
		return false
	}
}

// Entry records funds held for a trade. The amount is immutable once held;
// conservation requires the sum of Held entries to equal the vault balance at
// every observable point.
type Entry struct {
	TradeID [32]byte
	Buyer   [20]byte
	Amount  *big.Int
	Status  EntryStatus
}

// Clone returns a deep copy of the escrow entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Amount != nil {
		clone.Amount = new(big.Int).Set(e.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// Split names one payout leg of an escrow release.
type Split struct {
	Recipient [20]byte
	Amount    *big.Int
}
