package market

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"lyxmarket/core/events"
	"lyxmarket/core/types"
	"lyxmarket/native/fees"
	"lyxmarket/native/royalty"
)

var (
	errNilEngineState = errors.New("trade engine: state not configured")
	errNilRegistry    = errors.New("trade engine: listing registry not configured")
	errNilLedger      = errors.New("trade engine: escrow ledger not configured")
	errNilResolver    = errors.New("trade engine: royalty resolver not configured")
	errNilTransfer    = errors.New("trade engine: asset ownership not configured")
)

type engineState interface {
	registryState
	ledgerState
	TradePut(*Trade) error
	TradeGet(id [32]byte) (*Trade, bool)
}

// Engine orchestrates the lifecycle of trades: purchase into escrow, buyer
// confirmation, seller timeout reclaim, and the dispute path. It consumes the
// registry, ledger, royalty resolver and fee arithmetic, and is the only
// component that invokes the external asset transfer.
type Engine struct {
	mu             sync.Mutex
	state          engineState
	registry       *Registry
	ledger         *Ledger
	assets         AssetOwnership
	resolver       *royalty.Resolver
	emitter        events.Emitter
	nowFn          func() int64
	feeRecipient   [20]byte
	feeBps         uint32
	operator       [20]byte
	confirmTimeout int64
}

// NewEngine constructs a trade engine bound to the supplied registry and
// ledger.
func NewEngine(registry *Registry, ledger *Ledger) *Engine {
	return &Engine{
		registry: registry,
		ledger:   ledger,
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAssets configures the external asset ownership interface.
func (e *Engine) SetAssets(assets AssetOwnership) { e.assets = assets }

// SetResolver configures the royalty resolver consulted at settlement.
func (e *Engine) SetResolver(resolver *royalty.Resolver) { e.resolver = resolver }

// SetFeeRecipient configures the address receiving marketplace fees.
func (e *Engine) SetFeeRecipient(addr [20]byte) { e.feeRecipient = addr }

// SetFeeBps configures the marketplace fee rate in basis points.
func (e *Engine) SetFeeBps(bps uint32) { e.feeBps = bps }

// SetOperator configures the address allowed to resolve disputes.
func (e *Engine) SetOperator(addr [20]byte) { e.operator = addr }

// SetConfirmTimeout configures how long, in seconds, a seller must wait after
// escrow before reclaiming an unconfirmed trade.
func (e *Engine) SetConfirmTimeout(secs int64) { e.confirmTimeout = secs }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily used in tests. Timeouts are
// measured against this caller-supplied clock; the engine schedules nothing
// in the background.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(marketEvent{evt: evt})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	switch {
	case e == nil || e.state == nil:
		return errNilEngineState
	case e.registry == nil:
		return errNilRegistry
	case e.ledger == nil:
		return errNilLedger
	default:
		return nil
	}
}

// Purchase escrows the buyer's payment and moves the asset to the buyer. The
// order of operations is strict: the listing is deactivated first, then funds
// are held, and only then does control pass to the external transfer. If the
// transfer fails the deactivation and hold are compensated, leaving state as
// if the purchase had never been attempted.
func (e *Engine) Purchase(listingID [32]byte, buyer [20]byte, payment *big.Int) (*Trade, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.assets == nil {
		return nil, errNilTransfer
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	listing, err := e.registry.Get(listingID)
	if err != nil {
		return nil, err
	}
	if !listing.Active {
		return nil, ErrNotListed
	}
	if payment == nil || payment.Cmp(listing.Price) < 0 {
		return nil, ErrInsufficientPayment
	}
	if buyer == listing.Seller {
		return nil, fmt.Errorf("market: seller cannot purchase own listing")
	}
	tradeID := ethcrypto.Keccak256Hash(listingID[:], buyer[:])
	if _, ok := e.state.TradeGet(tradeID); ok {
		return nil, ErrAlreadyHeld
	}
	if err := e.registry.Deactivate(listingID); err != nil {
		if errors.Is(err, ErrInvalidState) {
			return nil, ErrNotListed
		}
		return nil, err
	}
	// Only the listing price is debited; any surplus the buyer authorised
	// stays untouched so settlement splits always sum to the price.
	if err := e.ledger.Hold(tradeID, buyer, listing.Price); err != nil {
		if rbErr := e.registry.reactivate(listingID); rbErr != nil {
			return nil, fmt.Errorf("market: hold failed (%v) and listing rollback failed: %w", err, rbErr)
		}
		return nil, err
	}
	if err := e.assets.Transfer(listing.Collection, listing.AssetID, listing.Seller, buyer); err != nil {
		if rbErr := e.ledger.cancelHold(tradeID); rbErr != nil {
			return nil, fmt.Errorf("market: transfer failed (%v) and escrow rollback failed: %w", err, rbErr)
		}
		if rbErr := e.registry.reactivate(listingID); rbErr != nil {
			return nil, fmt.Errorf("market: transfer failed (%v) and listing rollback failed: %w", err, rbErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	trade := &Trade{
		ID:         tradeID,
		ListingID:  listingID,
		Collection: listing.Collection,
		AssetID:    listing.AssetID,
		Buyer:      buyer,
		Seller:     listing.Seller,
		Amount:     new(big.Int).Set(listing.Price),
		CreatedAt:  e.now(),
		Status:     TradeEscrowed,
	}
	if err := e.state.TradePut(trade); err != nil {
		return nil, err
	}
	e.emit(NewPurchasedEvent(trade))
	return trade.Clone(), nil
}

// ConfirmReceipt settles the trade after the buyer confirms delivery. The
// escrowed amount is split between seller, royalty recipient and marketplace
// fee recipient, summing exactly to the price.
func (e *Engine) ConfirmReceipt(tradeID [32]byte, caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	trade, err := e.loadTrade(tradeID)
	if err != nil {
		return err
	}
	if caller != trade.Buyer {
		return ErrUnauthorized
	}
	if trade.Status != TradeEscrowed {
		return ErrInvalidState
	}
	if err := e.settle(trade); err != nil {
		return err
	}
	e.emit(NewSettledEvent(trade))
	return nil
}

// ReclaimAfterTimeout lets the seller collect the escrowed amount when the
// buyer never confirms. The full amount goes to the seller: no marketplace
// fee and no royalty apply on the timeout path.
func (e *Engine) ReclaimAfterTimeout(tradeID [32]byte, caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	trade, err := e.loadTrade(tradeID)
	if err != nil {
		return err
	}
	if trade.Status != TradeEscrowed {
		return ErrInvalidState
	}
	if caller != trade.Seller {
		return ErrUnauthorized
	}
	if e.confirmTimeout <= 0 || e.now() < trade.CreatedAt+e.confirmTimeout {
		return ErrTimeoutNotReached
	}
	splits := []Split{{Recipient: trade.Seller, Amount: new(big.Int).Set(trade.Amount)}}
	if err := e.ledger.Release(trade.ID, splits); err != nil {
		return err
	}
	trade.Status = TradeSettled
	if err := e.state.TradePut(trade); err != nil {
		return err
	}
	e.emit(NewReclaimedEvent(trade))
	return nil
}

// Dispute flags the trade as disputed. Only the buyer or seller may raise a
// dispute, and only while funds are escrowed.
func (e *Engine) Dispute(tradeID [32]byte, caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	trade, err := e.loadTrade(tradeID)
	if err != nil {
		return err
	}
	if caller != trade.Buyer && caller != trade.Seller {
		return ErrUnauthorized
	}
	if trade.Status != TradeEscrowed {
		return ErrInvalidState
	}
	trade.Status = TradeDisputed
	if err := e.state.TradePut(trade); err != nil {
		return err
	}
	e.emit(NewDisputedEvent(trade))
	return nil
}

// ResolveDispute settles a disputed trade according to the operator outcome.
// Valid outcomes are "release" (normal settlement split) and "refund" (full
// amount back to the buyer).
func (e *Engine) ResolveDispute(tradeID [32]byte, caller [20]byte, outcome string) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	trade, err := e.loadTrade(tradeID)
	if err != nil {
		return err
	}
	if e.operator == ([20]byte{}) || caller != e.operator {
		return ErrUnauthorized
	}
	if trade.Status != TradeDisputed {
		return ErrInvalidState
	}
	normalized := strings.ToLower(strings.TrimSpace(outcome))
	switch normalized {
	case "release":
		if err := e.settle(trade); err != nil {
			return err
		}
	case "refund":
		if err := e.ledger.Refund(trade.ID); err != nil {
			return err
		}
		trade.Status = TradeRefunded
		if err := e.state.TradePut(trade); err != nil {
			return err
		}
	default:
		return fmt.Errorf("market: invalid resolution outcome %q", outcome)
	}
	e.emit(NewResolvedEvent(trade, normalized))
	return nil
}

// GetListing returns the listing for the supplied identifier.
func (e *Engine) GetListing(id [32]byte) (*Listing, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.registry.Get(id)
}

// GetTrade returns the trade for the supplied identifier.
func (e *Engine) GetTrade(id [32]byte) (*Trade, error) {
	if e == nil || e.state == nil {
		return nil, errNilEngineState
	}
	trade, ok := e.state.TradeGet(id)
	if !ok {
		return nil, ErrNotFound
	}
	return trade.Clone(), nil
}

func (e *Engine) loadTrade(id [32]byte) (*Trade, error) {
	trade, ok := e.state.TradeGet(id)
	if !ok {
		return nil, ErrNotFound
	}
	return trade, nil
}

// settle computes the three-way split for the trade and releases the escrow.
// Only the first royalty record is consulted; additional records exist for
// forward compatibility.
func (e *Engine) settle(trade *Trade) error {
	if e.resolver == nil {
		return errNilResolver
	}
	records, err := e.resolver.Resolve(trade.Collection)
	if err != nil {
		return err
	}
	var royaltyBps uint32
	var royaltyRecipient [20]byte
	if len(records) > 0 {
		royaltyBps = records[0].ShareBps
		royaltyRecipient = records[0].Recipient
	}
	dist, err := fees.Split(trade.Amount, royaltyBps, e.feeBps)
	if err != nil {
		return err
	}
	splits := []Split{{Recipient: trade.Seller, Amount: dist.Seller}}
	if dist.Royalty.Sign() > 0 {
		splits = append(splits, Split{Recipient: royaltyRecipient, Amount: dist.Royalty})
	}
	if dist.Fee.Sign() > 0 {
		splits = append(splits, Split{Recipient: e.feeRecipient, Amount: dist.Fee})
	}
	if err := e.ledger.Release(trade.ID, splits); err != nil {
		return err
	}
	trade.Status = TradeSettled
	return e.state.TradePut(trade)
}
