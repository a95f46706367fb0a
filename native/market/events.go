package market

import (
	"encoding/hex"
	"strconv"

	"lyxmarket/core/types"
)

const (
	EventTypeListed    = "market.listed"
	EventTypeCancelled = "market.cancelled"
	EventTypePurchased = "market.purchased"
	EventTypeSettled   = "market.settled"
	EventTypeReclaimed = "market.reclaimed"
	EventTypeDisputed  = "market.disputed"
	EventTypeResolved  = "market.resolved"
	EventTypeReleased  = "market.escrow.released"
	EventTypeRefunded  = "market.escrow.refunded"
)

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

// NewListedEvent returns the canonical payload for a newly created listing.
func NewListedEvent(l *Listing) *types.Event { return newListingEvent(EventTypeListed, l) }

// NewCancelledEvent returns the payload emitted when a seller withdraws a
// listing.
func NewCancelledEvent(l *Listing) *types.Event { return newListingEvent(EventTypeCancelled, l) }

// NewPurchasedEvent returns the payload emitted when a buyer escrows payment
// and receives the asset.
func NewPurchasedEvent(t *Trade) *types.Event { return newTradeEvent(EventTypePurchased, t, "") }

// NewSettledEvent returns the payload emitted when a confirmed trade settles.
func NewSettledEvent(t *Trade) *types.Event { return newTradeEvent(EventTypeSettled, t, "") }

// NewReclaimedEvent returns the payload emitted when a seller reclaims an
// unconfirmed trade after the timeout.
func NewReclaimedEvent(t *Trade) *types.Event { return newTradeEvent(EventTypeReclaimed, t, "") }

// NewDisputedEvent returns the payload emitted when a trade is disputed.
func NewDisputedEvent(t *Trade) *types.Event { return newTradeEvent(EventTypeDisputed, t, "") }

// NewResolvedEvent returns the payload emitted when a dispute is resolved.
func NewResolvedEvent(t *Trade, outcome string) *types.Event {
	return newTradeEvent(EventTypeResolved, t, outcome)
}

// NewReleasedEvent returns the payload emitted when escrowed funds are paid
// out.
func NewReleasedEvent(e *Entry) *types.Event { return newEntryEvent(EventTypeReleased, e) }

// NewRefundedEvent returns the payload emitted when escrowed funds return to
// the buyer.
func NewRefundedEvent(e *Entry) *types.Event { return newEntryEvent(EventTypeRefunded, e) }

func newListingEvent(eventType string, l *Listing) *types.Event {
	attrs := make(map[string]string)
	if l == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["listingId"] = hex.EncodeToString(l.ID[:])
	attrs["collection"] = hex.EncodeToString(l.Collection[:])
	attrs["assetId"] = hex.EncodeToString(l.AssetID[:])
	attrs["seller"] = hex.EncodeToString(l.Seller[:])
	if l.Price != nil {
		attrs["price"] = l.Price.String()
	}
	if l.MetadataRef != "" {
		attrs["metadataRef"] = l.MetadataRef
	}
	attrs["createdAt"] = strconv.FormatInt(l.CreatedAt, 10)
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newTradeEvent(eventType string, t *Trade, outcome string) *types.Event {
	attrs := make(map[string]string)
	if t == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["tradeId"] = hex.EncodeToString(t.ID[:])
	attrs["listingId"] = hex.EncodeToString(t.ListingID[:])
	attrs["collection"] = hex.EncodeToString(t.Collection[:])
	attrs["assetId"] = hex.EncodeToString(t.AssetID[:])
	attrs["buyer"] = hex.EncodeToString(t.Buyer[:])
	attrs["seller"] = hex.EncodeToString(t.Seller[:])
	if t.Amount != nil {
		attrs["amount"] = t.Amount.String()
	}
	attrs["createdAt"] = strconv.FormatInt(t.CreatedAt, 10)
	attrs["status"] = t.Status.String()
	if outcome != "" {
		attrs["outcome"] = outcome
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newEntryEvent(eventType string, e *Entry) *types.Event {
	attrs := make(map[string]string)
	if e == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["tradeId"] = hex.EncodeToString(e.TradeID[:])
	attrs["buyer"] = hex.EncodeToString(e.Buyer[:])
	if e.Amount != nil {
		attrs["amount"] = e.Amount.String()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
