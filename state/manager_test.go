package state

import (
	"math/big"
	"testing"

	"lyxmarket/native/market"
	"lyxmarket/native/royalty"
	"lyxmarket/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(storage.NewMemDB())
}

func addr(b byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = b
	}
	return out
}

func hash(b byte) [32]byte {
	var out [32]byte
	for i := range out {
		out[i] = b
	}
	return out
}

func TestAccountRoundTrip(t *testing.T) {
	manager := newTestManager(t)
	owner := addr(0x01)

	acc, err := manager.GetAccount(owner[:])
	if err != nil {
		t.Fatalf("get missing account: %v", err)
	}
	if acc.BalanceLYX.Sign() != 0 {
		t.Fatalf("fresh account has balance %s", acc.BalanceLYX)
	}

	if err := manager.Credit(owner, big.NewInt(12345)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	acc, err = manager.GetAccount(owner[:])
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if acc.BalanceLYX.Int64() != 12345 {
		t.Fatalf("balance = %s, want 12345", acc.BalanceLYX)
	}
}

func TestListingRoundTrip(t *testing.T) {
	manager := newTestManager(t)
	listing := &market.Listing{
		ID:          hash(0x01),
		Collection:  addr(0x02),
		AssetID:     hash(0x03),
		Seller:      addr(0x04),
		Price:       big.NewInt(777),
		MetadataRef: "ipfs://meta",
		Active:      true,
		CreatedAt:   1_700_000_000,
	}
	if err := manager.ListingPut(listing); err != nil {
		t.Fatalf("put listing: %v", err)
	}
	stored, ok := manager.ListingGet(listing.ID)
	if !ok {
		t.Fatalf("listing not found")
	}
	if stored.Price.Int64() != 777 || !stored.Active || stored.MetadataRef != "ipfs://meta" {
		t.Fatalf("unexpected listing %+v", stored)
	}
	if _, ok := manager.ListingGet(hash(0xff)); ok {
		t.Fatalf("found listing that was never stored")
	}
}

func TestListingActiveIndex(t *testing.T) {
	manager := newTestManager(t)
	collection := addr(0x01)
	assetID := hash(0x02)
	listingID := hash(0x03)

	if _, ok := manager.ListingActiveGet(collection, assetID); ok {
		t.Fatalf("active index populated before set")
	}
	if err := manager.ListingActiveSet(collection, assetID, listingID); err != nil {
		t.Fatalf("set active: %v", err)
	}
	got, ok := manager.ListingActiveGet(collection, assetID)
	if !ok || got != listingID {
		t.Fatalf("active index = %x ok=%v", got, ok)
	}
	if err := manager.ListingActiveClear(collection, assetID); err != nil {
		t.Fatalf("clear active: %v", err)
	}
	if _, ok := manager.ListingActiveGet(collection, assetID); ok {
		t.Fatalf("active index survived clear")
	}
}

func TestListingSeqMonotonic(t *testing.T) {
	manager := newTestManager(t)
	first, err := manager.ListingSeqNext()
	if err != nil {
		t.Fatalf("seq next: %v", err)
	}
	second, err := manager.ListingSeqNext()
	if err != nil {
		t.Fatalf("seq next: %v", err)
	}
	if second != first+1 {
		t.Fatalf("sequence not monotonic: %d then %d", first, second)
	}
}

func TestTradeRoundTrip(t *testing.T) {
	manager := newTestManager(t)
	trade := &market.Trade{
		ID:         hash(0x01),
		ListingID:  hash(0x02),
		Collection: addr(0x03),
		AssetID:    hash(0x04),
		Buyer:      addr(0x05),
		Seller:     addr(0x06),
		Amount:     big.NewInt(555),
		CreatedAt:  1_700_000_000,
		Status:     market.TradeEscrowed,
	}
	if err := manager.TradePut(trade); err != nil {
		t.Fatalf("put trade: %v", err)
	}
	stored, ok := manager.TradeGet(trade.ID)
	if !ok {
		t.Fatalf("trade not found")
	}
	if stored.Status != market.TradeEscrowed || stored.Amount.Int64() != 555 {
		t.Fatalf("unexpected trade %+v", stored)
	}
}

func TestEscrowEntryLifecycle(t *testing.T) {
	manager := newTestManager(t)
	entry := &market.Entry{
		TradeID: hash(0x01),
		Buyer:   addr(0x02),
		Amount:  big.NewInt(900),
		Status:  market.EntryHeld,
	}
	if err := manager.EscrowEntryPut(entry); err != nil {
		t.Fatalf("put entry: %v", err)
	}
	stored, ok := manager.EscrowEntryGet(entry.TradeID)
	if !ok || stored.Amount.Int64() != 900 {
		t.Fatalf("unexpected entry %+v ok=%v", stored, ok)
	}
	if err := manager.EscrowEntryDelete(entry.TradeID); err != nil {
		t.Fatalf("delete entry: %v", err)
	}
	if _, ok := manager.EscrowEntryGet(entry.TradeID); ok {
		t.Fatalf("entry survived delete")
	}
}

func TestEscrowVaultAddressIsStable(t *testing.T) {
	manager := newTestManager(t)
	first, err := manager.EscrowVaultAddress()
	if err != nil {
		t.Fatalf("vault address: %v", err)
	}
	second, err := manager.EscrowVaultAddress()
	if err != nil {
		t.Fatalf("vault address: %v", err)
	}
	if first != second {
		t.Fatalf("vault address not deterministic")
	}
	if first == ([20]byte{}) {
		t.Fatalf("vault address is zero")
	}
}

func TestAssetOwnershipTransfer(t *testing.T) {
	manager := newTestManager(t)
	collection := addr(0x01)
	assetID := hash(0x02)
	alice := addr(0x03)
	bob := addr(0x04)

	if err := manager.SetAssetOwner(collection, assetID, alice); err != nil {
		t.Fatalf("set owner: %v", err)
	}
	owner, err := manager.OwnerOf(collection, assetID)
	if err != nil || owner != alice {
		t.Fatalf("owner = %x (%v)", owner, err)
	}
	if err := manager.Transfer(collection, assetID, bob, alice); err == nil {
		t.Fatalf("transfer from non-owner succeeded")
	}
	if err := manager.Transfer(collection, assetID, alice, bob); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	owner, err = manager.OwnerOf(collection, assetID)
	if err != nil || owner != bob {
		t.Fatalf("owner after transfer = %x (%v)", owner, err)
	}
}

func TestMetadataStore(t *testing.T) {
	manager := newTestManager(t)
	collection := addr(0x01)

	data, err := manager.GetData(collection, royalty.RecipientsKey)
	if err != nil {
		t.Fatalf("get missing data: %v", err)
	}
	if data != nil {
		t.Fatalf("expected nil payload for unset key")
	}

	payload := royalty.Encode(royalty.Record{ShareBps: 1500})
	if err := manager.SetData(collection, royalty.RecipientsKey, payload); err != nil {
		t.Fatalf("set data: %v", err)
	}
	records, err := royalty.NewResolver(manager).Resolve(collection)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(records) != 1 || records[0].ShareBps != 1500 {
		t.Fatalf("unexpected records %+v", records)
	}
}
