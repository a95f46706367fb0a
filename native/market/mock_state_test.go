package market

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"lyxmarket/core/events"
	"lyxmarket/core/types"
	"lyxmarket/native/royalty"
)

// mockState is an in-memory engineState plus the external asset ownership and
// metadata surfaces, so engine tests run without a database.
type mockState struct {
	listings map[[32]byte]*Listing
	active   map[string][32]byte
	seq      uint64
	trades   map[[32]byte]*Trade
	entries  map[[32]byte]*Entry
	accounts map[string]*types.Account
	owners   map[string][20]byte
	metadata map[[20]byte][]byte
	vault    [20]byte

	transferErr   error
	transferLog   []string
	listingPutErr error
}

func newMockState() *mockState {
	vault := newTestAddress(0xfe)
	return &mockState{
		listings: make(map[[32]byte]*Listing),
		active:   make(map[string][32]byte),
		trades:   make(map[[32]byte]*Trade),
		entries:  make(map[[32]byte]*Entry),
		accounts: make(map[string]*types.Account),
		owners:   make(map[string][20]byte),
		metadata: make(map[[20]byte][]byte),
		vault:    vault,
	}
}

func assetKey(collection [20]byte, assetID [32]byte) string {
	return hex.EncodeToString(collection[:]) + "/" + hex.EncodeToString(assetID[:])
}

func (m *mockState) ListingPut(l *Listing) error {
	if m.listingPutErr != nil {
		return m.listingPutErr
	}
	m.listings[l.ID] = l.Clone()
	return nil
}

func (m *mockState) ListingGet(id [32]byte) (*Listing, bool) {
	l, ok := m.listings[id]
	if !ok {
		return nil, false
	}
	return l.Clone(), true
}

func (m *mockState) ListingActiveGet(collection [20]byte, assetID [32]byte) ([32]byte, bool) {
	id, ok := m.active[assetKey(collection, assetID)]
	return id, ok
}

func (m *mockState) ListingActiveSet(collection [20]byte, assetID [32]byte, id [32]byte) error {
	m.active[assetKey(collection, assetID)] = id
	return nil
}

func (m *mockState) ListingActiveClear(collection [20]byte, assetID [32]byte) error {
	delete(m.active, assetKey(collection, assetID))
	return nil
}

func (m *mockState) ListingSeqNext() (uint64, error) {
	m.seq++
	return m.seq, nil
}

func (m *mockState) TradePut(t *Trade) error {
	m.trades[t.ID] = t.Clone()
	return nil
}

func (m *mockState) TradeGet(id [32]byte) (*Trade, bool) {
	t, ok := m.trades[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

func (m *mockState) EscrowEntryPut(e *Entry) error {
	m.entries[e.TradeID] = e.Clone()
	return nil
}

func (m *mockState) EscrowEntryGet(tradeID [32]byte) (*Entry, bool) {
	e, ok := m.entries[tradeID]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

func (m *mockState) EscrowEntryDelete(tradeID [32]byte) error {
	delete(m.entries, tradeID)
	return nil
}

func (m *mockState) EscrowVaultAddress() ([20]byte, error) {
	return m.vault, nil
}

func (m *mockState) GetAccount(addr []byte) (*types.Account, error) {
	acc, ok := m.accounts[hex.EncodeToString(addr)]
	if !ok {
		return &types.Account{BalanceLYX: big.NewInt(0)}, nil
	}
	return acc.Clone(), nil
}

func (m *mockState) PutAccount(addr []byte, account *types.Account) error {
	m.accounts[hex.EncodeToString(addr)] = account.Clone()
	return nil
}

func (m *mockState) OwnerOf(collection [20]byte, assetID [32]byte) ([20]byte, error) {
	owner, ok := m.owners[assetKey(collection, assetID)]
	if !ok {
		return [20]byte{}, errors.New("asset unknown")
	}
	return owner, nil
}

func (m *mockState) Transfer(collection [20]byte, assetID [32]byte, from, to [20]byte) error {
	if m.transferErr != nil {
		return m.transferErr
	}
	key := assetKey(collection, assetID)
	owner, ok := m.owners[key]
	if !ok || owner != from {
		return errors.New("transfer from non-owner")
	}
	m.owners[key] = to
	m.transferLog = append(m.transferLog, fmt.Sprintf("%x->%x", from[:2], to[:2]))
	return nil
}

func (m *mockState) GetData(collection [20]byte, key [32]byte) ([]byte, error) {
	if key != royalty.RecipientsKey {
		return nil, nil
	}
	return m.metadata[collection], nil
}

func (m *mockState) setOwner(collection [20]byte, assetID [32]byte, owner [20]byte) {
	m.owners[assetKey(collection, assetID)] = owner
}

func (m *mockState) credit(addr [20]byte, amount int64) {
	m.accounts[hex.EncodeToString(addr[:])] = &types.Account{BalanceLYX: big.NewInt(amount)}
}

func (m *mockState) balance(addr [20]byte) *big.Int {
	acc, ok := m.accounts[hex.EncodeToString(addr[:])]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(acc.BalanceLYX)
}

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

func (c *capturingEmitter) types() []string {
	out := make([]string, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, evt.EventType())
	}
	return out
}

func newTestAddress(b byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = b
	}
	return addr
}

func newTestAsset(b byte) [32]byte {
	var id [32]byte
	for i := range id {
		id[i] = b
	}
	return id
}
