package state

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"lyxmarket/core/types"
	"lyxmarket/native/market"
	"lyxmarket/storage"
)

const (
	accountPrefix    = "account/"
	listingPrefix    = "market/listing/"
	activePrefix     = "market/active/"
	tradePrefix      = "market/trade/"
	escrowPrefix     = "market/escrow/"
	ownerPrefix      = "asset/owner/"
	metadataPrefix   = "asset/meta/"
	listingSeqKey    = "market/listing-seq"
	escrowVaultLabel = "market/escrow-vault"
)

var errNilValue = errors.New("state: nil value")

// Manager persists marketplace state in a key-value database with JSON
// codecs. It implements the state interfaces consumed by the listing
// registry, escrow ledger and trade engine, and additionally mirrors asset
// ownership and ERC725Y-style metadata so a daemon can run end to end.
type Manager struct {
	mu sync.RWMutex
	db storage.Database
}

// NewManager wraps the supplied database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func (m *Manager) getJSON(key string, out interface{}) (bool, error) {
	raw, err := m.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %s: %w", key, err)
	}
	return true, nil
}

func (m *Manager) putJSON(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	return m.db.Put([]byte(key), raw)
}

// --- Accounts (payment interface) ---

func accountKey(addr []byte) string {
	return accountPrefix + hex.EncodeToString(addr)
}

func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var acc types.Account
	ok, err := m.getJSON(accountKey(addr), &acc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &types.Account{BalanceLYX: big.NewInt(0)}, nil
	}
	if acc.BalanceLYX == nil {
		acc.BalanceLYX = big.NewInt(0)
	}
	return &acc, nil
}

func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if account == nil {
		return errNilValue
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putJSON(accountKey(addr), account)
}

// Credit adds amount to the balance of addr. Used for genesis funding and
// test fixtures.
func (m *Manager) Credit(addr [20]byte, amount *big.Int) error {
	acc, err := m.GetAccount(addr[:])
	if err != nil {
		return err
	}
	acc.BalanceLYX = new(big.Int).Add(acc.BalanceLYX, amount)
	return m.PutAccount(addr[:], acc)
}

// --- Listings ---

func listingKey(id [32]byte) string {
	return listingPrefix + hex.EncodeToString(id[:])
}

func activeKey(collection [20]byte, assetID [32]byte) string {
	return activePrefix + hex.EncodeToString(collection[:]) + "/" + hex.EncodeToString(assetID[:])
}

func (m *Manager) ListingPut(l *market.Listing) error {
	if l == nil {
		return errNilValue
	}
	sanitized, err := market.SanitizeListing(l)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putJSON(listingKey(sanitized.ID), sanitized)
}

func (m *Manager) ListingGet(id [32]byte) (*market.Listing, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var listing market.Listing
	ok, err := m.getJSON(listingKey(id), &listing)
	if err != nil || !ok {
		return nil, false
	}
	return &listing, true
}

func (m *Manager) ListingActiveGet(collection [20]byte, assetID [32]byte) ([32]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var id [32]byte
	raw, err := m.db.Get([]byte(activeKey(collection, assetID)))
	if err != nil || len(raw) != len(id) {
		return id, false
	}
	copy(id[:], raw)
	return id, true
}

func (m *Manager) ListingActiveSet(collection [20]byte, assetID [32]byte, id [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Put([]byte(activeKey(collection, assetID)), id[:])
}

func (m *Manager) ListingActiveClear(collection [20]byte, assetID [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Delete([]byte(activeKey(collection, assetID)))
}

func (m *Manager) ListingSeqNext() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var seq uint64
	if _, err := m.getJSON(listingSeqKey, &seq); err != nil {
		return 0, err
	}
	seq++
	if err := m.putJSON(listingSeqKey, seq); err != nil {
		return 0, err
	}
	return seq, nil
}

// --- Trades ---

func tradeKey(id [32]byte) string {
	return tradePrefix + hex.EncodeToString(id[:])
}

func (m *Manager) TradePut(t *market.Trade) error {
	if t == nil {
		return errNilValue
	}
	sanitized, err := market.SanitizeTrade(t)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putJSON(tradeKey(sanitized.ID), sanitized)
}

func (m *Manager) TradeGet(id [32]byte) (*market.Trade, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var trade market.Trade
	ok, err := m.getJSON(tradeKey(id), &trade)
	if err != nil || !ok {
		return nil, false
	}
	return &trade, true
}

// --- Escrow entries ---

func escrowKey(tradeID [32]byte) string {
	return escrowPrefix + hex.EncodeToString(tradeID[:])
}

func (m *Manager) EscrowEntryPut(e *market.Entry) error {
	if e == nil {
		return errNilValue
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putJSON(escrowKey(e.TradeID), e)
}

func (m *Manager) EscrowEntryGet(tradeID [32]byte) (*market.Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var entry market.Entry
	ok, err := m.getJSON(escrowKey(tradeID), &entry)
	if err != nil || !ok {
		return nil, false
	}
	return &entry, true
}

func (m *Manager) EscrowEntryDelete(tradeID [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Delete([]byte(escrowKey(tradeID)))
}

// EscrowVaultAddress returns the module account custodying escrowed funds.
// The address is derived deterministically from a fixed label so that no key
// material controls the vault.
func (m *Manager) EscrowVaultAddress() ([20]byte, error) {
	var addr [20]byte
	hash := ethcrypto.Keccak256([]byte(escrowVaultLabel))
	copy(addr[:], hash[12:])
	return addr, nil
}

// --- Asset ownership mirror ---

func ownerKey(collection [20]byte, assetID [32]byte) string {
	return ownerPrefix + hex.EncodeToString(collection[:]) + "/" + hex.EncodeToString(assetID[:])
}

// SetAssetOwner records the owner of an asset. Used to seed the mirror from
// genesis fixtures; minting itself is not a marketplace concern.
func (m *Manager) SetAssetOwner(collection [20]byte, assetID [32]byte, owner [20]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Put([]byte(ownerKey(collection, assetID)), owner[:])
}

func (m *Manager) OwnerOf(collection [20]byte, assetID [32]byte) ([20]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var owner [20]byte
	raw, err := m.db.Get([]byte(ownerKey(collection, assetID)))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return owner, fmt.Errorf("state: asset %x/%x has no recorded owner", collection, assetID)
		}
		return owner, err
	}
	if len(raw) != len(owner) {
		return owner, fmt.Errorf("state: corrupt owner record for %x/%x", collection, assetID)
	}
	copy(owner[:], raw)
	return owner, nil
}

func (m *Manager) Transfer(collection [20]byte, assetID [32]byte, from, to [20]byte) error {
	current, err := m.OwnerOf(collection, assetID)
	if err != nil {
		return err
	}
	if current != from {
		return fmt.Errorf("state: transfer from %x but owner is %x", from, current)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Put([]byte(ownerKey(collection, assetID)), to[:])
}

// --- Metadata mirror ---

func metadataKey(collection [20]byte, key [32]byte) string {
	return metadataPrefix + hex.EncodeToString(collection[:]) + "/" + hex.EncodeToString(key[:])
}

// SetData records raw metadata for a collection under the supplied data key.
func (m *Manager) SetData(collection [20]byte, key [32]byte, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Put([]byte(metadataKey(collection, key)), value)
}

// GetData reads raw metadata; missing keys resolve to empty data.
func (m *Manager) GetData(collection [20]byte, key [32]byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, err := m.db.Get([]byte(metadataKey(collection, key)))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	return raw, err
}
