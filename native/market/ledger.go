package market

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"lyxmarket/core/events"
	"lyxmarket/core/types"
)

var errNilLedgerState = errors.New("escrow ledger: state not configured")

type ledgerState interface {
	EscrowEntryPut(*Entry) error
	EscrowEntryGet(tradeID [32]byte) (*Entry, bool)
	EscrowEntryDelete(tradeID [32]byte) error
	EscrowVaultAddress() ([20]byte, error)
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

// Ledger custodies buyer funds for trades until settlement or refund. The
// trade engine decides when money moves; the ledger is the sole arbiter that
// conservation holds: a release only happens with splits summing exactly to
// the held amount.
type Ledger struct {
	mu      sync.Mutex
	state   ledgerState
	emitter events.Emitter
}

// NewLedger creates an escrow ledger with a no-op emitter.
func NewLedger() *Ledger {
	return &Ledger{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the ledger.
func (l *Ledger) SetState(state ledgerState) { l.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) emit(evt *types.Event) {
	if l == nil || l.emitter == nil || evt == nil {
		return
	}
	l.emitter.Emit(marketEvent{evt: evt})
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return &types.Account{BalanceLYX: big.NewInt(0)}
	}
	if acc.BalanceLYX == nil {
		acc.BalanceLYX = big.NewInt(0)
	}
	return acc
}

func (l *Ledger) transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("market: negative transfer amount")
	}
	fromAcc, err := l.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := l.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	fromAcc = ensureAccount(fromAcc)
	toAcc = ensureAccount(toAcc)
	if fromAcc.BalanceLYX.Cmp(amount) < 0 {
		return fmt.Errorf("market: insufficient balance: %w", ErrInsufficientPayment)
	}
	fromAcc.BalanceLYX = new(big.Int).Sub(fromAcc.BalanceLYX, amount)
	toAcc.BalanceLYX = new(big.Int).Add(toAcc.BalanceLYX, amount)
	if err := l.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return l.state.PutAccount(to[:], toAcc)
}

// Hold moves amount from the buyer into the vault and records it as held for
// the trade. An entry may only be held once per trade.
func (l *Ledger) Hold(tradeID [32]byte, buyer [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilLedgerState
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("market: held amount must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.state.EscrowEntryGet(tradeID); ok {
		return ErrAlreadyHeld
	}
	vault, err := l.state.EscrowVaultAddress()
	if err != nil {
		return err
	}
	if err := l.transfer(buyer, vault, amount); err != nil {
		return err
	}
	entry := &Entry{
		TradeID: tradeID,
		Buyer:   buyer,
		Amount:  new(big.Int).Set(amount),
		Status:  EntryHeld,
	}
	return l.state.EscrowEntryPut(entry)
}

// Release pays the held amount out to the supplied recipients in order. The
// splits must sum exactly to the held amount; the check is never relaxed for
// rounding, so distributors must account for every unit.
func (l *Ledger) Release(tradeID [32]byte, splits []Split) error {
	if l == nil || l.state == nil {
		return errNilLedgerState
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.state.EscrowEntryGet(tradeID)
	if !ok || entry.Status != EntryHeld {
		return ErrNotHeld
	}
	total := big.NewInt(0)
	for _, split := range splits {
		if split.Amount == nil || split.Amount.Sign() < 0 {
			return fmt.Errorf("market: split amount must be non-negative")
		}
		total.Add(total, split.Amount)
	}
	if total.Cmp(entry.Amount) != 0 {
		return fmt.Errorf("%w: splits %s against held %s", ErrSplitMismatch, total, entry.Amount)
	}
	vault, err := l.state.EscrowVaultAddress()
	if err != nil {
		return err
	}
	for _, split := range splits {
		if err := l.transfer(vault, split.Recipient, split.Amount); err != nil {
			return err
		}
	}
	entry.Status = EntryReleased
	if err := l.state.EscrowEntryPut(entry); err != nil {
		return err
	}
	l.emit(NewReleasedEvent(entry))
	return nil
}

// Refund returns the full held amount to the buyer.
func (l *Ledger) Refund(tradeID [32]byte) error {
	if l == nil || l.state == nil {
		return errNilLedgerState
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.state.EscrowEntryGet(tradeID)
	if !ok || entry.Status != EntryHeld {
		return ErrNotHeld
	}
	vault, err := l.state.EscrowVaultAddress()
	if err != nil {
		return err
	}
	if err := l.transfer(vault, entry.Buyer, entry.Amount); err != nil {
		return err
	}
	entry.Status = EntryRefunded
	if err := l.state.EscrowEntryPut(entry); err != nil {
		return err
	}
	l.emit(NewRefundedEvent(entry))
	return nil
}

// cancelHold unwinds a hold during purchase rollback: funds go back to the
// buyer and the entry is removed as if the hold had never been attempted.
func (l *Ledger) cancelHold(tradeID [32]byte) error {
	if l == nil || l.state == nil {
		return errNilLedgerState
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.state.EscrowEntryGet(tradeID)
	if !ok || entry.Status != EntryHeld {
		return ErrNotHeld
	}
	vault, err := l.state.EscrowVaultAddress()
	if err != nil {
		return err
	}
	if err := l.transfer(vault, entry.Buyer, entry.Amount); err != nil {
		return err
	}
	return l.state.EscrowEntryDelete(tradeID)
}

// Entry returns the escrow entry recorded for the trade, if any.
func (l *Ledger) Entry(tradeID [32]byte) (*Entry, bool) {
	if l == nil || l.state == nil {
		return nil, false
	}
	entry, ok := l.state.EscrowEntryGet(tradeID)
	if !ok {
		return nil, false
	}
	return entry.Clone(), true
}
