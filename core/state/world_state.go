package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/guillotine/guillotine/core/types"
	"github.com/holiman/uint256"
)

// StateErrorKind identifies the category of a journaled-state failure, the
// StateError{Storage, OpenSnapshot, AccountMissing} taxonomy.
type StateErrorKind int

const (
	StateErrorStorage StateErrorKind = iota
	StateErrorOpenSnapshot
	StateErrorAccountMissing
)

func (k StateErrorKind) String() string {
	switch k {
	case StateErrorStorage:
		return "storage"
	case StateErrorOpenSnapshot:
		return "open_snapshot"
	case StateErrorAccountMissing:
		return "account_missing"
	default:
		return "unknown"
	}
}

// StateError reports a C3 failure tagged with its taxonomy kind.
type StateError struct {
	Kind StateErrorKind
	Addr types.Address
	Err  error
}

func (e *StateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("state: %s %s: %v", e.Kind, e.Addr.Hex(), e.Err)
	}
	return fmt.Sprintf("state: %s %s", e.Kind, e.Addr.Hex())
}

func (e *StateError) Unwrap() error { return e.Err }

// ErrOpenSnapshot is the sentinel wrapped by StateRoot's StateError when the
// transaction stack is non-empty.
var ErrOpenSnapshot = errors.New("state_root called with an open snapshot stack")

// Account is the C3 account record. Balance is a fixed-width uint256.Int
// rather than math/big.Int: it is the value type the rest of this module's
// go-ethereum-derived stack already declares, and it matches the 256-bit
// width the EVM's account model actually has.
type Account struct {
	Nonce    uint64
	Balance  *uint256.Int
	CodeHash types.Hash
	Code     []byte
}

// EmptyAccount is the sentinel GetAccount returns for addresses with no
// stored record. Per invariant I3 it is never inserted into the trie:
// missing is equivalent to EmptyAccount for reads, but
// SetAccount(addr, &EmptyAccount) deletes.
func EmptyAccount() Account {
	return Account{Balance: uint256.NewInt(0), CodeHash: types.EmptyCodeHash}
}

func (a Account) isEmpty() bool {
	return a.Nonce == 0 &&
		(a.Balance == nil || a.Balance.IsZero()) &&
		a.CodeHash == types.EmptyCodeHash
}

// WorldState is the journaled world state (C3): a nested begin/commit/
// rollback transaction stack layered over MemoryStateDB's int-keyed
// snapshot journal, with EIP-161 touched-empty deletion and EIP-6780
// created_accounts gating on DestroyAccount.
//
// The low-level engine (MemoryStateDB, journal, StateObject, access lists)
// remains math/big-denominated internally — it backs the go-ethereum-style
// vm.StateDB interface consumed throughout core/, node/, and rpc/. WorldState
// is the boundary that exposes the uint256-denominated, explicitly-nested
// operation set this package's domain actually calls for; conversions happen
// at the edges of this file, not by duplicating the storage engine.
type WorldState struct {
	db      *MemoryStateDB
	stack   []int
	touched map[types.Address]struct{}
}

// NewWorldState creates an empty journaled world state.
func NewWorldState() *WorldState {
	return &WorldState{
		db:      NewMemoryStateDB(),
		touched: make(map[types.Address]struct{}),
	}
}

// Underlying exposes the MemoryStateDB/vm.StateDB this WorldState wraps, for
// code (the EVM, block processor) that still speaks the wider interface.
func (w *WorldState) Underlying() *MemoryStateDB { return w.db }

func bigToUint256(b *big.Int) *uint256.Int {
	u, _ := uint256.FromBig(b)
	return u
}

func uint256ToBig(u *uint256.Int) *big.Int {
	if u == nil {
		return new(big.Int)
	}
	return u.ToBig()
}

func (w *WorldState) markTouched(addr types.Address) {
	w.touched[addr] = struct{}{}
}

// GetAccount returns the stored record for addr, or EmptyAccount if addr does
// not exist — the non-existent and empty-but-present cases are not
// distinguished. Use GetAccountOptional to preserve that distinction.
func (w *WorldState) GetAccount(addr types.Address) Account {
	acct, ok := w.GetAccountOptional(addr)
	if !ok {
		return EmptyAccount()
	}
	return acct
}

// GetAccountOptional returns the stored record for addr and whether it
// exists, preserving the non-existent vs. empty distinction that GetAccount
// collapses.
func (w *WorldState) GetAccountOptional(addr types.Address) (Account, bool) {
	if !w.db.Exist(addr) {
		return Account{}, false
	}
	return Account{
		Nonce:    w.db.GetNonce(addr),
		Balance:  bigToUint256(w.db.GetBalance(addr)),
		CodeHash: w.db.GetCodeHash(addr),
		Code:     w.db.GetCode(addr),
	}, true
}

// SetAccount stores acct at addr. Passing nil deletes the account; the
// deletion is journaled like any other mutation (I1).
func (w *WorldState) SetAccount(addr types.Address, acct *Account) {
	w.markTouched(addr)
	if acct == nil {
		w.db.DestroyAccount(addr)
		return
	}
	if !w.db.Exist(addr) {
		w.db.CreateAccount(addr)
	}
	w.db.SetNonce(addr, acct.Nonce)
	cur := bigToUint256(w.db.GetBalance(addr))
	target := acct.Balance
	if target == nil {
		target = uint256.NewInt(0)
	}
	switch cur.Cmp(target) {
	case -1:
		delta := new(uint256.Int).Sub(target, cur)
		w.db.AddBalance(addr, uint256ToBig(delta))
	case 1:
		delta := new(uint256.Int).Sub(cur, target)
		w.db.SubBalance(addr, uint256ToBig(delta))
	}
	if acct.Code != nil {
		w.db.SetCode(addr, acct.Code)
	}
}

// DestroyAccount removes addr's account and its entire storage trie.
// Per EIP-6780, the removal only takes effect when addr is in the current
// transaction's created_accounts set (i.e. the contract was deployed earlier
// in this same top-level transaction); otherwise only the balance transfer
// to beneficiary is observable and the account record survives.
func (w *WorldState) DestroyAccount(addr, beneficiary types.Address) {
	w.markTouched(addr)
	if !w.db.Exist(addr) {
		return
	}
	bal := w.db.GetBalance(addr)
	if bal.Sign() != 0 && addr != beneficiary {
		w.db.SubBalance(addr, bal)
		w.db.AddBalance(beneficiary, bal)
		w.markTouched(beneficiary)
	}
	if !w.db.WasCreated(addr) {
		return
	}
	w.db.DestroyAccount(addr)
}

// GetStorage returns the current value of key for addr, zero if unset.
func (w *WorldState) GetStorage(addr types.Address, key types.Hash) types.Hash {
	return w.db.GetState(addr, key)
}

// SetStorage sets key to v for addr. v == zero deletes the slot.
func (w *WorldState) SetStorage(addr types.Address, key, v types.Hash) {
	w.markTouched(addr)
	w.db.SetState(addr, key, v)
}

// GetStorageOriginal returns key's value as of the start of the current
// top-level transaction (the SSTORE "original value" used for gas refunds).
func (w *WorldState) GetStorageOriginal(addr types.Address, key types.Hash) types.Hash {
	return w.db.GetCommittedState(addr, key)
}

// GetTransient returns addr's transient-storage value at key, scoped to the
// current transaction (EIP-1153).
func (w *WorldState) GetTransient(addr types.Address, key types.Hash) types.Hash {
	return w.db.GetTransientState(addr, key)
}

// SetTransient sets addr's transient-storage value at key.
func (w *WorldState) SetTransient(addr types.Address, key, v types.Hash) {
	w.db.SetTransientState(addr, key, v)
}

// MarkCreated records that addr was created within the current top-level
// transaction (EIP-6780), gating whether a later DestroyAccount actually
// removes the account or only transfers its balance.
func (w *WorldState) MarkCreated(addr types.Address) {
	w.db.MarkCreated(addr)
}

// BeginTransaction pushes a new snapshot onto the nesting stack and returns
// its depth (1 for the outermost transaction). Nests legally: an arbitrary
// number of begin_transaction calls may be open at once.
func (w *WorldState) BeginTransaction() int {
	id := w.db.Snapshot()
	w.stack = append(w.stack, id)
	return len(w.stack)
}

// CommitTransaction pops the innermost open transaction, keeping its changes.
// At depth 0 (the outermost transaction committing) the created_accounts set
// and the touched-account bookkeeping are finalized: EIP-161 sweeps any
// touched account that ended the transaction empty, then both sets clear.
func (w *WorldState) CommitTransaction() error {
	if len(w.stack) == 0 {
		return &StateError{Kind: StateErrorStorage, Err: errors.New("commit_transaction: no open transaction")}
	}
	w.stack = w.stack[:len(w.stack)-1]
	if len(w.stack) == 0 {
		w.sweepTouchedEmpty()
		w.db.ClearCreatedAccounts()
		w.touched = make(map[types.Address]struct{})
	}
	return nil
}

// RollbackTransaction restores state to the matching begin_transaction,
// including every observable value: accounts, storage, transient storage,
// and the created_accounts set (I1). At depth 0 the created_accounts and
// touched sets are cleared (the entire top-level transaction is gone).
func (w *WorldState) RollbackTransaction() error {
	if len(w.stack) == 0 {
		return &StateError{Kind: StateErrorStorage, Err: errors.New("rollback_transaction: no open transaction")}
	}
	id := w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]
	w.db.RevertToSnapshot(id)
	if len(w.stack) == 0 {
		w.db.ClearCreatedAccounts()
		w.touched = make(map[types.Address]struct{})
	}
	return nil
}

// sweepTouchedEmpty implements EIP-161: any account touched by a
// state-changing operation during this top-level transaction that ended
// empty (nonce 0, zero balance, no code) is deleted.
func (w *WorldState) sweepTouchedEmpty() {
	for addr := range w.touched {
		if w.db.Exist(addr) && w.db.Empty(addr) {
			w.db.DestroyAccount(addr)
		}
	}
}

// StateRoot computes the state trie root. Fails with a StateError wrapping
// ErrOpenSnapshot while any begin_transaction is still unmatched (root is
// forbidden while a snapshot is active on the owning state).
func (w *WorldState) StateRoot() (types.Hash, error) {
	if len(w.stack) != 0 {
		return types.Hash{}, &StateError{Kind: StateErrorOpenSnapshot, Err: ErrOpenSnapshot}
	}
	return w.db.GetRoot(), nil
}
