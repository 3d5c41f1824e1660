package lockcore

// Decision is the outcome of a successful Decide call: the mode granted and
// whether it was an upgrade (which does not consume budget). Every grant
// that is not an upgrade is a fresh acquisition of the row.
type Decision struct {
	Mode     Mode
	Upgraded bool
}

// AbortOutcome describes the side effects of an aborted transaction: every
// row it held is released, and the rows whose Lock became Free as a result
// are returned so the caller can evict them from the LockTable. The
// transaction itself always becomes eligible for TransactionTable eviction
// on abort.
type AbortOutcome struct {
	FreedRows []uint64
}

// Decide resolves a single (tx, rowID, requestedMode) lock request against
// a fixed check order:
//
//  1. (caller's responsibility: tx must already be looked up — Decide never
//     creates a Transaction; a missing tx is reported by the caller as
//     KindNotRegistered before Decide is ever invoked)
//  2. 2PL phase: Growing required.
//  3. Budget: budgetRemaining > 0 required.
//  4. Upgrade: owns row, requests Exclusive, lock is Shared.
//  5. Fresh acquisition: does not own the row.
//  6. Otherwise: redundant request — DoubleAcquire.
//
// On any failure besides the precondition in (1), the transaction is
// aborted: abort releases every lock the transaction holds (not just
// rowID) via fetch, and the returned error's Aborts() is true so the
// caller knows to evict the transaction from the TransactionTable.
func Decide(tx *Transaction, rowID uint64, mode Mode, lock *Lock, fetch LockFetcher) (Decision, *AbortOutcome, error) {
	if tx.Phase() != Growing {
		out := tx.ReleaseAll(fetch)
		return Decision{}, &AbortOutcome{FreedRows: out}, newErr(KindPhaseViolation, tx.ID(), rowID, "lock requested outside growing phase")
	}

	if tx.BudgetRemaining() == 0 {
		out := tx.ReleaseAll(fetch)
		return Decision{}, &AbortOutcome{FreedRows: out}, newErr(KindBudgetExhausted, tx.ID(), rowID, "lock budget exhausted")
	}

	owns := tx.HasLock(rowID)

	if owns && mode == Exclusive && lock.Mode() == Shared {
		if lock.Upgrade(tx.ID()) {
			return Decision{Mode: Exclusive, Upgraded: true}, nil, nil
		}
		out := tx.ReleaseAll(fetch)
		return Decision{}, &AbortOutcome{FreedRows: out}, newErr(KindUpgradeBlocked, tx.ID(), rowID, "shared lock has other co-holders")
	}

	if !owns {
		if tx.AddLock(rowID, mode, lock) {
			return Decision{Mode: mode}, nil, nil
		}
		out := tx.ReleaseAll(fetch)
		return Decision{}, &AbortOutcome{FreedRows: out}, newErr(KindModeConflict, tx.ID(), rowID, "requested mode conflicts with current lock state")
	}

	// tx already owns rowID in a mode compatible with the request and this
	// is not an upgrade: a redundant reacquire, treated as a client bug.
	out := tx.ReleaseAll(fetch)
	return Decision{}, &AbortOutcome{FreedRows: out}, newErr(KindDoubleAcquire, tx.ID(), rowID, "transaction already holds this row")
}

// Release resolves an unlock(tx, rowID) request. It is idempotent: a no-op
// if the transaction does not hold rowID; otherwise it delegates to
// Transaction.ReleaseLock and reports whether the Lock became Free, so the
// caller can evict it.
func Release(tx *Transaction, rowID uint64, lock *Lock) (held, lockNowFree bool) {
	return tx.ReleaseLock(rowID, lock)
}
