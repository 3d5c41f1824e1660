package lockcore

// Phase is a transaction's position in strict two-phase locking.
type Phase int

const (
	// Growing transactions may acquire new locks.
	Growing Phase = iota
	// Shrinking transactions may only release locks they already hold.
	Shrinking
	// Aborted transactions are terminal: evicted from the TransactionTable,
	// holding no locks anywhere.
	Aborted
)

func (p Phase) String() string {
	switch p {
	case Growing:
		return "growing"
	case Shrinking:
		return "shrinking"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// LockFetcher resolves a row ID to its current Lock, mirroring a LockTable
// lookup. Transaction never owns Locks directly — it holds only row-id
// references and always reaches the Locks themselves through a fetch
// callback supplied by the caller that actually owns the table.
type LockFetcher func(rowID uint64) (*Lock, bool)

// Transaction is the per-transaction 2PL state: phase, the set of rows it
// currently holds, and its remaining lock budget.
type Transaction struct {
	id              uint64
	phase           Phase
	lockedRows      map[uint64]struct{}
	budgetInitial   uint32
	budgetRemaining uint32
}

// NewTransaction creates a fresh Growing-phase transaction with the given
// lock budget.
func NewTransaction(id uint64, budget uint32) *Transaction {
	return &Transaction{
		id:              id,
		phase:           Growing,
		lockedRows:      make(map[uint64]struct{}),
		budgetInitial:   budget,
		budgetRemaining: budget,
	}
}

func (t *Transaction) ID() uint64               { return t.id }
func (t *Transaction) Phase() Phase             { return t.phase }
func (t *Transaction) BudgetInitial() uint32    { return t.budgetInitial }
func (t *Transaction) BudgetRemaining() uint32  { return t.budgetRemaining }
func (t *Transaction) LockCount() int           { return len(t.lockedRows) }

// HasLock reports whether the transaction currently holds rowID.
func (t *Transaction) HasLock(rowID uint64) bool {
	_, ok := t.lockedRows[rowID]
	return ok
}

// LockedRows returns a snapshot of the currently held row IDs.
func (t *Transaction) LockedRows() []uint64 {
	rows := make([]uint64, 0, len(t.lockedRows))
	for r := range t.lockedRows {
		rows = append(rows, r)
	}
	return rows
}

// AddLock attempts a fresh acquisition of rowID in mode against lock.
// Preconditions (all must hold, else returns false with no mutation):
// phase is Growing, budget remains, and the row is not already held.
// On success it mutates lock, records rowID, and decrements the budget —
// upgrades never call this path and never consume budget.
func (t *Transaction) AddLock(rowID uint64, mode Mode, lock *Lock) bool {
	if t.phase != Growing {
		return false
	}
	if t.budgetRemaining == 0 {
		return false
	}
	if _, held := t.lockedRows[rowID]; held {
		return false
	}

	var acquired bool
	switch mode {
	case Shared:
		acquired = lock.AcquireShared(t.id)
	case Exclusive:
		acquired = lock.AcquireExclusive(t.id)
	default:
		acquired = false
	}
	if !acquired {
		return false
	}

	t.lockedRows[rowID] = struct{}{}
	t.budgetRemaining--
	return true
}

// ReleaseLock releases rowID if the transaction holds it. It transitions
// the transaction to Shrinking (idempotent if already there) and reports
// whether the underlying Lock became Free, so the caller can evict it from
// the LockTable. Releasing a row the transaction does not hold is a no-op.
func (t *Transaction) ReleaseLock(rowID uint64, lock *Lock) (held, lockNowFree bool) {
	if _, ok := t.lockedRows[rowID]; !ok {
		return false, false
	}
	if t.phase == Growing {
		t.phase = Shrinking
	}
	lock.Release(t.id)
	delete(t.lockedRows, rowID)
	return true, lock.IsFree()
}

// ReleaseAll releases every row the transaction holds via fetch, clears
// lockedRows, and marks the transaction Aborted. It returns the row IDs
// whose Lock became Free as a result, so the caller can evict them from
// the LockTable.
func (t *Transaction) ReleaseAll(fetch LockFetcher) []uint64 {
	freed := make([]uint64, 0, len(t.lockedRows))
	for rowID := range t.lockedRows {
		lock, ok := fetch(rowID)
		if !ok {
			continue
		}
		lock.Release(t.id)
		if lock.IsFree() {
			freed = append(freed, rowID)
		}
	}
	t.lockedRows = make(map[uint64]struct{})
	t.phase = Aborted
	return freed
}
