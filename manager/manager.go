// Package manager implements the lock manager façade: the single entry
// point that orchestrates lock decision logic (package lockcore) against
// the LockTable/TransactionTable (package locktable) on the worker-sharded
// pipeline (package workerpool), signing successful grants through a
// KeyVault (package keyvault) and encoding them with package capability.
//
// Manager is a value with owned substructures and no process-wide global
// state, constructed fresh per test or server instance.
package manager

import (
	"fmt"

	"github.com/jizhuozhi/go-future"
	"github.com/rs/zerolog/log"

	"github.com/dmlab-tud/lockvault/capability"
	"github.com/dmlab-tud/lockvault/keyvault"
	"github.com/dmlab-tud/lockvault/lockcore"
	"github.com/dmlab-tud/lockvault/locktable"
	"github.com/dmlab-tud/lockvault/telemetry"
	"github.com/dmlab-tud/lockvault/txnlock"
	"github.com/dmlab-tud/lockvault/workerpool"
)

// Options configures a Manager.
type Options struct {
	NumWorkers           int
	RegistrationWorker   int
	BucketCount          int
	QueueSize            int
	TransactionTableSize int
	LockTableSize        int
	KeyVaultPath         string
}

// Manager is the lock manager façade. It owns every substructure it needs:
// this package keeps no package-level mutable state.
var _ telemetry.StatsProvider = (*Manager)(nil)

type Manager struct {
	kv      *keyvault.KeyVault
	locks   *locktable.Table[uint64, *lockcore.Lock]
	txns    *locktable.Table[uint64, *lockcore.Transaction]
	txMu    *txnlock.Registry
	pool    *workerpool.Pool
	metrics *telemetry.Metrics
}

// New constructs a Manager and starts its worker pool. The key pair is
// unsealed (or generated and sealed) here; call Close to tear down workers
// and close the KeyVault's store.
func New(opts Options) (*Manager, error) {
	kv, err := keyvault.LoadOrGenerate(opts.KeyVaultPath)
	if err != nil {
		return nil, fmt.Errorf("manager: open keyvault: %w", err)
	}

	m := &Manager{
		kv:      kv,
		locks:   locktable.New[uint64, *lockcore.Lock](opts.LockTableSize),
		txns:    locktable.New[uint64, *lockcore.Transaction](opts.TransactionTableSize),
		txMu:    txnlock.New(0),
		metrics: telemetry.NewMetrics(),
	}

	pool, err := workerpool.New(workerpool.Options{
		NumWorkers:         opts.NumWorkers,
		RegistrationWorker: opts.RegistrationWorker,
		BucketCount:        opts.BucketCount,
		QueueSize:          opts.QueueSize,
	}, kv, m.handle)
	if err != nil {
		kv.Close()
		return nil, err
	}
	m.pool = pool
	m.pool.Start()
	return m, nil
}

// Close stops every worker and closes the KeyVault.
func (m *Manager) Close() error {
	m.pool.Stop()
	return m.kv.Close()
}

// handle is the workerpool.Handler invoked on the owning worker's
// goroutine for every Job. It is the only place lockcore, locktable, and
// keyvault are actually exercised together.
func (m *Manager) handle(workerID uint32, signer *keyvault.SigningContext, job *workerpool.Job) workerpool.Result {
	switch job.Command {
	case workerpool.CmdRegister:
		return m.handleRegister(job)
	case workerpool.CmdLock:
		return m.handleLock(signer, job)
	case workerpool.CmdUnlock:
		return m.handleUnlock(job)
	default:
		log.Warn().Stringer("command", job.Command).Uint64("tx", job.TxID).Msg("dropping job with unknown command")
		return workerpool.Result{OK: false, Diagnostic: fmt.Sprintf("unknown command %v", job.Command)}
	}
}

func (m *Manager) handleRegister(job *workerpool.Job) workerpool.Result {
	tx := lockcore.NewTransaction(job.TxID, job.LockBudget)
	_, fresh := m.txns.PutIfAbsent(job.TxID, tx)
	if !fresh {
		return workerpool.Result{OK: false, Diagnostic: "transaction id already registered"}
	}
	return workerpool.Result{OK: true}
}

func (m *Manager) handleLock(signer *keyvault.SigningContext, job *workerpool.Job) workerpool.Result {
	tx, ok := m.txns.Get(job.TxID)
	if !ok {
		return workerpool.Result{OK: false, Diagnostic: "transaction not registered"}
	}

	mode := toLockcoreMode(job.Mode)
	lock, _ := m.locks.PutIfAbsent(job.RowID, lockcore.NewLock())

	var decision lockcore.Decision
	var abort *lockcore.AbortOutcome
	var err error

	m.txMu.With(tx.ID(), func() {
		decision, abort, err = lockcore.Decide(tx, job.RowID, mode, lock, m.fetchLock)
	})

	if abort != nil {
		m.evictTransaction(tx.ID())
		for _, rowID := range abort.FreedRows {
			m.evictLockIfFree(rowID)
		}
		// job.RowID is not necessarily in FreedRows: PutIfAbsent above may
		// have just inserted an empty-owners Lock for it before Decide ever
		// examined ownership (e.g. a phase violation or budget exhaustion
		// that aborts before the row is touched). Evict it too, or it is a
		// ghost Lock no transaction holds and nothing ever frees.
		m.evictLockIfFree(job.RowID)
	}
	if err != nil {
		m.metrics.LocksAborted.Inc()
		return workerpool.Result{OK: false, Diagnostic: err.Error()}
	}
	m.metrics.LocksGranted.Inc()

	descriptor := capability.Descriptor{
		TxID:         tx.ID(),
		RowID:        job.RowID,
		Mode:         toCapabilityMode(decision.Mode),
		BlockTimeout: 0,
	}
	cap, err := capability.Issue(signer, descriptor)
	if err != nil {
		return workerpool.Result{OK: false, Diagnostic: err.Error()}
	}
	return workerpool.Result{OK: true, Capability: cap}
}

func (m *Manager) handleUnlock(job *workerpool.Job) workerpool.Result {
	tx, ok := m.txns.Get(job.TxID)
	if !ok {
		return workerpool.Result{OK: false, Diagnostic: "transaction not registered"}
	}
	lock, ok := m.locks.Get(job.RowID)
	if !ok {
		return workerpool.Result{OK: false, Diagnostic: "row not locked"}
	}

	var lockNowFree bool
	m.txMu.With(tx.ID(), func() {
		_, lockNowFree = lockcore.Release(tx, job.RowID, lock)
	})
	if lockNowFree {
		m.locks.RemoveIf(job.RowID, (*lockcore.Lock).IsFree)
	}
	return workerpool.Result{OK: true}
}

// fetchLock is the lockcore.LockFetcher a Decide abort path uses to walk
// every row a transaction holds across (potentially) every worker.
func (m *Manager) fetchLock(rowID uint64) (*lockcore.Lock, bool) {
	return m.locks.Get(rowID)
}

func (m *Manager) evictTransaction(txID uint64) {
	m.txns.RemoveIf(txID, func(tx *lockcore.Transaction) bool {
		return tx.Phase() == lockcore.Aborted
	})
}

func (m *Manager) evictLockIfFree(rowID uint64) {
	m.locks.RemoveIf(rowID, (*lockcore.Lock).IsFree)
}

func toLockcoreMode(m workerpool.LockMode) lockcore.Mode {
	if m == workerpool.ModeExclusive {
		return lockcore.Exclusive
	}
	return lockcore.Shared
}

func toCapabilityMode(m lockcore.Mode) capability.Mode {
	if m == lockcore.Exclusive {
		return capability.ModeExclusive
	}
	return capability.ModeShared
}

// Register creates a fresh transaction with the given lock budget and
// waits for completion. It returns false (never an error) if the id is
// already live.
func (m *Manager) Register(txID uint64, budget uint32) (bool, error) {
	res, err := m.submitAndWait(&workerpool.Job{
		Command:    workerpool.CmdRegister,
		TxID:       txID,
		LockBudget: budget,
	})
	if err != nil {
		return false, err
	}
	return res.OK, nil
}

// LockShared requests a shared lock on row for tx and waits for the
// result, returning the capability on success or a diagnostic on failure.
func (m *Manager) LockShared(txID, rowID uint64) (string, bool, error) {
	return m.lock(txID, rowID, workerpool.ModeShared)
}

// LockExclusive requests an exclusive lock on row for tx and waits.
func (m *Manager) LockExclusive(txID, rowID uint64) (string, bool, error) {
	return m.lock(txID, rowID, workerpool.ModeExclusive)
}

func (m *Manager) lock(txID, rowID uint64, mode workerpool.LockMode) (string, bool, error) {
	res, err := m.submitAndWait(&workerpool.Job{
		Command: workerpool.CmdLock,
		TxID:    txID,
		RowID:   rowID,
		Mode:    mode,
	})
	if err != nil {
		return "", false, err
	}
	if !res.OK {
		return res.Diagnostic, false, nil
	}
	return res.Capability, true, nil
}

// LockAsync behaves like LockShared/LockExclusive but does not wait for
// completion, returning the Future immediately so callers can poll or
// block later instead of using the default waiting mode.
func (m *Manager) LockAsync(txID, rowID uint64, exclusive bool) *future.Future[workerpool.Result] {
	mode := workerpool.ModeShared
	if exclusive {
		mode = workerpool.ModeExclusive
	}
	promise := future.NewPromise[workerpool.Result]()
	m.pool.Submit(&workerpool.Job{
		Command: workerpool.CmdLock,
		TxID:    txID,
		RowID:   rowID,
		Mode:    mode,
		Done:    promise,
	})
	return promise.Future()
}

// Unlock releases tx's hold on row. It is fire-and-forget by default.
func (m *Manager) Unlock(txID, rowID uint64) {
	m.pool.Submit(&workerpool.Job{
		Command: workerpool.CmdUnlock,
		TxID:    txID,
		RowID:   rowID,
	})
}

// UnlockSync releases tx's hold on row and waits for the release to be
// applied before returning, for callers that need a happens-before
// guarantee before issuing further requests against the same row.
func (m *Manager) UnlockSync(txID, rowID uint64) error {
	_, err := m.submitAndWait(&workerpool.Job{
		Command: workerpool.CmdUnlock,
		TxID:    txID,
		RowID:   rowID,
	})
	return err
}

// VerifyCapability reports whether cap was issued by this Manager's
// KeyVault for exactly (txID, rowID, exclusive). Pure and stateless: it
// never touches the LockTable or TransactionTable.
func (m *Manager) VerifyCapability(cap string, txID, rowID uint64, exclusive bool) bool {
	mode := capability.ModeShared
	if exclusive {
		mode = capability.ModeExclusive
	}
	return capability.Verify(m.kv, cap, capability.Descriptor{
		TxID:         txID,
		RowID:        rowID,
		Mode:         mode,
		BlockTimeout: 0,
	})
}

// LockStats implements telemetry.StatsProvider: a snapshot of current
// table sizes and total worker queue depth for periodic metrics collection.
func (m *Manager) LockStats() (activeLocks, activeTransactions, queueDepth int) {
	return m.locks.Len(), m.txns.Len(), m.pool.QueueDepth()
}

func (m *Manager) submitAndWait(job *workerpool.Job) (workerpool.Result, error) {
	promise := future.NewPromise[workerpool.Result]()
	job.Done = promise
	m.pool.Submit(job)
	return promise.Future().Get()
}
