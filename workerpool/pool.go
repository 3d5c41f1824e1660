// Package workerpool implements the worker-sharded job pipeline: a fixed
// set of goroutines, each owning a disjoint slice of the row-key space,
// fed by per-worker FIFO queues with asynchronous completion.
//
// The channel-per-worker queue and Start/Stop goroutine lifecycle follow a
// stop-broadcast-and-WaitGroup pattern. Completion uses
// github.com/jizhuozhi/go-future: a Job that wants its result carries a
// *future.Promise[Result] that the worker resolves exactly once;
// fire-and-forget jobs carry none.
package workerpool

import (
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/jizhuozhi/go-future"

	"github.com/dmlab-tud/lockvault/id"
	"github.com/dmlab-tud/lockvault/keyvault"
)

// Command identifies the operation a Job asks its worker to perform.
type Command int

const (
	CmdRegister Command = iota
	CmdLock
	CmdUnlock
	CmdQuit
)

func (c Command) String() string {
	switch c {
	case CmdRegister:
		return "register"
	case CmdLock:
		return "lock"
	case CmdUnlock:
		return "unlock"
	case CmdQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// LockMode mirrors lockcore.Mode without importing lockcore, keeping
// workerpool ignorant of lock semantics: it only routes and completes jobs.
type LockMode int

const (
	ModeShared LockMode = iota
	ModeExclusive
)

// Job is one unit of work routed to a single worker. Register jobs always
// go to the reserved registration worker; Lock and Unlock jobs are routed
// by RowID; Quit is broadcast to every worker.
type Job struct {
	Command    Command
	TxID       uint64
	RowID      uint64
	LockBudget uint32
	Mode       LockMode

	// Done is non-nil for jobs the caller wants to wait on. The worker
	// resolves it exactly once, after fully applying the operation.
	// Promise.Set is the single publish point a Future.Get synchronizes
	// with, so the result is always fully written before a waiting caller
	// observes it.
	Done *future.Promise[Result]
}

// Result is what a worker hands back through a Job's Done promise.
type Result struct {
	OK         bool
	Capability string
	Diagnostic string
}

// Handler is supplied by the LockManager façade and does the actual work
// of a Job: consulting LockCore/LockTable/TransactionTable and, on a
// successful lock grant, asking the worker's own SigningContext for a
// capability. It is invoked synchronously on the owning worker's
// goroutine, so a single row is never touched by two goroutines at once.
type Handler func(workerID uint32, signer *keyvault.SigningContext, job *Job) Result

// Pool is the fixed set of row-sharded workers.
type Pool struct {
	numWorkers   int
	bucketCount  uint64
	registration int
	queueSize    int

	kv      *keyvault.KeyVault
	handler Handler
	ids     *id.WorkerIDAllocator

	queues []chan *Job
	wg     sync.WaitGroup

	started bool
	mu      sync.Mutex
}

// Options configures a Pool: the number of worker threads, the row-id hash
// space bucket count, and the reserved registration worker index.
type Options struct {
	NumWorkers int
	// BucketCount is the size of the row-id hash space used for routing.
	// Zero selects a sane default.
	BucketCount int
	// QueueSize bounds each worker's job channel. Zero selects a default
	// that keeps producers from blocking under ordinary load.
	QueueSize int
	// RegistrationWorker selects which worker index is reserved for
	// Register jobs. Negative selects the default (last worker).
	RegistrationWorker int
}

const (
	defaultBucketCount = 1024
	defaultQueueSize   = 256
)

// New builds a Pool. It does not start any goroutines; call Start for
// that. kv supplies one SigningContext per worker at Start time.
func New(opts Options, kv *keyvault.KeyVault, handler Handler) (*Pool, error) {
	if opts.NumWorkers < 2 {
		return nil, fmt.Errorf("workerpool: NumWorkers must be >= 2 (one worker must be reserved for registration), got %d", opts.NumWorkers)
	}
	bucketCount := opts.BucketCount
	if bucketCount <= 0 {
		bucketCount = defaultBucketCount
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	registration := opts.RegistrationWorker
	if registration < 0 || registration >= opts.NumWorkers {
		registration = opts.NumWorkers - 1
	}

	return &Pool{
		numWorkers:   opts.NumWorkers,
		bucketCount:  uint64(bucketCount),
		registration: registration,
		queueSize:    queueSize,
		kv:           kv,
		handler:      handler,
		ids:          id.NewWorkerIDAllocator(),
		queues:       make([]chan *Job, opts.NumWorkers),
	}, nil
}

// RouteRow resolves a row id to its owning worker index: the hash bucket
// maps into the N-1 non-registration worker slots, clamped to [0, N-2],
// then remapped to skip whichever dense worker index is reserved for
// registration, so a row can never route to that slot.
func (p *Pool) RouteRow(rowID uint64) int {
	nonRegistrationWorkers := uint64(p.numWorkers - 1)
	bucketsPerWorker := p.bucketCount / nonRegistrationWorkers
	if bucketsPerWorker == 0 {
		bucketsPerWorker = 1
	}
	bucket := rowID % p.bucketCount
	worker := bucket / bucketsPerWorker
	if worker > nonRegistrationWorkers-1 {
		worker = nonRegistrationWorkers - 1
	}
	// Skip the reserved registration slot: workers are numbered densely
	// 0..N-1 but routing only ever targets the N-1 non-registration slots.
	widx := int(worker)
	if widx >= p.registration {
		widx++
	}
	return widx
}

// hashRoute is an alternative row router available for callers that want
// to shard on an opaque key rather than a numeric row id (e.g. a
// composite table+key string). It is not used by RouteRow, and it is
// unexported, so code outside this package cannot call it; nothing in this
// package calls it either.
func hashRoute(key string, bucketCount uint64) uint64 {
	return xxhash.Sum64String(key) % bucketCount
}

// Start spawns one goroutine per worker, each with its own queue and
// signing context.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	for i := 0; i < p.numWorkers; i++ {
		p.queues[i] = make(chan *Job, p.queueSize)
		p.wg.Add(1)
		go p.runWorker(i)
	}
}

func (p *Pool) runWorker(index int) {
	defer p.wg.Done()
	workerID := p.ids.Next()
	signer := p.kv.NewSigningContext()
	queue := p.queues[index]

	for job := range queue {
		if job.Command == CmdQuit {
			return
		}
		result := p.handler(workerID, signer, job)
		if job.Done != nil {
			job.Done.Set(result, nil)
		}
	}
}

// Submit enqueues job on the worker responsible for it: the registration
// worker for CmdRegister, the row-owning worker otherwise. It returns
// immediately; the caller uses job.Done (if set) to wait for completion.
func (p *Pool) Submit(job *Job) {
	var target int
	if job.Command == CmdRegister {
		target = p.registration
	} else {
		target = p.RouteRow(job.RowID)
	}
	p.queues[target] <- job
}

// QueueDepth returns the total number of jobs currently queued across every
// worker. It is an approximation: each channel's length is read without any
// cross-worker synchronization, so the sum can be stale by the time it is
// returned under concurrent Submit/drain activity.
func (p *Pool) QueueDepth() int {
	p.mu.Lock()
	queues := p.queues
	p.mu.Unlock()

	total := 0
	for _, q := range queues {
		total += len(q)
	}
	return total
}

// Stop broadcasts CmdQuit to every worker and waits for all of them to
// drain and exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for _, q := range p.queues {
		q <- &Job{Command: CmdQuit}
	}
	p.wg.Wait()
	for _, q := range p.queues {
		close(q)
	}
}
