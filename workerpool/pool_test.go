package workerpool

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jizhuozhi/go-future"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmlab-tud/lockvault/keyvault"
)

func openVault(t *testing.T) *keyvault.KeyVault {
	t.Helper()
	kv, err := keyvault.LoadOrGenerate(filepath.Join(t.TempDir(), "vault"))
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return kv
}

func TestRouteRow_NeverTargetsRegistrationWorker(t *testing.T) {
	kv := openVault(t)
	p, err := New(Options{NumWorkers: 4, BucketCount: 64}, kv, func(uint32, *keyvault.SigningContext, *Job) Result {
		return Result{}
	})
	require.NoError(t, err)

	for row := uint64(0); row < 1000; row++ {
		w := p.RouteRow(row)
		assert.NotEqual(t, p.registration, w)
		assert.GreaterOrEqual(t, w, 0)
		assert.Less(t, w, p.numWorkers)
	}
}

func TestRouteRow_SameRowAlwaysSameWorker(t *testing.T) {
	kv := openVault(t)
	p, err := New(Options{NumWorkers: 6, BucketCount: 128}, kv, func(uint32, *keyvault.SigningContext, *Job) Result {
		return Result{}
	})
	require.NoError(t, err)

	for row := uint64(0); row < 200; row++ {
		w1 := p.RouteRow(row)
		w2 := p.RouteRow(row)
		assert.Equal(t, w1, w2)
	}
}

func TestPool_SubmitAndWaitForCompletion(t *testing.T) {
	kv := openVault(t)
	p, err := New(Options{NumWorkers: 3}, kv, func(workerID uint32, signer *keyvault.SigningContext, job *Job) Result {
		return Result{OK: true, Capability: "granted"}
	})
	require.NoError(t, err)
	p.Start()
	defer p.Stop()

	promise := future.NewPromise[Result]()
	p.Submit(&Job{Command: CmdLock, RowID: 5, Done: promise})

	res, err := promise.Future().Get()
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "granted", res.Capability)
}

func TestPool_RegisterJobsAlwaysGoToRegistrationWorker(t *testing.T) {
	kv := openVault(t)

	var mu sync.Mutex
	seen := map[uint32]bool{}

	p, err := New(Options{NumWorkers: 4}, kv, func(workerID uint32, signer *keyvault.SigningContext, job *Job) Result {
		if job.Command == CmdRegister {
			mu.Lock()
			seen[workerID] = true
			mu.Unlock()
		}
		return Result{OK: true}
	})
	require.NoError(t, err)
	p.Start()
	defer p.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(tx uint64) {
			defer wg.Done()
			promise := future.NewPromise[Result]()
			p.Submit(&Job{Command: CmdRegister, TxID: tx, Done: promise})
			_, _ = promise.Future().Get()
		}(uint64(i))
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 1, "all register jobs must land on exactly one worker")
}

func TestPool_QueueDepthReflectsPendingJobs(t *testing.T) {
	kv := openVault(t)
	gate := make(chan struct{})

	p, err := New(Options{NumWorkers: 2}, kv, func(workerID uint32, signer *keyvault.SigningContext, job *Job) Result {
		<-gate
		return Result{OK: true}
	})
	require.NoError(t, err)
	p.Start()
	defer func() {
		close(gate)
		p.Stop()
	}()

	assert.Equal(t, 0, p.QueueDepth())

	for i := 0; i < 3; i++ {
		p.Submit(&Job{Command: CmdLock, RowID: 1})
	}
	assert.Eventually(t, func() bool {
		return p.QueueDepth() >= 2
	}, time.Second, time.Millisecond)

	gate <- struct{}{}
	gate <- struct{}{}
	gate <- struct{}{}
	assert.Eventually(t, func() bool {
		return p.QueueDepth() == 0
	}, time.Second, time.Millisecond)
}

func TestPool_FireAndForgetJobHasNoDoneHandle(t *testing.T) {
	kv := openVault(t)
	done := make(chan struct{}, 1)

	p, err := New(Options{NumWorkers: 3}, kv, func(workerID uint32, signer *keyvault.SigningContext, job *Job) Result {
		done <- struct{}{}
		return Result{}
	})
	require.NoError(t, err)
	p.Start()
	defer p.Stop()

	p.Submit(&Job{Command: CmdUnlock, RowID: 1})
	<-done
}
