package compute

import (
	"fmt"
	"runtime"
	"sync"
	"time"
)

// Default pool configuration.
const (
	// DefaultMinWorkers is the smallest pool size the adaptive policy
	// will shrink to.
	DefaultMinWorkers = 1

	// DefaultMaxWorkers caps the pool size regardless of hardware
	// parallelism.
	DefaultMaxWorkers = 8

	// DefaultOverheadThreshold is the mean dispatch overhead above which
	// the pool sheds one worker.
	DefaultOverheadThreshold = 50 * time.Millisecond

	// DefaultSampleWindow is the number of performance samples averaged
	// by the adaptive sizing policy.
	DefaultSampleWindow = 10

	// defaultQueueSize bounds each worker's inbox. A full inbox counts
	// as "no available worker" rather than blocking the orchestrator.
	defaultQueueSize = 32
)

type poolConfig struct {
	minWorkers int
	maxWorkers int
	threshold  time.Duration
	windowSize int
	queueSize  int
	broker     *Broker
	startHook  func(id int) error
}

// PoolOption configures a Pool at construction.
type PoolOption func(*poolConfig)

// WithMinWorkers sets the lower pool-size bound. Values below 1 are
// raised to 1.
func WithMinWorkers(n int) PoolOption {
	return func(c *poolConfig) {
		if n >= 1 {
			c.minWorkers = n
		}
	}
}

// WithMaxWorkers sets the upper pool-size bound.
func WithMaxWorkers(n int) PoolOption {
	return func(c *poolConfig) {
		if n >= 1 {
			c.maxWorkers = n
		}
	}
}

// WithOverheadThreshold sets the mean-overhead level that triggers an
// adaptive shrink.
func WithOverheadThreshold(d time.Duration) PoolOption {
	return func(c *poolConfig) {
		if d > 0 {
			c.threshold = d
		}
	}
}

// WithSampleWindow sets the adaptive-sizing sample window length.
func WithSampleWindow(n int) PoolOption {
	return func(c *poolConfig) {
		if n >= 1 {
			c.windowSize = n
		}
	}
}

// WithBroker attaches a shared-buffer broker. Without one the pool always
// uses copy-based transfer.
func WithBroker(b *Broker) PoolOption {
	return func(c *poolConfig) { c.broker = b }
}

// WithStartHook installs a hook run before each worker starts. A hook
// error fails that one spawn; the pool logs it and runs smaller.
func WithStartHook(hook func(id int) error) PoolOption {
	return func(c *poolConfig) { c.startHook = hook }
}

// slot is the pool's bookkeeping for one worker. Owned exclusively by the
// pool; workers never see it.
type slot struct {
	worker    *worker
	available bool
	taskCount int
}

// pendingTask tracks one in-flight tile from dispatch to its single
// terminal event (response, fault, cancellation, shrink, or shutdown).
type pendingTask struct {
	id     string
	future *Future
	start  time.Time
	slot   int
	shared *ScalarBuffer
}

// Pool owns a bounded set of compute workers and dispatches tile requests
// to the least-loaded available one. See the package documentation for
// the sizing and cancellation model.
//
// Pool is safe for concurrent use.
type Pool struct {
	cfg  poolConfig
	eval Evaluator

	mu           sync.Mutex
	slots        []*slot
	pending      map[string]*pendingTask
	window       *sampleWindow
	shuttingDown bool
	nextWorkerID int

	responses     chan *TileResponse
	faults        chan faultMsg
	collectorQuit chan struct{}
	collectorDone chan struct{}

	metrics *poolMetrics
}

// NewPool creates and starts a pool. The initial size is
// min(maxWorkers, max(1, NumCPU-1)), clamped to [minWorkers, maxWorkers].
// Individual worker spawn failures are logged and leave the pool smaller;
// they do not fail construction.
func NewPool(eval Evaluator, opts ...PoolOption) (*Pool, error) {
	if eval == nil {
		return nil, fmt.Errorf("compute: evaluator must not be nil")
	}

	cfg := poolConfig{
		minWorkers: DefaultMinWorkers,
		maxWorkers: DefaultMaxWorkers,
		threshold:  DefaultOverheadThreshold,
		windowSize: DefaultSampleWindow,
		queueSize:  defaultQueueSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.minWorkers > cfg.maxWorkers {
		return nil, fmt.Errorf("compute: minWorkers %d exceeds maxWorkers %d",
			cfg.minWorkers, cfg.maxWorkers)
	}

	p := &Pool{
		cfg:           cfg,
		eval:          eval,
		pending:       make(map[string]*pendingTask),
		window:        newSampleWindow(cfg.windowSize),
		responses:     make(chan *TileResponse, cfg.maxWorkers*2),
		faults:        make(chan faultMsg, cfg.maxWorkers),
		collectorQuit: make(chan struct{}),
		collectorDone: make(chan struct{}),
		metrics:       newPoolMetrics(),
	}

	target := runtime.NumCPU() - 1
	if target < 1 {
		target = 1
	}
	if target > cfg.maxWorkers {
		target = cfg.maxWorkers
	}
	if target < cfg.minWorkers {
		target = cfg.minWorkers
	}

	p.mu.Lock()
	for range target {
		if err := p.spawnLocked(); err != nil {
			slogger().Warn("worker spawn failed", "error", err)
		}
	}
	count := len(p.slots)
	p.mu.Unlock()

	go p.collect()

	slogger().Info("worker pool started",
		"workers", count, "min", cfg.minWorkers, "max", cfg.maxWorkers)
	p.metrics.recordWorkers(count)
	return p, nil
}

// spawnLocked starts one worker and appends its slot. Caller holds p.mu.
func (p *Pool) spawnLocked() error {
	id := p.nextWorkerID
	if p.cfg.startHook != nil {
		if err := p.cfg.startHook(id); err != nil {
			return fmt.Errorf("%w: %v", ErrSpawnFailed, err)
		}
	}
	p.nextWorkerID++

	w := newWorker(id, p.cfg.queueSize)
	go w.run(p.eval, p.responses, p.faults)
	p.slots = append(p.slots, &slot{worker: w, available: true})
	return nil
}

// findSlotLocked returns the index of the least-loaded available slot,
// or -1 when every slot is busy or unavailable. Caller holds p.mu.
func (p *Pool) findSlotLocked() int {
	best := -1
	for i, s := range p.slots {
		if !s.available || s.taskCount >= p.cfg.queueSize {
			continue
		}
		if best < 0 || s.taskCount < p.slots[best].taskCount {
			best = i
		}
	}
	return best
}

// ComputeTile dispatches one tile to the least-loaded available worker
// and returns a future for its response.
//
// The id must be unique among in-flight tiles. The rect is the tile's
// pixel region within the full frame described by view. Params are
// snapshotted by value, so the caller may keep mutating its view state.
//
// ComputeTile fails fast with [ErrNoAvailableWorker] when every slot is
// busy; retry and backoff policy belongs to the caller. When the broker
// grants a shared buffer the worker writes the scalar field into it
// directly instead of allocating a transfer copy.
func (p *Pool) ComputeTile(id string, rect, view Rect, params ViewParams, t FractalType) (*Future, error) {
	if rect.Empty() {
		return nil, fmt.Errorf("compute: empty tile rect %+v", rect)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shuttingDown {
		return nil, ErrPoolShutdown
	}
	if _, dup := p.pending[id]; dup {
		return nil, fmt.Errorf("compute: tile id %q already in flight", id)
	}

	idx := p.findSlotLocked()
	if idx < 0 {
		return nil, ErrNoAvailableWorker
	}
	s := p.slots[idx]

	req := NewTileRequest(id, rect, view, params, t)
	if p.cfg.broker != nil {
		// nil means copy fallback, which is fine.
		req.Shared = p.cfg.broker.CreateScalarBuffer(rect.Width, rect.Height)
	}

	task := &pendingTask{
		id:     id,
		future: newFuture(),
		start:  time.Now(),
		slot:   idx,
		shared: req.Shared,
	}

	select {
	case s.worker.inbox <- req:
	default:
		// Inbox full despite the taskCount gate (cancel messages also
		// occupy it). Treat as contention, not failure.
		if p.cfg.broker != nil {
			p.cfg.broker.Release(req.Shared)
		}
		return nil, ErrNoAvailableWorker
	}

	p.pending[id] = task
	s.taskCount++
	p.metrics.recordDispatch(t)
	return task.future, nil
}

// collect is the orchestrator loop that resolves worker messages. It is
// the only goroutine that processes responses and faults, keeping the
// slot table single-writer.
func (p *Pool) collect() {
	defer close(p.collectorDone)
	for {
		select {
		case <-p.collectorQuit:
			return
		case resp := <-p.responses:
			p.handleResponse(resp)
		case f := <-p.faults:
			p.handleFault(f)
		}
	}
}

// handleResponse resolves the pending task matching a tile response.
// Responses for unknown ids belong to tiles cancelled after the worker
// started them; they are dropped without comment.
func (p *Pool) handleResponse(resp *TileResponse) {
	p.mu.Lock()

	task, ok := p.pending[resp.ID]
	if !ok {
		p.mu.Unlock()
		slogger().Debug("dropping response for cancelled tile", "tile", resp.ID)
		return
	}
	delete(p.pending, resp.ID)
	p.releaseSlotLocked(task)

	sample := PerformanceSample{
		Total:   time.Since(task.start),
		Compute: resp.Meta.ComputeTime,
	}
	p.window.Add(sample)
	p.metrics.recordOverhead(sample.Overhead())
	shed := p.adaptLocked()

	p.mu.Unlock()

	p.finishRejects(shed, ErrWorkerRemoved)
	task.future.resolve(resp, nil)
}

// releaseSlotLocked undoes a task's slot accounting. Each pending task is
// released exactly once, on its terminal event; taskCount never goes
// negative. Caller holds p.mu.
func (p *Pool) releaseSlotLocked(task *pendingTask) {
	if task.slot < len(p.slots) {
		if s := p.slots[task.slot]; s.taskCount > 0 {
			s.taskCount--
		}
	}
}

// adaptLocked applies the asymmetric sizing policy: a full sample window
// with mean overhead above the threshold sheds one worker. The window is
// reset afterwards so one congested burst cannot cascade. There is no
// automatic growth; only Resize grows the pool. Caller holds p.mu and
// resolves the returned tasks after unlocking.
func (p *Pool) adaptLocked() []*pendingTask {
	if !p.window.Full() || p.shuttingDown {
		return nil
	}
	mean := p.window.MeanOverhead()
	if mean <= p.cfg.threshold || len(p.slots) <= p.cfg.minWorkers {
		return nil
	}

	shed := p.removeSlotLocked(len(p.slots) - 1)
	p.window.Reset()
	slogger().Info("pool shrunk on dispatch overhead",
		"mean_overhead", mean, "threshold", p.cfg.threshold, "workers", len(p.slots))
	p.metrics.recordWorkers(len(p.slots))
	return shed
}

// handleFault isolates a worker runtime fault to its slot: pending tasks
// assigned to it are rejected and the worker is replaced, keeping the
// pool at size. Caller must not hold p.mu.
func (p *Pool) handleFault(f faultMsg) {
	p.mu.Lock()

	idx := -1
	for i, s := range p.slots {
		if s.worker == f.w {
			idx = i
			break
		}
	}
	if idx < 0 {
		// Slot already removed or worker already replaced.
		p.mu.Unlock()
		return
	}

	slogger().Warn("worker fault", "worker", f.w.id, "error", f.err)
	p.metrics.recordFault()

	s := p.slots[idx]
	s.available = false
	rejected := p.rejectTasksLocked(func(t *pendingTask) bool { return t.slot == idx })

	if !p.shuttingDown {
		s.worker.stop()
		w := newWorker(p.nextWorkerID, p.cfg.queueSize)
		if p.cfg.startHook != nil {
			if err := p.cfg.startHook(w.id); err != nil {
				// Replacement failed; drop the slot and run smaller.
				slogger().Warn("worker replacement failed", "error", err)
				p.slots = append(p.slots[:idx], p.slots[idx+1:]...)
				p.reindexLocked(idx)
				p.mu.Unlock()
				p.finishRejects(rejected, ErrWorkerFault)
				return
			}
		}
		p.nextWorkerID++
		go w.run(p.eval, p.responses, p.faults)
		s.worker = w
		s.available = true
		s.taskCount = 0
	}

	p.mu.Unlock()
	p.finishRejects(rejected, ErrWorkerFault)
}

// reindexLocked fixes pending-task slot indices after the slot at idx was
// removed from the middle of the table. Caller holds p.mu.
func (p *Pool) reindexLocked(idx int) {
	for _, t := range p.pending {
		if t.slot > idx {
			t.slot--
		}
	}
}

// rejectTasksLocked removes every pending task matching the predicate,
// releasing slot accounting, and returns them for future rejection
// outside the lock. Shared buffers of rejected tasks are deliberately
// not returned to the broker: the worker may still be writing into
// them, and a buffer must never serve two concurrent requests. The
// garbage collector reclaims them instead. Caller holds p.mu.
func (p *Pool) rejectTasksLocked(match func(*pendingTask) bool) []*pendingTask {
	var rejected []*pendingTask
	for id, t := range p.pending {
		if !match(t) {
			continue
		}
		delete(p.pending, id)
		p.releaseSlotLocked(t)
		rejected = append(rejected, t)
	}
	return rejected
}

// finishRejects resolves rejected futures. Kept outside the pool lock so
// a waiter reacting immediately cannot deadlock against pool methods.
func (p *Pool) finishRejects(tasks []*pendingTask, cause error) {
	for _, t := range tasks {
		t.future.resolve(nil, cause)
	}
}

// CancelTiles rejects the listed pending tiles with [ErrCancelled]. An
// empty or nil list cancels everything pending. Already-resolved tiles
// are unaffected, and a worker that already started a cancelled tile
// finishes it silently; its response is dropped on arrival.
func (p *Pool) CancelTiles(ids []string) {
	p.mu.Lock()

	target := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		for id := range p.pending {
			target[id] = struct{}{}
		}
	} else {
		for _, id := range ids {
			if _, ok := p.pending[id]; ok {
				target[id] = struct{}{}
			}
		}
	}

	// Let each affected worker drop requests still sitting in its inbox.
	perWorker := make(map[int][]string)
	for id := range target {
		if t, ok := p.pending[id]; ok && t.slot < len(p.slots) {
			perWorker[t.slot] = append(perWorker[t.slot], id)
		}
	}
	for idx, list := range perWorker {
		select {
		case p.slots[idx].worker.inbox <- NewCancelMessage(list):
		default:
			// Inbox full; the worker will compute these tiles and the
			// responses will be dropped as stale.
		}
	}

	rejected := p.rejectTasksLocked(func(t *pendingTask) bool {
		_, ok := target[t.id]
		return ok
	})
	p.metrics.recordCancelled(len(rejected))

	p.mu.Unlock()
	p.finishRejects(rejected, ErrCancelled)
}

// Resize grows or shrinks the pool to target, clamped to
// [minWorkers, maxWorkers]. Shrinking removes the highest-index workers
// and rejects their pending tasks with [ErrWorkerRemoved]. Growth is
// best-effort: spawn failures are logged and skipped.
func (p *Pool) Resize(target int) int {
	if target < p.cfg.minWorkers {
		target = p.cfg.minWorkers
	}
	if target > p.cfg.maxWorkers {
		target = p.cfg.maxWorkers
	}

	p.mu.Lock()
	if p.shuttingDown {
		n := len(p.slots)
		p.mu.Unlock()
		return n
	}

	var rejected []*pendingTask
	for len(p.slots) > target {
		rejected = append(rejected, p.removeSlotLocked(len(p.slots)-1)...)
	}
	for len(p.slots) < target {
		if err := p.spawnLocked(); err != nil {
			slogger().Warn("worker spawn failed", "error", err)
			break
		}
	}

	n := len(p.slots)
	p.mu.Unlock()

	p.finishRejects(rejected, ErrWorkerRemoved)
	p.metrics.recordWorkers(n)
	slogger().Debug("pool resized", "workers", n)
	return n
}

// removeSlotLocked terminates the slot at idx (always the highest index)
// and returns its rejected pending tasks. Caller holds p.mu and resolves
// the returned tasks after unlocking.
func (p *Pool) removeSlotLocked(idx int) []*pendingTask {
	s := p.slots[idx]
	rejected := p.rejectTasksLocked(func(t *pendingTask) bool { return t.slot == idx })
	s.worker.stop()
	p.slots = p.slots[:idx]
	return rejected
}

// Shutdown cancels everything pending, stops every worker, and zeroes the
// pool. After Shutdown, ComputeTile fails fast with [ErrPoolShutdown].
// Cancellation is cooperative: Shutdown waits for evaluations already
// running inside workers to finish. Safe to call more than once.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.shuttingDown {
		p.mu.Unlock()
		return
	}
	p.shuttingDown = true

	rejected := p.rejectTasksLocked(func(*pendingTask) bool { return true })

	workers := make([]*worker, 0, len(p.slots))
	for _, s := range p.slots {
		s.worker.stop()
		workers = append(workers, s.worker)
	}
	p.slots = nil
	p.mu.Unlock()

	p.finishRejects(rejected, ErrPoolShutdown)

	for _, w := range workers {
		<-w.done
	}
	close(p.collectorQuit)
	<-p.collectorDone

	p.metrics.recordWorkers(0)
	slogger().Info("worker pool shut down")
}

// WorkerCount returns the current number of workers.
func (p *Pool) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

// PendingCount returns the number of in-flight tiles.
func (p *Pool) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}
