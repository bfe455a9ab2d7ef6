package msgworker

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// activeSenderWindow is how long a sender stays in the active set after its last dispatch.
const activeSenderWindow = 2 * time.Second

// MessageJob is one inbound webhook event to be relayed for a bot.
type MessageJob struct {
	BotID    string
	SenderID string
	Handler  func(ctx context.Context) error
}

func (j MessageJob) key() string {
	return j.BotID + "|" + j.SenderID
}

// PoolStats is a point-in-time snapshot of the pool.
type PoolStats struct {
	NumWorkers      int            `json:"num_workers"`
	QueueSize       int            `json:"queue_size"`
	ActiveWorkers   int            `json:"active_workers"`
	TotalDispatched int64          `json:"total_dispatched"`
	TotalProcessed  int64          `json:"total_processed"`
	TotalDropped    int64          `json:"total_dropped"`
	TotalErrors     int64          `json:"total_errors"`
	StartedAt       time.Time      `json:"started_at"`
	WorkerStats     []WorkerStats  `json:"worker_stats"`
	ActiveSenders   map[string]int `json:"active_senders"` // botID|senderID -> worker_id
}

type WorkerStats struct {
	WorkerID      int   `json:"worker_id"`
	QueueDepth    int   `json:"queue_depth"`
	IsProcessing  bool  `json:"is_processing"`
	JobsProcessed int64 `json:"jobs_processed"`
}

type activeSender struct {
	workerID  int
	updatedAt time.Time
}

// MessageWorkerPool runs webhook events on a fixed set of workers. Jobs of the
// same bot and sender always land on the same worker, so they run in order.
type MessageWorkerPool struct {
	numWorkers int
	queueSize  int
	workers    []*worker
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopped    int32
	stopCh     chan struct{}

	// dispatchMu serializes queue sends with each other and with Stop.
	dispatchMu sync.Mutex

	totalDispatched int64
	totalProcessed  int64
	totalDropped    int64
	totalErrors     int64

	activeMu      sync.Mutex
	activeSenders map[string]activeSender
	startTime     time.Time
}

type worker struct {
	id            int
	jobQueue      chan MessageJob
	ctx           context.Context
	cancel        context.CancelFunc
	isProcessing  int32
	jobsProcessed int64
	pool          *MessageWorkerPool
}

// NewMessageWorkerPool creates a pool; call Start before dispatching.
func NewMessageWorkerPool(numWorkers, queueSize int) *MessageWorkerPool {
	if numWorkers <= 0 {
		numWorkers = 10
	}
	if queueSize <= 0 {
		queueSize = 100
	}

	return &MessageWorkerPool{
		numWorkers:    numWorkers,
		queueSize:     queueSize,
		workers:       make([]*worker, numWorkers),
		activeSenders: make(map[string]activeSender),
		stopCh:        make(chan struct{}),
		startTime:     time.Now(),
	}
}

// Start launches the workers and the active-sender janitor.
func (p *MessageWorkerPool) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.pruneActiveSenders(time.Now())
			}
		}
	}()

	for i := 0; i < p.numWorkers; i++ {
		workerCtx, cancel := context.WithCancel(ctx)
		w := &worker{
			id:       i,
			jobQueue: make(chan MessageJob, p.queueSize),
			ctx:      workerCtx,
			cancel:   cancel,
			pool:     p,
		}
		p.workers[i] = w

		p.wg.Add(1)
		go w.run(&p.wg)
	}

	logrus.Infof("[MSG_WORKER_POOL] Started with %d workers, queue size: %d", p.numWorkers, p.queueSize)
}

// TryDispatch enqueues job without blocking. It returns false when the
// target worker's queue is full or the pool is stopped.
func (p *MessageWorkerPool) TryDispatch(job MessageJob) bool {
	return p.TryDispatchBatch([]MessageJob{job})
}

// TryDispatchBatch enqueues every job or none of them. It returns false,
// enqueuing nothing, when any target queue lacks room for its share of the
// batch or the pool is stopped.
func (p *MessageWorkerPool) TryDispatchBatch(jobs []MessageJob) bool {
	if len(jobs) == 0 {
		return true
	}

	p.dispatchMu.Lock()
	defer p.dispatchMu.Unlock()

	if atomic.LoadInt32(&p.stopped) == 1 {
		atomic.AddInt64(&p.totalDropped, int64(len(jobs)))
		logrus.Warnf("[MSG_WORKER_POOL] Pool stopped, dropping %d job(s)", len(jobs))
		return false
	}

	shards := make([]int, len(jobs))
	needed := make(map[int]int)
	for i, job := range jobs {
		shards[i] = p.shardFor(job.BotID, job.SenderID)
		needed[shards[i]]++
	}
	for shard, n := range needed {
		w := p.workers[shard]
		if w == nil || cap(w.jobQueue)-len(w.jobQueue) < n {
			atomic.AddInt64(&p.totalDropped, int64(len(jobs)))
			logrus.Warnf("[MSG_WORKER_POOL] Worker %d queue full, dropping batch of %d job(s)", shard, len(jobs))
			return false
		}
	}

	// Workers only drain queues, so the room checked above is still there.
	now := time.Now()
	p.activeMu.Lock()
	for i, job := range jobs {
		p.activeSenders[job.key()] = activeSender{workerID: shards[i], updatedAt: now}
	}
	p.activeMu.Unlock()

	for i, job := range jobs {
		p.workers[shards[i]].jobQueue <- job
	}
	atomic.AddInt64(&p.totalDispatched, int64(len(jobs)))
	return true
}

// Dispatch is TryDispatch without the result.
func (p *MessageWorkerPool) Dispatch(job MessageJob) {
	_ = p.TryDispatch(job)
}

// Stop closes every queue and waits for queued jobs to finish.
func (p *MessageWorkerPool) Stop() {
	p.stopOnce.Do(func() {
		p.dispatchMu.Lock()
		atomic.StoreInt32(&p.stopped, 1)
		close(p.stopCh)
		logrus.Info("[MSG_WORKER_POOL] Stopping workers...")

		for _, w := range p.workers {
			if w == nil {
				continue
			}
			w.cancel()
			close(w.jobQueue)
		}
		p.dispatchMu.Unlock()
		p.wg.Wait()

		logrus.Info("[MSG_WORKER_POOL] All workers stopped")
	})
}

func (p *MessageWorkerPool) shardFor(botID, senderID string) int {
	h := fnv.New32a()
	h.Write([]byte(botID + "|" + senderID))
	return int(h.Sum32() % uint32(p.numWorkers))
}

func (p *MessageWorkerPool) pruneActiveSenders(now time.Time) {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for k, v := range p.activeSenders {
		if now.Sub(v.updatedAt) > activeSenderWindow {
			delete(p.activeSenders, k)
		}
	}
}

// GetStats returns a snapshot of counters and per-worker state.
func (p *MessageWorkerPool) GetStats() PoolStats {
	workerStats := make([]WorkerStats, 0, len(p.workers))
	activeWorkers := 0

	for _, w := range p.workers {
		if w == nil {
			continue
		}
		isProcessing := atomic.LoadInt32(&w.isProcessing) == 1
		if isProcessing {
			activeWorkers++
		}
		workerStats = append(workerStats, WorkerStats{
			WorkerID:      w.id,
			QueueDepth:    len(w.jobQueue),
			IsProcessing:  isProcessing,
			JobsProcessed: atomic.LoadInt64(&w.jobsProcessed),
		})
	}

	p.pruneActiveSenders(time.Now())
	p.activeMu.Lock()
	senders := make(map[string]int, len(p.activeSenders))
	for k, v := range p.activeSenders {
		senders[k] = v.workerID
	}
	p.activeMu.Unlock()

	return PoolStats{
		NumWorkers:      p.numWorkers,
		QueueSize:       p.queueSize,
		ActiveWorkers:   activeWorkers,
		TotalDispatched: atomic.LoadInt64(&p.totalDispatched),
		TotalProcessed:  atomic.LoadInt64(&p.totalProcessed),
		TotalDropped:    atomic.LoadInt64(&p.totalDropped),
		TotalErrors:     atomic.LoadInt64(&p.totalErrors),
		StartedAt:       p.startTime,
		WorkerStats:     workerStats,
		ActiveSenders:   senders,
	}
}

func (w *worker) run(wg *sync.WaitGroup) {
	defer wg.Done()
	logrus.Debugf("[MSG_WORKER_POOL] Worker %d started", w.id)

	for {
		select {
		case job, ok := <-w.jobQueue:
			if !ok {
				logrus.Debugf("[MSG_WORKER_POOL] Worker %d shutting down", w.id)
				return
			}
			w.process(job)
		case <-w.ctx.Done():
			logrus.Debugf("[MSG_WORKER_POOL] Worker %d context cancelled, draining queue...", w.id)
			w.drainQueue()
			return
		}
	}
}

func (w *worker) process(job MessageJob) {
	atomic.StoreInt32(&w.isProcessing, 1)
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&w.pool.totalErrors, 1)
			logrus.Errorf("[MSG_WORKER_POOL] Worker %d panic for %s: %v", w.id, job.key(), r)
		}
		atomic.StoreInt32(&w.isProcessing, 0)
		atomic.AddInt64(&w.jobsProcessed, 1)
		atomic.AddInt64(&w.pool.totalProcessed, 1)
	}()

	// Jobs drained during shutdown still get a live context for their own calls.
	ctx := w.ctx
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	if err := job.Handler(ctx); err != nil {
		atomic.AddInt64(&w.pool.totalErrors, 1)
		logrus.WithError(err).Errorf("[MSG_WORKER_POOL] Worker %d job failed for %s", w.id, job.key())
	}
}

func (w *worker) drainQueue() {
	for {
		select {
		case job, ok := <-w.jobQueue:
			if !ok {
				return
			}
			w.process(job)
		default:
			return
		}
	}
}
