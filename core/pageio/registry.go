package pageio

import (
	"fmt"
	"sync"

	"github.com/sushant-115/gojodb/core/dblwr"
	flushmanager "github.com/sushant-115/gojodb/core/write_engine/flush_manager"
	pagemanager "github.com/sushant-115/gojodb/core/write_engine/page_manager"
	"go.uber.org/zap"
)

// aioJob is one queued asynchronous target write.
type aioJob struct {
	space pagemanager.SpaceID
	page  pagemanager.PageID
	data  []byte
	done  func(error)
}

// Registry is a named multi-tablespace FileIO/Tablespaces implementation.
// Its async write path is a small worker pool draining a channel, the
// same dedicated-goroutine-draining-signaled-work idiom as
// wal.LogManager's background flusher, generalized from one log file to
// many tablespaces sharing one pump.
type Registry struct {
	mu     sync.RWMutex
	spaces map[pagemanager.SpaceID]*TablespaceFile

	queue   chan aioJob
	pending sync.WaitGroup
	log     *zap.Logger
}

// NewRegistry starts workers worker goroutines draining the AIO queue.
func NewRegistry(workers int, log *zap.Logger) *Registry {
	r := &Registry{
		spaces: make(map[pagemanager.SpaceID]*TablespaceFile),
		queue:  make(chan aioJob, 4096),
		log:    log.Named("pageio.registry"),
	}
	for i := 0; i < workers; i++ {
		go r.worker()
	}
	return r
}

func (r *Registry) worker() {
	for job := range r.queue {
		err := r.WriteAt(job.space, job.data, int64(job.page)*int64(r.pageSizeOf(job.space)))
		job.done(err)
		r.pending.Done()
	}
}

func (r *Registry) pageSizeOf(space pagemanager.SpaceID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.spaces[space]; ok {
		return t.pageSize
	}
	return 0
}

// Mount registers an already-open tablespace file under its space id.
func (r *Registry) Mount(t *TablespaceFile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spaces[t.space] = t
}

func (r *Registry) tablespace(space pagemanager.SpaceID) (*TablespaceFile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.spaces[space]
	if !ok {
		return nil, fmt.Errorf("%w: space %d", flushmanager.ErrRecoveryUnknownTablespace, space)
	}
	return t, nil
}

// --- dblwr.FileIO ---

func (r *Registry) ReadAt(space pagemanager.SpaceID, dst []byte, offset int64) error {
	t, err := r.tablespace(space)
	if err != nil {
		return err
	}
	return t.ReadAt(dst, offset)
}

func (r *Registry) WriteAt(space pagemanager.SpaceID, src []byte, offset int64) error {
	t, err := r.tablespace(space)
	if err != nil {
		return err
	}
	return t.WriteAt(src, offset)
}

func (r *Registry) Flush(space pagemanager.SpaceID) error {
	t, err := r.tablespace(space)
	if err != nil {
		return err
	}
	return t.Sync()
}

func (r *Registry) AIOWrite(space pagemanager.SpaceID, page pagemanager.PageID, data []byte, done func(err error)) error {
	if _, err := r.tablespace(space); err != nil {
		return err
	}
	r.pending.Add(1)
	r.queue <- aioJob{space: space, page: page, data: data, done: done}
	return nil
}

// PumpAIO is a deliberate no-op: the worker pool drains the queue
// continuously rather than waiting to be woken, unlike the simulated aio
// thread the original source has to explicitly nudge.
func (r *Registry) PumpAIO() {}

func (r *Registry) WaitUntilNoPending() { r.pending.Wait() }

// --- dblwr.Tablespaces ---

func (r *Registry) Exists(space pagemanager.SpaceID) bool {
	_, err := r.tablespace(space)
	return err == nil
}

func (r *Registry) InBounds(space pagemanager.SpaceID, page pagemanager.PageID) bool {
	t, err := r.tablespace(space)
	if err != nil {
		return false
	}
	return t.InBounds(page)
}

func (r *Registry) ZipSize(space pagemanager.SpaceID) int {
	t, err := r.tablespace(space)
	if err != nil {
		return 0
	}
	return t.zipSize
}

func (r *Registry) FlushAll(kind dblwr.FlushKind) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for space, t := range r.spaces {
		if err := t.Sync(); err != nil {
			return fmt.Errorf("flush all (kind=%d): space %d: %w", kind, space, err)
		}
	}
	return nil
}
