package pullpool

import (
	"github.com/utilitywarehouse/git-puller/internal/lock"
	"github.com/utilitywarehouse/git-puller/repository"
)

// queue is the bounded dispatch channel between the schedulers and the
// update workers. It guards against more than one in-flight update per
// repository, a handle that is already queued or being updated is not
// enqueued again.
type queue struct {
	ch chan *repository.Repository

	lock     lock.Mutex // guards inflight and removed
	inflight map[*repository.Repository]bool
	removed  map[*repository.Repository]bool
}

func newQueue(size int) *queue {
	return &queue{
		ch:       make(chan *repository.Repository, size),
		inflight: make(map[*repository.Repository]bool),
		removed:  make(map[*repository.Repository]bool),
	}
}

// enqueue adds the repo to the queue, blocking while the queue is
// full. It reports false when the repo was skipped because an update
// for it is already queued or running.
func (q *queue) enqueue(repo *repository.Repository) bool {
	q.lock.Lock()
	if q.inflight[repo] {
		q.lock.Unlock()
		return false
	}
	q.inflight[repo] = true
	q.lock.Unlock()

	q.ch <- repo
	updateQueueDepth(len(q.ch))
	return true
}

// repos is the receive side of the queue, it is closed once the pool
// shuts down and no scheduler can enqueue any more.
func (q *queue) repos() <-chan *repository.Repository {
	return q.ch
}

// done clears the in-flight guard once a worker finished the update,
// the next due tick can enqueue the repo again. It reports whether the
// repo was removed from the pool mid-flight, in which case the worker
// must delete its working copy.
func (q *queue) done(repo *repository.Repository) bool {
	q.lock.Lock()
	removed := q.removed[repo]
	delete(q.inflight, repo)
	delete(q.removed, repo)
	q.lock.Unlock()

	updateQueueDepth(len(q.ch))
	return removed
}

// markRemoved records that the repo was removed from the pool. It
// reports true when no update for it is queued or running and the
// caller can delete the working copy right away, otherwise deletion is
// deferred to the worker holding the in-flight update.
func (q *queue) markRemoved(repo *repository.Repository) bool {
	q.lock.Lock()
	defer q.lock.Unlock()

	if !q.inflight[repo] {
		return true
	}
	q.removed[repo] = true
	return false
}

// isRemoved reports whether the repo was removed from the pool while
// its update was still queued.
func (q *queue) isRemoved(repo *repository.Repository) bool {
	q.lock.Lock()
	defer q.lock.Unlock()

	return q.removed[repo]
}

func (q *queue) close() {
	close(q.ch)
}
