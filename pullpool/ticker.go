package pullpool

import (
	"sync/atomic"
	"time"

	"github.com/utilitywarehouse/git-puller/repository"
)

// tickInterval is the granularity of the due checks. Repository
// intervals are rounded up to it, which is why it is also the minimum
// allowed interval.
const tickInterval = time.Second

// due reports whether a repository must be checked again, either
// because it has never been checked or because its interval elapsed
// since the last check.
func due(lastChecked time.Time, interval time.Duration, now time.Time) bool {
	return lastChecked.IsZero() || lastChecked.Add(interval).Before(now)
}

// tickLoop schedules one repository, enqueueing it whenever it comes
// due. The loop exits once the pool stops running or the repository is
// removed from the pool; work already on the queue is not cancelled.
func (p *Pool) tickLoop(repo *repository.Repository, scheduled *atomic.Bool) {
	defer p.tickers.Done()

	log := p.log.With("repo", repo.Name())
	log.Info("starting update loop", "interval", repo.Config().Interval)
	defer log.Info("stopping update loop")

	for p.running.Load() && scheduled.Load() {
		if due(repo.LastChecked(), repo.Config().Interval, time.Now()) {
			// enqueue blocks while the queue is full, a delayed check
			// converges the working copy just the same
			enqueued := p.queue.enqueue(repo)
			recordDispatch(repo.Name(), enqueued)
		}

		time.Sleep(tickInterval)
	}
}
