package pullpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/utilitywarehouse/git-puller/giturl"
	"github.com/utilitywarehouse/git-puller/internal/lock"
	"github.com/utilitywarehouse/git-puller/repository"
)

var (
	ErrExist    = errors.New("repo already exist")
	ErrNotExist = errors.New("repo does not exist")
)

// Pool represents the collection of pulled repositories. It provides a
// simple wrapper around Repository methods and owns the scheduling
// goroutines, the dispatch queue and the update workers.
// A Pool is safe for concurrent use by multiple goroutines.
type Pool struct {
	lock          lock.RWMutex
	log           *slog.Logger
	repos         []*repository.Repository
	queue         *queue
	workers       int
	updateTimeout time.Duration

	running   atomic.Bool
	schedules map[*repository.Repository]*atomic.Bool
	tickers   sync.WaitGroup
	workersWG sync.WaitGroup

	Stopped chan bool
}

// New will create a repository pool based on given config.
// Remote repos will not be pulled until either UpdateAll() or
// StartLoop() is called
func New(ctx context.Context, conf Config, log *slog.Logger) (*Pool, error) {
	if err := conf.ValidateAndApplyDefaults(); err != nil {
		return nil, err
	}

	if log == nil {
		log = slog.Default()
	}

	p := &Pool{
		log:           log,
		queue:         newQueue(conf.Defaults.QueueSize),
		workers:       conf.Defaults.Workers,
		updateTimeout: conf.Defaults.UpdateTimeout,
		schedules:     make(map[*repository.Repository]*atomic.Bool),
		Stopped:       make(chan bool),
	}

	// start shutdown watcher
	go func() {
		defer func() {
			close(p.Stopped)
		}()

		// wait for shutdown signal
		<-ctx.Done()

		// stop the schedulers first so nothing new lands on the queue,
		// then let the workers drain what is already there
		p.running.Store(false)
		p.tickers.Wait()

		p.queue.close()
		p.workersWG.Wait()
	}()

	for _, repoConf := range conf.Repositories {
		if err := p.AddRepository(repoConf); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// AddRepository will add given repository to the pool.
// The remote repo will not be pulled until either UpdateAll() or
// StartLoop() is called. If the pool loop is already running the new
// repository is scheduled right away.
func (p *Pool) AddRepository(repoConf repository.Config) error {
	remoteURL := giturl.NormaliseURL(repoConf.Remote)
	if repo, _ := p.Repository(remoteURL); repo != nil {
		return ErrExist
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	repo, err := repository.New(repoConf, p.log)
	if err != nil {
		return err
	}
	p.repos = append(p.repos, repo)

	if p.running.Load() {
		p.startTicker(repo)
	}

	return nil
}

// RemoveRepository will remove given repository from the pool, stop
// its scheduler and delete its working copy.
func (p *Pool) RemoveRepository(remote string) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	for i, repo := range p.repos {
		if repo.Config().Remote == giturl.NormaliseURL(remote) {
			p.log.Info("removing repository", "remote", repo.Config().Remote)

			p.repos = slices.Delete(p.repos, i, i+1)

			if scheduled, ok := p.schedules[repo]; ok {
				scheduled.Store(false)
				delete(p.schedules, repo)
			}

			// an update may still be queued or running for this repo,
			// in that case the worker holding it deletes the working
			// copy once it finishes
			if !p.queue.markRemoved(repo) {
				return nil
			}

			return os.RemoveAll(repo.Config().Path)
		}
	}

	return ErrNotExist
}

// Repository will return the Repository object based on given remote
// URL
func (p *Pool) Repository(remote string) (*repository.Repository, error) {
	gitURL, err := giturl.Parse(remote)
	if err != nil {
		return nil, err
	}

	p.lock.RLock()
	defer p.lock.RUnlock()

	for _, repo := range p.repos {
		// err can be ignored as remote string from repo object will always be valid
		repoURL, _ := giturl.Parse(repo.Config().Remote)

		if repoURL.Equals(gitURL) {
			return repo, nil
		}
	}
	return nil, ErrNotExist
}

// RepositoriesRemote returns remote URLs of all the repositories
func (p *Pool) RepositoriesRemote() []string {
	p.lock.RLock()
	defer p.lock.RUnlock()

	var urls []string
	for _, repo := range p.repos {
		urls = append(urls, repo.Config().Remote)
	}
	return urls
}

// RepositoriesPath returns local working copy paths of all the
// repositories
func (p *Pool) RepositoriesPath() []string {
	p.lock.RLock()
	defer p.lock.RUnlock()

	var paths []string
	for _, repo := range p.repos {
		paths = append(paths, repo.Config().Path)
	}
	return paths
}

// UpdateAll will update every repo in foreground with given per-repo
// timeout. It will error out if any of the repository updates errors.
// Ideally UpdateAll should be used for the first update cycle to
// ensure every working copy is successfully created
func (p *Pool) UpdateAll(ctx context.Context, timeout time.Duration) error {
	p.lock.RLock()
	defer p.lock.RUnlock()

	for _, repo := range p.repos {
		uCtx, cancel := context.WithTimeout(ctx, timeout)
		_, err := repo.Update(uCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("repository update failed err:%w", err)
		}
	}

	return nil
}

// Update is a foreground wrapper around the repository Update method
func (p *Pool) Update(ctx context.Context, remote string) (bool, error) {
	repo, err := p.Repository(remote)
	if err != nil {
		return false, err
	}

	return repo.Update(ctx)
}

// QueueUpdateRun enqueues the repository for an update by the worker
// pool, ahead of its schedule. It blocks while the queue is full.
func (p *Pool) QueueUpdateRun(remote string) error {
	repo, err := p.Repository(remote)
	if err != nil {
		return err
	}

	enqueued := p.queue.enqueue(repo)
	recordDispatch(repo.Name(), enqueued)
	return nil
}

// StartLoop starts the update workers and a scheduler for every
// repository with an interval, if not already started. Repositories
// without an interval are never auto scheduled.
func (p *Pool) StartLoop() {
	if !p.running.CompareAndSwap(false, true) {
		return
	}

	for i := 0; i < p.workers; i++ {
		p.workersWG.Add(1)
		go p.worker()
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	for _, repo := range p.repos {
		p.startTicker(repo)
	}
}

// startTicker starts the scheduling goroutine for one repository.
// The caller must hold p.lock.
func (p *Pool) startTicker(repo *repository.Repository) {
	if repo.Config().Interval == 0 {
		return
	}
	if _, ok := p.schedules[repo]; ok {
		return
	}

	scheduled := &atomic.Bool{}
	scheduled.Store(true)
	p.schedules[repo] = scheduled

	p.tickers.Add(1)
	go p.tickLoop(repo, scheduled)
}

// worker consumes the dispatch queue until it is closed on shutdown.
func (p *Pool) worker() {
	defer p.workersWG.Done()

	for repo := range p.queue.repos() {
		if !p.queue.isRemoved(repo) {
			p.update(repo)
		}
		if removed := p.queue.done(repo); removed {
			if err := os.RemoveAll(repo.Config().Path); err != nil {
				p.log.Error("unable to remove working copy of removed repository", "repo", repo.Name(), "err", err)
			}
		}
	}
}

func (p *Pool) update(repo *repository.Repository) {
	// a dispatched update is never cancelled, shutdown waits for the
	// queue to drain; the update timeout is the only bound
	uCtx, cancel := context.WithTimeout(context.Background(), p.updateTimeout)
	defer cancel()

	if _, err := repo.Update(uCtx); err != nil {
		p.log.Error("unable to update repository", "repo", repo.Name(), "err", err)
	}
}
