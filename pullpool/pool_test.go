package pullpool

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/client"
	"github.com/go-git/go-git/v5/plumbing/transport/server"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/stretchr/testify/require"

	"github.com/utilitywarehouse/git-puller/repository"
)

func TestMain(m *testing.M) {
	// serve file:// remotes in process, fetches in these tests never
	// leave the test binary
	client.InstallProtocol("file", server.DefaultServer)
	os.Exit(m.Run())
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newUpstream creates a fixture remote the in-process file transport
// can serve and returns its url together with a commit helper.
func newUpstream(t *testing.T) (string, func(name, content string)) {
	t.Helper()

	base := t.TempDir()
	gitDir := filepath.Join(base, "upstream.git")
	wtDir := filepath.Join(base, "upstream")
	for _, dir := range []string{gitDir, wtDir} {
		require.NoError(t, os.MkdirAll(dir, 0755))
	}

	storage := filesystem.NewStorage(osfs.New(gitDir), cache.NewObjectLRUDefault())
	gitRepo, err := git.Init(storage, osfs.New(wtDir))
	require.NoError(t, err, "unable to init upstream repo")

	commit := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(wtDir, name), []byte(content), 0644))
		wt, err := gitRepo.Worktree()
		require.NoError(t, err)
		_, err = wt.Add(name)
		require.NoError(t, err)
		_, err = wt.Commit("add "+name, &git.CommitOptions{
			Author: &object.Signature{Name: "upstream", Email: "upstream@example.com", When: time.Now()},
		})
		require.NoError(t, err)
	}

	return "file://" + gitDir, commit
}

func TestPool_addRemoveLookup(t *testing.T) {
	conf := Config{
		Defaults: DefaultConfig{Root: t.TempDir()},
		Repositories: []repository.Config{
			{Remote: "git@github.com:org/repo-one.git"},
			{Remote: "https://github.com/org/repo-two.git"},
		},
	}

	p, err := New(context.Background(), conf, discardLogger())
	require.NoError(t, err)

	// the same remote over another scheme is the same repository
	err = p.AddRepository(repository.Config{
		Remote: "https://github.com/org/repo-one.git",
		Path:   filepath.Join(t.TempDir(), "dup"),
	})
	require.ErrorIs(t, err, ErrExist)

	repo, err := p.Repository("ssh://git@github.com/org/repo-two.git")
	require.NoError(t, err)
	require.Equal(t, "repo-two", repo.Name())

	_, err = p.Repository("git@github.com:org/unknown.git")
	require.ErrorIs(t, err, ErrNotExist)

	require.Len(t, p.RepositoriesRemote(), 2)
	require.Len(t, p.RepositoriesPath(), 2)

	require.ErrorIs(t, p.RemoveRepository("git@github.com:org/unknown.git"), ErrNotExist)

	require.NoError(t, p.RemoveRepository("git@github.com:org/repo-one.git"))
	_, err = p.Repository("git@github.com:org/repo-one.git")
	require.ErrorIs(t, err, ErrNotExist)
}

func TestPool_updateAll(t *testing.T) {
	url, commit := newUpstream(t)
	commit("README.md", "v1")

	root := t.TempDir()
	conf := Config{
		Defaults: DefaultConfig{Root: root},
		Repositories: []repository.Config{
			// no interval, the repo is only ever updated in foreground
			{Name: "test-repo", Remote: url, Ref: "master"},
		},
	}

	p, err := New(context.Background(), conf, discardLogger())
	require.NoError(t, err)

	require.NoError(t, p.UpdateAll(context.Background(), time.Minute))

	content, err := os.ReadFile(filepath.Join(root, "test-repo", "README.md"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(content))

	// a second cycle with an unchanged remote succeeds as well
	require.NoError(t, p.UpdateAll(context.Background(), time.Minute))
}

func TestPool_removeRepository(t *testing.T) {
	url, commit := newUpstream(t)
	commit("README.md", "v1")

	root := t.TempDir()
	conf := Config{
		Defaults: DefaultConfig{Root: root},
		Repositories: []repository.Config{
			{Name: "test-repo", Remote: url, Ref: "master"},
		},
	}

	p, err := New(context.Background(), conf, discardLogger())
	require.NoError(t, err)
	require.NoError(t, p.UpdateAll(context.Background(), time.Minute))

	path := filepath.Join(root, "test-repo")
	_, err = os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, p.RemoveRepository(url))

	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err), "working copy must be deleted on removal")
	_, err = p.Repository(url)
	require.ErrorIs(t, err, ErrNotExist)
}

// shutdown must not abort already-enqueued updates, the workers drain
// the queue before the pool reports stopped.
func TestPool_drainCompletesQueuedUpdate(t *testing.T) {
	url, commit := newUpstream(t)
	commit("README.md", "v1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	root := t.TempDir()
	conf := Config{
		Defaults: DefaultConfig{Root: root},
		Repositories: []repository.Config{
			// no interval, the only update is the queued one
			{Name: "test-repo", Remote: url, Ref: "master"},
		},
	}

	p, err := New(ctx, conf, discardLogger())
	require.NoError(t, err)

	p.StartLoop()
	require.NoError(t, p.QueueUpdateRun(url))

	cancel()
	select {
	case <-p.Stopped:
	case <-time.After(10 * time.Second):
		t.Fatal("pool did not stop after context cancellation")
	}

	repo, err := p.Repository(url)
	require.NoError(t, err)
	require.False(t, repo.LastChanged().IsZero(), "queued update was aborted during drain")

	content, err := os.ReadFile(filepath.Join(root, "test-repo", "README.md"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(content))
}

func TestPool_loop(t *testing.T) {
	url, commit := newUpstream(t)
	commit("README.md", "v1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	root := t.TempDir()
	conf := Config{
		Defaults: DefaultConfig{Root: root, Interval: time.Second},
		Repositories: []repository.Config{
			{Name: "test-repo", Remote: url, Ref: "master"},
		},
	}

	p, err := New(ctx, conf, discardLogger())
	require.NoError(t, err)

	p.StartLoop()

	repo, err := p.Repository(url)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return !repo.LastChanged().IsZero()
	}, 10*time.Second, 100*time.Millisecond, "repository never converged")

	content, err := os.ReadFile(filepath.Join(root, "test-repo", "README.md"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(content))

	// a new upstream commit is picked up by the schedule
	commit("README.md", "v2")
	require.Eventually(t, func() bool {
		content, err := os.ReadFile(filepath.Join(root, "test-repo", "README.md"))
		return err == nil && string(content) == "v2"
	}, 10*time.Second, 100*time.Millisecond, "new upstream commit never pulled")

	cancel()
	select {
	case <-p.Stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop after context cancellation")
	}
}
