package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utilitywarehouse/git-puller/auth"
	"github.com/utilitywarehouse/git-puller/giturl"
	"github.com/utilitywarehouse/git-puller/internal/lock"
)

// Repository is the named handle combining one pulled repository's
// immutable configuration with its mutable synchronization state.
// Name and config never change after construction; only the
// last-checked/last-changed timestamps mutate, and only under the
// state lock. Reading the timestamps is safe from any goroutine.
//
// The update sequence itself carries no internal mutual exclusion, the
// dispatch layer must never run Update for the same Repository on two
// workers at once.
type Repository struct {
	name   string
	config Config
	gitURL *giturl.URL
	log    *slog.Logger

	lock        lock.RWMutex // guards the timestamp pair below
	lastChecked time.Time
	lastChanged time.Time

	// github app token cache, only touched from inside Update
	githubAppToken          string
	githubAppTokenExpiresAt time.Time
}

// New creates a repository handle from the given config. The remote
// will not be pulled until Update() is called.
func New(conf Config, log *slog.Logger) (*Repository, error) {
	remoteURL := giturl.NormaliseURL(conf.Remote)

	gURL, err := giturl.Parse(remoteURL)
	if err != nil {
		return nil, err
	}
	conf.Remote = remoteURL

	if err := conf.validate(); err != nil {
		return nil, err
	}

	name := conf.Name
	if name == "" {
		name = gURL.RepoName()
	}

	if log == nil {
		log = slog.Default()
	}

	return &Repository{
		name:   name,
		config: conf,
		gitURL: gURL,
		log:    log.With("repo", name),
	}, nil
}

// Name returns the repository name.
func (r *Repository) Name() string { return r.name }

// Config returns the repository configuration.
func (r *Repository) Config() Config { return r.config }

// LastChecked returns the time the repository was last checked against
// the remote, zero if it has never been checked.
func (r *Repository) LastChecked() time.Time {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return r.lastChecked
}

// LastChanged returns the time the working copy last changed to match
// the remote, zero if it has never changed.
func (r *Repository) LastChanged() time.Time {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return r.lastChanged
}

// Update converges the local working copy onto the configured remote
// reference. It returns true if the working copy was changed and false
// if it was already up to date. Local edits and untracked files are
// discarded on change. Failures are surfaced as *UpdateError and are
// never retried internally.
func (r *Repository) Update(ctx context.Context) (changed bool, err error) {
	defer updateSyncLatency(r.name, time.Now())
	defer func() { recordSync(r.name, changed, err == nil) }()

	now := time.Now()

	// checked is recorded before any I/O and is kept even when the
	// update fails later on
	r.lock.Lock()
	r.lastChecked = now
	r.lock.Unlock()

	gitRepo, err := r.openOrInit()
	if err != nil {
		return false, err
	}

	if err := r.fetch(ctx, gitRepo); err != nil {
		return false, err
	}

	head, staged, err := r.resolveObjects(gitRepo)
	if err != nil {
		return false, err
	}

	if head != nil && *head == *staged {
		r.log.Log(ctx, -8, "already up to date", "revision", staged.String())
		return false, nil
	}

	if err := r.hardReset(gitRepo, *staged); err != nil {
		return false, err
	}

	r.lock.Lock()
	r.lastChanged = now
	r.lock.Unlock()

	r.log.Info("updated working copy", "revision", staged.String())
	return true, nil
}

// githubAppCredential exchanges the configured github app for a
// plaintext token credential, re-using the cached token while it is
// valid for at least another 10 minutes.
func (r *Repository) githubAppCredential(ctx context.Context) (*Credential, error) {
	if r.githubAppTokenExpiresAt.After(time.Now().UTC().Add(10 * time.Minute)) {
		return &Credential{Password: &PasswordCredential{Username: "-", Password: r.githubAppToken}}, nil
	}

	app := r.config.Auth.GithubApp

	// github matches repo name without `.git` for token permissions
	permissions := auth.GithubAppTokenReqPermissions{
		Repositories: []string{r.gitURL.RepoName()},
		Permissions:  map[string]string{"contents": "read"},
	}

	token, err := auth.GithubAppInstallationToken(ctx,
		app.AppID, app.InstallationID, app.PrivateKeyPath, permissions)
	if err != nil {
		return nil, fmt.Errorf("unable to create github app access token: %w", err)
	}

	r.githubAppToken = token.Token
	r.githubAppTokenExpiresAt = token.ExpiresAt

	r.log.Debug("new github app access token created")

	return &Credential{Password: &PasswordCredential{Username: "-", Password: r.githubAppToken}}, nil
}
