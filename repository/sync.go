package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

const (
	defaultDirMode fs.FileMode = os.FileMode(0755) // 'rwxr-xr-x'

	// stagingRef is the fixed local reference the fetched remote
	// commit lands on before comparison and reset. It is distinct
	// from the working copy's own branch references.
	stagingRef = "refs/git-puller"
)

// openOrInit opens the working copy at the configured path, or creates
// the directory and initializes a new empty repository if the path
// does not exist yet.
func (r *Repository) openOrInit() (*git.Repository, error) {
	_, err := os.Stat(r.config.Path)
	switch {
	case os.IsNotExist(err):
		r.log.Info("repo directory does not exist, initializing new repository", "path", r.config.Path)
		if err := os.MkdirAll(r.config.Path, defaultDirMode); err != nil {
			return nil, newIOError("unable to create repo dir", err)
		}
		gitRepo, err := git.PlainInit(r.config.Path, false)
		if err != nil {
			return nil, newGitError("unable to init repo", err)
		}
		return gitRepo, nil
	case err != nil:
		return nil, newIOError("unable to verify repo dir", err)
	default:
		gitRepo, err := git.PlainOpen(r.config.Path)
		if err != nil {
			return nil, newGitError("unable to open repo", err)
		}
		return gitRepo, nil
	}
}

// fetch fetches the configured remote reference onto the staging
// reference via an anonymous remote, with remote-tracking pruning
// enabled. The credential resolver is consulted on every
// authentication challenge; a rejected mechanism narrows the allowed
// mask and the resolver is challenged again.
func (r *Repository) fetch(ctx context.Context, gitRepo *git.Repository) error {
	remote, err := gitRepo.CreateRemoteAnonymous(&gitconfig.RemoteConfig{
		Name: "anonymous",
		URLs: []string{r.config.Remote},
	})
	if err != nil {
		return newGitError("unable to create anonymous remote", err)
	}

	refSpec := gitconfig.RefSpec(fmt.Sprintf("+%s:%s", r.config.remoteRef(), stagingRef))

	cred := r.config.Auth
	allowed := allowedCredentialTypes(r.gitURL)

	// local transports never challenge, a credential configured on the
	// repo (or inherited from pool defaults) is ignored rather than
	// resolved against an empty mask
	if allowed == 0 {
		cred = nil
	}

	// a github app credential materialises into a plaintext token
	// credential before negotiation starts
	if cred != nil && cred.GithubApp != nil {
		cred, err = r.githubAppCredential(ctx)
		if err != nil {
			return newGitError("unable to get github app token", err)
		}
	}

	for {
		var auth transport.AuthMethod
		var used CredentialType

		// without a configured credential the fetch is attempted
		// unauthenticated, the remote may be public
		if cred != nil {
			resolved, err := resolveCredential(cred, r.gitURL.User, allowed)
			if err != nil {
				return newGitError("unable to resolve credential", err)
			}
			auth, err = resolved.authMethod(r.gitURL.Scheme)
			if err != nil {
				return newGitError("unable to build auth method", err)
			}
			used = resolved.credType
		}

		r.log.Log(ctx, -8, "fetching remote", "refspec", string(refSpec))
		err = remote.FetchContext(ctx, &git.FetchOptions{
			RefSpecs: []gitconfig.RefSpec{refSpec},
			Prune:    true,
			Tags:     git.NoTags,
			Auth:     auth,
			Force:    true,
		})
		switch {
		case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
			return nil
		case isAuthChallenge(err) && cred == nil:
			return newGitError("unable to resolve credential", ErrAuthRequired)
		case isAuthChallenge(err) && allowed&^used != 0:
			r.log.Debug("credential rejected, re-negotiating", "rejected", used.String())
			allowed &^= used
			continue
		default:
			return newGitError("unable to fetch remote", err)
		}
	}
}

func isAuthChallenge(err error) bool {
	return errors.Is(err, transport.ErrAuthenticationRequired) ||
		errors.Is(err, transport.ErrAuthorizationFailed)
}

// resolveObjects resolves the object currently at HEAD and the object
// landed on the staging reference. Absence of HEAD is tolerated, it
// covers the first ever sync of a freshly initialized working copy.
// Absence of the staging object means the remote reference did not
// resolve and is fatal.
func (r *Repository) resolveObjects(gitRepo *git.Repository) (head, staged *plumbing.Hash, err error) {
	head, _ = gitRepo.ResolveRevision(plumbing.Revision(plumbing.HEAD))

	staged, err = gitRepo.ResolveRevision(plumbing.Revision(stagingRef))
	if err != nil {
		return nil, nil, newGitError("unable to resolve staging reference", err)
	}

	return head, staged, nil
}

// hardReset converges the working tree, index and branch pointer onto
// the given commit, discarding local modifications and untracked
// files.
func (r *Repository) hardReset(gitRepo *git.Repository, hash plumbing.Hash) error {
	// on the first ever sync HEAD points at a branch which does not
	// exist yet, create it so the reset can move it
	if ref, err := gitRepo.Reference(plumbing.HEAD, false); err == nil &&
		ref.Type() == plumbing.SymbolicReference {
		if _, err := gitRepo.Reference(ref.Target(), false); err != nil {
			branchRef := plumbing.NewHashReference(ref.Target(), hash)
			if err := gitRepo.Storer.SetReference(branchRef); err != nil {
				return newGitError("unable to create branch reference", err)
			}
		}
	}

	wt, err := gitRepo.Worktree()
	if err != nil {
		return newGitError("unable to get worktree", err)
	}

	if err := wt.Reset(&git.ResetOptions{Commit: hash, Mode: git.HardReset}); err != nil {
		return newGitError("unable to reset worktree", err)
	}

	// a hard reset leaves untracked files behind, clean converges those
	if err := wt.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return newGitError("unable to clean worktree", err)
	}

	return nil
}
