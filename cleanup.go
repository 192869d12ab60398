package main

import (
	"os"
	"path/filepath"
	"slices"

	"github.com/go-git/go-git/v5"
	"github.com/utilitywarehouse/git-puller/pullpool"
)

// cleanupOrphanedRepos deletes working copy directories from the default root
// which are no longer referenced in config and were removed while app was down.
// Any removal while app is running is already handled by ensureConfig() hence
// this function should be called once.
// This is best effort clean up, working copies placed outside the default
// root are not considered.
func cleanupOrphanedRepos(config *pullpool.Config, pool *pullpool.Pool) {
	// if default root is not set repos might not be located in same dir
	if config.Defaults.Root == "" {
		return
	}

	repoPaths := pool.RepositoriesPath()

	entries, err := os.ReadDir(config.Defaults.Root)
	if err != nil {
		logger.Error("unable to read root dir for clean up", "err", err)
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		fullPath := filepath.Join(config.Defaults.Root, entry.Name())

		if slices.Contains(repoPaths, fullPath) {
			continue
		}

		// only working copies created by the puller are removed,
		// non-repo dirs must be skipped
		if _, err := git.PlainOpen(fullPath); err != nil {
			continue
		}

		logger.Info("removing orphaned repo dir...", "path", fullPath)
		if err := os.RemoveAll(fullPath); err != nil {
			logger.Error("unable to remove orphaned repo dir", "path", fullPath, "err", err)
			continue
		}
	}
}
