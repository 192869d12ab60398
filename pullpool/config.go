package pullpool

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/utilitywarehouse/git-puller/giturl"
	"github.com/utilitywarehouse/git-puller/internal/utils"
	"github.com/utilitywarehouse/git-puller/repository"
)

const (
	defaultWorkers       = 2
	defaultQueueSize     = 100
	defaultUpdateTimeout = 2 * time.Minute
)

// Config is the configuration to create a Pool
type Config struct {
	// default config for all the repositories if not set
	Defaults DefaultConfig `yaml:"defaults"`
	// List of pulled repositories.
	Repositories []repository.Config `yaml:"repositories"`
}

// DefaultConfig is the default config for repositories if not set at
// repo level
type DefaultConfig struct {
	// Root is the absolute path to the root dir where all repository
	// working copies will be created if the repo config path is
	// relative or not set
	Root string `yaml:"root"`

	// Interval is time duration for how long to wait between checks
	Interval time.Duration `yaml:"interval"`

	// UpdateTimeout represents the total time allowed for one update
	UpdateTimeout time.Duration `yaml:"update_timeout"`

	// Workers is the number of goroutines consuming the dispatch queue
	Workers int `yaml:"workers"`

	// QueueSize is the capacity of the dispatch queue, schedulers
	// block once it is full
	QueueSize int `yaml:"queue_size"`

	// Auth config to fetch remote repos
	Auth *repository.Credential `yaml:"auth"`
}

// validateDefaults will verify default config
func (rpc *Config) validateDefaults() error {
	dc := rpc.Defaults

	var errs []error

	if dc.Root != "" {
		if !filepath.IsAbs(dc.Root) {
			errs = append(errs, fmt.Errorf("repository root '%s' must be absolute", dc.Root))
		}
	}

	if dc.Interval != 0 {
		if dc.Interval < repository.MinAllowedInterval {
			errs = append(errs, fmt.Errorf("provided interval between checks is too short (%s), must be >= %s", dc.Interval, repository.MinAllowedInterval))
		}
	}

	if dc.UpdateTimeout != 0 {
		if dc.UpdateTimeout < repository.MinAllowedInterval {
			errs = append(errs, fmt.Errorf("provided update timeout is too short (%s), must be >= %s", dc.UpdateTimeout, repository.MinAllowedInterval))
		}
	}

	if dc.Workers < 0 {
		errs = append(errs, fmt.Errorf("provided worker count (%d) must not be negative", dc.Workers))
	}

	if dc.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("provided queue size (%d) must not be negative", dc.QueueSize))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", errs)
	}

	return nil
}

// applyDefaults will add given default config to repository config
// where needed
func (rpc *Config) applyDefaults() {
	if rpc.Defaults.Workers == 0 {
		rpc.Defaults.Workers = defaultWorkers
	}
	if rpc.Defaults.QueueSize == 0 {
		rpc.Defaults.QueueSize = defaultQueueSize
	}
	if rpc.Defaults.UpdateTimeout == 0 {
		rpc.Defaults.UpdateTimeout = defaultUpdateTimeout
	}

	for i := range rpc.Repositories {
		repo := &rpc.Repositories[i]

		// a repo without a path lands under the root, named after the
		// remote repo
		if repo.Path == "" {
			repo.Path = repo.Name
			if repo.Path == "" {
				if gURL, err := giturl.Parse(repo.Remote); err == nil {
					repo.Path = gURL.RepoName()
				}
			}
		}
		repo.Path = utils.AbsPath(rpc.Defaults.Root, repo.Path)

		if repo.Interval == 0 {
			repo.Interval = rpc.Defaults.Interval
		}

		if repo.Auth == nil {
			repo.Auth = rpc.Defaults.Auth
		}
	}
}

// It is possible that the same root is used for multiple repositories,
// validatePaths makes sure all working copy absolute paths are
// different.
func (rpc *Config) validatePaths() error {
	var errs []error

	paths := make(map[string]bool)

	for _, repo := range rpc.Repositories {
		if ok := paths[repo.Path]; ok {
			errs = append(errs, fmt.Errorf("repositories with overlapping abs path found path:%s", repo.Path))
			continue
		}
		paths[repo.Path] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", errs)
	}

	return nil
}

// ValidateAndApplyDefaults will validate defaults, apply them to the
// repository configs and validate the resulting working copy paths
func (conf *Config) ValidateAndApplyDefaults() error {
	if err := conf.validateDefaults(); err != nil {
		return err
	}

	conf.applyDefaults()

	if err := conf.validatePaths(); err != nil {
		return err
	}

	return nil
}
