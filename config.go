package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"reflect"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/utilitywarehouse/git-puller/giturl"
	"github.com/utilitywarehouse/git-puller/pullpool"
	"github.com/utilitywarehouse/git-puller/repository"
	"gopkg.in/yaml.v3"
)

const (
	metricsNamespace = "git_puller"

	defaultInterval      = 30 * time.Second
	defaultUpdateTimeout = 2 * time.Minute
)

var (
	defaultRoot = path.Join(os.TempDir(), "git-puller", "src")

	configSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "git_puller_config_last_reload_successful",
		Help: "Whether the last configuration reload attempt was successful.",
	})
	configSuccessTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "git_puller_config_last_reload_success_timestamp_seconds",
		Help: "Timestamp of the last successful configuration reload.",
	})
)

// WatchConfig polls the config file every interval and reloads if modified
func WatchConfig(ctx context.Context, path string, watchConfig bool, interval time.Duration, onChange func(*pullpool.Config) bool) {
	var lastModTime time.Time
	var success bool

	for {
		lastModTime, success = loadConfig(path, lastModTime, onChange)
		if success {
			configSuccess.Set(1)
			configSuccessTime.SetToCurrentTime()
		} else {
			configSuccess.Set(0)
		}

		if !watchConfig {
			return
		}

		t := time.NewTimer(interval)
		select {
		case <-t.C:
		case <-ctx.Done():
			return
		}
	}
}

func loadConfig(path string, lastModTime time.Time, onChange func(*pullpool.Config) bool) (time.Time, bool) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		logger.Error("unable to check config file", "err", err)
		return lastModTime, false
	}

	modTime := fileInfo.ModTime()
	if modTime.Equal(lastModTime) {
		return lastModTime, true
	}

	logger.Info("reloading config file...")

	newConfig, err := parseConfigFile(path)
	if err != nil {
		logger.Error("failed to reload config", "err", err)
		return lastModTime, false
	}
	return modTime, onChange(newConfig)
}

// ensureConfig will do the diff between current pool state and new
// config and based on that diff it will add/remove repositories
func ensureConfig(pool *pullpool.Pool, newConfig *pullpool.Config) bool {
	success := true

	// add default values
	applyPullDefaults(newConfig)

	// validate and apply defaults to new config before compare
	if err := newConfig.ValidateAndApplyDefaults(); err != nil {
		logger.Error("failed to validate new config", "err", err)
		return false
	}

	newRepos, removedRepos := diffRepositories(pool, newConfig)
	for _, repo := range removedRepos {
		if err := pool.RemoveRepository(repo); err != nil {
			logger.Error("failed to remove repository", "remote", repo, "err", err)
			success = false
		}
	}
	for _, repo := range newRepos {
		// repos added while the pool loop is running are scheduled
		// right away
		if err := pool.AddRepository(repo); err != nil {
			logger.Error("failed to add new repository", "remote", repo.Remote, "err", err)
			success = false
		}
	}

	return success
}

func applyPullDefaults(conf *pullpool.Config) {
	if conf.Defaults.Root == "" {
		conf.Defaults.Root = defaultRoot
	}

	if conf.Defaults.Interval == 0 {
		conf.Defaults.Interval = defaultInterval
	}

	if conf.Defaults.UpdateTimeout == 0 {
		conf.Defaults.UpdateTimeout = defaultUpdateTimeout
	}
}

func parseConfigFile(path string) (*pullpool.Config, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	err = validateConfig(yamlFile)
	if err != nil {
		return nil, err
	}

	conf := &pullpool.Config{}
	err = yaml.Unmarshal(yamlFile, conf)
	if err != nil {
		return nil, err
	}

	return conf, nil
}

func validateConfig(yamlData []byte) error {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(yamlData, &raw); err != nil {
		return err
	}

	// defaults and repositories sections are mandatory
	if _, ok := raw["defaults"]; !ok {
		return fmt.Errorf("defaults config section is missing")
	}

	if _, ok := raw["repositories"]; !ok {
		return fmt.Errorf("repositories config section is missing")
	}

	// check config sections for unexpected keys
	allowedPoolConfig := getAllowedKeys(pullpool.Config{})
	if key := findUnexpectedKey(raw, allowedPoolConfig); key != "" {
		return fmt.Errorf("unexpected key: .%v", key)
	}

	// check "defaults" section
	defaultsMap, ok := raw["defaults"].(map[string]interface{})
	if !ok {
		return fmt.Errorf("defaults section is missing or not valid")
	}
	allowedDefaults := getAllowedKeys(pullpool.DefaultConfig{})

	if key := findUnexpectedKey(defaultsMap, allowedDefaults); key != "" {
		return fmt.Errorf("unexpected key: .defaults.%v", key)
	}

	// check "auth" section in "defaults"
	if authMap, ok := defaultsMap["auth"].(map[string]interface{}); ok {
		if err := validateCredentialKeys(authMap, ".defaults.auth"); err != nil {
			return err
		}
	}

	// check each repository in "repositories" section
	allowedRepoKeys := getAllowedKeys(repository.Config{})
	for _, repoInterface := range raw["repositories"].([]interface{}) {
		repoMap, ok := repoInterface.(map[string]interface{})
		if !ok {
			return fmt.Errorf("repositories config section is not valid")
		}

		if key := findUnexpectedKey(repoMap, allowedRepoKeys); key != "" {
			return fmt.Errorf("unexpected key: .repositories[%v].%v", repoMap["remote"], key)
		}

		// check "auth" section of each repository
		if authMap, ok := repoMap["auth"].(map[string]interface{}); ok {
			if err := validateCredentialKeys(authMap, fmt.Sprintf(".repositories[%v].auth", repoMap["remote"])); err != nil {
				return err
			}
		}
	}

	return nil
}

// validateCredentialKeys checks an auth section and its nested
// credential variant sections for unexpected keys
func validateCredentialKeys(authMap map[string]interface{}, section string) error {
	allowedCredKeys := getAllowedKeys(repository.Credential{})
	if key := findUnexpectedKey(authMap, allowedCredKeys); key != "" {
		return fmt.Errorf("unexpected key: %s.%v", section, key)
	}

	variants := map[string]interface{}{
		"ssh":        repository.SSHCredential{},
		"password":   repository.PasswordCredential{},
		"github_app": repository.GithubAppCredential{},
	}
	for name, variant := range variants {
		variantMap, ok := authMap[name].(map[string]interface{})
		if !ok {
			continue
		}
		if key := findUnexpectedKey(variantMap, getAllowedKeys(variant)); key != "" {
			return fmt.Errorf("unexpected key: %s.%s.%v", section, name, key)
		}
	}

	return nil
}

// getAllowedKeys retrieves a list of allowed keys from the specified struct
func getAllowedKeys(config interface{}) []string {
	var allowedKeys []string
	val := reflect.ValueOf(config)
	typ := reflect.TypeOf(config)

	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		yamlTag := field.Tag.Get("yaml")
		if yamlTag != "" {
			allowedKeys = append(allowedKeys, yamlTag)
		}
	}
	return allowedKeys
}

func findUnexpectedKey(raw interface{}, allowedKeys []string) string {
	for key := range raw.(map[string]interface{}) {
		if !slices.Contains(allowedKeys, key) {
			return key
		}
	}

	return ""
}

// diffRepositories will do the diff between current state and new config and
// return new repositories config and list of remote url which are not found in config
func diffRepositories(pool *pullpool.Pool, newConfig *pullpool.Config) (
	newRepos []repository.Config,
	removedRepos []string,
) {
	for _, newRepo := range newConfig.Repositories {
		if _, err := pool.Repository(newRepo.Remote); errors.Is(err, pullpool.ErrNotExist) {
			newRepos = append(newRepos, newRepo)
		}
	}

	for _, currentRepoURL := range pool.RepositoriesRemote() {
		var found bool
		for _, newRepo := range newConfig.Repositories {
			if currentRepoURL == giturl.NormaliseURL(newRepo.Remote) {
				found = true
				break
			}
		}
		if !found {
			removedRepos = append(removedRepos, currentRepoURL)
		}
	}

	return
}
