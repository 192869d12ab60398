package repository

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// MinAllowedInterval is the minimum polling interval a repository can
// be configured with.
const MinAllowedInterval = time.Second

// Config represents the config for one pulled repository. It is
// immutable for the lifetime of the process, a Repository only ever
// references it.
type Config struct {
	// Name is the short name used in logs and metrics. defaults to the
	// repo name derived from the remote url
	Name string `yaml:"name"`

	// Path is the absolute path of the local working copy
	Path string `yaml:"path"`

	// Remote is the git URL of the remote repo to pull
	Remote string `yaml:"remote"`

	// Ref is the remote reference the working copy converges on.
	// a bare branch name is expanded to refs/heads/<name>,
	// default is HEAD (the remote default branch)
	Ref string `yaml:"ref"`

	// Interval is time duration for how long to wait between checks.
	// repositories without an interval are never auto scheduled
	Interval time.Duration `yaml:"interval"`

	// Auth is the optional credential used during fetch
	Auth *Credential `yaml:"auth"`
}

// Credential holds exactly one of the supported credential variants.
type Credential struct {
	SSH       *SSHCredential       `yaml:"ssh"`
	Password  *PasswordCredential  `yaml:"password"`
	GithubApp *GithubAppCredential `yaml:"github_app"`
}

// SSHCredential is a private key credential for ssh remotes.
type SSHCredential struct {
	// username to present to the remote, defaults to the user from
	// the remote url or 'git'
	Username string `yaml:"username"`

	// PrivateKey is the key material itself or, if PrivateKeyIsPath is
	// set, the path of the file holding it
	PrivateKey       string `yaml:"private_key"`
	PrivateKeyIsPath bool   `yaml:"private_key_is_path"`

	// PublicKey is optional, it can be derived from the private key
	PublicKey string `yaml:"public_key"`

	// Passphrase of the private key if it is encrypted
	Passphrase string `yaml:"passphrase"`
}

// PasswordCredential is a plaintext username/password (or personal
// access token) credential for https remotes.
type PasswordCredential struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// GithubAppCredential mints short lived installation access tokens
// which are used as plaintext token credentials.
type GithubAppCredential struct {
	// The application id or the client ID of the Github app
	AppID string `yaml:"app_id"`
	// The installation id of the app (in the organization).
	InstallationID string `yaml:"installation_id"`
	// path to the github app private key
	PrivateKeyPath string `yaml:"private_key_path"`
}

// remoteRef returns the full name of the remote reference to converge
// on.
func (c *Config) remoteRef() string {
	switch {
	case c.Ref == "" || c.Ref == "HEAD":
		return "HEAD"
	case strings.HasPrefix(c.Ref, "refs/"):
		return c.Ref
	default:
		return "refs/heads/" + c.Ref
	}
}

func (c *Config) validate() error {
	if !filepath.IsAbs(c.Path) {
		return fmt.Errorf("repository path '%s' must be absolute", c.Path)
	}

	if c.Interval != 0 && c.Interval < MinAllowedInterval {
		return fmt.Errorf("provided interval between checks is too short (%s), must be >= %s", c.Interval, MinAllowedInterval)
	}

	if c.Auth != nil {
		if err := c.Auth.validate(); err != nil {
			return err
		}
	}

	return nil
}

func (cred *Credential) validate() error {
	var set int
	if cred.SSH != nil {
		set++
		if cred.SSH.PrivateKey == "" {
			return fmt.Errorf("ssh credential requires private_key")
		}
	}
	if cred.Password != nil {
		set++
		if cred.Password.Password == "" {
			return fmt.Errorf("password credential requires password")
		}
	}
	if cred.GithubApp != nil {
		set++
		if cred.GithubApp.AppID == "" ||
			cred.GithubApp.InstallationID == "" ||
			cred.GithubApp.PrivateKeyPath == "" {
			return fmt.Errorf("all of the Github app attributes are required")
		}
	}

	if set != 1 {
		return fmt.Errorf("exactly one of ssh, password or github_app credential must be set")
	}

	return nil
}
