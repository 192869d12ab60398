package repository

import (
	"testing"
	"time"
)

func TestRemoteRef(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		want string
	}{
		{"default", "", "HEAD"},
		{"explicit_head", "HEAD", "HEAD"},
		{"branch_name", "main", "refs/heads/main"},
		{"full_branch_ref", "refs/heads/main", "refs/heads/main"},
		{"tag_ref", "refs/tags/v1.0.0", "refs/tags/v1.0.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := Config{Ref: tt.ref}
			if got := conf.remoteRef(); got != tt.want {
				t.Errorf("remoteRef() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		conf    Config
		wantErr bool
	}{
		{"valid",
			Config{Path: "/tmp/repo", Interval: time.Minute},
			false},
		{"valid_no_interval",
			Config{Path: "/tmp/repo"},
			false},
		{"relative_path",
			Config{Path: "tmp/repo", Interval: time.Minute},
			true},
		{"interval_too_short",
			Config{Path: "/tmp/repo", Interval: 500 * time.Millisecond},
			true},
		{"valid_ssh_auth",
			Config{Path: "/tmp/repo", Auth: &Credential{
				SSH: &SSHCredential{PrivateKey: "material"},
			}},
			false},
		{"ssh_auth_without_key",
			Config{Path: "/tmp/repo", Auth: &Credential{
				SSH: &SSHCredential{Username: "git"},
			}},
			true},
		{"valid_password_auth",
			Config{Path: "/tmp/repo", Auth: &Credential{
				Password: &PasswordCredential{Password: "secret"},
			}},
			false},
		{"password_auth_without_password",
			Config{Path: "/tmp/repo", Auth: &Credential{
				Password: &PasswordCredential{Username: "bob"},
			}},
			true},
		{"valid_github_app_auth",
			Config{Path: "/tmp/repo", Auth: &Credential{
				GithubApp: &GithubAppCredential{AppID: "1", InstallationID: "2", PrivateKeyPath: "/tmp/key.pem"},
			}},
			false},
		{"github_app_auth_missing_attribute",
			Config{Path: "/tmp/repo", Auth: &Credential{
				GithubApp: &GithubAppCredential{AppID: "1", PrivateKeyPath: "/tmp/key.pem"},
			}},
			true},
		{"empty_auth",
			Config{Path: "/tmp/repo", Auth: &Credential{}},
			true},
		{"multiple_auth_variants",
			Config{Path: "/tmp/repo", Auth: &Credential{
				SSH:      &SSHCredential{PrivateKey: "material"},
				Password: &PasswordCredential{Password: "secret"},
			}},
			true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.conf.validate(); (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("name_defaults_to_repo_name", func(t *testing.T) {
		repo, err := New(Config{
			Path:   "/tmp/repo",
			Remote: "git@github.com:org/some-repo.git",
		}, nil)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if repo.Name() != "some-repo" {
			t.Errorf("Name() = %q, want %q", repo.Name(), "some-repo")
		}
	})

	t.Run("explicit_name_kept", func(t *testing.T) {
		repo, err := New(Config{
			Name:   "custom",
			Path:   "/tmp/repo",
			Remote: "git@github.com:org/some-repo.git",
		}, nil)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if repo.Name() != "custom" {
			t.Errorf("Name() = %q, want %q", repo.Name(), "custom")
		}
	})

	t.Run("invalid_remote", func(t *testing.T) {
		if _, err := New(Config{
			Path:   "/tmp/repo",
			Remote: "http://github.com/org/repo.git",
		}, nil); err == nil {
			t.Error("New() expected error for invalid remote url")
		}
	})

	t.Run("invalid_config", func(t *testing.T) {
		if _, err := New(Config{
			Path:   "relative/path",
			Remote: "git@github.com:org/repo.git",
		}, nil); err == nil {
			t.Error("New() expected error for relative path")
		}
	})

	t.Run("timestamps_start_zero", func(t *testing.T) {
		repo, err := New(Config{
			Path:   "/tmp/repo",
			Remote: "git@github.com:org/repo.git",
		}, nil)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if !repo.LastChecked().IsZero() || !repo.LastChanged().IsZero() {
			t.Error("expected zero timestamps before the first update")
		}
	})
}
