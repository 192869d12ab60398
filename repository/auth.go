package repository

import (
	"fmt"
	"os"

	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"github.com/utilitywarehouse/git-puller/giturl"
)

// CredentialType is a bitmask of the authentication mechanisms a
// remote currently accepts.
type CredentialType uint

const (
	// CredentialTypeUsername is username-only negotiation, no secret
	// is carried.
	CredentialTypeUsername CredentialType = 1 << iota
	// CredentialTypeSSHKey is key based authentication with the key
	// material held in memory.
	CredentialTypeSSHKey
	// CredentialTypeUserPass is plaintext username/password.
	CredentialTypeUserPass
)

func (t CredentialType) String() string {
	switch t {
	case CredentialTypeUsername:
		return "username"
	case CredentialTypeSSHKey:
		return "ssh-key"
	case CredentialTypeUserPass:
		return "user-pass"
	default:
		return fmt.Sprintf("credential-type(%d)", t)
	}
}

// allowedCredentialTypes returns the mechanisms the remote can accept
// for the given transport scheme. This is the mask a credential
// challenge carries during fetch negotiation.
func allowedCredentialTypes(gURL *giturl.URL) CredentialType {
	switch gURL.Scheme {
	case "ssh", "scp":
		return CredentialTypeUsername | CredentialTypeSSHKey
	case "https":
		return CredentialTypeUsername | CredentialTypeUserPass
	default:
		// local urls never challenge
		return 0
	}
}

// resolvedCredential is the one concrete credential artifact picked by
// the resolver for a single challenge.
type resolvedCredential struct {
	credType CredentialType

	username string
	password string

	// publicKey is carried for completeness, go-git derives the public
	// key from the private key material
	publicKey  string
	privateKey []byte
	passphrase string
}

// resolveCredential picks one concrete credential for the mechanisms
// the remote currently accepts, or fails. It is a pure decision
// function over (allowed mask, configured credential), its only side
// effect is reading the private key file when the configured key is a
// path. A single fetch may challenge several times as the remote
// negotiates mechanisms, so the resolver holds no state across calls.
//
// Mechanisms are tried in a fixed order: username-only first, then
// in-memory ssh key, then plaintext username/password.
func resolveCredential(cred *Credential, proposedUser string, allowed CredentialType) (*resolvedCredential, error) {
	if cred == nil || (cred.SSH == nil && cred.Password == nil) {
		return nil, ErrAuthRequired
	}

	if allowed&CredentialTypeUsername != 0 {
		if cred.SSH != nil && cred.SSH.Username != "" {
			return &resolvedCredential{credType: CredentialTypeUsername, username: cred.SSH.Username}, nil
		}
		if cred.Password != nil && cred.Password.Username != "" {
			return &resolvedCredential{credType: CredentialTypeUsername, username: cred.Password.Username}, nil
		}
	}

	if allowed&CredentialTypeSSHKey != 0 && cred.SSH != nil {
		key := []byte(cred.SSH.PrivateKey)
		if cred.SSH.PrivateKeyIsPath {
			b, err := os.ReadFile(cred.SSH.PrivateKey)
			if err != nil {
				// the resolver runs inside fetch negotiation, a failed
				// key read surfaces as an authentication failure
				return nil, fmt.Errorf("unable to read ssh private key file: %w", err)
			}
			key = b
		}

		username := cred.SSH.Username
		if username == "" {
			username = proposedUser
		}
		if username == "" {
			username = "git"
		}

		return &resolvedCredential{
			credType:   CredentialTypeSSHKey,
			username:   username,
			publicKey:  cred.SSH.PublicKey,
			privateKey: key,
			passphrase: cred.SSH.Passphrase,
		}, nil
	}

	if allowed&CredentialTypeUserPass != 0 && cred.Password != nil {
		username := cred.Password.Username
		if username == "" {
			username = proposedUser
		}
		return &resolvedCredential{
			credType: CredentialTypeUserPass,
			username: username,
			password: cred.Password.Password,
		}, nil
	}

	return nil, ErrAuthUnsupported
}

// authMethod converts the picked credential into the transport auth
// artifact for the given url scheme.
func (c *resolvedCredential) authMethod(scheme string) (transport.AuthMethod, error) {
	switch c.credType {
	case CredentialTypeUsername:
		if scheme == "ssh" || scheme == "scp" {
			return &gitssh.Password{User: c.username}, nil
		}
		return &githttp.BasicAuth{Username: c.username}, nil
	case CredentialTypeSSHKey:
		keys, err := gitssh.NewPublicKeys(c.username, c.privateKey, c.passphrase)
		if err != nil {
			return nil, fmt.Errorf("unable to parse ssh private key: %w", err)
		}
		return keys, nil
	case CredentialTypeUserPass:
		return &githttp.BasicAuth{Username: c.username, Password: c.password}, nil
	default:
		return nil, fmt.Errorf("unknown credential type %s", c.credType)
	}
}
