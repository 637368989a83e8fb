// Copyright (c) 2026 RISE Team
// RISE - remote infrastructure service engine
// This source code is licensed under the MIT license found in the LICENSE file.

// Package keystore implements the device key store (C1): a single, lazily
// generated Ed25519 keypair per installation, kept confidential on disk.
package keystore

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"

	"github.com/rise-fleet/rise/internal/security"
)

// ErrInsecureStorage is returned when the store cannot guarantee that the
// private key will be kept confidential (owner-only permissions) on the
// target filesystem.
var ErrInsecureStorage = errors.New("keystore: cannot guarantee confidential storage for device key")

const privateKeyFile = "device_ed25519"
const publicKeyFile = "device_ed25519.pub"

// Store owns the single device keypair for this installation.
type Store struct {
	mu   sync.Mutex
	dir  string
	priv security.Secret
	pub  string
}

// New returns a Store rooted at dir (the "keys/" directory under the
// state root). Ensure creates the directory with owner-only permissions if
// it does not exist yet.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Ensure loads the keypair from disk if present, otherwise generates and
// persists a new one. Safe to call repeatedly; the keypair is generated at
// most once per Store.
func (s *Store) Ensure(comment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.priv != nil {
		return nil
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("keystore: create key directory: %w", err)
	}
	if err := checkOwnerOnly(s.dir); err != nil {
		return fmt.Errorf("%w: %v", ErrInsecureStorage, err)
	}

	privPath := filepath.Join(s.dir, privateKeyFile)
	pubPath := filepath.Join(s.dir, publicKeyFile)

	if privBytes, err := os.ReadFile(privPath); err == nil {
		pubBytes, err := os.ReadFile(pubPath)
		if err != nil {
			return fmt.Errorf("keystore: read public key: %w", err)
		}
		s.priv = security.FromBytes(privBytes)
		s.pub = strings.TrimSpace(string(pubBytes))
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("keystore: read private key: %w", err)
	}

	pub, priv, err := generateEd25519(comment)
	if err != nil {
		return err
	}
	if err := writeOwnerOnly(privPath, []byte(priv)); err != nil {
		return fmt.Errorf("keystore: persist private key: %w", err)
	}
	if err := writeOwnerOnly(pubPath, []byte(pub+"\n")); err != nil {
		return fmt.Errorf("keystore: persist public key: %w", err)
	}
	s.priv = security.FromString(priv)
	s.pub = pub
	return nil
}

// GetPublicKey returns the device's public key in authorized_keys format.
func (s *Store) GetPublicKey() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pub == "" {
		return "", errors.New("keystore: not initialized, call Ensure first")
	}
	return s.pub, nil
}

// LoadPrivate hands the raw PEM-encoded private key to fn without making an
// extra copy that would outlive the call.
func (s *Store) LoadPrivate(fn func(pemBytes []byte) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.priv == nil {
		return errors.New("keystore: not initialized, call Ensure first")
	}
	return s.priv.Use(fn)
}

// Signer returns an ssh.Signer for the device's private key.
func (s *Store) Signer() (ssh.Signer, error) {
	var signer ssh.Signer
	err := s.LoadPrivate(func(pemBytes []byte) error {
		sig, err := ssh.ParsePrivateKey(pemBytes)
		if err != nil {
			return fmt.Errorf("keystore: parse private key: %w", err)
		}
		signer = sig
		return nil
	})
	return signer, err
}

// Clear wipes the in-memory keypair. Testing only; does not remove on-disk
// material.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.priv.Zero()
	s.priv = nil
	s.pub = ""
}

func generateEd25519(comment string) (publicKeyString, privateKeyString string, err error) {
	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("keystore: generate ed25519 keypair: %w", err)
	}

	sshPubKey, err := ssh.NewPublicKey(pubKey)
	if err != nil {
		return "", "", fmt.Errorf("keystore: wrap ssh public key: %w", err)
	}
	pubKeyBytes := ssh.MarshalAuthorizedKey(sshPubKey)
	publicKeyString = fmt.Sprintf("%s %s", strings.TrimSpace(string(pubKeyBytes)), comment)

	pemBlock, err := ssh.MarshalPrivateKey(privKey, "")
	if err != nil {
		return "", "", fmt.Errorf("keystore: marshal private key: %w", err)
	}
	privateKeyString = string(pem.EncodeToMemory(pemBlock))
	return publicKeyString, privateKeyString, nil
}

func writeOwnerOnly(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// checkOwnerOnly verifies the directory isn't group/world accessible. On
// Windows, filesystem ACLs aren't checked here; Unix permission bits are
// the confidentiality boundary we can verify portably.
func checkOwnerOnly(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if info.Mode().Perm()&0o077 != 0 {
		return fmt.Errorf("directory %s is accessible to group or other", dir)
	}
	return nil
}
