// Copyright (c) 2026 RISE Team
// RISE - remote infrastructure service engine
// This source code is licensed under the MIT license found in the LICENSE file.

package transport

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

// errHostKeyCaptured is a sentinel used to abort an SSH handshake early
// once the presented host key has been captured, following a
// ErrHostKeySuccessfullyRetrieved technique in internal/deploy/ssh.go.
var errHostKeyCaptured = errors.New("transport: host key captured")

// DefaultHostKeyTimeout bounds how long probing a host's key may take.
const DefaultHostKeyTimeout = 5 * time.Second

// ProbeHostKey connects just far enough to capture the server's host key,
// without authenticating, so the TOFU verifier can classify it before any
// credential is sent.
func ProbeHostKey(addr string, timeout time.Duration) (ssh.PublicKey, error) {
	keyChan := make(chan ssh.PublicKey, 1)

	config := &ssh.ClientConfig{
		User: "rise-probe",
		HostKeyCallback: func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			keyChan <- key
			return errHostKeyCaptured
		},
		Timeout: timeout,
	}

	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "22")
	}

	_, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		if errors.Is(err, errHostKeyCaptured) {
			return <-keyChan, nil
		}
		return nil, classifyConnectionError(addr, err)
	}
	return nil, fmt.Errorf("transport: handshake succeeded without host key callback firing")
}

// Fingerprint canonicalizes a host key as "SHA256:<base64>" per §4.2.
func Fingerprint(key ssh.PublicKey) string {
	sum := sha256.Sum256(key.Marshal())
	return "SHA256:" + base64.StdEncoding.EncodeToString(sum[:])
}
