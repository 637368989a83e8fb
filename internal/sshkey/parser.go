// Copyright (c) 2026 RISE Team
// RISE - remote infrastructure service engine
// This source code is licensed under the MIT license found in the LICENSE file.

// Package sshkey provides small, dependency-light helpers for parsing and
// validating SSH public key material exchanged during onboarding and
// device enrollment.
package sshkey

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

// Parse splits a raw public key line into its three core components:
// algorithm, key data, and comment. It correctly handles leading options in
// the line (e.g. from="...",command="...").
func Parse(rawKey string) (algorithm, keyData, comment string, err error) {
	fields := strings.Fields(rawKey)
	if len(fields) == 0 {
		err = fmt.Errorf("sshkey: empty line")
		return
	}

	keyStartIndex := -1
	for i, field := range fields {
		if strings.HasPrefix(field, "ssh-") || strings.HasPrefix(field, "ecdsa-") {
			keyStartIndex = i
			break
		}
	}

	if keyStartIndex == -1 {
		err = fmt.Errorf("sshkey: no valid SSH key type found in line")
		return
	}
	if len(fields) < keyStartIndex+2 {
		err = fmt.Errorf("sshkey: missing key data after algorithm")
		return
	}

	algorithm = fields[keyStartIndex]
	keyData = fields[keyStartIndex+1]
	if len(fields) > keyStartIndex+2 {
		comment = strings.Join(fields[keyStartIndex+2:], " ")
	}
	return
}

// Canonical reduces a public key line to "algorithm keyData", dropping the
// comment and any leading options, so two differently-commented encodings
// of the same key compare equal.
func Canonical(rawKey string) (string, error) {
	algorithm, keyData, _, err := Parse(rawKey)
	if err != nil {
		return "", err
	}
	return algorithm + " " + keyData, nil
}

// CheckHostKeyAlgorithm inspects a host key's algorithm and returns a
// warning message if it is considered weak or deprecated, empty otherwise.
func CheckHostKeyAlgorithm(key ssh.PublicKey) string {
	switch key.Type() {
	case "ssh-dss":
		return "SECURITY WARNING: host key uses deprecated and insecure ssh-dss (DSA)."
	case ssh.KeyAlgoRSA:
		return "SECURITY WARNING: host key uses ssh-rsa, disabled by default in modern OpenSSH."
	default:
		return ""
	}
}
