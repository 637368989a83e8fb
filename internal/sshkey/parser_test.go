package sshkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_SimpleKey(t *testing.T) {
	alg, data, comment, err := Parse("ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAI admin@rise")
	require.NoError(t, err)
	assert.Equal(t, "ssh-ed25519", alg)
	assert.Equal(t, "AAAAC3NzaC1lZDI1NTE5AAAAI", data)
	assert.Equal(t, "admin@rise", comment)
}

func TestParse_SkipsLeadingOptions(t *testing.T) {
	alg, data, _, err := Parse(`from="10.0.0.0/8",no-port-forwarding ssh-rsa AAAAB3NzaC1yc2E= deploy`)
	require.NoError(t, err)
	assert.Equal(t, "ssh-rsa", alg)
	assert.Equal(t, "AAAAB3NzaC1yc2E=", data)
}

func TestParse_EmptyLine(t *testing.T) {
	_, _, _, err := Parse("")
	assert.Error(t, err)
}

func TestParse_NoKeyType(t *testing.T) {
	_, _, _, err := Parse("not a key at all")
	assert.Error(t, err)
}

func TestCanonical_DropsCommentAndOptions(t *testing.T) {
	a, err := Canonical("ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAI admin@rise")
	require.NoError(t, err)
	b, err := Canonical(`from="10.0.0.0/8" ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAI someone-else@laptop`)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAI", a)
}
