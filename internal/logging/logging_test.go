package logging

import (
	"bytes"
	"testing"

	clog "github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

func TestSetDebug_TogglesLevel(t *testing.T) {
	SetDebug(true)
	assert.Equal(t, clog.DebugLevel, L.GetLevel())

	SetDebug(false)
	assert.Equal(t, clog.InfoLevel, L.GetLevel())
}

func TestDebugf_WritesFormattedMessage(t *testing.T) {
	var buf bytes.Buffer
	orig := L
	defer func() { L = orig }()

	L = clog.New(&buf)
	L.SetLevel(clog.DebugLevel)
	Debugf("host %s unreachable", "web-01")
	assert.Contains(t, buf.String(), "host web-01 unreachable")
}
