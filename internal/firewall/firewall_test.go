package firewall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rise-fleet/rise/internal/model"
)

func validRules() []model.FirewallRule {
	return []model.FirewallRule{
		{Action: "allow", Protocol: "tcp", Port: 22, CIDR: "10.0.0.0/8"},
		{Action: "drop", Protocol: "udp", Port: 53},
	}
}

func TestValidateRanges_Valid(t *testing.T) {
	assert.NoError(t, ValidateRanges(validRules()))
}

func TestValidateRanges_BadAction(t *testing.T) {
	rules := validRules()
	rules[0].Action = "deny"
	err := ValidateRanges(rules)
	require.Error(t, err)
	var merr *model.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, model.KindInvalidRule, merr.Kind)
}

func TestValidateRanges_PortOutOfRange(t *testing.T) {
	rules := validRules()
	rules[0].Port = 70000
	assert.Error(t, ValidateRanges(rules))
}

func TestValidateRanges_BadCIDROctet(t *testing.T) {
	rules := validRules()
	rules[0].CIDR = "10.0.0.300/8"
	assert.Error(t, ValidateRanges(rules))
}

func TestValidateRanges_BadCIDRPrefix(t *testing.T) {
	rules := validRules()
	rules[0].CIDR = "10.0.0.0/99"
	assert.Error(t, ValidateRanges(rules))
}

func TestValidateShape_Valid(t *testing.T) {
	assert.NoError(t, ValidateShape(validRules()))
}

func TestPending_NoneInitially(t *testing.T) {
	c := NewCoordinator(nil, nil)
	_, ok := c.Pending("h1")
	assert.False(t, ok)
}

func TestStartWindow_SupersedesPrior(t *testing.T) {
	c := NewCoordinator(nil, nil)
	c.startWindow("h1")
	first, _ := c.Pending("h1")

	c.startWindow("h1")
	second, ok := c.Pending("h1")
	require.True(t, ok)
	assert.True(t, !second.AppliedAt.Before(first.AppliedAt))
}
