// Copyright (c) 2026 RISE Team
// RISE - remote infrastructure service engine
// This source code is licensed under the MIT license found in the LICENSE file.

// Package firewall implements the two-phase apply/confirm/rollback
// protocol (C8) against the remote firewall program. Rule validation is
// hand-rolled (the pack's schema libraries validate shape, not numeric
// ranges) and additionally checked against a JSON Schema before
// transmission. Pending markers follow the 90-second commit window from
// §4.7, generalizing a BootstrapSession.ExpiresAt ticking
// pattern from core/bootstrap/session.go.
package firewall

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rise-fleet/rise/internal/events"
	"github.com/rise-fleet/rise/internal/model"
	"github.com/rise-fleet/rise/internal/transport"
)

const (
	// CommitWindow is the exact countdown from §4.7.
	CommitWindow = 90 * time.Second
	// Program is the canonical remote program name.
	Program = "firewall"
)

// ruleSetSchema describes the shape validated before transmission,
// complementing (not replacing) the hand-rolled range checks below.
const ruleSetSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["action", "protocol", "port"],
    "properties": {
      "action":   {"enum": ["allow", "drop"]},
      "protocol": {"enum": ["tcp", "udp"]},
      "port":     {"type": "integer"},
      "cidr":     {"type": "string"}
    },
    "additionalProperties": false
  }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(ruleSetSchema))
	if err != nil {
		panic(fmt.Sprintf("firewall: invalid embedded schema: %v", err))
	}
	if err := c.AddResource("ruleset.json", doc); err != nil {
		panic(fmt.Sprintf("firewall: add schema resource: %v", err))
	}
	schema, err := c.Compile("ruleset.json")
	if err != nil {
		panic(fmt.Sprintf("firewall: compile schema: %v", err))
	}
	return schema
}

// ValidateShape runs the rule list through the JSON Schema.
func ValidateShape(rules []model.FirewallRule) error {
	raw, err := json.Marshal(rules)
	if err != nil {
		return model.WrapError(model.KindInvalidRule, err, "encode rule set")
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return model.WrapError(model.KindInvalidRule, err, "decode rule set for validation")
	}
	if err := compiledSchema.Validate(v); err != nil {
		return model.WrapError(model.KindInvalidRule, err, "rule set failed schema validation")
	}
	return nil
}

// ValidateRanges applies the numeric/format checks from §4.7 that a shape
// schema cannot express: port range, IPv4-only CIDR with octets and prefix
// in range.
func ValidateRanges(rules []model.FirewallRule) error {
	for i, r := range rules {
		if r.Action != "allow" && r.Action != "drop" {
			return model.NewError(model.KindInvalidRule, "rule %d: action must be allow or drop, got %q", i, r.Action)
		}
		if r.Protocol != "tcp" && r.Protocol != "udp" {
			return model.NewError(model.KindInvalidRule, "rule %d: protocol must be tcp or udp, got %q", i, r.Protocol)
		}
		if r.Port < 1 || r.Port > 65535 {
			return model.NewError(model.KindInvalidRule, "rule %d: port %d out of range [1,65535]", i, r.Port)
		}
		if r.CIDR != "" {
			if err := validateIPv4CIDR(r.CIDR); err != nil {
				return model.WrapError(model.KindInvalidRule, err, "rule %d: invalid cidr %q", i, r.CIDR)
			}
		}
	}
	return nil
}

func validateIPv4CIDR(cidr string) error {
	parts := strings.SplitN(cidr, "/", 2)
	if len(parts) != 2 {
		return fmt.Errorf("expected X.X.X.X/P")
	}
	ip := net.ParseIP(parts[0])
	if ip == nil || ip.To4() == nil {
		return fmt.Errorf("not an IPv4 address")
	}
	for _, octet := range strings.Split(parts[0], ".") {
		n, err := strconv.Atoi(octet)
		if err != nil || n < 0 || n > 255 {
			return fmt.Errorf("octet %q out of range", octet)
		}
	}
	prefix, err := strconv.Atoi(parts[1])
	if err != nil || prefix < 0 || prefix > 32 {
		return fmt.Errorf("prefix %q out of range [0,32]", parts[1])
	}
	return nil
}

// pending tracks one outstanding apply for a host.
type pending struct {
	marker model.PendingFirewallMarker
	timer  *time.Timer
}

// Coordinator drives the apply/confirm/rollback conversation, enforcing
// at most one pending apply per host (§4.7's concurrency rule).
type Coordinator struct {
	exec *transport.Executor
	sink events.Sink

	mu      sync.Mutex
	pending map[string]*pending
}

// NewCoordinator builds a Coordinator. sink may be events.Discard.
func NewCoordinator(exec *transport.Executor, sink events.Sink) *Coordinator {
	if sink == nil {
		sink = events.Discard
	}
	return &Coordinator{exec: exec, sink: sink, pending: make(map[string]*pending)}
}

type applyResponse struct {
	RollbackScheduled bool   `json:"rollbackScheduled"`
	Message           string `json:"message"`
}

// Apply validates rules, sends them, and starts (or restarts) the
// 90-second commit window for host. A second apply before confirm/rollback
// supersedes the first, per §4.7's supersession rule.
func (c *Coordinator) Apply(ctx context.Context, sess *transport.Session, h model.Host, rules []model.FirewallRule) error {
	if err := ValidateRanges(rules); err != nil {
		return err
	}
	if err := ValidateShape(rules); err != nil {
		return err
	}

	payload, err := json.Marshal(rules)
	if err != nil {
		return model.WrapError(model.KindInvalidRule, err, "encode apply payload")
	}

	res, err := c.exec.Run(ctx, sess, Program, []string{"--apply"}, payload, transport.CategoryMedium)
	if err != nil {
		return err
	}
	var ack applyResponse
	if err := json.Unmarshal(res.Fields, &ack); err != nil {
		return model.WrapError(model.KindProtocol, err, "decode apply response")
	}

	c.startWindow(h.ID)
	return nil
}

func (c *Coordinator) startWindow(hostID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.pending[hostID]; ok {
		p.timer.Stop()
	}

	now := time.Now()
	marker := model.PendingFirewallMarker{HostID: hostID, AppliedAt: now}
	p := &pending{marker: marker}
	p.timer = time.AfterFunc(CommitWindow, func() { c.expire(hostID) })
	c.pending[hostID] = p

	c.sink.Publish(events.FirewallPendingCountdown{HostID: hostID, AppliedAt: now, ExpiresAt: now.Add(CommitWindow)})
}

func (c *Coordinator) expire(hostID string) {
	c.mu.Lock()
	delete(c.pending, hostID)
	c.mu.Unlock()
}

// Confirm persists the pending rule set. The remote decides whether an
// apply is still pending, so the request is sent even when this process
// holds no marker for the host (e.g. the apply ran in another invocation).
// An expired window comes back as a *model.Error of kind PendingExpired,
// which callers present as a user-visible fact, not a fault (§4.7).
func (c *Coordinator) Confirm(ctx context.Context, sess *transport.Session, hostID string) error {
	c.mu.Lock()
	p := c.pending[hostID]
	c.mu.Unlock()

	_, err := c.exec.Run(ctx, sess, Program, []string{"--confirm"}, nil, transport.CategoryQuick)
	c.mu.Lock()
	if cur, ok := c.pending[hostID]; ok && cur == p {
		cur.timer.Stop()
		delete(c.pending, hostID)
	}
	c.mu.Unlock()
	return err
}

// Rollback restores the last persisted rule set, at any time before
// expiry.
func (c *Coordinator) Rollback(ctx context.Context, sess *transport.Session, hostID string) error {
	_, err := c.exec.Run(ctx, sess, Program, []string{"--rollback"}, nil, transport.CategoryQuick)
	c.mu.Lock()
	if p, ok := c.pending[hostID]; ok {
		p.timer.Stop()
		delete(c.pending, hostID)
	}
	c.mu.Unlock()
	return err
}

// Pending reports the marker for hostID, if an apply is outstanding.
func (c *Coordinator) Pending(hostID string) (model.PendingFirewallMarker, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[hostID]
	if !ok {
		return model.PendingFirewallMarker{}, false
	}
	return p.marker, true
}
