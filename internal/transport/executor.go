// Copyright (c) 2026 RISE Team
// RISE - remote infrastructure service engine
// This source code is licensed under the MIT license found in the LICENSE file.

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rise-fleet/rise/internal/logging"
	"github.com/rise-fleet/rise/internal/model"
)

// Category names a deadline class for a remote invocation (§4.3).
type Category string

const (
	CategoryQuick        Category = "quick"
	CategoryMedium       Category = "medium"
	CategoryLong         Category = "long"
	CategoryUpdateCheck  Category = "update-check"
	CategoryUpgrade      Category = "upgrade"
)

// categoryDeadlines is the exact table from §4.3; implementations must
// honor it exactly.
var categoryDeadlines = map[Category]time.Duration{
	CategoryQuick:       10 * time.Second,
	CategoryMedium:      30 * time.Second,
	CategoryLong:        120 * time.Second,
	CategoryUpdateCheck: 220 * time.Second,
	CategoryUpgrade:     660 * time.Second,
}

// lockedRetryBackoff is the exact ERR_LOCKED retry schedule from §4.3.
var lockedRetryBackoff = []time.Duration{
	2 * time.Second,
	3 * time.Second,
	4500 * time.Millisecond,
}

// ClientAPIVersion is the major.minor this Executor speaks.
const ClientAPIVersion = "1.0"

// envelope is the wire contract every remote program writes to stdout.
type envelope struct {
	Status     string          `json:"status"`
	APIVersion string          `json:"api_version"`
	Code       string          `json:"code"`
	Message    string          `json:"message"`
	ExitCode   int             `json:"exit_code"`
	Raw        json.RawMessage `json:"-"`
}

// Result is a successful invocation's decoded envelope plus any warning
// (e.g. ApiDrift) that accompanies it without blocking the result.
type Result struct {
	Fields  json.RawMessage
	Warning *model.Error
}

// ElevationWrapper is the canonical absolute path every remote program is
// invoked through (§6).
const ElevationWrapper = "/usr/local/sbin/rise-run"

// Executor runs a single remote invocation over a Session's channel,
// enforcing the category deadline, decoding the JSON envelope, and
// retrying ERR_LOCKED with the fixed backoff schedule. Grounded on the
// a retry-on-"database is locked" loop in internal/deploy/run.go,
// generalized from a local DB error to the remote ERR_LOCKED code.
type Executor struct {
	manager *Manager
}

// NewExecutor builds an Executor bound to a Session Manager.
func NewExecutor(m *Manager) *Executor {
	return &Executor{manager: m}
}

// Run executes program with args through the elevation wrapper on host,
// writing stdin (if non-nil) before closing it, and enforces category's
// deadline across the whole attempt including retries.
func (e *Executor) Run(ctx context.Context, sess *Session, program string, args []string, stdin []byte, category Category) (*Result, error) {
	deadline, ok := categoryDeadlines[category]
	if !ok {
		return nil, model.NewError(model.KindInvalidInput, "unknown command category %q", category)
	}

	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	for attempt := 0; ; attempt++ {
		env, err := e.runOnce(ctx, sess, program, args, stdin)
		if err == nil {
			res, compatErr := e.checkCompat(env)
			if compatErr != nil {
				if merr, ok := compatErr.(*model.Error); ok && merr.Fatal() {
					logging.Debugf("transport: fatal error on %s, dropping session for host %s: %v", program, sess.hostID, merr)
					e.manager.Disconnect(sess.hostID)
				}
			}
			return res, compatErr
		}

		if !isLockedError(err) || attempt >= len(lockedRetryBackoff) {
			if merr, ok := err.(*model.Error); ok && merr.Fatal() {
				logging.Debugf("transport: fatal error on %s, dropping session for host %s: %v", program, sess.hostID, merr)
				e.manager.Disconnect(sess.hostID)
			}
			return nil, err
		}
		logging.Debugf("transport: ERR_LOCKED on %s %s, retrying in %s", program, strings.Join(args, " "), lockedRetryBackoff[attempt])

		select {
		case <-time.After(lockedRetryBackoff[attempt]):
		case <-ctx.Done():
			return nil, model.WrapError(model.KindDeadline, ctx.Err(), "deadline exceeded waiting to retry %s", program)
		}
	}
}

func isLockedError(err error) bool {
	merr, ok := err.(*model.Error)
	return ok && merr.Kind == model.KindLocked
}

func (e *Executor) runOnce(ctx context.Context, sess *Session, program string, args []string, stdin []byte) (*envelope, error) {
	sess.chanLock.Lock()
	defer sess.chanLock.Unlock()

	session, err := sess.client.NewSession()
	if err != nil {
		return nil, model.WrapError(model.KindNotConnected, err, "open channel to run %s", program)
	}
	defer session.Close()

	if stdin != nil {
		session.Stdin = bytes.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	fullArgs := append([]string{program}, args...)
	cmd := ElevationWrapper + " " + strings.Join(fullArgs, " ")

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		_ = session.Signal("KILL")
		_ = session.Close()
		return nil, model.WrapError(model.KindDeadline, ctx.Err(), "deadline exceeded running %s", program)
	case runErr := <-done:
		if runErr != nil && stdout.Len() == 0 {
			return nil, model.WrapError(model.KindOperationFailed, runErr, "%s produced no output: %s", program, stderr.String())
		}
	}

	return decodeEnvelope(stdout.Bytes())
}

func decodeEnvelope(out []byte) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(out, &env); err != nil {
		return nil, model.WrapError(model.KindProtocol, err, "malformed response envelope")
	}
	if env.APIVersion == "" {
		return nil, model.NewError(model.KindProtocol, "response missing api_version")
	}
	env.Raw = out
	if env.Status == "error" {
		if env.Code == "" || env.Message == "" {
			return nil, model.NewError(model.KindProtocol, "error envelope missing code or message")
		}
		return nil, model.RemoteError(env.Code, env.Message)
	}
	if env.Status != "success" {
		return nil, model.NewError(model.KindProtocol, "unrecognized status %q", env.Status)
	}
	return &env, nil
}

// checkCompat applies the major/minor API-compatibility rule from §4.3.
func (e *Executor) checkCompat(env *envelope) (*Result, error) {
	clientMajor, clientMinor, err := parseAPIVersion(ClientAPIVersion)
	if err != nil {
		return nil, err
	}
	serverMajor, serverMinor, err := parseAPIVersion(env.APIVersion)
	if err != nil {
		return nil, model.WrapError(model.KindProtocol, err, "malformed api_version %q", env.APIVersion)
	}

	if serverMajor != clientMajor {
		return nil, model.NewError(model.KindApiIncompatible, "server api %s incompatible with client api %s", env.APIVersion, ClientAPIVersion)
	}

	res := &Result{Fields: env.Raw}
	diff := serverMinor - clientMinor
	if diff < 0 {
		diff = -diff
	}
	if diff > 2 {
		res.Warning = model.NewError(model.KindApiDrift, "server api %s drifted from client api %s", env.APIVersion, ClientAPIVersion)
	}
	return res, nil
}

func parseAPIVersion(v string) (major, minor int, err error) {
	parts := strings.SplitN(v, ".", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("transport: expected major.minor, got %q", v)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, err
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return major, minor, nil
}
