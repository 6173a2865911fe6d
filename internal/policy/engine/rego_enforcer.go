// Package engine evaluates the version enforcement decision with OPA Rego so operators can tighten the
// rule without a deploy. The built-in module reproduces versionpolicy.Enforce exactly.
package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"

	"helpdesk-auth/backend/internal/versionpolicy"
)

const decisionQuery = "data.helpdesk.version_policy.decision"

// DefaultPolicy is the built-in version enforcement module.
const DefaultPolicy = `package helpdesk.version_policy

default reject = false
default reason = ""

reject if reason != ""

reason = "outdated_enforced" if {
	input.settings.enforce_enabled
	input.settings.reject_outdated_enforced
	input.result.status == "OUTDATED_ENFORCED"
}

reason = "unknown" if {
	input.settings.enforce_enabled
	input.settings.reject_unknown
	input.result.status == "UNKNOWN"
}

decision = {"reject": reject, "reason": reason}
`

// RegoEnforcer implements versionpolicy.Enforcer over a compiled Rego module.
type RegoEnforcer struct {
	query rego.PreparedEvalQuery
	log   *zap.Logger
}

var _ versionpolicy.Enforcer = (*RegoEnforcer)(nil)

// NewRegoEnforcer compiles module (DefaultPolicy when empty). The module must define
// data.helpdesk.version_policy.decision as {"reject": bool, "reason": string}.
func NewRegoEnforcer(ctx context.Context, module string, log *zap.Logger) (*RegoEnforcer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if module == "" {
		module = DefaultPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"version_policy.rego": module})
	if err != nil {
		return nil, fmt.Errorf("compile version policy: %w", err)
	}
	pq, err := rego.New(rego.Query(decisionQuery), rego.Compiler(compiler)).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare version policy: %w", err)
	}
	return &RegoEnforcer{query: pq, log: log}, nil
}

// NewRegoEnforcerFromFile loads the module at path. An empty path selects DefaultPolicy.
func NewRegoEnforcerFromFile(ctx context.Context, path string, log *zap.Logger) (*RegoEnforcer, error) {
	if path == "" {
		return NewRegoEnforcer(ctx, "", log)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read version policy: %w", err)
	}
	return NewRegoEnforcer(ctx, string(b), log)
}

// Decide evaluates the module. Any evaluation failure or malformed output falls back to versionpolicy.Enforce.
func (e *RegoEnforcer) Decide(ctx context.Context, r versionpolicy.Result, s versionpolicy.PolicySettings) versionpolicy.Decision {
	rs, err := e.query.Eval(ctx, rego.EvalInput(buildInput(r, s)))
	if err != nil || len(rs) == 0 || len(rs[0].Expressions) == 0 {
		e.log.Warn("version policy evaluation failed; using built-in rule", zap.Error(err))
		return versionpolicy.Enforce(r, s)
	}
	out, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		e.log.Warn("version policy returned unexpected value; using built-in rule")
		return versionpolicy.Enforce(r, s)
	}
	reject, _ := out["reject"].(bool)
	if !reject {
		return versionpolicy.Allow
	}
	reason, _ := out["reason"].(string)
	d := versionpolicy.Decision{Reject: true, Reason: reason, Message: versionpolicy.MsgOutdatedEnforced}
	if reason == "unknown" {
		d.Message = versionpolicy.MsgUnknownVersion
	}
	return d
}

// HealthCheck evaluates the prepared query against a fixed input.
func (e *RegoEnforcer) HealthCheck(ctx context.Context) error {
	rs, err := e.query.Eval(ctx, rego.EvalInput(buildInput(
		versionpolicy.Result{Status: versionpolicy.StatusCurrent},
		versionpolicy.PolicySettings{},
	)))
	if err != nil {
		return fmt.Errorf("eval version policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("version policy query returned no result")
	}
	return nil
}

func buildInput(r versionpolicy.Result, s versionpolicy.PolicySettings) map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"enforce_enabled":          s.EnforceEnabled,
			"reject_outdated_enforced": s.RejectOutdatedEnforced,
			"reject_unknown":           s.RejectUnknown,
		},
		"result": map[string]any{
			"status":         string(r.Status),
			"target_version": r.TargetVersion,
			"is_enforced":    r.IsEnforced,
		},
	}
}
