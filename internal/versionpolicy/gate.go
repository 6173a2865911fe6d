package versionpolicy

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"helpdesk-auth/backend/internal/autherr"
	"helpdesk-auth/backend/internal/clientversion/domain"
)

// RegistryLoader loads the active registry entries of a platform.
type RegistryLoader interface {
	ListActive(ctx context.Context, platform string) ([]domain.ClientVersion, error)
}

// SettingsLoader returns the current enforcement switches, falling back to defaults for unset keys.
type SettingsLoader interface {
	VersionPolicySettings(ctx context.Context, defaults PolicySettings) (PolicySettings, error)
}

// Enforcer turns a classification and settings into a decision. PureEnforcer is the built-in rule;
// the policy engine provides a Rego-backed one.
type Enforcer interface {
	Decide(ctx context.Context, r Result, s PolicySettings) Decision
}

// PureEnforcer applies Enforce.
type PureEnforcer struct{}

func (PureEnforcer) Decide(_ context.Context, r Result, s PolicySettings) Decision { return Enforce(r, s) }

// Gate evaluates and enforces the version policy for one login. Registry and settings are read on every
// call so policy changes apply to the next login without touching existing sessions.
type Gate struct {
	registry RegistryLoader
	settings SettingsLoader
	defaults PolicySettings
	enforcer Enforcer
	log      *zap.Logger

	classified metric.Int64Counter
}

// NewGate returns a Gate. settings may be nil (defaults only); enforcer nil selects PureEnforcer; log may be nil.
func NewGate(registry RegistryLoader, settings SettingsLoader, defaults PolicySettings, enforcer Enforcer, log *zap.Logger) *Gate {
	if enforcer == nil {
		enforcer = PureEnforcer{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	g := &Gate{registry: registry, settings: settings, defaults: defaults, enforcer: enforcer, log: log}
	counter, err := otel.Meter("helpdesk-auth/versionpolicy").Int64Counter(
		"version_policy.classifications",
		metric.WithDescription("Client version classifications at login"),
	)
	if err == nil {
		g.classified = counter
	}
	return g
}

// Check classifies clientVersion and enforces the current settings. It returns the classification when the
// login may proceed, or an autherr VersionRejected error carrying the upgrade metadata.
func (g *Gate) Check(ctx context.Context, clientVersion, platform, username, ip string) (*Result, error) {
	registry, err := g.registry.ListActive(ctx, platform)
	if err != nil {
		return nil, fmt.Errorf("load version registry: %w", err)
	}
	r := Evaluate(clientVersion, platform, registry)

	resolutionsTotal.WithLabelValues(platform, string(r.Status)).Inc()
	if g.classified != nil {
		g.classified.Add(ctx, 1, metric.WithAttributes(
			attribute.String("platform", platform),
			attribute.String("version_status", string(r.Status)),
		))
	}
	fields := []zap.Field{
		zap.String("version", clientVersion),
		zap.String("platform", platform),
		zap.String("version_status", string(r.Status)),
		zap.String("target_version", r.TargetVersion),
		zap.String("username", username),
		zap.String("ip", ip),
	}
	switch r.Status {
	case StatusUnknown:
		g.log.Warn("unknown client version", fields...)
	case StatusOutdatedEnforced:
		g.log.Warn("outdated enforced client version", fields...)
	default:
		g.log.Debug("client version classified", fields...)
	}

	settings := g.defaults
	if g.settings != nil {
		s, err := g.settings.VersionPolicySettings(ctx, g.defaults)
		if err != nil {
			g.log.Warn("load version policy settings; using defaults", zap.Error(err))
		} else {
			settings = s
		}
	}
	if settings.EnforceEnabled {
		enforcementEnabled.Set(1)
	} else {
		enforcementEnabled.Set(0)
	}

	d := g.enforcer.Decide(ctx, r, settings)
	if !d.Reject {
		return &r, nil
	}
	rejectionsTotal.WithLabelValues(platform, string(r.Status), d.Reason).Inc()
	g.log.Warn("login rejected by version policy",
		append(fields, zap.String("reason", d.Reason), zap.String("installer_url", r.InstallerURL))...)
	return nil, autherr.VersionRejected(r.Rejection(clientVersion, d))
}
