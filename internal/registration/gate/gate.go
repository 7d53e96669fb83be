// Package gate decides whether a study admits new self-registrations.
package gate

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hzi-braunschweig/pia-system/internal/study"
	"github.com/hzi-braunschweig/pia-system/pkg/domain"
	"github.com/hzi-braunschweig/pia-system/pkg/platform/sentinel"
)

// Decision is the outcome of an admission check.
type Decision int

const (
	// DecisionMissing means no study was supplied.
	DecisionMissing Decision = iota
	// DecisionClosed means the group carries no registration-limit attribute
	// or cannot be resolved at all. Presence of the attribute is what opens a
	// study; a group without it never admits, regardless of member count.
	DecisionClosed
	// DecisionCapReached means the group is open but full.
	DecisionCapReached
	// DecisionOK admits the registration.
	DecisionOK
)

func (d Decision) String() string {
	switch d {
	case DecisionMissing:
		return "missing"
	case DecisionClosed:
		return "closed"
	case DecisionCapReached:
		return "cap_reached"
	case DecisionOK:
		return "ok"
	default:
		return "unknown"
	}
}

// Admits reports whether the decision lets the registration proceed.
func (d Decision) Admits() bool { return d == DecisionOK }

// AdmissionGate evaluates study admission against live group state. Every
// Evaluate call reads the group and its member count fresh; the gate holds
// no state of its own. Two concurrent registrations can both observe the
// last free slot and both be admitted, so the cap is best-effort under
// concurrency rather than a hard quota.
type AdmissionGate struct {
	catalog study.Catalog
	logger  *slog.Logger
}

func New(catalog study.Catalog, logger *slog.Logger) *AdmissionGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdmissionGate{catalog: catalog, logger: logger}
}

// Evaluate checks whether the given study currently admits a new member.
// An empty study id short-circuits to DecisionMissing without a lookup.
func (g *AdmissionGate) Evaluate(ctx context.Context, id domain.StudyID) (Decision, error) {
	if id == "" {
		return DecisionMissing, nil
	}

	group, err := g.catalog.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// A reference to a group that cannot be resolved reads as a study
			// that is not open, not as a missing selection.
			return DecisionClosed, nil
		}
		return DecisionClosed, err
	}

	limit, present := group.RegistrationLimit()
	if !present {
		return DecisionClosed, nil
	}
	if limit == study.Unlimited {
		return DecisionOK, nil
	}

	count, err := g.catalog.MemberCount(ctx, id)
	if err != nil {
		return DecisionClosed, err
	}
	if count >= limit {
		g.logger.InfoContext(ctx, "study at registration cap",
			slog.String("study", string(id)),
			slog.Int("limit", limit),
			slog.Int("members", count))
		return DecisionCapReached, nil
	}
	return DecisionOK, nil
}
