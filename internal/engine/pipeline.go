package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"sonicwall-to-mx/internal/model"
	"sonicwall-to-mx/internal/parser"
	"sonicwall-to-mx/internal/registry"
)

// ErrNoStatements means the input held nothing the translator understands.
var ErrNoStatements = errors.New("no statements parsed from input")

type Input struct {
	Source  parser.Source
	Zones   []model.Zone
	Options Options
}

// Result is everything one run produced, ready for the output sink.
type Result struct {
	RunID       string
	Statements  []parser.Statement
	Failures    []parser.ParseFailure
	Registry    *registry.Registry
	Rules       []model.ACLRule
	Translation *Translation
	Matrix      *Matrix
	Plan        *model.Plan
}

// Run executes the stages in order. Only unreadable input and an empty parse
// abort the run; every per-object and per-rule failure is carried in the
// result instead.
func Run(ctx context.Context, in Input) (*Result, error) {
	res := &Result{RunID: uuid.NewString()}
	logger := slog.With("run", res.RunID)

	parsed, err := in.Source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load statements: %w", err)
	}
	if len(parsed.Statements) == 0 {
		return nil, ErrNoStatements
	}
	res.Statements, res.Failures = parsed.Statements, parsed.Failures
	logger.Info("statements parsed", "statements", len(parsed.Statements), "failures", len(parsed.Failures))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res.Registry = registry.Build(parsed.Statements, in.Zones)
	res.Rules = ParseRules(parsed.Rules(), res.Registry)

	splitter := NewSplitter(res.Registry)
	res.Translation = NewTranslator(splitter, res.Registry, in.Options).Translate(res.Rules)
	res.Plan = splitter.Plan()

	res.Matrix = BuildMatrix(res.Registry.Zones(), res.Rules)
	if in.Options.DefaultInterZoneDeny {
		res.Translation.Outbound = append(res.Translation.Outbound, res.Matrix.DefaultDenyRules(in.Options.Syslog)...)
	}

	logger.Info("translation finished",
		"rules", len(res.Rules),
		"outbound", len(res.Translation.Outbound),
		"inbound", len(res.Translation.Inbound),
		"siteToSite", len(res.Translation.SiteToSite),
		"zoneDefaults", res.Translation.ZoneDefaults,
		"unprocessedRules", len(res.UnprocessedRules()),
		"unprocessedObjects", len(res.UnprocessedObjects()))
	return res, nil
}

// UnprocessedObjects lists object statements that failed to parse followed
// by the registry's unresolved entries.
func (r *Result) UnprocessedObjects() []model.UnprocessedObject {
	var out []model.UnprocessedObject
	for _, f := range r.Failures {
		if f.IsRule() {
			continue
		}
		name := f.Name
		if name == "" {
			name = f.Text
		}
		out = append(out, model.UnprocessedObject{Name: name, Reason: f.Reason})
	}
	return append(out, r.Registry.Unprocessed()...)
}

// UnprocessedRules lists rule statements that failed to parse followed by
// rules that produced no destination rule.
func (r *Result) UnprocessedRules() []model.UnprocessedRule {
	var out []model.UnprocessedRule
	for _, f := range r.Failures {
		if f.IsRule() {
			out = append(out, model.UnprocessedRule{Text: f.Text, Reason: f.Reason})
		}
	}
	return append(out, r.Translation.Unprocessed...)
}
