// Package analysis composes the trace analyses into one run.
//
// A run takes decoded events, turns them into a Trace (normalizing them
// or enforcing the sequence invariant), then runs the well-formedness
// check and, when requested, the graph build and the lock-dependency
// analysis. The analyses share the read-only Trace and nothing else, so
// they run concurrently; each writes only its own Report field.
package analysis

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/tracelint/internal/codec"
	"github.com/roach88/tracelint/internal/config"
	"github.com/roach88/tracelint/internal/depgraph"
	"github.com/roach88/tracelint/internal/lockdep"
	"github.com/roach88/tracelint/internal/normalize"
	"github.com/roach88/tracelint/internal/trace"
	"github.com/roach88/tracelint/internal/wellformed"
)

// Options selects the analyses of a run.
type Options struct {
	Normalize        bool
	Graph            bool
	LockDependencies bool

	Check   wellformed.Config
	Lockdep lockdep.Options
}

// OptionsFromConfig maps a resolved configuration onto run options.
func OptionsFromConfig(cfg config.Config) Options {
	opts := Options{
		Normalize:        cfg.Normalize,
		Graph:            cfg.Graph,
		LockDependencies: cfg.LockDependencies,
		Check: wellformed.Config{
			ReentrantAll:        cfg.ReentrantAll,
			CheckUnwrittenReads: cfg.UnwrittenReads,
		},
		Lockdep: lockdep.Options{FeasibilityBudget: cfg.FeasibilityBudget},
	}
	if len(cfg.ReentrantLocks) > 0 {
		opts.Check.Reentrant = make(map[trace.ResourceID]bool, len(cfg.ReentrantLocks))
		for _, id := range cfg.ReentrantLocks {
			opts.Check.Reentrant[trace.ResourceID(id)] = true
		}
	}
	return opts
}

// ForMapping rewrites the lock ids in o, which name locks of the source
// trace, to the canonical ids of a normalized trace. Reentrant locks the
// trace never mentions are dropped. A nil mapping returns o unchanged.
func (o Options) ForMapping(m *normalize.Mapping) Options {
	if m == nil || o.Check.Reentrant == nil {
		return o
	}
	reentrant := make(map[trace.ResourceID]bool, len(o.Check.Reentrant))
	for r, on := range o.Check.Reentrant {
		if id, ok := m.CanonicalLock(int64(r)); ok && on {
			reentrant[trace.ResourceID(id)] = true
		}
	}
	o.Check.Reentrant = reentrant
	return o
}

// Input is a decoded trace ready for analysis.
type Input struct {
	Path   string
	Format codec.Format
	Trace  *trace.Trace

	// Mapping is set when the trace was normalized.
	Mapping *normalize.Mapping
}

// Load reads path, decodes it and prepares the trace. Decoding failures
// are *codec.FormatError; an unnormalized trace with bad sequence numbers
// fails with *trace.MalformedTraceError.
func Load(path string, normalized bool) (*Input, error) {
	events, format, err := codec.ReadFile(path)
	if err != nil {
		return nil, err
	}
	slog.Info("trace loaded", "path", path, "format", format, "events", len(events))

	tr, mapping, err := Prepare(events, normalized)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Input{Path: path, Format: format, Trace: tr, Mapping: mapping}, nil
}

// Prepare builds the Trace the analyses consume. With normalized set the
// events are canonicalized; otherwise they must already satisfy the
// sequence invariant.
func Prepare(events []trace.Event, normalized bool) (*trace.Trace, *normalize.Mapping, error) {
	if !normalized {
		tr, err := trace.New(events)
		if err != nil {
			return nil, nil, err
		}
		return tr, nil, nil
	}

	tr, m := normalize.NormalizeWithMapping(events)
	slog.Info("trace normalized",
		"events", tr.Len(),
		"threads", len(m.Threads),
		"locks", len(m.Locks),
		"reordered", m.Reordered)
	return tr, &m, nil
}

// Run executes the selected analyses on tr. It only fails if ctx is
// cancelled before an analysis starts; findings are never errors.
func Run(ctx context.Context, tr *trace.Trace, opts Options) (*Report, error) {
	r := &Report{Trace: tr, Options: opts}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.Violations = wellformed.Check(tr, opts.Check)
		slog.Info("check complete", "violations", len(r.Violations))
		return nil
	})

	if opts.Graph {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r.EventGraph = depgraph.Build(tr, depgraph.EventGraph)
			slog.Debug("event graph built", "nodes", r.EventGraph.NumNodes(), "edges", r.EventGraph.NumEdges())
			return nil
		})
	}

	if opts.LockDependencies {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r.LockGraph = depgraph.Build(tr, depgraph.LockOrderGraph)
			r.Cycles = lockdep.Analyze(r.LockGraph, opts.Lockdep)
			slog.Info("lock dependencies analyzed",
				"locks", r.LockGraph.NumNodes(),
				"edges", r.LockGraph.NumEdges(),
				"cycles", len(r.Cycles))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}
	return r, nil
}
