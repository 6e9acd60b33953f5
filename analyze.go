// Package pointer implements a whole-program, inclusion-based points-to
// analysis for JVM programs with on-the-fly call graph construction.
//
// Method bodies are translated into a pointer assignment graph as the solver
// discovers that the methods are reachable. Virtual calls are resolved as
// objects reach their receivers, which in turn makes more methods reachable.
package pointer

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/BarrensZeppelin/jvmpointer/callgraph"
	"github.com/BarrensZeppelin/jvmpointer/config"
	"github.com/BarrensZeppelin/jvmpointer/internal/queue"
	"github.com/BarrensZeppelin/jvmpointer/ir"
	"github.com/BarrensZeppelin/jvmpointer/reflection"
	"github.com/BarrensZeppelin/jvmpointer/typehierarchy"
	"github.com/sirupsen/logrus"
)

type AnalysisConfig struct {
	Program     *ir.Program
	EntryPoints []ir.MethodSig

	// Algorithm computing the seed call graph, config.AlgorithmCHA or
	// config.AlgorithmRTA (the default).
	Algorithm string

	// When Seeded is true the methods reachable in the seed call graph are
	// translated up front and the calls of the result are exactly the seed
	// edges. Otherwise the solver discovers reachable methods and call
	// targets from the entry points.
	Seeded bool

	// Reflection, if set, replaces reflective calls.
	Reflection reflection.Model

	// AliasPropagation makes the result carry an alias index.
	AliasPropagation bool

	// MaxSteps bounds the number of solver steps. 0 means unlimited.
	MaxSteps int

	Log logrus.FieldLogger

	// Warnings raised while preparing the configuration.
	warnings []error

	// Process the worklist in LIFO order.
	lifo bool
	// Called after every solver step.
	onStep func(*analysis)
}

// NewAnalysisConfig prepares an analysis of prog from the named options. A
// reflection trace that cannot be read is an error only if the options
// require it; otherwise the analysis runs without the reflection model.
func NewAnalysisConfig(cfg *config.Config, prog *ir.Program, log logrus.FieldLogger) (AnalysisConfig, error) {
	entries, err := cfg.EntryPointSigs()
	if err != nil {
		return AnalysisConfig{}, err
	}

	ac := AnalysisConfig{
		Program:          prog,
		EntryPoints:      entries,
		Algorithm:        cfg.Algorithm,
		Seeded:           !cfg.OnTheFly,
		AliasPropagation: cfg.AliasPropagation,
		MaxSteps:         cfg.MaxSteps,
		Log:              log,
	}

	if cfg.ReflectionEnabled() {
		tm, err := reflection.LoadTraceFile(cfg.RelPath(cfg.ReflectionLog), prog, log)
		switch {
		case err == nil:
			ac.Reflection = tm
		case cfg.RequireReflectionLog:
			return AnalysisConfig{}, err
		default:
			log.WithError(err).Warn("continuing without reflection support")
			ac.warnings = append(ac.warnings, err)
		}
	}
	return ac, nil
}

func seedAlgorithm(name string, h *typehierarchy.Hierarchy, log logrus.FieldLogger) (callgraph.Algorithm, error) {
	switch name {
	case config.AlgorithmCHA:
		return callgraph.NewCHA(h.Program(), h, log), nil
	case config.AlgorithmRTA, "":
		return callgraph.NewRTA(h.Program(), h, log), nil
	}
	return nil, fmt.Errorf("unknown call graph algorithm %q", name)
}

// Analyze runs the analysis to completion.
func Analyze(config AnalysisConfig) (*Result, error) {
	return AnalyzeContext(context.Background(), config)
}

// AnalyzeContext runs the analysis until it converges, the step budget is
// exhausted or ctx is done. In the latter two cases the partial result is
// returned along with ErrBudgetExhausted or the context error, and
// Result.Converged is false.
func AnalyzeContext(ctx context.Context, config AnalysisConfig) (*Result, error) {
	if config.Program == nil {
		return nil, errors.New("no program to analyze")
	}
	if config.Log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		config.Log = l
	}

	prog := config.Program
	h := typehierarchy.New(prog, config.Log)

	alg, err := seedAlgorithm(config.Algorithm, h, config.Log)
	if err != nil {
		return nil, err
	}
	seed, err := alg.Initialize(config.EntryPoints)
	if err != nil {
		return nil, err
	}

	a := &analysis{
		pag:        newPAG(),
		config:     config,
		prog:       prog,
		hierarchy:  h,
		log:        config.Log,
		reflection: config.Reflection,
		work:       queue.Queue[item]{LIFO: config.lifo},
		reachable:  make(map[*ir.Method]bool),
		built:      make(map[*ir.Method]bool),
		bound:      make(map[callKey]bool),
		cg:         callgraph.New(),
		seed:       seed,
		warned:     make(map[warnKey]bool),
		warnings:   append([]error(nil), config.warnings...),

		synthesized: make(map[ir.Stmt]bool),
	}
	if w, ok := config.Reflection.(interface{ Warnings() []error }); ok {
		a.warnings = append(a.warnings, w.Warnings()...)
	}
	if config.onStep != nil {
		a.onStep = func() { config.onStep(a) }
	}

	if config.Seeded {
		for _, m := range seed.Roots() {
			a.cg.AddRoot(m)
		}
		for _, m := range seed.Methods() {
			a.reach(m)
		}
		a.bindSeed()
	} else {
		for _, sig := range config.EntryPoints {
			m := prog.Method(sig)
			a.cg.AddRoot(m)
			a.reach(m)
		}
	}

	err = a.solve(ctx)
	res := a.result(err == nil)

	a.log.WithFields(logrus.Fields{
		"methods":   len(res.Reachable),
		"edges":     res.CallGraph.NumEdges(),
		"steps":     a.steps,
		"converged": res.Converged,
	}).Info("points-to analysis finished")

	if err != nil {
		return res, err
	}

	if config.AliasPropagation {
		ap, err := NewAliasPropagator(res)
		if err != nil {
			return res, err
		}
		ap.Propagate()
		res.Aliases = ap
	}
	return res, nil
}
