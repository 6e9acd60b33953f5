// Command jpointer runs the points-to analysis on a program description and
// prints the call graph or points-to sets.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/pprof"

	pointer "github.com/BarrensZeppelin/jvmpointer"
	"github.com/BarrensZeppelin/jvmpointer/config"
	"github.com/BarrensZeppelin/jvmpointer/internal/maps"
	"github.com/BarrensZeppelin/jvmpointer/ir"
	"github.com/BarrensZeppelin/jvmpointer/progutil"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"golang.org/x/term"
)

func main() {
	app := cli.NewApp()
	app.Name = "jpointer"
	app.Usage = "inclusion-based points-to analysis with on-the-fly call graph construction"
	app.ArgsUsage = "<program.yaml>"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config", Usage: "load options from a YAML or TOML `file`"},
		cli.StringFlag{Name: "algorithm", Usage: "seed call graph algorithm (cha or rta)"},
		cli.StringSliceFlag{Name: "entry", Usage: "entry point signature, e.g. \"<ex.Main: void main(java.lang.String[])>\""},
		cli.StringFlag{Name: "reflection-log", Usage: "Tamiflex reflection trace"},
		cli.BoolFlag{Name: "seeded", Usage: "bind the calls of the seed call graph instead of discovering them"},
		cli.BoolFlag{Name: "alias", Usage: "build the alias index"},
		cli.IntFlag{Name: "max-steps", Usage: "stop the solver after this many steps (0 is unlimited)"},
		cli.DurationFlag{Name: "timeout", Usage: "stop the solver after this long"},
		cli.StringFlag{Name: "print", Value: "summary", Usage: "what to print: summary, callgraph, bottomup, reach, pts or warnings"},
		cli.StringSliceFlag{Name: "target", Usage: "method signature to test for reachability with -print reach"},
		cli.StringFlag{Name: "log-level", Usage: "error, warn, info, debug or trace"},
		cli.StringFlag{Name: "cpuprofile", Usage: "write cpu profile to `file`"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.NewDefault()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	if c.IsSet("algorithm") {
		cfg.Algorithm = c.String("algorithm")
	}
	if entries := c.StringSlice("entry"); len(entries) > 0 {
		cfg.EntryPoints = entries
	}
	if c.IsSet("reflection-log") {
		cfg.ReflectionLog = c.String("reflection-log")
	}
	if c.Bool("seeded") {
		cfg.OnTheFly = false
	}
	if c.Bool("alias") {
		cfg.AliasPropagation = true
	}
	if c.IsSet("max-steps") {
		cfg.MaxSteps = c.Int("max-steps")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config) *logrus.Logger {
	log := config.NewLogger(cfg)
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05",
		})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.NewExitError("Specify a program description on the command line", 2)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	if path := c.String("cpuprofile"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("could not create CPU profile: %w", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("could not start CPU profile: %w", err)
		}
		defer pprof.StopCPUProfile()
	}

	prog, err := progutil.LoadProgram(c.Args().First())
	if err != nil {
		return err
	}
	log.Infof("Loaded %d classes", len(prog.Classes()))

	ac, err := pointer.NewAnalysisConfig(cfg, prog, log)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if d := c.Duration("timeout"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	res, err := pointer.AnalyzeContext(ctx, ac)
	if res == nil {
		return err
	} else if err != nil {
		log.WithError(err).Warn("Printing partial result")
	}

	out := os.Stdout
	switch c.String("print") {
	case "summary":
		printSummary(out, res)
	case "callgraph":
		fmt.Fprint(out, res.CallGraph)
	case "bottomup":
		for i, comp := range res.CallGraph.BottomUp() {
			fmt.Fprintf(out, "%d: %v\n", i, comp)
		}
	case "reach":
		return printReach(out, res, c.StringSlice("target"))
	case "pts":
		printPointsTo(out, res)
	case "warnings":
		for _, w := range res.Warnings {
			fmt.Fprintln(out, w)
		}
	default:
		return cli.NewExitError(fmt.Sprintf("unknown output %q", c.String("print")), 2)
	}
	return nil
}

func printSummary(w io.Writer, res *pointer.Result) {
	fmt.Fprintf(w, "%d reachable methods (seed: %d)\n", len(res.Reachable), len(res.Seed.Methods()))
	fmt.Fprintf(w, "%d call edges (seed: %d)\n", res.CallGraph.NumEdges(), res.Seed.NumEdges())
	fmt.Fprintf(w, "%d abstract objects\n", len(res.Allocations()))
	fmt.Fprintf(w, "%d solver steps, converged: %v\n", res.Steps, res.Converged)
	fmt.Fprintf(w, "%d warnings\n", len(res.Warnings))
	for _, comp := range res.CallGraph.RecursiveComponents() {
		fmt.Fprintf(w, "recursive: %v\n", comp)
	}
}

func printReach(w io.Writer, res *pointer.Result, targets []string) error {
	for _, t := range targets {
		sig, err := ir.ParseMethodSig(t)
		if err != nil {
			return err
		}
		m := res.CallGraph.Nodes[res.Hierarchy().Program().Method(sig)]
		if m == nil {
			fmt.Fprintf(w, "%s: unreachable\n", t)
			continue
		}
		for _, root := range res.CallGraph.Roots() {
			if res.CallGraph.Reachable(root, m.Method) {
				fmt.Fprintf(w, "%s: reachable from %v\n", t, root)
			}
		}
	}
	return nil
}

func printPointsTo(w io.Writer, res *pointer.Result) {
	for _, m := range maps.SortedKeys(res.Reachable) {
		locals := res.Locals(m)
		if len(locals) == 0 {
			continue
		}
		fmt.Fprintf(w, "%v\n", m)
		for _, l := range locals {
			fmt.Fprintf(w, "\t%s: %v\n", l.Name, res.Pointer(l).PointsTo())
			if res.Aliases != nil {
				if aliases := res.Aliases.Aliases(l); len(aliases) > 0 {
					fmt.Fprintf(w, "\t\taliases: %v\n", aliases)
				}
			}
		}
	}
}
