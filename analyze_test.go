package pointer_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	pointer "github.com/BarrensZeppelin/jvmpointer"
	"github.com/BarrensZeppelin/jvmpointer/callgraph"
	"github.com/BarrensZeppelin/jvmpointer/config"
	"github.com/BarrensZeppelin/jvmpointer/internal/maps"
	"github.com/BarrensZeppelin/jvmpointer/internal/slices"
	"github.com/BarrensZeppelin/jvmpointer/ir"
	"github.com/BarrensZeppelin/jvmpointer/progutil"
	"github.com/BarrensZeppelin/jvmpointer/reflection"
	sets "github.com/BarrensZeppelin/jvmpointer/slices"
	"github.com/BarrensZeppelin/jvmpointer/typehierarchy"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Three printers are instantiated and called from main. A is declared but
// never instantiated, D is never referenced.
const printers = `
classes:
  - name: ex.Printer
    interface: true
    methods:
      - sig: void print()
  - name: ex.A
    interfaces: [ex.Printer]
    methods:
      - sig: void <init>()
        body: |
          specialinvoke this.<java.lang.Object: void <init>()>()
          return
      - sig: void print()
        body: return
  - name: ex.B
    interfaces: [ex.Printer]
    methods:
      - sig: void <init>()
        body: |
          specialinvoke this.<java.lang.Object: void <init>()>()
          return
      - sig: void print()
        body: return
  - name: ex.C
    interfaces: [ex.Printer]
    methods:
      - sig: void <init>()
        body: |
          specialinvoke this.<java.lang.Object: void <init>()>()
          return
      - sig: void print()
        body: return
  - name: ex.D
    interfaces: [ex.Printer]
    methods:
      - sig: void <init>()
        body: return
      - sig: void print()
        body: return
  - name: ex.E
    super: ex.B
    methods:
      - sig: void <init>()
        body: |
          specialinvoke this.<ex.B: void <init>()>()
          return
      - sig: void print()
        body: return
  - name: ex.Main
    methods:
      - sig: void main()
        static: true
        locals: {b: ex.Printer, c: ex.Printer, e: ex.Printer}
        body: |
          b = new ex.B
          specialinvoke b.<ex.B: void <init>()>()
          interfaceinvoke b.<ex.Printer: void print()>()
          c = new ex.C
          specialinvoke c.<ex.C: void <init>()>()
          interfaceinvoke c.<ex.Printer: void print()>()
          e = new ex.E
          specialinvoke e.<ex.E: void <init>()>()
          interfaceinvoke e.<ex.Printer: void print()>()
          return
`

const fields = `
classes:
  - name: ex.Node
    fields:
      - {name: f, type: java.lang.Object}
    methods:
      - sig: void <init>()
        body: |
          specialinvoke this.<java.lang.Object: void <init>()>()
          return
      - sig: java.lang.Object get()
        locals: {r: java.lang.Object}
        body: |
          r = this.<ex.Node: java.lang.Object f>
          return r
  - name: ex.Main
    methods:
      - sig: void main()
        static: true
        locals:
          a0: ex.Node
          a1: ex.Node
          alias: ex.Node
          other: ex.Node
          x: java.lang.Object
          y: java.lang.Object
          z: java.lang.Object
        body: |
          a0 = new ex.Node
          a1 = new ex.Node
          a0.<ex.Node: java.lang.Object f> = a1
          alias = a0
          x = alias.<ex.Node: java.lang.Object f>
          other = new ex.Node
          y = other.<ex.Node: java.lang.Object f>
          z = virtualinvoke alias.<ex.Node: java.lang.Object get()>()
          return
`

const misc = `
classes:
  - name: java.lang.Throwable
    methods:
      - sig: void <init>()
        body: return
  - name: ex.Ex
    super: java.lang.Throwable
  - name: ex.B
  - name: ex.C
  - name: ex.Main
    fields:
      - {name: cache, type: java.lang.Object, static: true}
    methods:
      - sig: void fail(java.lang.Throwable)
        static: true
        params: [x]
        body: throw x
      - sig: void main()
        static: true
        locals:
          o: java.lang.Object
          b: ex.B
          arr: java.lang.Object[]
          g: java.lang.Object
          s: java.lang.String
          h: java.lang.Object
          t: java.lang.Throwable
          k: java.lang.Object
        body: |
          o = new ex.B
          o = new ex.C
          b = (ex.B) o
          arr = newarray java.lang.Object
          arr[0] = b
          g = arr[0]
          s = "hello"
          <ex.Main: java.lang.Object cache> = s
          h = <ex.Main: java.lang.Object cache>
          t = new ex.Ex
          staticinvoke <ex.Main: void fail(java.lang.Throwable)>(t)
          t = @caughtexception
          k = class "ex.B"
          return
`

func loadProgram(t *testing.T, src string) *ir.Program {
	t.Helper()
	prog, err := progutil.LoadProgramFromSource(src)
	require.NoError(t, err)
	return prog
}

func method(t *testing.T, prog *ir.Program, sig string) *ir.Method {
	t.Helper()
	s, err := ir.ParseMethodSig(sig)
	require.NoError(t, err)
	m := prog.Method(s)
	require.NotNil(t, m, "no method %s", sig)
	return m
}

func local(t *testing.T, m *ir.Method, name string) *ir.Local {
	t.Helper()
	for _, stmt := range m.Body() {
		if as, ok := stmt.(*ir.AssignStmt); ok {
			if l, ok := as.LHS.(*ir.Local); ok && l.Name == name {
				return l
			}
		}
	}
	for _, p := range m.Params {
		if p.Name == name {
			return p
		}
	}
	t.Fatalf("no local %s in %v", name, m)
	return nil
}

func mainSig(class string) ir.MethodSig {
	return ir.NewMethodSig(ir.Type(class), ir.VoidType, "main")
}

func analyze(t *testing.T, prog *ir.Program, modify func(*pointer.AnalysisConfig)) *pointer.Result {
	t.Helper()
	log, _ := test.NewNullLogger()
	ac := pointer.AnalysisConfig{
		Program:     prog,
		EntryPoints: []ir.MethodSig{mainSig("ex.Main")},
		Log:         log,
	}
	if modify != nil {
		modify(&ac)
	}
	res, err := pointer.Analyze(ac)
	require.NoError(t, err)
	require.True(t, res.Converged)
	return res
}

// sites renders the allocation sites of a points-to set.
func sites(objs []*pointer.AllocNode) []string {
	return slices.Map(objs, func(obj *pointer.AllocNode) string { return obj.String() })
}

func TestPrinters(t *testing.T) {
	for _, alg := range []string{config.AlgorithmCHA, config.AlgorithmRTA} {
		t.Run(alg, func(t *testing.T) {
			prog := loadProgram(t, printers)
			res := analyze(t, prog, func(ac *pointer.AnalysisConfig) { ac.Algorithm = alg })

			main := method(t, prog, "<ex.Main: void main()>")
			cg := res.CallGraph
			for _, class := range []string{"ex.B", "ex.C", "ex.E"} {
				assert.True(t, cg.ContainsCall(main, method(t, prog, "<"+class+": void <init>()>")), class)
				assert.True(t, cg.ContainsCall(main, method(t, prog, "<"+class+": void print()>")), class)
			}
			assert.True(t, cg.ContainsCall(
				method(t, prog, "<ex.E: void <init>()>"),
				method(t, prog, "<ex.B: void <init>()>")))

			for _, m := range cg.Methods() {
				assert.NotEqual(t, ir.Type("ex.A"), m.Sig.Class, "%v is reachable", m)
				assert.NotEqual(t, ir.Type("ex.D"), m.Sig.Class, "%v is reachable", m)
			}
			assert.False(t, res.Reachable[method(t, prog, "<ex.A: void print()>")])

			assert.Equal(t, []ir.Type{"ex.B"}, res.Pointer(local(t, main, "b")).Types())
			assert.Equal(t, []ir.Type{"ex.E"}, res.Pointer(local(t, main, "e")).Types())
			assert.Empty(t, res.Warnings)

			bInit := method(t, prog, "<ex.B: void <init>()>")
			assert.Equal(t, []ir.Type{"ex.B", "ex.E"}, res.Pointer(bInit.This).Types())
		})
	}
}

func TestSeedPrecision(t *testing.T) {
	prog := loadProgram(t, printers)
	aPrint := method(t, prog, "<ex.A: void print()>")

	res := analyze(t, prog, func(ac *pointer.AnalysisConfig) { ac.Algorithm = config.AlgorithmCHA })
	assert.True(t, res.Seed.ContainsMethod(aPrint), "CHA considers every implementation")
	assert.False(t, res.CallGraph.ContainsMethod(aPrint))

	res = analyze(t, prog, func(ac *pointer.AnalysisConfig) { ac.Algorithm = config.AlgorithmRTA })
	assert.False(t, res.Seed.ContainsMethod(aPrint), "A is never instantiated")
}

func TestSoundnessRelativeToSeed(t *testing.T) {
	for _, src := range []string{printers, fields, misc} {
		for _, alg := range []string{config.AlgorithmCHA, config.AlgorithmRTA} {
			prog := loadProgram(t, src)
			res := analyze(t, prog, func(ac *pointer.AnalysisConfig) { ac.Algorithm = alg })
			assert.Empty(t, res.Unjustified(), alg)
			assert.True(t, sets.Subset(res.CallGraph.Methods(), res.Seed.Methods()), alg)

			seed := maps.FromKeys(res.Seed.Methods())
			for m := range res.Reachable {
				if _, found := seed[m]; !found {
					t.Errorf("%s: %v is reachable but not in the seed", alg, m)
				}
			}
		}
	}
}

func TestFieldFlow(t *testing.T) {
	prog := loadProgram(t, fields)
	res := analyze(t, prog, nil)

	main := method(t, prog, "<ex.Main: void main()>")
	body := main.Body()
	a0 := res.Pointer(local(t, main, "a0")).PointsTo()
	a1 := res.Pointer(local(t, main, "a1")).PointsTo()
	require.Len(t, a0, 1)
	require.Len(t, a1, 1)
	assert.Same(t, body[0], a0[0].Site())
	assert.Same(t, body[1], a1[0].Site())

	assert.Equal(t, sites(a1), sites(res.Pointer(local(t, main, "x")).PointsTo()))
	assert.Empty(t, res.Pointer(local(t, main, "y")).PointsTo())
	assert.Equal(t, a1, res.Pointer(local(t, main, "z")).PointsTo(), "field read through a virtual call")

	f := ir.FieldSig{Class: "ex.Node", Name: "f", Type: ir.ObjectType}
	assert.Equal(t, a1, res.Field(a0[0], f).PointsTo())
	assert.Equal(t, []pointer.Label{pointer.FieldPointer{Base: a0[0], Field: f}}, res.Subobjects(a0[0]))
	assert.Empty(t, res.Subobjects(a1[0]))

	x := res.Pointer(local(t, main, "x"))
	assert.True(t, x.MayAlias(res.Pointer(local(t, main, "a1"))))
	assert.False(t, x.MayAlias(res.Pointer(local(t, main, "a0"))))
}

func TestMisc(t *testing.T) {
	prog := loadProgram(t, misc)
	res := analyze(t, prog, nil)
	main := method(t, prog, "<ex.Main: void main()>")
	pt := func(name string) *pointer.Pointer { return res.Pointer(local(t, main, name)) }

	t.Run("Cast", func(t *testing.T) {
		assert.Equal(t, []ir.Type{"ex.B", "ex.C"}, pt("o").Types())
		assert.Equal(t, []ir.Type{"ex.B"}, pt("b").Types())
	})

	t.Run("Array", func(t *testing.T) {
		arr := pt("arr").PointsTo()
		require.Len(t, arr, 1)
		assert.Equal(t, pointer.AllocNewArray, arr[0].Kind)
		assert.Equal(t, ir.Type("java.lang.Object[]"), arr[0].Type())
		assert.Equal(t, []ir.Type{"ex.B"}, res.ArrayElement(arr[0]).Types())
		assert.Equal(t, []ir.Type{"ex.B"}, pt("g").Types())
		assert.Equal(t, "[*]", res.Subobjects(arr[0])[0].Path())
	})

	t.Run("Static", func(t *testing.T) {
		h := pt("h").PointsTo()
		require.Len(t, h, 1)
		assert.Equal(t, pointer.AllocString, h[0].Kind)
		assert.Equal(t, h, res.StaticField(ir.FieldSig{Class: "ex.Main", Name: "cache", Type: ir.ObjectType}).PointsTo())
	})

	t.Run("Exception", func(t *testing.T) {
		assert.Equal(t, []ir.Type{"ex.Ex"}, res.Exceptions().Types())
		assert.Equal(t, []ir.Type{"ex.Ex"}, pt("t").Types())
	})

	t.Run("ClassConstant", func(t *testing.T) {
		k := pt("k").PointsTo()
		require.Len(t, k, 1)
		assert.Equal(t, pointer.AllocClass, k[0].Kind)
		assert.Equal(t, ir.Type("ex.B"), k[0].Of)
		assert.Equal(t, ir.ClassType, k[0].Type())
	})

	assert.Panics(t, func() { res.Pointer(ir.NewLocal("i", "int")) })
}

const reflective = `
classes:
  - name: ex.Printer
    interface: true
    methods:
      - sig: void print()
  - name: ex.B
    interfaces: [ex.Printer]
    methods:
      - sig: void <init>()
        body: return
      - sig: void print()
        body: return
  - name: ex.C
    interfaces: [ex.Printer]
    methods:
      - sig: void <init>()
        body: return
      - sig: void print()
        body: return
  - name: ex.Main
    methods:
      - sig: void main()
        static: true
        locals: {c: java.lang.Class, d: java.lang.Class, o: java.lang.Object}
        body: |
          c = staticinvoke <java.lang.Class: java.lang.Class forName(java.lang.String)>("ex.B") // line 5
          o = virtualinvoke c.<java.lang.Class: java.lang.Object newInstance()>() // line 6
          interfaceinvoke o.<ex.Printer: void print()>() // line 7
          d = staticinvoke <java.lang.Class: java.lang.Class forName(java.lang.String)>("ex.C") // line 8
          return
`

const reflectiveTrace = `Class.forName;ex.B;ex.Main.main;5
Class.newInstance;ex.B;ex.Main.main;6
Class.newInstance;ex.Missing;ex.Main.main;6
`

func TestReflection(t *testing.T) {
	prog := loadProgram(t, reflective)
	log, _ := test.NewNullLogger()
	tr, err := reflection.ParseTrace(strings.NewReader(reflectiveTrace), log)
	require.NoError(t, err)

	res := analyze(t, prog, func(ac *pointer.AnalysisConfig) {
		ac.Reflection = reflection.NewTraceModel(prog, tr.Entries, log)
	})

	main := method(t, prog, "<ex.Main: void main()>")
	c := res.Pointer(local(t, main, "c")).PointsTo()
	require.Len(t, c, 1)
	assert.Equal(t, ir.Type("ex.B"), c[0].Of)

	assert.Equal(t, []ir.Type{"ex.B"}, res.Pointer(local(t, main, "o")).Types())
	assert.True(t, res.CallGraph.ContainsCall(main, method(t, prog, "<ex.B: void <init>()>")))
	assert.True(t, res.CallGraph.ContainsCall(main, method(t, prog, "<ex.B: void print()>")))

	// Class.forName without a trace entry resolves to nothing.
	assert.Empty(t, res.Pointer(local(t, main, "d")).PointsTo())
	assert.False(t, res.Reachable[method(t, prog, "<ex.C: void print()>")])

	require.Len(t, res.Warnings, 1, "the missing class is reported")
	assert.Contains(t, res.Warnings[0].Error(), "ex.Missing")

	assert.Empty(t, res.Unjustified(), "calls replacing reflective ones are justified by the trace")
}

// ex.K implements ex.I without declaring run, so both call sites fail to
// resolve.
const unresolved = `
classes:
  - name: ex.I
    interface: true
    methods:
      - sig: void run()
  - name: ex.K
    interfaces: [ex.I]
  - name: ex.Main
    methods:
      - sig: void other(ex.I)
        static: true
        params: [k]
        body: |
          interfaceinvoke k.<ex.I: void run()>()
          return
      - sig: void main()
        static: true
        locals: {k: ex.I}
        body: |
          k = new ex.K
          interfaceinvoke k.<ex.I: void run()>()
          interfaceinvoke k.<ex.I: void run()>()
          staticinvoke <ex.Main: void other(ex.I)>(k)
          return
`

func TestResolutionFailure(t *testing.T) {
	prog := loadProgram(t, unresolved)
	log, hook := test.NewNullLogger()
	res := analyze(t, prog, func(ac *pointer.AnalysisConfig) { ac.Log = log })

	main := method(t, prog, "<ex.Main: void main()>")
	other := method(t, prog, "<ex.Main: void other(ex.I)>")
	assert.True(t, res.Reachable[other])
	assert.Equal(t, []ir.Type{"ex.K"}, res.Pointer(other.Params[0]).Types())
	assert.Equal(t, []*ir.Method{other}, res.CallGraph.CallsFrom(main))

	require.Len(t, res.Warnings, 3, "every failing site is reported")
	for _, w := range res.Warnings {
		var mre *typehierarchy.MethodResolutionError
		require.True(t, errors.As(w, &mre), w)
		assert.Equal(t, ir.Type("ex.K"), mre.Type)
	}
	assert.Contains(t, res.Warnings[0].Error(), main.String())
	assert.Contains(t, res.Warnings[2].Error(), other.String())

	warns := 0
	for _, e := range hook.AllEntries() {
		if _, ok := e.Data["site"]; ok && e.Level == logrus.WarnLevel {
			warns++
		}
	}
	assert.Equal(t, 3, warns, "every failing site is logged")
}

func TestWithoutReflection(t *testing.T) {
	prog := loadProgram(t, reflective)
	res := analyze(t, prog, nil)
	main := method(t, prog, "<ex.Main: void main()>")
	assert.Empty(t, res.Pointer(local(t, main, "o")).PointsTo())
	assert.Len(t, res.CallGraph.CallsFrom(main), 0)
}

func TestSeeded(t *testing.T) {
	prog := loadProgram(t, printers)
	res := analyze(t, prog, func(ac *pointer.AnalysisConfig) {
		ac.Algorithm = config.AlgorithmCHA
		ac.Seeded = true
	})

	assert.Equal(t, res.Seed.NumEdges(), res.CallGraph.NumEdges())
	aPrint := method(t, prog, "<ex.A: void print()>")
	assert.True(t, res.CallGraph.ContainsMethod(aPrint))
	assert.Empty(t, res.Pointer(aPrint.This).PointsTo(), "receivers are filtered by class")

	main := method(t, prog, "<ex.Main: void main()>")
	assert.Equal(t, []ir.Type{"ex.C"}, res.Pointer(local(t, main, "c")).Types())
	assert.Equal(t, []ir.Type{"ex.C"}, res.Pointer(method(t, prog, "<ex.C: void print()>").This).Types())
}

func TestBudget(t *testing.T) {
	prog := loadProgram(t, printers)
	res, err := pointer.Analyze(pointer.AnalysisConfig{
		Program:     prog,
		EntryPoints: []ir.MethodSig{mainSig("ex.Main")},
		MaxSteps:    3,
	})
	require.ErrorIs(t, err, pointer.ErrBudgetExhausted)
	require.NotNil(t, res)
	assert.False(t, res.Converged)
	assert.Equal(t, 3, res.Steps)

	_, err = pointer.NewAliasPropagator(res)
	assert.ErrorIs(t, err, pointer.ErrNotConverged)
}

func TestCancel(t *testing.T) {
	prog := loadProgram(t, printers)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := pointer.AnalyzeContext(ctx, pointer.AnalysisConfig{
		Program:     prog,
		EntryPoints: []ir.MethodSig{mainSig("ex.Main")},
	})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.False(t, res.Converged)
}

func TestConfigErrors(t *testing.T) {
	prog := loadProgram(t, printers)

	_, err := pointer.Analyze(pointer.AnalysisConfig{
		Program:     prog,
		EntryPoints: []ir.MethodSig{mainSig("ex.Missing")},
	})
	assert.ErrorIs(t, err, callgraph.ErrUnknownEntryPoint)

	_, err = pointer.Analyze(pointer.AnalysisConfig{
		Program:     prog,
		EntryPoints: []ir.MethodSig{mainSig("ex.Main")},
		Algorithm:   "vta",
	})
	assert.Error(t, err)

	_, err = pointer.Analyze(pointer.AnalysisConfig{})
	assert.Error(t, err)
}

func TestNewAnalysisConfig(t *testing.T) {
	prog := loadProgram(t, reflective)
	log, hook := test.NewNullLogger()

	cfg := config.NewDefault()
	cfg.EntryPoints = []string{"<ex.Main: void main()>"}
	cfg.ReflectionLog = "testdata/missing.log"
	cfg.AliasPropagation = true

	ac, err := pointer.NewAnalysisConfig(cfg, prog, log)
	require.NoError(t, err)
	assert.Nil(t, ac.Reflection)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	res, err := pointer.Analyze(ac)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1, "the unreadable trace is reported")
	require.NotNil(t, res.Aliases)

	cfg.RequireReflectionLog = true
	_, err = pointer.NewAnalysisConfig(cfg, prog, log)
	assert.Error(t, err)

	cfg.EntryPoints = []string{"main"}
	_, err = pointer.NewAnalysisConfig(cfg, prog, log)
	assert.True(t, err != nil && !errors.Is(err, callgraph.ErrUnknownEntryPoint))
}
