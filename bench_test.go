package pointer_test

import (
	"fmt"
	"strings"
	"testing"

	pointer "github.com/BarrensZeppelin/jvmpointer"
	"github.com/BarrensZeppelin/jvmpointer/config"
	"github.com/BarrensZeppelin/jvmpointer/ir"
	"github.com/BarrensZeppelin/jvmpointer/progutil"
	"github.com/stretchr/testify/require"
)

var blackHole any

// syntheticProgram generates n implementations of an interface. Every
// implementation forwards the value it receives to the next one through a
// field and a virtual call.
func syntheticProgram(n int) string {
	var sb strings.Builder
	sb.WriteString(`classes:
  - name: ex.Handler
    interface: true
    methods:
      - sig: java.lang.Object handle(java.lang.Object)
  - name: ex.Main
    methods:
      - sig: void main()
        static: true
        locals: {h: ex.Handler, o: java.lang.Object}
        body: |
`)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "          h = new ex.H%d\n", i)
		fmt.Fprintf(&sb, "          specialinvoke h.<ex.H%d: void <init>()>()\n", i)
	}
	sb.WriteString("          o = new ex.Payload\n")
	sb.WriteString("          o = interfaceinvoke h.<ex.Handler: java.lang.Object handle(java.lang.Object)>(o)\n")
	sb.WriteString("          return\n")
	sb.WriteString("  - name: ex.Payload\n")

	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, `  - name: ex.H%[1]d
    interfaces: [ex.Handler]
    fields:
      - {name: next, type: ex.Handler}
      - {name: last, type: java.lang.Object}
    methods:
      - sig: void <init>()
        locals: {n: ex.Handler}
        body: |
          specialinvoke this.<java.lang.Object: void <init>()>()
          n = new ex.H%[2]d
          this.<ex.H%[1]d: ex.Handler next> = n
          return
      - sig: java.lang.Object handle(java.lang.Object)
        params: [v]
        locals: {n: ex.Handler, r: java.lang.Object}
        body: |
          this.<ex.H%[1]d: java.lang.Object last> = v
          n = this.<ex.H%[1]d: ex.Handler next>
          r = interfaceinvoke n.<ex.Handler: java.lang.Object handle(java.lang.Object)>(v)
          return r
`, i, (i+1)%n)
	}
	return sb.String()
}

func BenchmarkSyntheticAnalysis(b *testing.B) {
	prog, err := progutil.LoadProgramFromSource(syntheticProgram(200))
	require.NoError(b, err)

	for _, alg := range [...]string{config.AlgorithmCHA, config.AlgorithmRTA} {
		for _, seeded := range [...]bool{false, true} {
			b.Run(fmt.Sprintf("%s(Seeded=%v)", alg, seeded), func(b *testing.B) {
				for i := 0; i < b.N; i++ {
					res, err := pointer.Analyze(pointer.AnalysisConfig{
						Program:     prog,
						EntryPoints: []ir.MethodSig{mainSig("ex.Main")},
						Algorithm:   alg,
						Seeded:      seeded,
					})
					require.NoError(b, err)
					blackHole = res
				}
			})
		}
	}
}

func TestSyntheticProgram(t *testing.T) {
	prog := loadProgram(t, syntheticProgram(5))
	res := analyze(t, prog, nil)

	for i := 0; i < 5; i++ {
		m := method(t, prog, fmt.Sprintf("<ex.H%d: java.lang.Object handle(java.lang.Object)>", i))
		require.True(t, res.Reachable[m])
		require.Equal(t, []ir.Type{"ex.Payload"}, res.Pointer(local(t, m, "v")).Types())
	}
	require.Len(t, res.CallGraph.RecursiveComponents(), 1)
}
