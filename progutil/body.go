package progutil

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BarrensZeppelin/jvmpointer/ir"
)

var invokeKinds = map[string]ir.InvokeKind{
	"staticinvoke":    ir.StaticInvoke,
	"specialinvoke":   ir.SpecialInvoke,
	"virtualinvoke":   ir.VirtualInvoke,
	"interfaceinvoke": ir.InterfaceInvoke,
}

func isInvoke(text string) bool {
	kind, _, _ := strings.Cut(text, " ")
	_, found := invokeKinds[kind]
	return found
}

type bodyParser struct {
	m      *ir.Method
	locals map[string]*ir.Local
}

func parseBody(m *ir.Method, md *MethodDecl) error {
	if strings.TrimSpace(md.Body) == "" {
		if len(md.Locals) > 0 {
			return fmt.Errorf("locals declared without a body")
		}
		return nil
	}
	if !m.Concrete() {
		return fmt.Errorf("abstract or native method has a body")
	}

	p := &bodyParser{m: m, locals: make(map[string]*ir.Local)}
	if m.This != nil {
		p.locals["this"] = m.This
	}
	for _, param := range m.Params {
		p.locals[param.Name] = param
	}
	for name, typ := range md.Locals {
		if _, dup := p.locals[name]; dup {
			return fmt.Errorf("local %q is declared twice", name)
		}
		if !ir.Type(typ).WellFormed() {
			return fmt.Errorf("local %q has malformed type %q", name, typ)
		}
		p.locals[name] = m.NewLocal(name, ir.Type(typ))
	}

	var body []ir.Stmt
	for i, line := range strings.Split(md.Body, "\n") {
		stmt, err := p.parseStmt(line)
		if err != nil {
			return fmt.Errorf("body line %d: %w", i+1, err)
		}
		if stmt != nil {
			body = append(body, stmt)
		}
	}
	m.SetBody(body)
	return nil
}

// splitLineComment separates a trailing "// line N" comment from a
// statement. Other comments are dropped.
func splitLineComment(line string) (string, int, error) {
	code, comment, found := strings.Cut(line, "//")
	if !found {
		return strings.TrimSpace(line), 0, nil
	}

	comment = strings.TrimSpace(comment)
	ln := 0
	if rest, ok := strings.CutPrefix(comment, "line "); ok {
		n, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil {
			return "", 0, fmt.Errorf("malformed line comment %q", comment)
		}
		ln = n
	}
	return strings.TrimSpace(code), ln, nil
}

func (p *bodyParser) parseStmt(line string) (ir.Stmt, error) {
	code, ln, err := splitLineComment(line)
	if err != nil || code == "" {
		return nil, err
	}
	pos := ir.Pos{Ln: ln}

	switch {
	case code == "return":
		return &ir.ReturnStmt{Pos: pos}, nil
	case strings.HasPrefix(code, "return "):
		v, err := p.parseValue(code[len("return "):])
		if err != nil {
			return nil, err
		}
		return &ir.ReturnStmt{Pos: pos, Value: v}, nil
	case strings.HasPrefix(code, "throw "):
		v, err := p.parseValue(code[len("throw "):])
		if err != nil {
			return nil, err
		}
		return &ir.ThrowStmt{Pos: pos, Value: v}, nil
	}

	if isInvoke(code) {
		ie, err := p.parseInvoke(code)
		if err != nil {
			return nil, err
		}
		return &ir.InvokeStmt{Pos: pos, Invoke: ie}, nil
	}

	lhsText, rhsText, found := cutAssign(code)
	if !found {
		return nil, fmt.Errorf("unrecognized statement %q", code)
	}

	lhs, err := p.parseLHS(lhsText)
	if err != nil {
		return nil, err
	}
	rhs, err := p.parseRHS(rhsText)
	if err != nil {
		return nil, err
	}
	if _, isLocal := lhs.(*ir.Local); !isLocal {
		switch rhs.(type) {
		case *ir.Local, ir.NullConstant, ir.StringConstant, ir.ClassConstant, ir.IntConstant:
		default:
			return nil, fmt.Errorf("store of a non-immediate value in %q", code)
		}
	}
	return &ir.AssignStmt{Pos: pos, LHS: lhs, RHS: rhs}, nil
}

// cutAssign splits "lhs = rhs" at the first " = " outside of a signature or
// string literal.
func cutAssign(code string) (string, string, bool) {
	depth, quoted := 0, false
	for i := 0; i+2 < len(code); i++ {
		switch c := code[i]; {
		case c == '"':
			quoted = !quoted
		case quoted:
		case c == '<':
			depth++
		case c == '>':
			depth--
		case depth == 0 && code[i:i+3] == " = ":
			return strings.TrimSpace(code[:i]), strings.TrimSpace(code[i+3:]), true
		}
	}
	return "", "", false
}

func (p *bodyParser) local(name string) (*ir.Local, error) {
	if l, found := p.locals[name]; found {
		return l, nil
	}
	return nil, fmt.Errorf("undeclared local %q", name)
}

func (p *bodyParser) parseLHS(text string) (ir.Value, error) {
	v, err := p.parseRef(text)
	if err != nil || v != nil {
		return v, err
	}
	return p.local(text)
}

// parseRef parses field and array references. It returns nil if text is not
// a reference.
func (p *bodyParser) parseRef(text string) (ir.Value, error) {
	switch {
	case strings.HasPrefix(text, "<"):
		sig, err := ir.ParseFieldSig(text)
		if err != nil {
			return nil, err
		}
		return &ir.StaticFieldRef{Field: sig}, nil

	case strings.Contains(text, ".<"):
		baseName, sigText, _ := strings.Cut(text, ".")
		base, err := p.local(baseName)
		if err != nil {
			return nil, err
		}
		sig, err := ir.ParseFieldSig(sigText)
		if err != nil {
			return nil, err
		}
		return &ir.InstanceFieldRef{Base: base, Field: sig}, nil

	case strings.HasSuffix(text, "]") && strings.Contains(text, "["):
		lb := strings.IndexByte(text, '[')
		base, err := p.local(text[:lb])
		if err != nil {
			return nil, err
		}
		var idx ir.Value
		if inner := strings.TrimSpace(text[lb+1 : len(text)-1]); inner != "" {
			if idx, err = p.parseValue(inner); err != nil {
				return nil, err
			}
		}
		return &ir.ArrayRef{Base: base, Index: idx}, nil
	}
	return nil, nil
}

func (p *bodyParser) parseRHS(text string) (ir.Value, error) {
	if isInvoke(text) {
		return p.parseInvoke(text)
	}

	switch {
	case text == "@caughtexception":
		return ir.CaughtExceptionRef{}, nil

	case strings.HasPrefix(text, "new "):
		t := ir.Type(strings.TrimSpace(text[len("new "):]))
		if !t.WellFormed() || t.IsArray() || t.IsPrimitive() {
			return nil, fmt.Errorf("malformed allocation %q", text)
		}
		return &ir.NewExpr{Class: t}, nil

	case strings.HasPrefix(text, "newarray "):
		t := ir.Type(strings.TrimSpace(text[len("newarray "):]))
		if !t.WellFormed() || t == ir.VoidType {
			return nil, fmt.Errorf("malformed array allocation %q", text)
		}
		return &ir.NewArrayExpr{Elem: t}, nil

	case strings.HasPrefix(text, "("):
		to, rest, found := strings.Cut(text[1:], ")")
		if !found || !ir.Type(to).WellFormed() {
			return nil, fmt.Errorf("malformed cast %q", text)
		}
		x, err := p.parseValue(strings.TrimSpace(rest))
		if err != nil {
			return nil, err
		}
		return &ir.CastExpr{To: ir.Type(to), X: x}, nil
	}

	if ref, err := p.parseRef(text); err != nil || ref != nil {
		return ref, err
	}
	return p.parseValue(text)
}

// parseValue parses an immediate: a local or a constant.
func (p *bodyParser) parseValue(text string) (ir.Value, error) {
	text = strings.TrimSpace(text)
	switch {
	case text == "null":
		return ir.NullConstant{}, nil
	case strings.HasPrefix(text, `"`):
		s, err := strconv.Unquote(text)
		if err != nil {
			return nil, fmt.Errorf("malformed string constant %s", text)
		}
		return ir.StringConstant(s), nil
	case strings.HasPrefix(text, "class "):
		name, err := strconv.Unquote(strings.TrimSpace(text[len("class "):]))
		if err != nil || !ir.Type(name).WellFormed() {
			return nil, fmt.Errorf("malformed class constant %s", text)
		}
		return ir.ClassConstant{Of: ir.Type(name)}, nil
	}

	if n, err := strconv.Atoi(text); err == nil {
		return ir.IntConstant(n), nil
	}
	return p.local(text)
}

// parseInvoke parses "kind [base.]<sig>(args)".
func (p *bodyParser) parseInvoke(text string) (*ir.InvokeExpr, error) {
	kindText, rest, _ := strings.Cut(text, " ")
	kind := invokeKinds[kindText]
	rest = strings.TrimSpace(rest)

	split := strings.LastIndex(rest, ">(")
	if split < 0 || !strings.HasSuffix(rest, ")") {
		return nil, fmt.Errorf("malformed invocation %q", text)
	}
	target, argText := rest[:split+1], rest[split+2:len(rest)-1]

	ie := &ir.InvokeExpr{Kind: kind}
	if kind != ir.StaticInvoke {
		baseName, sigText, found := strings.Cut(target, ".<")
		if !found {
			return nil, fmt.Errorf("%s without a receiver in %q", kind, text)
		}
		base, err := p.local(baseName)
		if err != nil {
			return nil, err
		}
		ie.Base, target = base, "<"+sigText
	}

	sig, err := ir.ParseMethodSig(target)
	if err != nil {
		return nil, err
	}
	ie.Method = sig

	for _, a := range splitArgs(argText) {
		v, err := p.parseValue(a)
		if err != nil {
			return nil, err
		}
		ie.Args = append(ie.Args, v)
	}
	if len(ie.Args) != len(sig.Sub.Params()) {
		return nil, fmt.Errorf("%d arguments for %v", len(ie.Args), sig)
	}
	return ie, nil
}

func splitArgs(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var args []string
	start, quoted := 0, false
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				args = append(args, strings.TrimSpace(text[start:i]))
				start = i + 1
			}
		}
	}
	return append(args, strings.TrimSpace(text[start:]))
}
