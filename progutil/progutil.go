// Package progutil loads a class universe from a YAML program description.
//
// A description lists classes with their fields and methods. Method bodies
// are written one statement per line in a small Jimple-like syntax:
//
//	x = new ex.B
//	specialinvoke x.<ex.B: void <init>()>()
//	y = virtualinvoke x.<ex.B: java.lang.Object get()>() // line 12
//	x.<ex.B: java.lang.Object f> = y
//	return
//
// A trailing "// line N" comment sets the source line of a statement.
package progutil

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/BarrensZeppelin/jvmpointer/ir"
	"gopkg.in/yaml.v3"
)

type FieldDecl struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Static bool   `yaml:"static"`
}

type MethodDecl struct {
	// Sub-signature, e.g. "void print(java.lang.Object)".
	Sig      string `yaml:"sig"`
	Static   bool   `yaml:"static"`
	Abstract bool   `yaml:"abstract"`
	Native   bool   `yaml:"native"`
	// Names of the parameters. Defaults to p0, p1, ...
	Params []string          `yaml:"params"`
	Locals map[string]string `yaml:"locals"`
	Body   string            `yaml:"body"`
}

type ClassDecl struct {
	Name string `yaml:"name"`
	// Defaults to java.lang.Object for classes. An explicit empty value
	// declares a root.
	Super      *string      `yaml:"super"`
	Interfaces []string     `yaml:"interfaces"`
	Interface  bool         `yaml:"interface"`
	Abstract   bool         `yaml:"abstract"`
	Fields     []FieldDecl  `yaml:"fields"`
	Methods    []MethodDecl `yaml:"methods"`
}

type ProgramDecl struct {
	Classes []ClassDecl `yaml:"classes"`
}

// LoadProgram reads a program description from a file.
func LoadProgram(path string) (*ir.Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	prog, err := LoadProgramFromSource(string(src))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return prog, nil
}

// LoadProgramFromSource builds a program from a YAML description. A
// java.lang.Object class with a no-op constructor is added if the
// description does not declare one.
func LoadProgramFromSource(source string) (*ir.Program, error) {
	var decl ProgramDecl
	dec := yaml.NewDecoder(bytes.NewBufferString(source))
	dec.KnownFields(true)
	if err := dec.Decode(&decl); err != nil {
		return nil, fmt.Errorf("decoding program: %w", err)
	}
	return Build(&decl)
}

// Build creates the program described by decl.
func Build(decl *ProgramDecl) (*ir.Program, error) {
	prog := ir.NewProgram()

	type pending struct {
		m    *ir.Method
		decl *MethodDecl
	}
	var bodies []pending

	for ci := range decl.Classes {
		cd := &decl.Classes[ci]
		name := ir.Type(cd.Name)
		if !name.WellFormed() || name.IsArray() || name.IsPrimitive() {
			return nil, fmt.Errorf("malformed class name %q", cd.Name)
		}
		if prog.ContainsClass(name) {
			return nil, fmt.Errorf("class %s is declared twice", name)
		}

		super := ir.ObjectType
		if cd.Super != nil {
			super = ir.Type(*cd.Super)
		} else if cd.Interface || name == ir.ObjectType {
			super = ""
		}

		ifaces := make([]ir.Type, len(cd.Interfaces))
		for i, it := range cd.Interfaces {
			ifaces[i] = ir.Type(it)
		}

		c := ir.NewClass(name, super, ifaces...)
		c.Interface, c.Abstract = cd.Interface, cd.Abstract

		for _, fd := range cd.Fields {
			if fd.Name == "" || !ir.Type(fd.Type).WellFormed() {
				return nil, fmt.Errorf("%s: malformed field %q of type %q", name, fd.Name, fd.Type)
			}
			c.AddField(fd.Name, ir.Type(fd.Type), fd.Static)
		}

		for mi := range cd.Methods {
			md := &cd.Methods[mi]
			m, err := declareMethod(c, md)
			if err != nil {
				return nil, err
			}
			bodies = append(bodies, pending{m, md})
		}

		prog.AddClass(c)
	}

	if !prog.ContainsClass(ir.ObjectType) {
		obj := ir.NewClass(ir.ObjectType, "")
		ctor := obj.AddMethod(ir.NewMethod(ir.MethodSig{Sub: ir.MakeSubSignature(ir.VoidType, ir.InitName)}, false))
		ctor.SetBody([]ir.Stmt{&ir.ReturnStmt{}})
		prog.AddClass(obj)
	}

	for _, p := range bodies {
		if err := parseBody(p.m, p.decl); err != nil {
			return nil, fmt.Errorf("%v: %w", p.m, err)
		}
	}
	return prog, nil
}

func declareMethod(c *ir.Class, md *MethodDecl) (*ir.Method, error) {
	sub := ir.SubSignature(strings.TrimSpace(md.Sig))
	if sub.Name() == "" || sub.Return() == "" {
		return nil, fmt.Errorf("%s: malformed method signature %q", c.Name, md.Sig)
	}
	if _, dup := c.Methods[sub]; dup {
		return nil, fmt.Errorf("%s: method %q is declared twice", c.Name, md.Sig)
	}

	m := ir.NewMethod(ir.MethodSig{Class: c.Name, Sub: sub}, md.Static)
	m.Abstract, m.Native = md.Abstract || c.Interface && md.Body == "", md.Native

	if len(md.Params) > 0 {
		if len(md.Params) != len(m.Params) {
			return nil, fmt.Errorf("%v: %d parameter names for %d parameters",
				m.Sig, len(md.Params), len(m.Params))
		}
		for i, name := range md.Params {
			m.Params[i].Name = name
		}
	}
	return c.AddMethod(m), nil
}
