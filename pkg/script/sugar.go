package script

import (
	"fmt"
	"strconv"
)

const failFunc = "fail"

// Desugar rewrites a parsed program into base statements. Inline
// constructions inside a chain become Build statements ahead of the
// Connect statements that use them.
func Desugar(prog *Program) ([]Stmt, error) {
	d := &desugarer{file: prog.File}
	for _, n := range prog.Nodes {
		var err error
		switch n := n.(type) {
		case *Assign:
			err = d.assign(n)
		case *Chain:
			err = d.chain(n)
		}
		if err != nil {
			return nil, err
		}
	}
	return d.out, nil
}

type desugarer struct {
	file string
	anon int
	out  []Stmt
}

func (d *desugarer) assign(a *Assign) error {
	if a.Call.Func == failFunc {
		return d.fail(a.Call)
	}
	d.out = append(d.out, &Build{Pos: a.Pos, Var: a.Name, Name: a.Name, Class: a.Call.Func, Args: a.Call.Args})
	return nil
}

func (d *desugarer) chain(c *Chain) error {
	if len(c.Elems) == 1 {
		e := c.Elems[0]
		switch {
		case e.HasIGate || e.HasOGate:
			return d.errorf(e.Pos, "gate given outside a connection")
		case e.Call == nil:
			return d.errorf(e.Pos, "statement %q has no effect", e.Name)
		case e.Call.Func == failFunc && e.Name == "":
			return d.fail(e.Call)
		}
	}

	vars := make([]string, len(c.Elems))
	for i, e := range c.Elems {
		if i == 0 && e.HasIGate {
			return d.errorf(e.Pos, "input gate on the first element of a chain")
		}
		if i == len(c.Elems)-1 && e.HasOGate && len(c.Elems) > 1 {
			return d.errorf(e.Pos, "output gate on the last element of a chain")
		}
		v, err := d.elem(e)
		if err != nil {
			return err
		}
		vars[i] = v
	}
	for i := 1; i < len(c.Elems); i++ {
		prev, cur := c.Elems[i-1], c.Elems[i]
		d.out = append(d.out, &Connect{
			Pos:   cur.Pos,
			From:  vars[i-1],
			OGate: prev.OGate,
			To:    vars[i],
			IGate: cur.IGate,
		})
	}
	return nil
}

// elem emits the Build for an inline construction and returns the
// script name the element refers to.
func (d *desugarer) elem(e Elem) (string, error) {
	if e.Call == nil {
		return e.Name, nil
	}
	if e.Call.Func == failFunc {
		return "", d.errorf(e.Pos, "fail() cannot be connected")
	}
	b := &Build{Pos: e.Pos, Var: e.Name, Name: e.Name, Class: e.Call.Func, Args: e.Call.Args}
	if e.Name == "" {
		d.anon++
		b.Var = "#" + strconv.Itoa(d.anon)
	}
	d.out = append(d.out, b)
	return b.Var, nil
}

func (d *desugarer) fail(c *Call) error {
	if c.Args.Keywords != nil {
		return d.errorf(c.Pos, "fail() takes a single message")
	}
	d.out = append(d.out, &Fail{Pos: c.Pos, Msg: c.Args.Positional})
	return nil
}

func (d *desugarer) errorf(p Pos, format string, args ...any) error {
	return &SyntaxError{File: d.file, Line: p.Line, Column: p.Column, Msg: fmt.Sprintf(format, args...)}
}
