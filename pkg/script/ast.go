package script

// Pos is a position in a script.
type Pos struct {
	Line   int
	Column int
}

// Position returns p. Embedding Pos makes a node satisfy Node.
func (p Pos) Position() Pos {
	return p
}

// Node is any parsed element that carries a position.
type Node interface {
	Position() Pos
}

// Args is the argument list of a constructor call: either keywords or a
// single positional literal, never both.
type Args struct {
	Keywords      map[string]any
	Positional    any
	HasPositional bool
}

// Call is Class(args) or fail(args).
type Call struct {
	Pos
	Func string
	Args Args
}

// Elem is one element of a connection chain:
//
//	[IGATE:] NAME [::Class(args)] [:OGATE]
//	[IGATE:] Class(args) [:OGATE]
type Elem struct {
	Pos
	IGate    int
	HasIGate bool
	OGate    int
	HasOGate bool
	Name     string
	Call     *Call
}

// Assign is NAME = Class(args).
type Assign struct {
	Pos
	Name string
	Call *Call
}

// Chain is a -> b -> c. A chain of one element is a standalone
// construction or call.
type Chain struct {
	Pos
	Elems []Elem
}

// Program is a parsed script before sugar rewriting.
type Program struct {
	File  string
	Lines []string
	Nodes []Node
}

// Stmt is a base statement produced by Desugar.
type Stmt interface {
	Node
	stmt()
}

// Build creates a port or module with the given class. Var is the
// script name the result is bound to; anonymous constructions get a
// Var that is not a valid identifier and an empty Name so the engine
// picks one.
type Build struct {
	Pos
	Var   string
	Name  string
	Class string
	Args  Args
}

// Connect links From's output gate to To's input gate. From and To are
// script names.
type Connect struct {
	Pos
	From  string
	OGate int
	To    string
	IGate int
}

// Fail aborts the script with a configuration error.
type Fail struct {
	Pos
	Msg any
}

func (*Build) stmt()   {}
func (*Connect) stmt() {}
func (*Fail) stmt()    {}
