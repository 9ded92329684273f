// Package argtype defines the placeholder kinds a command template can
// use: how each kind consumes input, validates it into a typed value and
// offers completions.
package argtype

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/psaab/bessctl/pkg/literal"
)

// Kind names a placeholder type.
type Kind string

const (
	Name     Kind = "name"     // identifier
	Names    Kind = "name+"    // set of identifiers, rest of line
	Gate     Kind = "gate"     // non-negative integer
	ConfName Kind = "confname" // configuration name under the conf directory
	FileName Kind = "filename" // path
	Map      Kind = "map"      // key=value, ... rest of line
	Literal  Kind = "pyobj"    // one literal value, rest of line
	Opts     Kind = "opts"     // opaque options, rest of line
	Host     Kind = "host"     // host name or IP address
	TCPPort  Kind = "tcpport"  // TCP port number, 1-65535
)

// BindError reports why raw input does not satisfy a kind.
type BindError struct {
	Kind   Kind
	Raw    string
	Reason string
}

func (e *BindError) Error() string {
	return e.Reason
}

// Source produces candidate values for a placeholder. It is invoked
// fresh for every completion attempt.
type Source func(ctx context.Context, partial string) ([]string, error)

// Descriptor is the behaviour of one placeholder kind.
type Descriptor struct {
	Kind Kind
	Desc string

	// Rest is true when the kind claims the remainder of the line.
	Rest bool

	bind func(raw string) (any, error)
}

// Consume splits line into the part this kind claims and the rest.
// head+rest always covers line minus leading whitespace.
func (d *Descriptor) Consume(line string) (head, rest string) {
	line = strings.TrimLeftFunc(line, unicode.IsSpace)
	if d.Rest {
		return strings.TrimRightFunc(line, unicode.IsSpace), ""
	}
	if i := strings.IndexFunc(line, unicode.IsSpace); i >= 0 {
		return line[:i], line[i:]
	}
	return line, ""
}

// Bind validates raw input and converts it into a typed value. Errors
// are always *BindError.
func (d *Descriptor) Bind(raw string) (any, error) {
	return d.bind(raw)
}

// Complete returns the candidates from src that extend partial.
func (d *Descriptor) Complete(ctx context.Context, partial string, src Source) ([]string, error) {
	if src == nil {
		return nil, nil
	}
	all, err := src(ctx, partial)
	if err != nil {
		return nil, err
	}
	var out []string
	seen := make(map[string]bool, len(all))
	for _, c := range all {
		if strings.HasPrefix(c, partial) && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out, nil
}

var registry = map[Kind]*Descriptor{}

func register(d *Descriptor) {
	registry[d.Kind] = d
}

// Lookup returns the descriptor for kind.
func Lookup(kind Kind) (*Descriptor, bool) {
	d, ok := registry[kind]
	return d, ok
}

// Kinds returns all registered kinds, sorted.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

const nameReason = `"name" must be [_a-zA-Z][_a-zA-Z0-9]*`

var hostnameRe = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?)*$`)

func init() {
	register(&Descriptor{
		Kind: Name,
		Desc: "identifier",
		bind: func(raw string) (any, error) {
			if !literal.IsIdentifier(raw) {
				return nil, &BindError{Kind: Name, Raw: raw, Reason: nameReason}
			}
			return raw, nil
		},
	})

	register(&Descriptor{
		Kind: Names,
		Desc: "one or more identifiers",
		Rest: true,
		bind: func(raw string) (any, error) {
			set := make(map[string]struct{})
			for _, w := range strings.Fields(raw) {
				if !literal.IsIdentifier(w) {
					return nil, &BindError{Kind: Names, Raw: raw, Reason: nameReason}
				}
				set[w] = struct{}{}
			}
			names := make([]string, 0, len(set))
			for n := range set {
				names = append(names, n)
			}
			sort.Strings(names)
			return names, nil
		},
	})

	register(&Descriptor{
		Kind: Gate,
		Desc: "gate number",
		bind: func(raw string) (any, error) {
			reason := `"gate" must be a non-negative number`
			if raw == "" || strings.TrimLeft(raw, "0123456789") != "" {
				return nil, &BindError{Kind: Gate, Raw: raw, Reason: reason}
			}
			n, err := strconv.ParseUint(raw, 10, 31)
			if err != nil {
				return nil, &BindError{Kind: Gate, Raw: raw, Reason: fmt.Sprintf("gate %s is out of range", raw)}
			}
			return int(n), nil
		},
	})

	register(&Descriptor{
		Kind: ConfName,
		Desc: "configuration name",
		bind: func(raw string) (any, error) {
			if strings.ContainsRune(raw, 0) {
				return nil, &BindError{Kind: ConfName, Raw: raw, Reason: "invalid configuration name"}
			}
			return raw, nil
		},
	})

	register(&Descriptor{
		Kind: FileName,
		Desc: "filename",
		bind: func(raw string) (any, error) {
			if strings.ContainsRune(raw, 0) {
				return nil, &BindError{Kind: FileName, Raw: raw, Reason: "invalid filename"}
			}
			return raw, nil
		},
	})

	register(&Descriptor{
		Kind: Map,
		Desc: "key=value pairs",
		Rest: true,
		bind: func(raw string) (any, error) {
			kw, err := literal.ParseKeywords(raw)
			if err != nil {
				return nil, &BindError{Kind: Map, Raw: raw, Reason: `"map" should be "key=val, key=val, ..."`}
			}
			return kw, nil
		},
	})

	register(&Descriptor{
		Kind: Literal,
		Desc: "literal value",
		Rest: true,
		bind: func(raw string) (any, error) {
			if strings.TrimSpace(raw) == "" {
				return nil, nil
			}
			v, err := literal.Parse(raw)
			if err != nil {
				return nil, &BindError{Kind: Literal, Raw: raw, Reason: `"pyobj" should be a literal` +
					` (e.g., 42, "foo", ["hello", "world"], {"bar": "baz"})`}
			}
			return v, nil
		},
	})

	register(&Descriptor{
		Kind: Opts,
		Desc: "options",
		Rest: true,
		bind: func(raw string) (any, error) {
			return strings.Fields(raw), nil
		},
	})

	register(&Descriptor{
		Kind: Host,
		Desc: "host name or address",
		bind: func(raw string) (any, error) {
			if net.ParseIP(raw) == nil && !hostnameRe.MatchString(raw) {
				return nil, &BindError{Kind: Host, Raw: raw, Reason: fmt.Sprintf("invalid host %q", raw)}
			}
			return raw, nil
		},
	})

	register(&Descriptor{
		Kind: TCPPort,
		Desc: "TCP port",
		bind: func(raw string) (any, error) {
			n, err := strconv.ParseUint(raw, 10, 16)
			if err != nil || n == 0 {
				return nil, &BindError{Kind: TCPPort, Raw: raw, Reason: `"port" must be a number between 1 and 65535`}
			}
			return int(n), nil
		},
	})
}
