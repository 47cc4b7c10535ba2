package memory

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/scanner"

	"github.com/kailas-cloud/omhash/internal/db"
)

// filter is a compiled index FILTER expression. It covers the subset the
// schema options produce: @field references, string and number literals,
// ==, !=, <, <=, >, >=, !, &&, || and parentheses, plus the startswith and
// exists functions.
type filter interface {
	eval(fields map[string]string) value
}

// value is an operand. A missing field is null and fails every comparison.
type value struct {
	s     string
	valid bool
}

func (v value) truthy() bool {
	if !v.valid || v.s == "" {
		return false
	}
	if n, err := strconv.ParseFloat(v.s, 64); err == nil {
		return n != 0
	}
	return true
}

func boolValue(b bool) value {
	if b {
		return value{s: "1", valid: true}
	}
	return value{s: "0", valid: true}
}

type fieldRef string

func (f fieldRef) eval(fields map[string]string) value {
	v, ok := fields[string(f)]
	return value{s: v, valid: ok}
}

type literal string

func (l literal) eval(map[string]string) value { return value{s: string(l), valid: true} }

type not struct{ x filter }

func (n not) eval(fields map[string]string) value { return boolValue(!n.x.eval(fields).truthy()) }

type logical struct {
	and  bool
	l, r filter
}

func (o logical) eval(fields map[string]string) value {
	l := o.l.eval(fields).truthy()
	if o.and {
		return boolValue(l && o.r.eval(fields).truthy())
	}
	return boolValue(l || o.r.eval(fields).truthy())
}

type compare struct {
	op   string
	l, r filter
}

func (c compare) eval(fields map[string]string) value {
	l, r := c.l.eval(fields), c.r.eval(fields)
	if !l.valid || !r.valid {
		return boolValue(false)
	}
	var cmp int
	ln, lerr := strconv.ParseFloat(l.s, 64)
	rn, rerr := strconv.ParseFloat(r.s, 64)
	switch {
	case lerr == nil && rerr == nil:
		switch {
		case ln < rn:
			cmp = -1
		case ln > rn:
			cmp = 1
		}
	default:
		cmp = strings.Compare(l.s, r.s)
	}
	switch c.op {
	case "==":
		return boolValue(cmp == 0)
	case "!=":
		return boolValue(cmp != 0)
	case "<":
		return boolValue(cmp < 0)
	case "<=":
		return boolValue(cmp <= 0)
	case ">":
		return boolValue(cmp > 0)
	default:
		return boolValue(cmp >= 0)
	}
}

type call struct {
	name string
	args []filter
}

func (c call) eval(fields map[string]string) value {
	switch c.name {
	case "exists":
		return boolValue(c.args[0].eval(fields).valid)
	default: // startswith
		s, p := c.args[0].eval(fields), c.args[1].eval(fields)
		return boolValue(s.valid && p.valid && strings.HasPrefix(s.s, p.s))
	}
}

var arity = map[string]int{"exists": 1, "startswith": 2}

// ValidateFilter reports whether expr can be evaluated by Evaluate.
func ValidateFilter(expr string) error {
	_, err := compileFilter(expr)
	return err
}

// compileFilter parses expr. An empty expression yields nil.
func compileFilter(expr string) (filter, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}
	p := &filterParser{}
	p.s.Init(strings.NewReader(expr))
	p.s.Mode = scanner.ScanIdents | scanner.ScanFloats | scanner.ScanStrings | scanner.ScanRawStrings
	p.s.Error = func(_ *scanner.Scanner, msg string) { p.err = errors.New(msg) }
	p.next()

	f := p.or()
	if p.err == nil && p.tok != scanner.EOF {
		p.fail("unexpected %q", p.s.TokenText())
	}
	if p.err != nil {
		return nil, fmt.Errorf("%w: filter %q: %w", db.ErrUnsupported, expr, p.err)
	}
	return f, nil
}

type filterParser struct {
	s   scanner.Scanner
	tok rune
	err error
}

func (p *filterParser) next() { p.tok = p.s.Scan() }

func (p *filterParser) fail(format string, args ...any) {
	if p.err == nil {
		p.err = fmt.Errorf(format, args...)
	}
}

// accept consumes a one or two character operator.
func (p *filterParser) accept(op string) bool {
	if p.tok != rune(op[0]) {
		return false
	}
	if len(op) == 2 {
		if p.s.Peek() != rune(op[1]) {
			return false
		}
		p.s.Next()
	}
	p.next()
	return true
}

func (p *filterParser) or() filter {
	l := p.and()
	for p.err == nil && p.accept("||") {
		l = logical{l: l, r: p.and()}
	}
	return l
}

func (p *filterParser) and() filter {
	l := p.unary()
	for p.err == nil && p.accept("&&") {
		l = logical{and: true, l: l, r: p.unary()}
	}
	return l
}

func (p *filterParser) unary() filter {
	if p.tok == '!' && p.s.Peek() != '=' {
		p.next()
		return not{x: p.unary()}
	}
	l := p.operand()
	for _, op := range []string{"==", "!=", "<=", ">=", "<", ">"} {
		if p.accept(op) {
			return compare{op: op, l: l, r: p.operand()}
		}
	}
	return l
}

func (p *filterParser) operand() filter {
	switch p.tok {
	case '(':
		p.next()
		f := p.or()
		if !p.accept(")") {
			p.fail("missing )")
		}
		return f
	case '@':
		p.next()
		if p.tok != scanner.Ident {
			p.fail("field name expected after @")
			return nil
		}
		name := p.s.TokenText()
		p.next()
		// hash field names may be dotted paths
		for p.tok == '.' {
			p.next()
			if p.tok != scanner.Ident && p.tok != scanner.Int {
				p.fail("bad field path %q", name)
				return nil
			}
			name += "." + p.s.TokenText()
			p.next()
		}
		return fieldRef(name)
	case '-':
		p.next()
		if p.tok != scanner.Int && p.tok != scanner.Float {
			p.fail("number expected after -")
			return nil
		}
		lit := literal("-" + p.s.TokenText())
		p.next()
		return lit
	case scanner.Int, scanner.Float:
		lit := literal(p.s.TokenText())
		p.next()
		return lit
	case '\'':
		var b strings.Builder
		for r := p.s.Next(); r != '\''; r = p.s.Next() {
			if r == scanner.EOF {
				p.fail("unterminated string")
				return nil
			}
			b.WriteRune(r)
		}
		p.next()
		return literal(b.String())
	case scanner.String, scanner.RawString:
		text := p.s.TokenText()
		p.next()
		if s, err := strconv.Unquote(text); err == nil {
			return literal(s)
		}
		return literal(text[1 : len(text)-1])
	case scanner.Ident:
		return p.call()
	default:
		p.fail("unexpected %q", p.s.TokenText())
		return nil
	}
}

func (p *filterParser) call() filter {
	name := strings.ToLower(p.s.TokenText())
	n, ok := arity[name]
	if !ok {
		p.fail("unknown function %s", name)
		return nil
	}
	p.next()
	if !p.accept("(") {
		p.fail("( expected after %s", name)
		return nil
	}
	c := call{name: name}
	for i := 0; i < n && p.err == nil; i++ {
		if i > 0 && !p.accept(",") {
			p.fail("%s takes %d arguments", name, n)
			return nil
		}
		c.args = append(c.args, p.or())
	}
	if !p.accept(")") {
		p.fail("%s takes %d arguments", name, n)
	}
	return c
}
