package catalog

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"fortio.org/safecast"
	"golang.org/x/text/unicode/norm"

	"layoutcore/internal/types"
)

// normName puts identifiers in NFC so visually equal names match.
func normName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// exprParser is a recursive-descent parser over one type expression.
type exprParser struct {
	c   *Catalog
	src string
	pos int
}

func (c *Catalog) parseType(expr string) (types.TypeID, error) {
	p := &exprParser{c: c, src: norm.NFC.String(expr)}
	id, err := p.typ()
	if err != nil {
		return types.NoTypeID, err
	}
	p.space()
	if p.pos != len(p.src) {
		return types.NoTypeID, p.errorf("unexpected %q after type", p.src[p.pos:])
	}
	return id, nil
}

func (c *Catalog) parseExistential(expr string) (types.ExistentialID, error) {
	p := &exprParser{c: c, src: norm.NFC.String(expr)}
	ex, err := p.existential()
	if err != nil {
		return types.NoExistential, err
	}
	p.space()
	if p.pos != len(p.src) {
		return types.NoExistential, p.errorf("unexpected %q after interface", p.src[p.pos:])
	}
	return ex, nil
}

func (p *exprParser) errorf(format string, args ...any) *Error {
	return &Error{Kind: ErrSyntax, Item: p.src, Pos: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *exprParser) unknown(what, name string) *Error {
	return &Error{Kind: ErrUnknownName, Item: p.src, Pos: p.pos, Msg: fmt.Sprintf("%s %q is not declared", what, name)}
}

func (p *exprParser) space() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *exprParser) peek() byte {
	p.space()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *exprParser) accept(tok string) bool {
	p.space()
	if strings.HasPrefix(p.src[p.pos:], tok) {
		p.pos += len(tok)
		return true
	}
	return false
}

func (p *exprParser) expect(tok string) error {
	if !p.accept(tok) {
		if p.pos >= len(p.src) {
			return p.errorf("expected %q, found end of input", tok)
		}
		return p.errorf("expected %q", tok)
	}
	return nil
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func (p *exprParser) ident() string {
	p.space()
	start := p.pos
	for p.pos < len(p.src) {
		r, size := utf8.DecodeRuneInString(p.src[p.pos:])
		if !isIdentRune(r) {
			break
		}
		p.pos += size
	}
	return p.src[start:p.pos]
}

// keyword consumes word only when it is not the prefix of a longer identifier.
func (p *exprParser) keyword(word string) bool {
	save := p.pos
	if p.ident() == word {
		return true
	}
	p.pos = save
	return false
}

func (p *exprParser) typ() (types.TypeID, error) {
	in := p.c.Types
	switch p.peek() {
	case 0:
		return types.NoTypeID, p.errorf("expected a type, found end of input")
	case '*':
		p.pos++
		mut := p.keyword("mut")
		if !mut {
			p.keyword("const")
		}
		elem, err := p.typ()
		if err != nil {
			return types.NoTypeID, err
		}
		return in.Intern(types.MakePointer(elem, mut)), nil
	case '&':
		p.pos++
		region := types.RegionErased
		if p.accept("'") {
			name := p.ident()
			if name == "" {
				return types.NoTypeID, p.errorf("expected a region name")
			}
			region = p.c.region(name)
		}
		mut := p.keyword("mut")
		elem, err := p.typ()
		if err != nil {
			return types.NoTypeID, err
		}
		return in.Intern(types.MakeReference(elem, mut, region)), nil
	case '[':
		p.pos++
		elem, err := p.typ()
		if err != nil {
			return types.NoTypeID, err
		}
		if p.accept("]") {
			return in.Intern(types.MakeSlice(elem)), nil
		}
		if err := p.expect(";"); err != nil {
			return types.NoTypeID, err
		}
		n, err := p.count()
		if err != nil {
			return types.NoTypeID, err
		}
		if err := p.expect("]"); err != nil {
			return types.NoTypeID, err
		}
		return in.Intern(types.MakeArray(elem, n)), nil
	case '(':
		p.pos++
		if p.accept(")") {
			return in.Builtins().Unit, nil
		}
		var elems []types.TypeID
		trailing := false
		for {
			elem, err := p.typ()
			if err != nil {
				return types.NoTypeID, err
			}
			elems = append(elems, elem)
			if !p.accept(",") {
				trailing = false
				break
			}
			trailing = true
			if p.peek() == ')' {
				break
			}
		}
		if err := p.expect(")"); err != nil {
			return types.NoTypeID, err
		}
		if len(elems) == 1 && !trailing {
			return elems[0], nil
		}
		return in.RegisterTuple(elems), nil
	case '!':
		p.pos++
		return in.Builtins().Never, nil
	}

	start := p.pos
	name := p.ident()
	if name == "" {
		return types.NoTypeID, p.errorf("unexpected %q", p.src[p.pos:p.pos+1])
	}
	switch name {
	case "fn":
		return p.fnType()
	case "dyn":
		ex, err := p.existential()
		if err != nil {
			return types.NoTypeID, err
		}
		return in.MakeDyn(ex), nil
	case "v64", "v128":
		width := types.Width64
		if name == "v128" {
			width = types.Width128
		}
		elem := in.Builtins().Uint8
		if p.accept("<") {
			var err error
			if elem, err = p.typ(); err != nil {
				return types.NoTypeID, err
			}
			if err := p.expect(">"); err != nil {
				return types.NoTypeID, err
			}
		}
		return in.Intern(types.MakeVector(elem, width)), nil
	}
	if name == "Self" {
		return in.RegisterTypeParam(name, 0), nil
	}
	if id, ok := p.c.primitive(name); ok {
		return id, nil
	}
	if idx, ok := genericIndex(name); ok {
		return in.RegisterTypeParam(name, idx), nil
	}
	base, ok := p.c.structs[name]
	if !ok {
		p.pos = start
		return types.NoTypeID, p.unknown("type", name)
	}
	if p.peek() != '<' {
		return base, nil
	}
	args, err := p.typeArgs()
	if err != nil {
		return types.NoTypeID, err
	}
	return in.InstantiateStruct(base, args), nil
}

func (p *exprParser) fnType() (types.TypeID, error) {
	in := p.c.Types
	if err := p.expect("("); err != nil {
		return types.NoTypeID, err
	}
	var params []types.TypeID
	if !p.accept(")") {
		for {
			param, err := p.typ()
			if err != nil {
				return types.NoTypeID, err
			}
			params = append(params, param)
			if !p.accept(",") {
				break
			}
		}
		if err := p.expect(")"); err != nil {
			return types.NoTypeID, err
		}
	}
	result := in.Builtins().Unit
	if p.accept("->") {
		var err error
		if result, err = p.typ(); err != nil {
			return types.NoTypeID, err
		}
	}
	return in.RegisterFn(params, result), nil
}

func (p *exprParser) existential() (types.ExistentialID, error) {
	start := p.pos
	name := p.ident()
	if name == "" {
		return types.NoExistential, p.errorf("expected an interface name")
	}
	iface, ok := p.c.interfaces[name]
	if !ok {
		p.pos = start
		return types.NoExistential, p.unknown("interface", name)
	}
	var args []types.TypeID
	if p.peek() == '<' {
		var err error
		if args, err = p.typeArgs(); err != nil {
			return types.NoExistential, err
		}
	}
	info, _ := p.c.Types.InterfaceInfo(iface)
	if len(args) != int(info.Params) {
		return types.NoExistential, p.errorf("interface %s takes %d arguments, got %d", name, info.Params, len(args))
	}
	return p.c.Types.InternExistential(types.ExistentialRef{Interface: iface, Args: args}), nil
}

func (p *exprParser) typeArgs() ([]types.TypeID, error) {
	if err := p.expect("<"); err != nil {
		return nil, err
	}
	var args []types.TypeID
	for {
		arg, err := p.typ()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if !p.accept(",") {
			break
		}
	}
	if err := p.expect(">"); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *exprParser) count() (uint32, error) {
	p.space()
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	if start == p.pos {
		return 0, p.errorf("expected an array length")
	}
	n, err := strconv.ParseUint(p.src[start:p.pos], 10, 64)
	if err != nil {
		return 0, p.errorf("bad array length: %v", err)
	}
	count, err := safecast.Conv[uint32](n)
	if err != nil {
		return 0, p.errorf("array length %d is too large", n)
	}
	return count, nil
}

// genericIndex recognizes T0, T1, ...; T0 is Self in method bodies.
func genericIndex(name string) (uint32, bool) {
	if len(name) < 2 || name[0] != 'T' {
		return 0, false
	}
	n, err := strconv.ParseUint(name[1:], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}
