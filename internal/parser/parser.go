package parser

import (
	"strconv"

	"il.dev/il/internal/generator"
	"il.dev/il/internal/ilmodel"
)

// Parser drives a *generator.Generator from a token stream. It is a thin
// shell: every semantic decision (redefinition, index validity, stack
// layout) lives in the generator; the parser only recognises grammar and
// turns source syntax into generator calls.
type Parser struct {
	toks []Token
	pos  int
	file string
	g    *generator.Generator
}

// New creates a parser over src, appending declarations into g. file is
// used only to stamp Cursor.File on errors.
func New(src []byte, file string, g *generator.Generator) (*Parser, error) {
	toks, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	return &Parser{toks: toks, file: file, g: g}, nil
}

func (p *Parser) cur() Token  { return p.toks[p.pos] }
func (p *Parser) at(k TokenKind) bool { return p.cur().Kind == k }

func (p *Parser) next() Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) cursor() generator.Cursor {
	return generator.Cursor{File: p.file, Line: p.cur().Line}
}

func (p *Parser) errorf(code ilmodel.Code, format string, args ...interface{}) error {
	return ilmodel.New(ilmodel.KindParser, code, &ilmodel.Meta{File: p.file, Line: p.cur().Line}, format, args...)
}

func (p *Parser) expect(k TokenKind) (Token, error) {
	if !p.at(k) {
		return Token{}, p.errorf(ilmodel.CodeUnexpectedExpression,
			"expected %s, found %s", tokenName(k), p.cur())
	}
	return p.next(), nil
}

// Parse consumes the whole token stream, driving top-level declarations:
// struct/union bodies, method bodies, and global/constant declarations.
func (p *Parser) Parse() error {
	for !p.at(TOKEN_EOF) {
		if err := p.parseTopLevel(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) parseTopLevel() error {
	switch p.cur().Kind {
	case TOKEN_STRUCT, TOKEN_UNION:
		return p.parseTypeDecl()
	case TOKEN_METHOD, TOKEN_EXTERNAL:
		return p.parseMethodDecl()
	case TOKEN_GLOBAL, TOKEN_CONSTANT:
		return p.parseGlobalDecl()
	default:
		return p.errorf(ilmodel.CodeUnexpectedExpression, "unexpected top-level token %s", p.cur())
	}
}

// parseTypeDecl parses `struct Name field:Type ... end` (union likewise).
func (p *Parser) parseTypeDecl() error {
	isUnion := p.at(TOKEN_UNION)
	p.next()

	nameTok, err := p.expect(TOKEN_IDENT)
	if err != nil {
		return err
	}
	idx, err := p.g.DeclareType(nameTok.Val, p.cursor())
	if err != nil {
		return err
	}
	w, err := p.g.DefineType(idx, isUnion, p.cursor())
	if err != nil {
		return err
	}
	for p.at(TOKEN_IDENT) {
		fieldName := p.next().Val
		if _, err := p.expect(TOKEN_COLON); err != nil {
			return err
		}
		fieldType, err := p.parseTypeRef()
		if err != nil {
			return err
		}
		if err := w.Field(fieldName, fieldType); err != nil {
			return err
		}
	}
	_, err = p.expect(TOKEN_END)
	return err
}

// parseTypeRef parses a (possibly pointer/array) type reference: a bare
// identifier, `*Type` for pointer-of, or `Type[n]` for array-of.
func (p *Parser) parseTypeRef() (ilmodel.TypeIndex, error) {
	if p.at(TOKEN_STAR) {
		p.next()
		base, err := p.parseTypeRef()
		if err != nil {
			return ilmodel.InvalidType, err
		}
		return p.g.DeclarePointerType(base), nil
	}
	nameTok, err := p.expect(TOKEN_IDENT)
	if err != nil {
		return ilmodel.InvalidType, err
	}
	base, err := p.g.DeclareType(nameTok.Val, p.cursor())
	if err != nil {
		return ilmodel.InvalidType, err
	}
	if p.at(TOKEN_LBRACK) {
		p.next()
		countTok, err := p.expect(TOKEN_INT)
		if err != nil {
			return ilmodel.InvalidType, err
		}
		count, convErr := strconv.ParseUint(countTok.Val, 0, 64)
		if convErr != nil {
			return ilmodel.InvalidType, p.errorf(ilmodel.CodeLiteralParseFailure, "invalid array count %q", countTok.Val)
		}
		if _, err := p.expect(TOKEN_RBRACK); err != nil {
			return ilmodel.InvalidType, err
		}
		return p.g.DeclareArrayType(base, count, p.cursor())
	}
	return base, nil
}

// parseMethodDecl parses `method Name parameters(T, T) returns T ... end`,
// or `external Name parameters(T) returns T`. An external declaration only
// declares the method: it gets no body, its parsed signature is not attached
// to it, and it is not flagged External.
func (p *Parser) parseMethodDecl() error {
	isExternal := p.at(TOKEN_EXTERNAL)
	p.next()
	if !isExternal {
		p.expectOptional(TOKEN_METHOD)
	}

	nameTok, err := p.expect(TOKEN_IDENT)
	if err != nil {
		return err
	}
	idx, err := p.g.DeclareMethod(nameTok.Val, p.cursor())
	if err != nil {
		return err
	}

	var params []ilmodel.TypeIndex
	if p.at(TOKEN_PARAMETERS) {
		p.next()
		if _, err := p.expect(TOKEN_LPAREN); err != nil {
			return err
		}
		for !p.at(TOKEN_RPAREN) {
			t, err := p.parseTypeRef()
			if err != nil {
				return err
			}
			params = append(params, t)
			if p.at(TOKEN_COMMA) {
				p.next()
			}
		}
		p.next() // RPAREN
	}

	ret := ilmodel.Void
	if p.at(TOKEN_RETURNS) {
		p.next()
		ret, err = p.parseTypeRef()
		if err != nil {
			return err
		}
	}
	sig, err := p.g.MakeSignature(ret, params)
	if err != nil {
		return err
	}

	if isExternal {
		return nil
	}

	mw, err := p.g.DefineMethod(idx, sig, p.cursor())
	if err != nil {
		return err
	}
	if err := p.parseMethodBody(mw); err != nil {
		return err
	}
	if err := mw.Finish(); err != nil {
		return err
	}
	_, err = p.expect(TOKEN_END)
	return err
}

func (p *Parser) expectOptional(k TokenKind) {
	if p.at(k) {
		p.next()
	}
}

// parseMethodBody parses the stack declaration followed by a flat sequence
// of opcode statements, terminated by `end`.
func (p *Parser) parseMethodBody(mw *generator.MethodWriter) error {
	if p.at(TOKEN_STACK) {
		p.next()
		if _, err := p.expect(TOKEN_LPAREN); err != nil {
			return err
		}
		var types []ilmodel.TypeIndex
		for !p.at(TOKEN_RPAREN) {
			t, err := p.parseTypeRef()
			if err != nil {
				return err
			}
			types = append(types, t)
			if p.at(TOKEN_COMMA) {
				p.next()
			}
		}
		p.next() // RPAREN
		mw.SetStack(types)
	}

	for !p.at(TOKEN_END) && !p.at(TOKEN_EOF) {
		if err := p.parseStatement(mw); err != nil {
			return err
		}
	}
	return nil
}

// parseStatement recognises one opcode mnemonic, a label declaration
// (`label:`), or label-write (`write name`).
func (p *Parser) parseStatement(mw *generator.MethodWriter) error {
	tok := p.cur()
	if tok.Kind != TOKEN_IDENT {
		return p.errorf(ilmodel.CodeUnexpectedExpression, "expected an opcode mnemonic, found %s", tok)
	}
	mnemonic := tok.Val
	p.next()

	if p.at(TOKEN_COLON) {
		p.next()
		return mw.WriteLabel(mnemonic)
	}

	switch mnemonic {
	case "noop":
		mw.NoOp()
	case "set":
		dst, src, err := p.parseTwoAddresses()
		if err != nil {
			return err
		}
		mw.Set(dst, src)
	case "conv":
		dst, src, err := p.parseTwoAddresses()
		if err != nil {
			return err
		}
		mw.Conv(dst, src)
	case "ari_add", "ari_sub", "ari_mul", "ari_div", "ari_mod":
		dst, src, err := p.parseTwoAddresses()
		if err != nil {
			return err
		}
		mw.Ari(ariOpcode(mnemonic), dst, src)
	case "padd", "psub", "pdif":
		a, b, err := p.parseTwoAddresses()
		if err != nil {
			return err
		}
		switch mnemonic {
		case "padd":
			mw.PAdd(a, b)
		case "psub":
			mw.PSub(a, b)
		default:
			mw.PDif(a, b)
		}
	case "cz", "cnz":
		dst, src, err := p.parseTwoAddresses()
		if err != nil {
			return err
		}
		if mnemonic == "cz" {
			mw.CUnary(ilmodel.OpCZ, dst, src)
		} else {
			mw.CUnary(ilmodel.OpCNz, dst, src)
		}
	case "cmp", "ceq", "cne", "clt", "cle", "cgt", "cge":
		dst, lhs, rhs, err := p.parseThreeAddresses()
		if err != nil {
			return err
		}
		mw.Cmp(cmpOpcode(mnemonic), dst, lhs, rhs)
	case "br":
		label, err := p.parseLabelRef()
		if err != nil {
			return err
		}
		mw.Branch(ilmodel.OpBr, ilmodel.Address{}, ilmodel.Address{}, label)
	case "beq", "bne", "blt", "ble", "bgt", "bge":
		lhs, rhs, err := p.parseTwoAddresses()
		if err != nil {
			return err
		}
		label, err := p.parseLabelRef()
		if err != nil {
			return err
		}
		mw.Branch(branchOpcode(mnemonic), lhs, rhs, label)
	case "bz", "bnz":
		src, err := p.parseAddress()
		if err != nil {
			return err
		}
		label, err := p.parseLabelRef()
		if err != nil {
			return err
		}
		op := ilmodel.OpBZ
		if mnemonic == "bnz" {
			op = ilmodel.OpBNz
		}
		mw.Branch(op, src, ilmodel.Address{}, label)
	case "ret":
		mw.Ret()
	case "retv":
		src, err := p.parseAddress()
		if err != nil {
			return err
		}
		mw.RetV(src)
	case "dump":
		src, err := p.parseAddress()
		if err != nil {
			return err
		}
		mw.Dump(src)
	default:
		return p.errorf(ilmodel.CodeUnexpectedExpression, "unknown opcode mnemonic %q", mnemonic)
	}
	return nil
}

func ariOpcode(mnemonic string) ilmodel.Opcode {
	switch mnemonic {
	case "ari_add":
		return ilmodel.OpAriAdd
	case "ari_sub":
		return ilmodel.OpAriSub
	case "ari_mul":
		return ilmodel.OpAriMul
	case "ari_div":
		return ilmodel.OpAriDiv
	default:
		return ilmodel.OpAriMod
	}
}

func cmpOpcode(mnemonic string) ilmodel.Opcode {
	switch mnemonic {
	case "cmp":
		return ilmodel.OpCmp
	case "ceq":
		return ilmodel.OpCEq
	case "cne":
		return ilmodel.OpCNe
	case "clt":
		return ilmodel.OpCLt
	case "cle":
		return ilmodel.OpCLe
	case "cgt":
		return ilmodel.OpCGt
	default:
		return ilmodel.OpCGe
	}
}

func branchOpcode(mnemonic string) ilmodel.Opcode {
	switch mnemonic {
	case "beq":
		return ilmodel.OpBEq
	case "bne":
		return ilmodel.OpBNe
	case "blt":
		return ilmodel.OpBLt
	case "ble":
		return ilmodel.OpBLe
	case "bgt":
		return ilmodel.OpBGt
	default:
		return ilmodel.OpBGe
	}
}

func (p *Parser) parseLabelRef() (string, error) {
	tok, err := p.expect(TOKEN_IDENT)
	if err != nil {
		return "", err
	}
	return tok.Val, nil
}

func (p *Parser) parseTwoAddresses() (a, b ilmodel.Address, err error) {
	if a, err = p.parseAddress(); err != nil {
		return
	}
	if _, err = p.expect(TOKEN_COMMA); err != nil {
		return
	}
	b, err = p.parseAddress()
	return
}

func (p *Parser) parseThreeAddresses() (a, b, c ilmodel.Address, err error) {
	if a, err = p.parseAddress(); err != nil {
		return
	}
	if _, err = p.expect(TOKEN_COMMA); err != nil {
		return
	}
	if b, err = p.parseAddress(); err != nil {
		return
	}
	if _, err = p.expect(TOKEN_COMMA); err != nil {
		return
	}
	c, err = p.parseAddress()
	return
}

// parseAddress parses one address in source form: an optional prefix
// (`*`, `&`, `!`), a root (`{i}` stackvar, `{^}` return slot, `(i)`
// parameter, or a bare identifier for a global/constant), and an optional
// modifier (`.name`, `->name`, `[n]`).
func (p *Parser) parseAddress() (ilmodel.Address, error) {
	var prefix ilmodel.AddrPrefix
	switch p.cur().Kind {
	case TOKEN_STAR:
		prefix = ilmodel.PrefixIndirection
		p.next()
	case TOKEN_AMP:
		prefix = ilmodel.PrefixAddressOf
		p.next()
	case TOKEN_BANG:
		prefix = ilmodel.PrefixSizeOf
		p.next()
	}

	addr := ilmodel.Address{Prefix: prefix}

	switch p.cur().Kind {
	case TOKEN_LBRACE:
		p.next()
		if p.at(TOKEN_CARET) {
			p.next()
			addr.Type = ilmodel.AddrStackVar
			addr.Index = ilmodel.ReturnSlotIndex
		} else {
			idxTok, err := p.expect(TOKEN_INT)
			if err != nil {
				return ilmodel.Address{}, err
			}
			idx, convErr := strconv.ParseUint(idxTok.Val, 0, 32)
			if convErr != nil {
				return ilmodel.Address{}, p.errorf(ilmodel.CodeOverflowingIndex, "invalid stack index %q", idxTok.Val)
			}
			addr.Type = ilmodel.AddrStackVar
			addr.Index = uint32(idx)
		}
		if _, err := p.expect(TOKEN_RBRACE); err != nil {
			return ilmodel.Address{}, err
		}
	case TOKEN_LPAREN:
		p.next()
		idxTok, err := p.expect(TOKEN_INT)
		if err != nil {
			return ilmodel.Address{}, err
		}
		idx, convErr := strconv.ParseUint(idxTok.Val, 0, 32)
		if convErr != nil {
			return ilmodel.Address{}, p.errorf(ilmodel.CodeOverflowingIndex, "invalid parameter index %q", idxTok.Val)
		}
		addr.Type = ilmodel.AddrParameter
		addr.Index = uint32(idx)
		if _, err := p.expect(TOKEN_RPAREN); err != nil {
			return ilmodel.Address{}, err
		}
	case TOKEN_IDENT:
		nameTok := p.next()
		global, _, ok := p.g.GlobalByName(nameTok.Val)
		if !ok {
			return ilmodel.Address{}, p.errorf(ilmodel.CodeUnexpectedExpression,
				"%q does not name a previously declared global or constant", nameTok.Val)
		}
		addr.Type = ilmodel.AddrGlobal
		addr.Index = uint32(global)
	case TOKEN_INT, TOKEN_FLOAT:
		lit, err := ParseLiteral(p.next())
		if err != nil {
			return ilmodel.Address{}, err
		}
		addr.Type = ilmodel.AddrConstant
		addr.Index = uint32(lit.Type)
		addr.ConstantBytes = lit.Bytes()
	case TOKEN_NULL:
		p.next()
		addr.Type = ilmodel.AddrConstant
		addr.Index = uint32(ilmodel.VPtr)
		addr.ConstantBytes = make([]byte, 8)
	default:
		return ilmodel.Address{}, p.errorf(ilmodel.CodeUnexpectedExpression, "expected an address, found %s", p.cur())
	}

	switch p.cur().Kind {
	case TOKEN_DOT:
		p.next()
		field, err := p.expect(TOKEN_IDENT)
		if err != nil {
			return ilmodel.Address{}, err
		}
		addr.Modifier = ilmodel.ModifierDirectField
		// Root type is unresolved at parse time; the linker re-derives it
		// during field-offset resolution from the
		// address's owning stackvar/parameter/global type.
		addr.OffsetIdx = p.g.MakeOffset(ilmodel.InvalidType, []string{field.Val})
	case TOKEN_ARROW:
		p.next()
		field, err := p.expect(TOKEN_IDENT)
		if err != nil {
			return ilmodel.Address{}, err
		}
		addr.Modifier = ilmodel.ModifierIndirectField
		addr.OffsetIdx = p.g.MakeOffset(ilmodel.InvalidType, []string{field.Val})
	case TOKEN_LBRACK:
		p.next()
		subTok, err := p.expect(TOKEN_INT)
		if err != nil {
			return ilmodel.Address{}, err
		}
		n, convErr := strconv.ParseInt(subTok.Val, 0, 64)
		if convErr != nil {
			return ilmodel.Address{}, p.errorf(ilmodel.CodeOverflowingIndex, "invalid subscript %q", subTok.Val)
		}
		if _, err := p.expect(TOKEN_RBRACK); err != nil {
			return ilmodel.Address{}, err
		}
		addr.Modifier = ilmodel.ModifierSubscript
		addr.Subscript = n
	}

	return addr, nil
}

// parseGlobalDecl parses `global Name : Type init(...)` or `constant Name :
// Type init(...)`. The initializer is a flat sequence of literals; a `null`
// entry is permitted for signature-typed globals.
func (p *Parser) parseGlobalDecl() error {
	isConstant := p.at(TOKEN_CONSTANT)
	p.next()

	nameTok, err := p.expect(TOKEN_IDENT)
	if err != nil {
		return err
	}
	if _, err := p.expect(TOKEN_COLON); err != nil {
		return err
	}
	typ, err := p.parseTypeRef()
	if err != nil {
		return err
	}

	var init []byte
	if p.at(TOKEN_INIT) {
		p.next()
		if _, err := p.expect(TOKEN_LPAREN); err != nil {
			return err
		}
		for !p.at(TOKEN_RPAREN) {
			if p.at(TOKEN_NULL) {
				p.next()
				init = append(init, make([]byte, 8)...)
			} else {
				lit, err := ParseLiteral(p.next())
				if err != nil {
					return err
				}
				data := lit.Bytes()
				if ilmodel.IsBase(typ) {
					if resized, ok := lit.ResizeTo(typ); ok {
						data = resized
					}
				}
				init = append(init, data...)
			}
			if p.at(TOKEN_COMMA) {
				p.next()
			}
		}
		p.next() // RPAREN
	}

	_, err = p.g.DefineGlobal(nameTok.Val, isConstant, typ, init, p.cursor())
	return err
}
