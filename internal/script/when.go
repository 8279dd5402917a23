package script

import (
	"strings"

	"github.com/loykin/orchestrator/internal/orcherr"
	"github.com/loykin/orchestrator/internal/vars"
)

// stripWhenBraces removes a single layer of "{{ }}" around a when: field,
// mirroring the way every when: in the wild is authored ("{{platform ===
// 'linux'}}") while still tolerating a bare boolean-grammar string with no
// braces at all.
func stripWhenBraces(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{{") && strings.HasSuffix(s, "}}") {
		s = strings.TrimSpace(s[2 : len(s)-2])
	}
	return s
}

// evalWhen parses and evaluates a `when:` expression against ctx. Unlike
// every other string parameter, a when: field is not run through Variable
// Resolution as a whole — the braces are stripped and each bare identifier
// atom inside the boolean grammar (platform, gpu, args.X, …) is resolved
// individually as the expression is walked, the way the original engine's
// evaluate_condition substitutes eval_ctx names directly into the
// JS-like condition rather than doing whole-string template substitution.
//
// Grammar (lowest to highest precedence): `||`, `&&`, unary `!`,
// parenthesization, and atoms: `true`, `false`, a quoted string literal,
// a bare identifier resolved against ctx, or `A === B` / `A !== B`
// comparisons between atoms.
func evalWhen(expr string, ctx *vars.Context) (bool, error) {
	p := &whenParser{input: expr, ctx: ctx}
	v, err := p.parseOr()
	if err != nil {
		return false, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return false, orcherr.New(orcherr.KindScriptParse, "unexpected trailing input in when: expression").WithDetail(expr)
	}
	return v, nil
}

type whenParser struct {
	input string
	pos   int
	ctx   *vars.Context
}

func (p *whenParser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func (p *whenParser) peekOp(op string) bool {
	p.skipSpace()
	return strings.HasPrefix(p.input[p.pos:], op)
}

func (p *whenParser) consumeOp(op string) {
	p.skipSpace()
	p.pos += len(op)
}

func (p *whenParser) parseOr() (bool, error) {
	left, err := p.parseAnd()
	if err != nil {
		return false, err
	}
	for p.peekOp("||") {
		p.consumeOp("||")
		right, err := p.parseAnd()
		if err != nil {
			return false, err
		}
		left = left || right
	}
	return left, nil
}

func (p *whenParser) parseAnd() (bool, error) {
	left, err := p.parseUnary()
	if err != nil {
		return false, err
	}
	for p.peekOp("&&") {
		p.consumeOp("&&")
		right, err := p.parseUnary()
		if err != nil {
			return false, err
		}
		left = left && right
	}
	return left, nil
}

func (p *whenParser) parseUnary() (bool, error) {
	p.skipSpace()
	if p.pos < len(p.input) && p.input[p.pos] == '!' && !p.peekOp("!==") {
		p.pos++
		v, err := p.parseUnary()
		if err != nil {
			return false, err
		}
		return !v, nil
	}
	return p.parseComparisonOrGroup()
}

func (p *whenParser) parseComparisonOrGroup() (bool, error) {
	p.skipSpace()
	if p.pos < len(p.input) && p.input[p.pos] == '(' {
		p.pos++
		v, err := p.parseOr()
		if err != nil {
			return false, err
		}
		p.skipSpace()
		if p.pos >= len(p.input) || p.input[p.pos] != ')' {
			return false, orcherr.New(orcherr.KindScriptParse, "unbalanced parenthesis in when: expression")
		}
		p.pos++
		return v, nil
	}

	left, err := p.parseAtom()
	if err != nil {
		return false, err
	}
	if p.peekOp("===") {
		p.consumeOp("===")
		right, err := p.parseAtom()
		if err != nil {
			return false, err
		}
		return left == right, nil
	}
	if p.peekOp("!==") {
		p.consumeOp("!==")
		right, err := p.parseAtom()
		if err != nil {
			return false, err
		}
		return left != right, nil
	}
	return left == "true", nil
}

// parseAtom consumes a quoted string literal, `true`/`false`, or a bare
// identifier and returns its resolved literal text (quotes stripped for
// string literals; bare identifiers are resolved against p.ctx the same
// way any other {{...}} reference would be, unbound-lenient since when:
// is the one documented exception to resolution totality).
func (p *whenParser) parseAtom() (string, error) {
	p.skipSpace()
	if p.pos < len(p.input) && (p.input[p.pos] == '\'' || p.input[p.pos] == '"') {
		quote := p.input[p.pos]
		start := p.pos + 1
		end := strings.IndexByte(p.input[start:], quote)
		if end < 0 {
			p.pos = len(p.input)
			return p.input[start:], nil
		}
		p.pos = start + end + 1
		return p.input[start : start+end], nil
	}
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c == ' ' || c == '\t' || c == ')' || c == '(' {
			break
		}
		if strings.HasPrefix(p.input[p.pos:], "===") || strings.HasPrefix(p.input[p.pos:], "!==") ||
			strings.HasPrefix(p.input[p.pos:], "&&") || strings.HasPrefix(p.input[p.pos:], "||") {
			break
		}
		p.pos++
	}
	tok := p.input[start:p.pos]
	if tok == "true" || tok == "false" {
		return tok, nil
	}
	if p.ctx == nil {
		return "false", nil
	}
	resolved, err := vars.Resolve("{{"+tok+"}}", p.ctx, true)
	if err != nil {
		return "", err
	}
	return resolved, nil
}
