package automation

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var placeholderRe = regexp.MustCompile(`\{([^{}]+)\}`)

// FormatMessage substitutes placeholders in template.
//
// Named placeholders present in vars are replaced literally; placeholders
// with no matching variable are left verbatim. Built-ins: {random:A-B} draws
// a fresh integer in [A,B], {timestamp}/{date}/{time} render the current
// wall clock, {math:EXPR} evaluates EXPR over digits, parentheses,
// whitespace and + - * / (evaluation failure leaves the placeholder
// untouched). Each placeholder is resolved exactly once against the original
// template, so substituted text is never re-expanded.
func FormatMessage(template string, vars map[string]any) string {
	now := time.Now()

	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		key := match[1 : len(match)-1]

		if v, ok := vars[key]; ok {
			return fmt.Sprint(v)
		}

		switch {
		case key == "timestamp":
			return now.Format(time.RFC3339)
		case key == "date":
			return now.Format("2006-01-02")
		case key == "time":
			return now.Format("15:04:05")
		case strings.HasPrefix(key, "random:"):
			if out, ok := randomPlaceholder(key[len("random:"):]); ok {
				return out
			}
		case strings.HasPrefix(key, "math:"):
			if out, ok := mathPlaceholder(key[len("math:"):]); ok {
				return out
			}
		}

		return match
	})
}

func randomPlaceholder(spec string) (string, bool) {
	lo, hi, ok := strings.Cut(spec, "-")
	if !ok {
		return "", false
	}
	min, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return "", false
	}
	max, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil || max < min {
		return "", false
	}
	return strconv.Itoa(min + rand.IntN(max-min+1)), true
}

func mathPlaceholder(expr string) (string, bool) {
	for _, r := range expr {
		switch {
		case r >= '0' && r <= '9':
		case r == '(' || r == ')':
		case r == '+' || r == '-' || r == '*' || r == '/':
		case r == ' ' || r == '\t':
		default:
			return "", false
		}
	}

	p := &mathParser{input: strings.ReplaceAll(strings.ReplaceAll(expr, " ", ""), "\t", "")}
	result, err := p.parseExpr()
	if err != nil || p.pos != len(p.input) {
		return "", false
	}

	return strconv.FormatFloat(result, 'f', -1, 64), true
}

// mathParser is a tiny recursive-descent evaluator for + - * / with the
// usual precedence.
type mathParser struct {
	input string
	pos   int
}

func (p *mathParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for p.pos < len(p.input) {
		op := p.input[p.pos]
		if op != '+' && op != '-' {
			break
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			left += right
		} else {
			left -= right
		}
	}
	return left, nil
}

func (p *mathParser) parseTerm() (float64, error) {
	left, err := p.parseFactor()
	if err != nil {
		return 0, err
	}
	for p.pos < len(p.input) {
		op := p.input[p.pos]
		if op != '*' && op != '/' {
			break
		}
		p.pos++
		right, err := p.parseFactor()
		if err != nil {
			return 0, err
		}
		if op == '*' {
			left *= right
		} else {
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		}
	}
	return left, nil
}

func (p *mathParser) parseFactor() (float64, error) {
	if p.pos >= len(p.input) {
		return 0, fmt.Errorf("unexpected end of expression")
	}

	if p.input[p.pos] == '-' {
		p.pos++
		v, err := p.parseFactor()
		return -v, err
	}

	if p.input[p.pos] == '(' {
		p.pos++
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if p.pos >= len(p.input) || p.input[p.pos] != ')' {
			return 0, fmt.Errorf("unbalanced parentheses")
		}
		p.pos++
		return v, nil
	}

	start := p.pos
	for p.pos < len(p.input) && p.input[p.pos] >= '0' && p.input[p.pos] <= '9' {
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("expected number at position %d", start)
	}
	return strconv.ParseFloat(p.input[start:p.pos], 64)
}
