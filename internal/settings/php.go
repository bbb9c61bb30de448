package settings

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// The PHP reader understands the subset of PHP that settings files are made
// of: literal assignments and extension/skin loading. Nothing is evaluated.

var (
	assignmentPattern   = regexp.MustCompile(`(?s)^\$([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(.*)$`)
	loaderCallPattern   = regexp.MustCompile(`(?is)^(wfLoadExtensions?|wfLoadSkins?)\s*\((.*)\)$`)
	floatLiteralPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)
)

func decodePHP(data []byte, cfg *TenantConfig) error {
	statements, err := splitPHPStatements(string(data))
	if err != nil {
		return err
	}

	for _, stmt := range statements {
		if !stmt.block && (applyAssignment(stmt.text, cfg) || applyLoaderCall(stmt.text, cfg)) {
			continue
		}
		cfg.Unparsed = append(cfg.Unparsed, stmt.text)
	}
	return nil
}

func applyAssignment(stmt string, cfg *TenantConfig) bool {
	m := assignmentPattern.FindStringSubmatch(stmt)
	if m == nil || strings.HasPrefix(m[2], "=") {
		return false
	}
	value, ok := parsePHPLiteral(m[2])
	if !ok {
		return false
	}
	cfg.Settings[m[1]] = value
	return true
}

func applyLoaderCall(stmt string, cfg *TenantConfig) bool {
	m := loaderCallPattern.FindStringSubmatch(stmt)
	if m == nil {
		return false
	}
	fn := strings.ToLower(m[1])
	args := splitTopLevel(m[2], ',')
	if len(args) == 0 {
		return false
	}

	var names []string
	arg, ok := parsePHPLiteral(args[0])
	if !ok {
		return false
	}
	switch val := arg.(type) {
	case string:
		names = []string{val}
	case []any:
		for _, item := range val {
			name, ok := item.(string)
			if !ok {
				return false
			}
			names = append(names, name)
		}
	default:
		return false
	}

	if strings.HasPrefix(fn, "wfloadskin") {
		cfg.Skins = append(cfg.Skins, names...)
	} else {
		cfg.Extensions = append(cfg.Extensions, names...)
	}
	return true
}

// phpStatement is one top-level statement. Block statements (control
// structures, closures) are kept whole and never applied.
type phpStatement struct {
	text  string
	block bool
}

var (
	altSyntaxOpen     = regexp.MustCompile(`(?is)^(if|foreach|for|while|switch|declare)\s*\(.*\)$`)
	altSyntaxContinue = regexp.MustCompile(`(?is)^(elseif\s*\(.*\)|else)$`)
	altSyntaxClose    = regexp.MustCompile(`(?i)^end(if|foreach|for|while|switch|declare)$`)
	blockContinuation = regexp.MustCompile(`(?i)^(else|elseif|catch|finally)\b`)
)

// splitPHPStatements strips open/close tags and comments and splits the
// source into top-level statements. Braced blocks and the colon form of
// control structures stay inside the statement that opened them, including
// trailing else, elseif, catch and finally clauses.
func splitPHPStatements(src string) ([]phpStatement, error) {
	src = strings.TrimPrefix(src, "\ufeff")

	var (
		statements []phpStatement
		current    strings.Builder
		clause     strings.Builder
		line       = 1
		braces     int
		altDepth   int
		block      bool
		closed     bool
	)
	write := func(s string) {
		current.WriteString(s)
		clause.WriteString(s)
	}
	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, phpStatement{text: stmt, block: block})
		}
		current.Reset()
		clause.Reset()
		block = false
	}
	// terminate handles a statement terminator, ';' or a closing tag.
	terminate := func() {
		switch {
		case braces > 0:
			write(";")
			clause.Reset()
		case altDepth > 0:
			if altSyntaxClose.MatchString(strings.TrimSpace(clause.String())) {
				altDepth--
			}
			write(";")
			clause.Reset()
			if altDepth == 0 {
				flush()
			}
		default:
			flush()
		}
	}

	for i := 0; i < len(src); {
		c := src[i]
		comment := c == '#' || strings.HasPrefix(src[i:], "//") || strings.HasPrefix(src[i:], "/*")
		if closed && !comment && c != ' ' && c != '\t' && c != '\r' && c != '\n' {
			closed = false
			if !blockContinuation.MatchString(src[i:]) {
				flush()
			}
		}

		switch {
		case strings.HasPrefix(src[i:], "<?php"):
			i += len("<?php")
		case strings.HasPrefix(src[i:], "?>"):
			terminate()
			i += len("?>")
		case c == '#' || strings.HasPrefix(src[i:], "//"):
			end := strings.IndexByte(src[i:], '\n')
			if end < 0 {
				i = len(src)
				continue
			}
			i += end
		case strings.HasPrefix(src[i:], "/*"):
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated comment starting on line %d", ErrMalformed, line)
			}
			text := src[i : i+2+end+2]
			line += strings.Count(text, "\n")
			i += len(text)
		case c == '\'' || c == '"':
			end, ok := scanQuoted(src, i)
			if !ok {
				return nil, fmt.Errorf("%w: unterminated string starting on line %d", ErrMalformed, line)
			}
			quoted := src[i:end]
			line += strings.Count(quoted, "\n")
			write(quoted)
			i = end
		case c == '{':
			braces++
			block = true
			write("{")
			clause.Reset()
			i++
		case c == '}':
			if braces == 0 {
				return nil, fmt.Errorf("%w: unexpected '}' on line %d", ErrMalformed, line)
			}
			braces--
			write("}")
			clause.Reset()
			closed = braces == 0 && altDepth == 0
			i++
		case c == ':' && strings.HasPrefix(src[i:], "::"):
			write("::")
			i += 2
		case c == ':' && braces == 0:
			head := strings.TrimSpace(clause.String())
			switch {
			case altSyntaxOpen.MatchString(head):
				altDepth++
				block = true
				write(":")
				clause.Reset()
			case altDepth > 0 && altSyntaxContinue.MatchString(head):
				write(":")
				clause.Reset()
			default:
				write(":")
			}
			i++
		case c == ';':
			terminate()
			i++
		default:
			if c == '\n' {
				line++
			}
			write(src[i : i+1])
			i++
		}
	}
	if braces > 0 || altDepth > 0 {
		return nil, fmt.Errorf("%w: unterminated block at end of file", ErrMalformed)
	}
	flush()

	return statements, nil
}

// scanQuoted returns the index just past the string literal starting at
// src[start].
func scanQuoted(src string, start int) (int, bool) {
	quote := src[start]
	for i := start + 1; i < len(src); i++ {
		switch src[i] {
		case '\\':
			i++
		case quote:
			return i + 1, true
		}
	}
	return 0, false
}

// splitTopLevel splits s on sep, ignoring separators inside string literals
// and brackets. A trailing empty element is dropped.
func splitTopLevel(s string, sep byte) []string {
	var (
		parts []string
		depth int
		start int
	)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\'' || c == '"':
			end, ok := scanQuoted(s, i)
			if !ok {
				return nil
			}
			i = end - 1
		case c == '(' || c == '[':
			depth++
		case c == ')' || c == ']':
			depth--
		case c == sep && depth == 0:
			parts = append(parts, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	if last := strings.TrimSpace(s[start:]); last != "" {
		parts = append(parts, last)
	}
	return parts
}

// indexTopLevel returns the index of the first top-level occurrence of token.
func indexTopLevel(s, token string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\'' || c == '"':
			end, ok := scanQuoted(s, i)
			if !ok {
				return -1
			}
			i = end - 1
		case c == '(' || c == '[':
			depth++
		case c == ')' || c == ']':
			depth--
		case depth == 0 && strings.HasPrefix(s[i:], token):
			return i
		}
	}
	return -1
}

func parsePHPLiteral(raw string) (any, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, false
	}

	switch s[0] {
	case '\'', '"':
		end, ok := scanQuoted(s, 0)
		if !ok || end != len(s) {
			return nil, false
		}
		if s[0] == '\'' {
			return unquoteSingle(s[1 : len(s)-1]), true
		}
		return unquoteDouble(s[1 : len(s)-1])
	case '[':
		if !strings.HasSuffix(s, "]") {
			return nil, false
		}
		return parsePHPArray(s[1 : len(s)-1])
	}

	lower := strings.ToLower(s)
	switch lower {
	case "true":
		return true, true
	case "false":
		return false, true
	case "null":
		return nil, true
	}
	if strings.HasPrefix(lower, "array") {
		inner := strings.TrimSpace(s[len("array"):])
		if strings.HasPrefix(inner, "(") && strings.HasSuffix(inner, ")") {
			return parsePHPArray(inner[1 : len(inner)-1])
		}
		return nil, false
	}

	if n, err := strconv.ParseInt(s, 0, 64); err == nil {
		return int(n), true
	}
	if floatLiteralPattern.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil && isFinite(f) {
			return f, true
		}
	}
	return nil, false
}

// isFinite rejects INF and NAN, which have no JSON representation.
func isFinite(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

func parsePHPArray(body string) (any, bool) {
	elements := splitTopLevel(body, ',')
	if strings.TrimSpace(body) != "" && elements == nil {
		return nil, false
	}
	if len(elements) == 0 {
		return []any{}, true
	}

	var (
		list  []any
		assoc map[string]any
	)
	for _, el := range elements {
		if el == "" {
			return nil, false
		}
		if idx := indexTopLevel(el, "=>"); idx >= 0 {
			if list != nil {
				return nil, false
			}
			key, ok := parsePHPLiteral(el[:idx])
			if !ok {
				return nil, false
			}
			value, ok := parsePHPLiteral(el[idx+2:])
			if !ok {
				return nil, false
			}
			if assoc == nil {
				assoc = make(map[string]any, len(elements))
			}
			switch k := key.(type) {
			case string:
				assoc[k] = value
			case int:
				assoc[strconv.Itoa(k)] = value
			default:
				return nil, false
			}
			continue
		}
		if assoc != nil {
			return nil, false
		}
		value, ok := parsePHPLiteral(el)
		if !ok {
			return nil, false
		}
		list = append(list, value)
	}

	if assoc != nil {
		return assoc, true
	}
	return list, true
}

func unquoteSingle(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && (s[i+1] == '\\' || s[i+1] == '\'') {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// unquoteDouble rejects strings with variable interpolation.
func unquoteDouble(s string) (any, bool) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '$' {
			return nil, false
		}
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\', '"', '$':
			b.WriteByte(s[i])
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String(), true
}
