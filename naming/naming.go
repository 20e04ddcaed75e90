// Package naming derives stable on-the-wire event and consumer names from
// Go type names. The pipeline is pure: the same (type, configuration,
// overrides) always produces the same string, with no dependency on
// reflection beyond reading a type's Name/PkgPath.
package naming

import (
	"reflect"
	"strings"
	"unicode"
)

// Convention selects the separator joining tokens in a derived name.
type Convention int

const (
	KebabCase Convention = iota
	SnakeCase
	DotCase
)

func (c Convention) separator() string {
	switch c {
	case SnakeCase:
		return "_"
	case DotCase:
		return "."
	default:
		return "-"
	}
}

// ConsumerNameSource controls how a consumer's own type name combines with
// the configured prefix.
type ConsumerNameSource int

const (
	// ConsumerTypeName uses only the consumer's derived type token.
	ConsumerTypeName ConsumerNameSource = iota
	// ConsumerPrefix uses only the configured prefix.
	ConsumerPrefix
	// ConsumerPrefixAndTypeName joins prefix and type token.
	ConsumerPrefixAndTypeName
)

// Config is the naming configuration a Freeze pass applies to every
// registration; it never varies per-call.
type Config struct {
	Scope              string
	Convention         Convention
	UseFullTypeNames   bool
	ConsumerNameSource ConsumerNameSource
	ConsumerNamePrefix string
	SuffixConsumerName bool
}

// EventName derives the wire name for an event type. override, when
// non-empty, replaces the type-derived token; it is lower-cased but not
// re-tokenized, keeps its own '-', '_' and '.' characters under every
// convention, and has any other invalid character replaced with sep.
func EventName(t reflect.Type, cfg Config, override string) string {
	sep := cfg.Convention.separator()

	var token string
	if override != "" {
		token = sanitizeOverride(override, sep)
	} else {
		token = joinTokens(tokenize(typeNameToken(t, cfg.UseFullTypeNames)), sep)
	}

	if cfg.Scope != "" {
		return joinWithSeparator(sep, sanitize(cfg.Scope, sep), token)
	}
	return token
}

// ConsumerName derives the wire name for a consumer bound to eventName.
func ConsumerName(consumerType reflect.Type, eventName string, cfg Config, override string) string {
	sep := cfg.Convention.separator()

	var base string
	if override != "" {
		base = sanitize(override, sep)
	} else {
		typeToken := joinTokens(tokenize(typeNameToken(consumerType, cfg.UseFullTypeNames)), sep)
		prefix := sanitize(cfg.ConsumerNamePrefix, sep)

		switch cfg.ConsumerNameSource {
		case ConsumerPrefix:
			base = prefix
		case ConsumerPrefixAndTypeName:
			base = joinWithSeparator(sep, prefix, typeToken)
		default:
			base = typeToken
		}
	}

	if cfg.SuffixConsumerName && eventName != "" {
		base = joinWithSeparator(sep, base, eventName)
	}

	return base
}

// typeNameToken returns the raw token a type contributes before tokenizing:
// the simple name, or PkgPath+"."+Name when full type names are requested.
// Go generic instantiations render their name as "Type[Args]"; the bracket
// suffix is stripped so generic arity never leaks into a wire name.
func typeNameToken(t reflect.Type, full bool) string {
	name := t.Name()
	if idx := strings.IndexByte(name, '['); idx >= 0 {
		name = name[:idx]
	}

	if !full {
		return name
	}

	pkg := t.PkgPath()
	if pkg == "" {
		return name
	}

	// Use only the last path segment of the package so the token stays a
	// reasonable length while still disambiguating same-named types.
	if idx := strings.LastIndexByte(pkg, '/'); idx >= 0 {
		pkg = pkg[idx+1:]
	}
	return pkg + "." + name
}

// tokenize splits a type-name token into words on case boundaries and
// non-alphanumeric separators (including the '.' a full type name carries).
func tokenize(s string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	runes := []rune(s)
	for i, r := range runes {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r) && i > 0 && current.Len() > 0:
			prev := runes[i-1]
			next := rune(0)
			if i+1 < len(runes) {
				next = runes[i+1]
			}
			// Boundary before an uppercase letter when the previous rune
			// was lowercase/digit (fooBar -> foo, Bar), or when it starts
			// a new word ahead of a following lowercase (HTTPServer ->
			// HTTP, Server).
			if unicode.IsLower(prev) || unicode.IsDigit(prev) {
				flush()
			} else if unicode.IsUpper(prev) && unicode.IsLower(next) {
				flush()
			}
			current.WriteRune(unicode.ToLower(r))
		default:
			current.WriteRune(unicode.ToLower(r))
		}
	}
	flush()

	return tokens
}

func joinTokens(tokens []string, sep string) string {
	return strings.Join(tokens, sep)
}

func joinWithSeparator(sep string, parts ...string) string {
	nonEmpty := parts[:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, sep)
}

// sanitize lower-cases s and replaces any character outside [a-z0-9] and
// sep with sep, then collapses repeats of sep.
func sanitize(s, sep string) string {
	lower := strings.ToLower(s)
	var b strings.Builder
	sepRune := []rune(sep)[0]

	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune(sepRune)
		}
	}

	collapsed := collapseRepeats(b.String(), sepRune)
	return strings.Trim(collapsed, sep)
}

// sanitizeOverride lower-cases an explicit name override and keeps [a-z0-9]
// plus '-', '_' and '.' as written, so the override reads the same under
// every convention. Any other character is replaced with sep, repeats of
// sep are collapsed, and leading/trailing separators are trimmed.
func sanitizeOverride(s, sep string) string {
	var b strings.Builder
	sepRune := []rune(sep)[0]
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
		} else {
			b.WriteRune(sepRune)
		}
	}
	return strings.Trim(collapseRepeats(b.String(), sepRune), "-_.")
}

func collapseRepeats(s string, sepRune rune) string {
	var b strings.Builder
	var lastWasSep bool
	for _, r := range s {
		if r == sepRune {
			if lastWasSep {
				continue
			}
			lastWasSep = true
		} else {
			lastWasSep = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
