// Package policy implements partial-encryption policy matching: the
// per-document config that escapes some leaves from encryption by
// suffix or regex, and the resolver that walks the tree deciding, key
// by key, whether a given subtree has been matched yet.
//
// The resolver is a small state machine rather than a validator, but
// its sentinel-error-and-plain-function shape follows the teacher
// module's pkg/acl/validate.go: exported errors for the illegal states,
// a handful of pure functions operating on a value type, no hidden
// mutable state.
package policy

import (
	"errors"
	"regexp"
)

// ErrNoPolicy is not a failure; it names the "no config was supplied"
// case, as distinct from a config that failed to compile. Config
// construction never returns it, and no package in this module does.
var ErrNoPolicy = errors.New("policy: no partial-encryption policy configured")

// ErrInvalidRegex is returned when a *Regex variant is built from a
// pattern that does not compile.
var ErrInvalidRegex = errors.New("policy: invalid regular expression")

// Kind identifies which partial-encryption variant a Config holds.
type Kind int

const (
	// KindNone means "encrypt everything" (absence of a policy).
	KindNone Kind = iota
	KindEncryptedSuffix
	KindEncryptedRegex
	KindUnencryptedSuffix
	KindUnencryptedRegex
)

// Config is the partial-encryption policy attached to a file's
// metadata: one of EncryptedSuffix, EncryptedRegex, UnencryptedSuffix,
// UnencryptedRegex, or the zero value meaning "encrypt everything".
type Config struct {
	kind    Kind
	pattern string
	re      *regexp.Regexp
}

// None is the absent policy: every leaf is encrypted.
func None() Config { return Config{kind: KindNone} }

// EncryptedSuffix builds a policy that encrypts only keys matching the
// given suffix; every other key escapes encryption.
func EncryptedSuffix(suffix string) Config {
	return Config{kind: KindEncryptedSuffix, pattern: suffix}
}

// UnencryptedSuffix builds a policy that escapes keys matching the
// given suffix from encryption; every other key is encrypted.
func UnencryptedSuffix(suffix string) Config {
	return Config{kind: KindUnencryptedSuffix, pattern: suffix}
}

// EncryptedRegex builds a policy that encrypts only keys matching the
// given regular expression; every other key escapes encryption.
func EncryptedRegex(pattern string) (Config, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Config{}, errWrap(pattern, err)
	}
	return Config{kind: KindEncryptedRegex, pattern: pattern, re: re}, nil
}

// UnencryptedRegex builds a policy that escapes keys matching the given
// regular expression from encryption; every other key is encrypted.
func UnencryptedRegex(pattern string) (Config, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Config{}, errWrap(pattern, err)
	}
	return Config{kind: KindUnencryptedRegex, pattern: pattern, re: re}, nil
}

func errWrap(pattern string, err error) error {
	return &regexError{pattern: pattern, err: err}
}

type regexError struct {
	pattern string
	err     error
}

func (e *regexError) Error() string {
	return "policy: invalid regular expression " + e.pattern + ": " + e.err.Error()
}

func (e *regexError) Unwrap() error { return ErrInvalidRegex }

// Kind reports which variant this Config holds.
func (c Config) Kind() Kind { return c.kind }

// Pattern returns the suffix or regex source text the config was built
// from; meaningless for KindNone.
func (c Config) Pattern() string { return c.pattern }

// matches reports whether the given map key matches this config's
// suffix or regex.
func (c Config) matches(key string) bool {
	switch c.kind {
	case KindEncryptedSuffix, KindUnencryptedSuffix:
		return len(key) >= len(c.pattern) && key[len(key)-len(c.pattern):] == c.pattern
	case KindEncryptedRegex, KindUnencryptedRegex:
		return c.re.MatchString(key)
	default:
		return false
	}
}

// escapesOnMatch reports whether a match of this config's pattern
// means "escape from encryption" (true) or "encrypt" (false, i.e. a
// miss is what escapes).
func (c Config) escapesOnMatch() bool {
	switch c.kind {
	case KindUnencryptedSuffix, KindUnencryptedRegex:
		return true
	default:
		return false
	}
}

// escapesByDefault reports what an as-yet-undecided leaf under this
// config resolves to. Encrypted* configs only encrypt a subtree once
// its key matches, so an unmatched leaf escapes by default.
// Unencrypted* configs only escape a subtree once its key matches, so
// an unmatched leaf is encrypted by default.
func (c Config) escapesByDefault() bool {
	switch c.kind {
	case KindEncryptedSuffix, KindEncryptedRegex:
		return true
	default:
		return false
	}
}

// Resolved is the per-subtree state of partial-encryption resolution
// during a tree traversal: either still undecided (No, carrying the
// config to keep testing), or decided (Yes, carrying whether the
// subtree escapes encryption). Once Yes, a Resolved value is inherited
// unchanged through the rest of the subtree — resolution is monotonic.
type Resolved struct {
	decided bool
	escape  bool
	cfg     Config
}

// NewResolved derives the initial Resolved state from a file's
// partial-encryption config. A Config with KindNone resolves
// immediately to Yes(escape=false): encrypt everything.
func NewResolved(cfg Config) Resolved {
	if cfg.kind == KindNone {
		return Resolved{decided: true, escape: false}
	}
	return Resolved{decided: false, cfg: cfg}
}

// Decided reports whether this subtree's encryption fate is settled.
func (r Resolved) Decided() bool { return r.decided }

// EscapeEncryption reports whether this leaf escapes encryption. Valid
// whether or not resolution is Decided: an undecided state still has a
// well-defined default until a match decides (Unencrypted* configs
// default to "encrypt", Encrypted* configs default to "escape").
func (r Resolved) EscapeEncryption() bool {
	if r.decided {
		return r.escape
	}
	return r.cfg.escapesByDefault()
}

// Step advances resolution at a single map key. If already decided,
// the same state is returned unchanged (monotonicity: once Yes, always
// Yes for the rest of the subtree). If undecided, the key is tested
// against the config; a decision is made or the undecided state is
// carried forward unchanged for the next step.
func (r Resolved) Step(key string) Resolved {
	if r.decided {
		return r
	}
	if r.cfg.matches(key) {
		return Resolved{decided: true, escape: r.cfg.escapesOnMatch()}
	}
	return r
}
