package auth

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Delimiter separates serialized token fields
const Delimiter = "~"

// timeLayout renders instants in UTC with millisecond precision
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders t as an ISO-8601 UTC timestamp with millisecond precision
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// ParseTime parses a timestamp produced by FormatTime (any RFC 3339 value is accepted)
func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// MaxExpiresIn is the longest lifetime, in seconds, a time.Duration can represent.
// Longer lifetimes are clamped to it.
const MaxExpiresIn = math.MaxInt64 / int64(time.Second)

// lifetime converts an expiry in seconds to a Duration without overflowing
func lifetime(expiresIn int64) time.Duration {
	return time.Duration(min(expiresIn, MaxExpiresIn)) * time.Second
}

// Token is a time-bounded claim. It is valid at instant T iff T < Issued + ExpiresIn.
type Token[C any] struct {
	Claims    C
	Issued    time.Time
	ExpiresIn int64 // seconds; zero or negative produces an already expired token
}

// NewToken creates a token issued at the given instant
func NewToken[C any](claims C, issued time.Time, expiresIn int64) Token[C] {
	return Token[C]{Claims: claims, Issued: issued.UTC(), ExpiresIn: min(expiresIn, MaxExpiresIn)}
}

// ExpiresAt returns the first instant at which the token is no longer valid
func (t Token[C]) ExpiresAt() time.Time {
	return t.Issued.Add(lifetime(t.ExpiresIn))
}

// OnTime reports whether the token is still valid at when
func (t Token[C]) OnTime(when time.Time) bool {
	return when.Before(t.ExpiresAt())
}

// ClaimsCodec projects a claim set onto an ordered list of string fields and back.
// Each authorization context supplies its own codec.
type ClaimsCodec[C any] interface {
	// Fields returns the claim values in canonical order
	Fields(claims C) []string
	// Parse rebuilds claims from exactly Arity() fields
	Parse(fields []string) (C, bool)
	// Arity is the number of claim fields
	Arity() int
}

// SerializeFields joins fields with Delimiter and encrypts the result
func SerializeFields(c *Cipher, fields []string) (string, error) {
	for i, f := range fields {
		if strings.Contains(f, Delimiter) {
			return "", fmt.Errorf("%w: field %d", ErrDelimiterInField, i)
		}
	}
	return c.Encrypt(strings.Join(fields, Delimiter)), nil
}

// DeserializeFields decrypts input and splits it into exactly arity fields
func DeserializeFields(c *Cipher, input string, arity int) ([]string, bool) {
	decoded, ok := c.Decrypt(input)
	if !ok {
		return nil, false
	}
	fields := strings.Split(decoded, Delimiter)
	if len(fields) != arity {
		return nil, false
	}
	return fields, true
}

// Processor serializes tokens of one claim type. Claim fields come first,
// followed by the issued timestamp and the expiry in seconds.
type Processor[C any] struct {
	cipher *Cipher
	codec  ClaimsCodec[C]
}

// NewProcessor creates a processor for the given claim codec
func NewProcessor[C any](c *Cipher, codec ClaimsCodec[C]) *Processor[C] {
	return &Processor[C]{cipher: c, codec: codec}
}

// Serialize encrypts the token into an opaque string
func (p *Processor[C]) Serialize(t Token[C]) (string, error) {
	fields := append(p.codec.Fields(t.Claims),
		FormatTime(t.Issued),
		strconv.FormatInt(t.ExpiresIn, 10))
	return SerializeFields(p.cipher, fields)
}

// Deserialize decrypts and parses an opaque token. Anything that does not decode
// into a complete token of this claim type is reported as absent.
func (p *Processor[C]) Deserialize(input string) (Token[C], bool) {
	arity := p.codec.Arity()
	fields, ok := DeserializeFields(p.cipher, input, arity+2)
	if !ok {
		return Token[C]{}, false
	}

	claims, ok := p.codec.Parse(fields[:arity])
	if !ok {
		return Token[C]{}, false
	}
	issued, err := ParseTime(fields[arity])
	if err != nil {
		return Token[C]{}, false
	}
	expiresIn, err := strconv.ParseInt(fields[arity+1], 10, 64)
	if err != nil {
		return Token[C]{}, false
	}
	return NewToken(claims, issued, expiresIn), true
}

// VerifyResult is the outcome of checking a decoded token
type VerifyResult int

const (
	Valid VerifyResult = iota
	Expired
	Mismatch
)

func (r VerifyResult) String() string {
	switch r {
	case Valid:
		return "valid"
	case Expired:
		return "expired"
	case Mismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}

// Check verifies freshness at now, then the claim predicate
func Check[C any](t Token[C], now time.Time, match func(C) bool) VerifyResult {
	if !t.OnTime(now) {
		return Expired
	}
	if !match(t.Claims) {
		return Mismatch
	}
	return Valid
}

// Verify reports whether the token is fresh at now and its claims satisfy match
func Verify[C any](t Token[C], now time.Time, match func(C) bool) bool {
	return Check(t, now, match) == Valid
}
