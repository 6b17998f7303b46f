// Package hashengine derives site passwords from a master key and a site
// tag.
//
// Generation is deterministic: the same master key, site tag and settings
// always yield the same password, so nothing but the settings needs to be
// stored.
package hashengine

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/text/unicode/norm"
)

const (
	// Argon2Memory is the memory cost in KiB (64 MiB).
	Argon2Memory = 64 * 1024
	// Argon2Time is the number of passes.
	Argon2Time = 3
	// Argon2Threads is the degree of parallelism.
	Argon2Threads = 4

	// MinWordSize and MaxWordSize bound HashWordSize.
	MinWordSize = 4
	MaxWordSize = 26

	saltPrefix = "sitepass/v1:"
)

const (
	lower       = "abcdefghijklmnopqrstuvwxyz"
	upper       = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits      = "0123456789"
	punctuation = "!#$%&()*+-./:;<=>?@[]^_{|}~"
)

var (
	// ErrEmptyMasterKey is returned when no master key is given.
	ErrEmptyMasterKey = errors.New("hashengine: master key is empty")
	// ErrEmptySiteTag is returned when no site tag is given.
	ErrEmptySiteTag = errors.New("hashengine: site tag is empty")
	// ErrInvalidWordSize is returned for a HashWordSize out of range.
	ErrInvalidWordSize = errors.New("hashengine: hash word size out of range")
)

// Settings are the per-site generation options.
type Settings struct {
	RequirePunctuation bool
	RestrictSpecial    bool
	HashWordSize       int
	Bangify            bool
}

// Request is one generation.
type Request struct {
	MasterKey string
	SiteTag   string
	Settings  Settings
}

// Engine generates a site password.
type Engine interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Params are the Argon2id cost parameters.
type Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
}

// DefaultParams returns the production cost parameters.
func DefaultParams() Params {
	return Params{Time: Argon2Time, Memory: Argon2Memory, Threads: Argon2Threads}
}

// Argon2Engine derives passwords with Argon2id. The master key is the
// password input and the site tag salts it; both are NFC-normalized so that
// visually identical input on different platforms produces the same output.
type Argon2Engine struct {
	params Params
}

// NewArgon2Engine creates an engine with params.
func NewArgon2Engine(params Params) *Argon2Engine {
	return &Argon2Engine{params: params}
}

// Generate implements Engine.
func (e *Argon2Engine) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.MasterKey == "" {
		return "", ErrEmptyMasterKey
	}
	if req.SiteTag == "" {
		return "", ErrEmptySiteTag
	}
	size := req.Settings.HashWordSize
	if size < MinWordSize || size > MaxWordSize {
		return "", fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidWordSize, size, MinWordSize, MaxWordSize)
	}

	password := []byte(norm.NFC.String(req.MasterKey))
	salt := []byte(saltPrefix + norm.NFC.String(req.SiteTag))
	// Two bytes per character plus two for each placement decision.
	material := argon2.IDKey(password, salt, e.params.Time, e.params.Memory, e.params.Threads, uint32(2*size+4))
	defer wipe(material)
	defer wipe(password)

	return render(material, req.Settings), nil
}

// render maps derived bytes to characters.
func render(material []byte, s Settings) string {
	alphabet := lower + upper + digits
	usePunct := s.RequirePunctuation && !s.RestrictSpecial
	if usePunct {
		alphabet += punctuation
	}

	size := s.HashWordSize
	out := make([]byte, size)
	for i := range out {
		out[i] = pick(alphabet, material[2*i:])
	}
	extra := material[2*size:]

	if usePunct && !strings.ContainsAny(string(out), punctuation) {
		pos := int(binary.BigEndian.Uint16(extra)) % size
		out[pos] = pick(punctuation, extra[2:])
	}
	if s.Bangify {
		out[size-1] = '!'
	}
	return string(out)
}

func pick(alphabet string, b []byte) byte {
	return alphabet[int(binary.BigEndian.Uint16(b))%len(alphabet)]
}

// wipe zeroes b.
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
