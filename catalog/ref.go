package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/com-junkawasaki/kotoba-sub011/errors"
	"github.com/com-junkawasaki/kotoba-sub011/rule"
	"github.com/com-junkawasaki/kotoba-sub011/strategy"
)

// Domain prefixes for content-addressed identity. The version suffix leaves
// room for algorithm migration.
const (
	DomainRule     = "kotoba/rule/v1"
	DomainStrategy = "kotoba/strategy/v1"
)

const refPrefix = "sha256:"

// Ref is the content-addressed identity of a definition: "sha256:<hex>"
// over the domain-separated hash of its canonical JSON.
type Ref string

func (r Ref) String() string { return string(r) }

// Valid reports whether the ref has the expected shape.
func (r Ref) Valid() bool {
	s := string(r)
	if len(s) != len(refPrefix)+sha256.Size*2 || s[:len(refPrefix)] != refPrefix {
		return false
	}
	_, err := hex.DecodeString(s[len(refPrefix):])
	return err == nil
}

// ParseRef validates a ref string.
func ParseRef(s string) (Ref, error) {
	r := Ref(s)
	if !r.Valid() {
		return "", errors.WrapInvalid(errors.ErrInvalidData, "Catalog", "ParseRef",
			fmt.Sprintf("parse ref %q", s))
	}
	return r, nil
}

// hashWithDomain computes SHA256(domain || 0x00 || data). The null byte
// keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) Ref {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return Ref(refPrefix + hex.EncodeToString(h.Sum(nil)))
}

// RuleRef computes the content-addressed ref of a rule.
func RuleRef(r *rule.Rule) (Ref, []byte, error) {
	canonical, err := Canonicalize(r)
	if err != nil {
		return "", nil, errors.WrapInvalid(err, "Catalog", "RuleRef", "canonicalize rule")
	}
	return hashWithDomain(DomainRule, canonical), canonical, nil
}

// StrategyRef computes the content-addressed ref of a strategy tree.
func StrategyRef(op strategy.Op) (Ref, []byte, error) {
	canonical, err := Canonicalize(op)
	if err != nil {
		return "", nil, errors.WrapInvalid(err, "Catalog", "StrategyRef", "canonicalize strategy")
	}
	return hashWithDomain(DomainStrategy, canonical), canonical, nil
}
