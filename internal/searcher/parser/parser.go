// Package parser turns request strings into typed query parameters:
// boolean operators, execution strategies, tag names and exclusion lists.
package parser

import (
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/errors"
)

type Operator int

const (
	And Operator = iota
	Or
	AndNot
	OrNot
)

var operatorNames = [...]string{"AND", "OR", "AND-NOT", "OR-NOT"}

func (o Operator) String() string {
	if o >= 0 && int(o) < len(operatorNames) {
		return operatorNames[o]
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

// ParseOperator accepts AND, OR, AND-NOT, OR-NOT and NOT (a synonym of
// AND-NOT). Case, surrounding space, and '_' or ' ' in place of '-' are
// tolerated.
func ParseOperator(s string) (Operator, error) {
	key := strings.ToUpper(strings.TrimSpace(s))
	key = strings.NewReplacer("_", "-", " ", "-").Replace(key)
	switch key {
	case "AND", "&&":
		return And, nil
	case "OR", "||":
		return Or, nil
	case "AND-NOT", "ANDNOT", "NOT":
		return AndNot, nil
	case "OR-NOT", "ORNOT":
		return OrNot, nil
	}
	return 0, fmt.Errorf("%w: %q", apperrors.ErrInvalidOperator, s)
}

type Strategy int

const (
	Naive Strategy = iota
	Pooled
	Streaming
	Bitmap
	Bloom
)

// Strategies lists every strategy in declaration order.
var Strategies = []Strategy{Naive, Pooled, Streaming, Bitmap, Bloom}

var strategyNames = [...]string{"naive", "pooled", "streaming", "bitmap", "bloom"}

func (s Strategy) String() string {
	if s >= 0 && int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy accepts the strategy names case-insensitively.
func ParseStrategy(s string) (Strategy, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for i, name := range strategyNames {
		if name == key {
			return Strategy(i), nil
		}
	}
	switch key {
	case "pooled-set", "pooledset":
		return Pooled, nil
	case "streaming-bounded":
		return Streaming, nil
	}
	return 0, fmt.Errorf("%w: %q", apperrors.ErrInvalidStrategy, s)
}

// NormalizeTag trims and lower-cases a tag name the way the corpus loader
// does. The universe name ALL is kept upper-case in any spelling.
func NormalizeTag(s string) string {
	t := strings.TrimSpace(s)
	if strings.EqualFold(t, "ALL") {
		return "ALL"
	}
	return strings.ToLower(t)
}

// ParseExclusions splits a comma or space separated tag list, normalising
// each name and dropping empties and repeats. Input order is kept.
func ParseExclusions(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == ';'
	})
	if len(fields) == 0 {
		return nil
	}
	out := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		tag := NormalizeTag(f)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
