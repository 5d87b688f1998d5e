package protocol

import (
	"fmt"
	"sort"
	"strings"

	"github.com/discretionary-eng/discretionary-engine/internal/model"
	"github.com/shopspring/decimal"
)

// Kind is the closed set of protocol variants this engine implements. A
// tagged variant rather than an open trait: no new Kind can appear without a
// matching case in NewRuntime (see design notes in DESIGN.md).
type Kind string

const (
	KindDummyMarket      Kind = "dm"
	KindTrailingStop     Kind = "ts"
	KindApproachingLimit Kind = "al"
	KindStopEntry        Kind = "se"
)

// requiredParams lists, per kind, the single-letter parameter keys the
// grammar must supply. Order here is also the canonical formatting order.
var requiredParams = map[Kind][]byte{
	KindDummyMarket:      {},
	KindTrailingStop:     {'p'},
	KindApproachingLimit: {'p'},
	KindStopEntry:        {'t'},
}

// Instance is a parsed protocol spec: a Kind plus its single-letter
// parameters. It carries no behaviour; NewRuntime turns it into a running
// capability set.
type Instance struct {
	Kind   Kind
	Params map[byte]decimal.Decimal
}

// Parse reads "name[:param...]" where each param is a single letter
// followed by a value, params concatenated with "-". Names are
// case-insensitive. Example: "ts:p0.5", "se:t30500".
func Parse(spec string) (Instance, error) {
	name, rest, hasParams := strings.Cut(spec, ":")
	kind := Kind(strings.ToLower(name))
	required, ok := requiredParams[kind]
	if !ok {
		return Instance{}, fmt.Errorf("parsing protocol spec %q: unknown protocol name %q", spec, name)
	}

	params := make(map[byte]decimal.Decimal, len(required))
	if hasParams && rest != "" {
		for _, token := range strings.Split(rest, "-") {
			if token == "" {
				continue
			}
			letter := token[0]
			valStr := token[1:]
			val, err := decimal.NewFromString(valStr)
			if err != nil {
				return Instance{}, fmt.Errorf("parsing protocol spec %q: param %q: %w", spec, token, err)
			}
			params[letter] = val
		}
	}

	for _, letter := range required {
		if _, ok := params[letter]; !ok {
			return Instance{}, fmt.Errorf("parsing protocol spec %q: missing required param %q", spec, string(letter))
		}
	}

	return Instance{Kind: kind, Params: params}, nil
}

// Format renders the canonical textual form: lowercase name, params sorted
// by letter, each as letter+value, joined with "-".
func Format(i Instance) string {
	if len(i.Params) == 0 {
		return string(i.Kind)
	}
	letters := make([]byte, 0, len(i.Params))
	for l := range i.Params {
		letters = append(letters, l)
	}
	sort.Slice(letters, func(a, b int) bool { return letters[a] < letters[b] })

	parts := make([]string, 0, len(letters))
	for _, l := range letters {
		parts = append(parts, fmt.Sprintf("%c%s", l, i.Params[l].String()))
	}
	return string(i.Kind) + ":" + strings.Join(parts, "-")
}

// Signature is the Format output typed as model.Signature — the id layer's
// stable textual handle for this protocol instance.
func (i Instance) Signature() model.Signature {
	return model.Signature(Format(i))
}
