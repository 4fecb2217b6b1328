// Copyright 2024 The usdlite Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package arcs implements the pure functions that project metadata
// values into external arcs (references, payloads), internal arcs,
// and sublayer lists, per spec.md §4.2. Extraction absorbs the
// prepend/append/delete/orderedItems list-op semantics of spec.md
// §4.3.3 so callers receive an already-ordered, weak-to-strong arc
// sequence ready to fold into a mergePrimSpec accumulator.
package arcs

import (
	"strings"

	sdfpath "github.com/usdjs/usdlite/sdf/path"
	"github.com/usdjs/usdlite/sdf/value"
)

// Kind distinguishes reference arcs from payload arcs.
type Kind int

const (
	Reference Kind = iota
	Payload
)

func (k Kind) String() string {
	if k == Payload {
		return "payload"
	}
	return "reference"
}

// External is a single external composition arc.
type External struct {
	Kind           Kind
	AssetPath      string
	TargetPath     string // "" when unspecified; defaultPrim applies
	FromIdentifier string
}

// stripWrapper removes a "<...>" wrapper from an internal target
// string, per spec.md §4.2.
func stripWrapper(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">") {
		return s[1 : len(s)-1]
	}
	return s
}

// taggedItem is a single list-op element together with the operator
// that produced it ("" for a bare, untagged item).
type taggedItem struct {
	op string
	v  value.Value
}

// flattenOps walks v, unwrapping {op, value} dicts and arrays/tuples
// recursively, per spec.md §4.2 and §9 ("the list-op representation
// ... must be unwrapped recursively in every extractor").
func flattenOps(v value.Value) []taggedItem {
	switch v.Kind {
	case value.Dict:
		if v.Dict == nil {
			return nil
		}
		opVal, hasOp := v.Dict.Get("op")
		inner, hasValue := v.Dict.Get("value")
		if hasOp && hasValue && opVal.Kind == value.Token {
			items := flattenOps(inner)
			for i := range items {
				if items[i].op == "" {
					items[i].op = opVal.String
				}
			}
			return items
		}
		return nil
	case value.Array, value.Tuple:
		var out []taggedItem
		for _, e := range v.Elems {
			out = append(out, flattenOps(e)...)
		}
		return out
	case value.Invalid, value.Null:
		return nil
	default:
		return []taggedItem{{v: v}}
	}
}

// orderItems resolves list-op groups into a single weak-to-strong
// sequence (spec.md §4.3.3): append items first (weakest), then plain
// ("add") items, then prepend items in reverse authored order so the
// first prepended item ends up last (strongest). An "orderedItems" op
// overrides every other group with its own explicit sequence. "delete"
// items are removed from the result by value equality.
func orderItems(items []taggedItem) []value.Value {
	var prepend, appendGroup, add, del, explicit []value.Value
	for _, it := range items {
		switch it.op {
		case "prepend":
			prepend = append(prepend, it.v)
		case "append":
			appendGroup = append(appendGroup, it.v)
		case "delete":
			del = append(del, it.v)
		case "orderedItems":
			explicit = append(explicit, it.v)
		default:
			add = append(add, it.v)
		}
	}
	if len(explicit) > 0 {
		return explicit
	}
	ordered := make([]value.Value, 0, len(appendGroup)+len(add)+len(prepend))
	ordered = append(ordered, appendGroup...)
	ordered = append(ordered, add...)
	for i := len(prepend) - 1; i >= 0; i-- {
		ordered = append(ordered, prepend[i])
	}
	if len(del) == 0 {
		return ordered
	}
	out := ordered[:0:0]
	for _, o := range ordered {
		deleted := false
		for _, d := range del {
			if value.Equal(o, d) {
				deleted = true
				break
			}
		}
		if !deleted {
			out = append(out, o)
		}
	}
	return out
}

// Extract normalizes the metadata value authored for "references" or
// "payload" into ordered external and internal arcs, per spec.md §4.2.
func Extract(kind Kind, v value.Value, fromIdentifier string) (external []External, internal []sdfpath.Path) {
	for _, item := range orderItems(flattenOps(v)) {
		switch item.Kind {
		case value.Asset:
			external = append(external, External{
				Kind: kind, AssetPath: item.String, FromIdentifier: fromIdentifier,
			})
		case value.Reference:
			target := stripWrapper(item.Ref.TargetPath)
			if item.Ref.AssetPath != "" {
				external = append(external, External{
					Kind: kind, AssetPath: item.Ref.AssetPath, TargetPath: target, FromIdentifier: fromIdentifier,
				})
			} else if strings.HasPrefix(target, "/") {
				if p, err := sdfpath.Parse(target); err == nil {
					internal = append(internal, p)
				}
			}
		case value.SdfPath:
			s := stripWrapper(item.String)
			if p, err := sdfpath.Parse(s); err == nil {
				internal = append(internal, p)
			}
		}
	}
	return external, internal
}

// ExtractSublayers returns the sublayer asset strings authored on a
// layer's "subLayers" metadata, in authored (weakest-first) order.
func ExtractSublayers(v value.Value) []string {
	var out []string
	for _, item := range orderItems(flattenOps(v)) {
		switch item.Kind {
		case value.Asset, value.String, value.Token:
			out = append(out, item.String)
		}
	}
	return out
}
