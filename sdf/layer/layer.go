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

// Package layer implements the in-memory scene description tree: prim
// specs, property specs, variant sets, and layer metadata, keyed by
// path, as described in spec.md §3.3–§3.6. It is the data model the
// composition engine (pcp/compose, pcp/expand) reads and writes.
package layer

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	sdfpath "github.com/usdjs/usdlite/sdf/path"
	"github.com/usdjs/usdlite/sdf/value"
)

// Specifier is a prim spec's def/over/class marker.
type Specifier int

const (
	Def Specifier = iota
	Over
	Class
)

func (s Specifier) String() string {
	switch s {
	case Def:
		return "def"
	case Over:
		return "over"
	case Class:
		return "class"
	default:
		return "unknown"
	}
}

// Metadata is the ordered string-keyed value map shared by layers,
// prims and properties.
type Metadata = orderedmap.OrderedMap[string, value.Value]

func NewMetadata() *Metadata { return orderedmap.New[string, value.Value]() }

// PropertySpec describes a single attribute or relationship opinion.
type PropertySpec struct {
	Path         sdfpath.Path
	TypeName     string
	Variability  string // "varying" | "uniform" | "" (unset)
	HasDefault   bool
	Default      value.Value
	TimeSamples  *orderedmap.OrderedMap[float64, value.Value]
	Metadata     *Metadata

	// IsRelationship marks a property spec authored via the text
	// format's "rel" keyword (spec.md §6 / SPEC_FULL.md §9). It
	// composes through the ordinary property-merge rule unchanged;
	// the flag exists purely so a reader or exporter can round-trip
	// the authored keyword.
	IsRelationship bool
}

// NewPropertySpec returns an empty property spec at path p.
func NewPropertySpec(p sdfpath.Path) *PropertySpec {
	return &PropertySpec{
		Path:        p,
		TimeSamples: orderedmap.New[float64, value.Value](),
		Metadata:    NewMetadata(),
	}
}

// Clone returns a deep copy of ps with its path unchanged.
func (ps *PropertySpec) Clone() *PropertySpec {
	out := &PropertySpec{
		Path:           ps.Path,
		TypeName:       ps.TypeName,
		Variability:    ps.Variability,
		HasDefault:     ps.HasDefault,
		IsRelationship: ps.IsRelationship,
	}
	if ps.HasDefault {
		out.Default = value.DeepCopy(ps.Default)
	}
	out.TimeSamples = orderedmap.New[float64, value.Value]()
	if ps.TimeSamples != nil {
		for pair := ps.TimeSamples.Oldest(); pair != nil; pair = pair.Next() {
			out.TimeSamples.Set(pair.Key, value.DeepCopy(pair.Value))
		}
	}
	out.Metadata = NewMetadata()
	if ps.Metadata != nil {
		for pair := ps.Metadata.Oldest(); pair != nil; pair = pair.Next() {
			out.Metadata.Set(pair.Key, value.DeepCopy(pair.Value))
		}
	}
	return out
}

// VariantSetSpec is a named family of alternative opinion bundles.
type VariantSetSpec struct {
	Name     string
	Variants *orderedmap.OrderedMap[string, *PrimSpec]
}

func NewVariantSetSpec(name string) *VariantSetSpec {
	return &VariantSetSpec{Name: name, Variants: orderedmap.New[string, *PrimSpec]()}
}

// PrimSpec is a node in the scene hierarchy.
type PrimSpec struct {
	Path      sdfpath.Path
	Specifier Specifier
	// SpecifierAuthored distinguishes a specifier a reader actually
	// authored from the Over default EnsurePrim gives a placeholder
	// ancestor. Only an authored specifier may overwrite another
	// prim spec's specifier during composition (pcp/compose).
	SpecifierAuthored bool
	TypeName          string
	Metadata          *Metadata
	Children          *orderedmap.OrderedMap[string, *PrimSpec]
	Properties        *orderedmap.OrderedMap[string, *PropertySpec]
	// VariantSets is nil unless the prim declares at least one. Keys
	// are variant set names.
	VariantSets *orderedmap.OrderedMap[string, *VariantSetSpec]
}

// UnknownTypeName is the sentinel mergePrimSpecWeak (pcp/compose)
// treats as "no real type yet", per spec.md §4.1.
const UnknownTypeName = "unknown"

// NewPrimSpec returns an empty, authored prim spec at path p.
func NewPrimSpec(p sdfpath.Path, specifier Specifier) *PrimSpec {
	return &PrimSpec{
		Path:              p,
		Specifier:         specifier,
		SpecifierAuthored: true,
		Metadata:          NewMetadata(),
		Children:          orderedmap.New[string, *PrimSpec](),
		Properties:        orderedmap.New[string, *PropertySpec](),
	}
}

// newPlaceholderPrimSpec returns an unauthored ancestor placeholder,
// the kind EnsurePrim creates on the way down to a deeper path.
func newPlaceholderPrimSpec(p sdfpath.Path) *PrimSpec {
	ps := NewPrimSpec(p, Over)
	ps.SpecifierAuthored = false
	return ps
}

// EnsureVariantSet returns the named variant set, creating it (in
// declaration order) if absent.
func (ps *PrimSpec) EnsureVariantSet(name string) *VariantSetSpec {
	if ps.VariantSets == nil {
		ps.VariantSets = orderedmap.New[string, *VariantSetSpec]()
	}
	vs, ok := ps.VariantSets.Get(name)
	if !ok {
		vs = NewVariantSetSpec(name)
		ps.VariantSets.Set(name, vs)
	}
	return vs
}

// Clone returns a deep copy of the subtree rooted at ps, paths
// unchanged. Callers that need to graft the result elsewhere should
// use pcp/compose's remap-aware clone instead.
func (ps *PrimSpec) Clone() *PrimSpec {
	out := NewPrimSpec(ps.Path, ps.Specifier)
	out.SpecifierAuthored = ps.SpecifierAuthored
	out.TypeName = ps.TypeName
	for pair := ps.Metadata.Oldest(); pair != nil; pair = pair.Next() {
		out.Metadata.Set(pair.Key, value.DeepCopy(pair.Value))
	}
	for pair := ps.Properties.Oldest(); pair != nil; pair = pair.Next() {
		out.Properties.Set(pair.Key, pair.Value.Clone())
	}
	for pair := ps.Children.Oldest(); pair != nil; pair = pair.Next() {
		out.Children.Set(pair.Key, pair.Value.Clone())
	}
	if ps.VariantSets != nil {
		out.VariantSets = orderedmap.New[string, *VariantSetSpec]()
		for pair := ps.VariantSets.Oldest(); pair != nil; pair = pair.Next() {
			vs := pair.Value
			newVS := NewVariantSetSpec(vs.Name)
			for vp := vs.Variants.Oldest(); vp != nil; vp = vp.Next() {
				newVS.Variants.Set(vp.Key, vp.Value.Clone())
			}
			out.VariantSets.Set(pair.Key, newVS)
		}
	}
	return out
}

// Layer is the in-memory tree of prim specs rooted at "/", plus
// layer-scoped metadata (spec.md §3.6).
type Layer struct {
	Identifier string
	Metadata   *Metadata
	Root       *PrimSpec
}

// New returns an empty layer with the given canonical identifier.
func New(identifier string) *Layer {
	return &Layer{
		Identifier: identifier,
		Metadata:   NewMetadata(),
		Root:       NewPrimSpec(sdfpath.Root, Def),
	}
}

// GetPrim returns the prim spec at p, or nil if none is authored.
func (l *Layer) GetPrim(p sdfpath.Path) *PrimSpec {
	if !p.IsPrimPath() {
		p = p.PrimPart()
	}
	if p.IsRoot() {
		return l.Root
	}
	segs := p.Segments()
	cur := l.Root
	for _, seg := range segs {
		child, ok := cur.Children.Get(seg)
		if !ok {
			return nil
		}
		cur = child
	}
	return cur
}

// EnsurePrim creates placeholder prim specs down to p (if absent) and
// returns the (possibly pre-existing) spec at p. Placeholders are
// created with specifier Over, the conventional "no opinion yet"
// specifier; the final prim at p is set to the requested specifier
// only if it did not already exist.
func (l *Layer) EnsurePrim(p sdfpath.Path, specifier Specifier) *PrimSpec {
	if !p.IsPrimPath() {
		p = p.PrimPart()
	}
	if p.IsRoot() {
		return l.Root
	}
	segs := p.Segments()
	cur := l.Root
	built := sdfpath.Root
	for i, seg := range segs {
		built, _ = built.Child(seg)
		child, ok := cur.Children.Get(seg)
		if !ok {
			if i < len(segs)-1 {
				child = newPlaceholderPrimSpec(built)
			} else {
				child = NewPrimSpec(built, specifier)
			}
			cur.Children.Set(seg, child)
		}
		cur = child
	}
	return cur
}

// GetOrCreateProperty returns the property spec keyed by key ("name"
// or "name.field") on ps, creating an empty one at propPath if
// absent.
func (ps *PrimSpec) GetOrCreateProperty(key string, propPath sdfpath.Path) *PropertySpec {
	p, ok := ps.Properties.Get(key)
	if !ok {
		p = NewPropertySpec(propPath)
		ps.Properties.Set(key, p)
	}
	return p
}
