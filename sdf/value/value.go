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

// Package value implements the tagged scalar/compound value domain used
// throughout layer metadata and property opinions: primitives, the
// qualified scalars (token, asset, sdfpath), references, fixed-width
// numeric tuples, and the open-ended tuple/array/dict compounds.
//
// Values are plain data, not expressions to be evaluated, so a single
// tagged struct is the idiomatic shape here rather than the interface
// hierarchy CUE's adt package uses for its (evaluated) expression
// nodes.
package value

import (
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Kind identifies which variant of Value is populated.
type Kind int

const (
	Invalid Kind = iota
	Null
	Bool
	Int
	Float
	String
	Token
	Asset
	SdfPath
	Reference
	Vec2f
	Vec3f
	Vec4f
	Matrix4d
	Tuple
	Array
	Dict
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Float:
		return "float"
	case String:
		return "string"
	case Token:
		return "token"
	case Asset:
		return "asset"
	case SdfPath:
		return "sdfpath"
	case Reference:
		return "reference"
	case Vec2f:
		return "vec2f"
	case Vec3f:
		return "vec3f"
	case Vec4f:
		return "vec4f"
	case Matrix4d:
		return "matrix4d"
	case Tuple:
		return "tuple"
	case Array:
		return "array"
	case Dict:
		return "dict"
	default:
		return "invalid"
	}
}

// Ref is the payload of a Value whose Kind is value.Reference: an
// external-reference-shaped arc with an asset path and an optional
// target prim/property path string.
type Ref struct {
	AssetPath  string
	TargetPath string // path-string, possibly with a property suffix; "" if absent
}

// Dict is an ordered string-keyed map of Values. Authored order must be
// preserved (spec.md §3.7), so it is backed by an ordered map rather
// than a plain Go map.
type Dict = orderedmap.OrderedMap[string, Value]

// NewDict returns a new, empty ordered dict.
func NewDict() *Dict { return orderedmap.New[string, Value]() }

// Value is a tagged sum type over the scene-description value domain.
// Exactly the field(s) relevant to Kind are meaningful; the rest are
// zero. Value is deliberately a struct, not an interface, so that
// equality, copying, and path-rewriting can be implemented centrally
// in this package instead of once per concrete type.
type Value struct {
	Kind Kind

	Bool   bool
	Int    int64
	Float  float64
	String string // also backs Token, Asset, SdfPath (sdfpath holds a path-string)
	Ref    Ref

	Vec  [4]float64 // Vec2f uses [0:2], Vec3f [0:3], Vec4f [0:4]
	Mat4 [16]float64

	Elems       []Value // Tuple and Array share storage
	ElementType Kind    // meaningful only when Kind == Array

	Dict *Dict

	// Origin is the canonical identifier of the layer that authored
	// this value, used to resolve Asset/Reference values that are
	// relative paths. Empty when the origin is not tracked.
	Origin string
}

func NewNull() Value                 { return Value{Kind: Null} }
func NewBool(b bool) Value           { return Value{Kind: Bool, Bool: b} }
func NewInt(i int64) Value           { return Value{Kind: Int, Int: i} }
func NewFloat(f float64) Value       { return Value{Kind: Float, Float: f} }
func NewString(s string) Value       { return Value{Kind: String, String: s} }
func NewToken(s string) Value        { return Value{Kind: Token, String: s} }
func NewAsset(s string) Value        { return Value{Kind: Asset, String: s} }
func NewSdfPath(s string) Value      { return Value{Kind: SdfPath, String: s} }
func NewReference(r Ref) Value       { return Value{Kind: Reference, Ref: r} }
func NewTuple(elems ...Value) Value  { return Value{Kind: Tuple, Elems: elems} }
func NewArray(elem Kind, vs []Value) Value {
	return Value{Kind: Array, ElementType: elem, Elems: vs}
}
func NewDictValue(d *Dict) Value { return Value{Kind: Dict, Dict: d} }

func NewVec2f(x, y float64) Value       { return Value{Kind: Vec2f, Vec: [4]float64{x, y}} }
func NewVec3f(x, y, z float64) Value    { return Value{Kind: Vec3f, Vec: [4]float64{x, y, z}} }
func NewVec4f(x, y, z, w float64) Value { return Value{Kind: Vec4f, Vec: [4]float64{x, y, z, w}} }
func NewMatrix4d(m [16]float64) Value   { return Value{Kind: Matrix4d, Mat4: m} }

// IsValid reports whether v holds a recognized Kind.
func (v Value) IsValid() bool { return v.Kind != Invalid }

// DeepCopy returns a value with no storage shared with v: array/tuple
// elements and dict entries are copied recursively. Used whenever a
// Value is grafted into a new site by the composer (spec.md §4.1.1).
func DeepCopy(v Value) Value {
	out := v
	if len(v.Elems) > 0 {
		out.Elems = make([]Value, len(v.Elems))
		for i, e := range v.Elems {
			out.Elems[i] = DeepCopy(e)
		}
	}
	if v.Dict != nil {
		out.Dict = NewDict()
		for pair := v.Dict.Oldest(); pair != nil; pair = pair.Next() {
			out.Dict.Set(pair.Key, DeepCopy(pair.Value))
		}
	}
	return out
}

// Equal reports deep structural equality between a and b.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case Null:
		return true
	case Bool:
		return a.Bool == b.Bool
	case Int:
		return a.Int == b.Int
	case Float:
		return a.Float == b.Float
	case String, Token, Asset, SdfPath:
		return a.String == b.String
	case Reference:
		return a.Ref == b.Ref
	case Vec2f, Vec3f, Vec4f:
		return a.Vec == b.Vec
	case Matrix4d:
		return a.Mat4 == b.Mat4
	case Tuple, Array:
		if a.Kind == Array && a.ElementType != b.ElementType {
			return false
		}
		if len(a.Elems) != len(b.Elems) {
			return false
		}
		for i := range a.Elems {
			if !Equal(a.Elems[i], b.Elems[i]) {
				return false
			}
		}
		return true
	case Dict:
		if a.Dict == nil || b.Dict == nil {
			return a.Dict == b.Dict
		}
		if a.Dict.Len() != b.Dict.Len() {
			return false
		}
		for pair := a.Dict.Oldest(); pair != nil; pair = pair.Next() {
			bv, ok := b.Dict.Get(pair.Key)
			if !ok || !Equal(pair.Value, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// GoString implements a debug-friendly representation, following the
// convention adt.Vertex uses for its own debug dumps.
func (v Value) GoString() string {
	switch v.Kind {
	case Null:
		return "null"
	case Bool:
		return fmt.Sprintf("%v", v.Bool)
	case Int:
		return fmt.Sprintf("%d", v.Int)
	case Float:
		return fmt.Sprintf("%g", v.Float)
	case String:
		return fmt.Sprintf("%q", v.String)
	case Token:
		return fmt.Sprintf("token(%q)", v.String)
	case Asset:
		return fmt.Sprintf("asset(@%s@)", v.String)
	case SdfPath:
		return fmt.Sprintf("sdfpath(<%s>)", v.String)
	case Reference:
		return fmt.Sprintf("reference{asset:%q target:%q}", v.Ref.AssetPath, v.Ref.TargetPath)
	default:
		return fmt.Sprintf("%s(...)", v.Kind)
	}
}
