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

package value

import (
	"strings"

	sdfpath "github.com/usdjs/usdlite/sdf/path"
)

// Remap rewrites every prim-path or property-path string embedded in v
// (an sdfpath scalar, a reference's targetPath, or either of those
// nested inside a tuple/array/dict) from srcRoot to dstRoot, per
// spec.md §4.1.1. Relative property paths beginning with "." are left
// untouched, and any absolute path neither equal to nor rooted at
// srcRoot passes through unchanged. Malformed path strings are left
// unchanged rather than causing a remap failure (spec.md §4.6).
func Remap(v Value, srcRoot, dstRoot sdfpath.Path) Value {
	switch v.Kind {
	case SdfPath:
		return Value{Kind: SdfPath, String: remapPathString(v.String, srcRoot, dstRoot), Origin: v.Origin}
	case Reference:
		r := v.Ref
		r.TargetPath = remapPathString(r.TargetPath, srcRoot, dstRoot)
		return Value{Kind: Reference, Ref: r, Origin: v.Origin}
	case Tuple, Array:
		elems := make([]Value, len(v.Elems))
		for i, e := range v.Elems {
			elems[i] = Remap(e, srcRoot, dstRoot)
		}
		out := v
		out.Elems = elems
		return out
	case Dict:
		if v.Dict == nil {
			return v
		}
		out := v
		out.Dict = NewDict()
		for pair := v.Dict.Oldest(); pair != nil; pair = pair.Next() {
			out.Dict.Set(pair.Key, Remap(pair.Value, srcRoot, dstRoot))
		}
		return out
	default:
		return v
	}
}

// remapPathString parses s as a path and remaps it, returning the
// original string unchanged if s is empty, relative ("."-prefixed), or
// fails to parse.
func remapPathString(s string, srcRoot, dstRoot sdfpath.Path) string {
	if s == "" || strings.HasPrefix(s, ".") {
		return s
	}
	p, err := sdfpath.Parse(s)
	if err != nil {
		return s
	}
	return sdfpath.Remap(p, srcRoot, dstRoot).String()
}
