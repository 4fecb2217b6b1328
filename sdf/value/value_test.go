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

package value_test

import (
	"testing"

	"github.com/go-quicktest/qt"

	sdfpath "github.com/usdjs/usdlite/sdf/path"
	"github.com/usdjs/usdlite/sdf/value"
)

func TestEqualPrimitives(t *testing.T) {
	qt.Assert(t, qt.IsTrue(value.Equal(value.NewInt(3), value.NewInt(3))))
	qt.Assert(t, qt.IsFalse(value.Equal(value.NewInt(3), value.NewInt(4))))
	qt.Assert(t, qt.IsFalse(value.Equal(value.NewInt(3), value.NewFloat(3))))
}

func TestEqualDict(t *testing.T) {
	a := value.NewDict()
	a.Set("x", value.NewInt(1))
	b := value.NewDict()
	b.Set("x", value.NewInt(1))
	qt.Assert(t, qt.IsTrue(value.Equal(value.NewDictValue(a), value.NewDictValue(b))))

	b.Set("y", value.NewInt(2))
	qt.Assert(t, qt.IsFalse(value.Equal(value.NewDictValue(a), value.NewDictValue(b))))
}

func TestDeepCopyIsIndependent(t *testing.T) {
	d := value.NewDict()
	d.Set("nested", value.NewArray(value.Int, []value.Value{value.NewInt(1)}))
	orig := value.NewDictValue(d)
	copied := value.DeepCopy(orig)

	nested, _ := d.Get("nested")
	nested.Elems[0] = value.NewInt(99)
	d.Set("nested", nested)

	copiedNested, ok := copied.Dict.Get("nested")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(copiedNested.Elems[0].Int, int64(1)))
}

func TestRemapSdfPath(t *testing.T) {
	v := value.NewSdfPath("/World/Character")
	out := value.Remap(v, sdfpath.MustParse("/World"), sdfpath.MustParse("/Proto/p1"))
	qt.Assert(t, qt.Equals(out.String, "/Proto/p1/Character"))
}

func TestRemapReferenceTarget(t *testing.T) {
	v := value.NewReference(value.Ref{AssetPath: "model.usd", TargetPath: "/World/Robot"})
	out := value.Remap(v, sdfpath.MustParse("/World"), sdfpath.MustParse("/Proto/p1"))
	qt.Assert(t, qt.Equals(out.Ref.TargetPath, "/Proto/p1/Robot"))
	qt.Assert(t, qt.Equals(out.Ref.AssetPath, "model.usd"))
}

func TestRemapRelativePropertyPathUntouched(t *testing.T) {
	v := value.NewSdfPath(".rel")
	out := value.Remap(v, sdfpath.MustParse("/World"), sdfpath.MustParse("/Proto/p1"))
	qt.Assert(t, qt.Equals(out.String, ".rel"))
}

func TestRemapNestedInArray(t *testing.T) {
	v := value.NewArray(value.SdfPath, []value.Value{
		value.NewSdfPath("/World/A"),
		value.NewSdfPath("/Other/B"),
	})
	out := value.Remap(v, sdfpath.MustParse("/World"), sdfpath.MustParse("/Proto/p1"))
	qt.Assert(t, qt.Equals(out.Elems[0].String, "/Proto/p1/A"))
	qt.Assert(t, qt.Equals(out.Elems[1].String, "/Other/B"))
}

func TestRemapMalformedLeftUnchanged(t *testing.T) {
	v := value.NewSdfPath("not a path")
	out := value.Remap(v, sdfpath.MustParse("/World"), sdfpath.MustParse("/Proto/p1"))
	qt.Assert(t, qt.Equals(out.String, "not a path"))
}
