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

package sdftext_test

import (
	"testing"

	"github.com/go-quicktest/qt"

	sdfpath "github.com/usdjs/usdlite/sdf/path"
	"github.com/usdjs/usdlite/sdf/value"
	"github.com/usdjs/usdlite/sdftext"
)

func TestDecodeLayerMetadataAndPrimBlocks(t *testing.T) {
	text := `#usda 1.0
(
    defaultPrim = "World"
    subLayers = [@/a.usda@, @/b.usda@]
)

def "World" {
    def Sphere "Ball" {
        double radius = 2
    }
    over "Empty" {
    }
    class "Template" {
    }
}
`
	l, err := sdftext.Decode(text, "/root.usda")
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(l.Identifier, "/root.usda"))

	dp, ok := l.Metadata.Get("defaultPrim")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(dp.Kind, value.String))
	qt.Assert(t, qt.Equals(dp.String, "World"))

	sub, ok := l.Metadata.Get("subLayers")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(sub.Kind, value.Array))
	qt.Assert(t, qt.Equals(len(sub.Elems), 2))
	qt.Assert(t, qt.Equals(sub.Elems[0].Kind, value.Asset))
	qt.Assert(t, qt.Equals(sub.Elems[0].String, "/a.usda"))

	world := l.GetPrim(sdfpath.MustParse("/World"))
	qt.Assert(t, qt.IsNotNil(world))

	ball := l.GetPrim(sdfpath.MustParse("/World/Ball"))
	qt.Assert(t, qt.IsNotNil(ball))
	qt.Assert(t, qt.Equals(ball.TypeName, "Sphere"))

	empty := l.GetPrim(sdfpath.MustParse("/World/Empty"))
	qt.Assert(t, qt.IsNotNil(empty))

	tmpl := l.GetPrim(sdfpath.MustParse("/World/Template"))
	qt.Assert(t, qt.IsNotNil(tmpl))
}

func TestDecodeListOpPrefixesWrapInDict(t *testing.T) {
	text := `
def "A" (
    prepend references = @/model.usda@
    append inherits = </Base>
    delete payload = @/dropped.usda@
) {
}
`
	l, err := sdftext.Decode(text, "/root.usda")
	qt.Assert(t, qt.IsNil(err))
	a := l.GetPrim(sdfpath.MustParse("/A"))
	qt.Assert(t, qt.IsNotNil(a))

	refs, ok := a.Metadata.Get("references")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(refs.Kind, value.Dict))
	op, ok := refs.Dict.Get("op")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(op.String, "prepend"))
	inner, ok := refs.Dict.Get("value")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(inner.Kind, value.Asset))

	inh, ok := a.Metadata.Get("inherits")
	qt.Assert(t, qt.IsTrue(ok))
	op, ok = inh.Dict.Get("op")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(op.String, "append"))

	pay, ok := a.Metadata.Get("payload")
	qt.Assert(t, qt.IsTrue(ok))
	op, ok = pay.Dict.Get("op")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(op.String, "delete"))
}

func TestDecodeReferenceWithTarget(t *testing.T) {
	text := `
def "A" (
    references = @/model.usda@</Sphere>
) {
}
`
	l, err := sdftext.Decode(text, "/root.usda")
	qt.Assert(t, qt.IsNil(err))
	a := l.GetPrim(sdfpath.MustParse("/A"))
	refs, ok := a.Metadata.Get("references")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(refs.Kind, value.Reference))
	qt.Assert(t, qt.Equals(refs.Ref.AssetPath, "/model.usda"))
	qt.Assert(t, qt.Equals(refs.Ref.TargetPath, "/Sphere"))
}

func TestDecodePropertiesAndRelationships(t *testing.T) {
	text := `
def "A" {
    uniform double radius = 3.5
    rel target = </B>
    token name = "hello"
    bool flag = true
}
def "B" {
}
`
	l, err := sdftext.Decode(text, "/root.usda")
	qt.Assert(t, qt.IsNil(err))
	a := l.GetPrim(sdfpath.MustParse("/A"))

	radius, ok := a.Properties.Get("radius")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(radius.TypeName, "double"))
	qt.Assert(t, qt.Equals(radius.Variability, "uniform"))
	qt.Assert(t, qt.IsTrue(radius.HasDefault))
	qt.Assert(t, qt.Equals(radius.Default.Kind, value.Float))
	qt.Assert(t, qt.Equals(radius.Default.Float, 3.5))

	target, ok := a.Properties.Get("target")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.IsTrue(target.IsRelationship))
	qt.Assert(t, qt.Equals(target.Default.Kind, value.SdfPath))
	qt.Assert(t, qt.Equals(target.Default.String, "/B"))

	name, ok := a.Properties.Get("name")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(name.Default.Kind, value.String))
	qt.Assert(t, qt.Equals(name.Default.String, "hello"))

	flag, ok := a.Properties.Get("flag")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(flag.Default.Kind, value.Bool))
	qt.Assert(t, qt.IsTrue(flag.Default.Bool))
}

func TestDecodeVariantSetsAndSelection(t *testing.T) {
	text := `
def Sphere "Ball" (
    variants = { size = "large" }
) {
    double radius = 1
    variantSet "size" = {
        "small" {
            double radius = 2
        }
        "large" {
            double radius = 10
        }
    }
}
`
	l, err := sdftext.Decode(text, "/root.usda")
	qt.Assert(t, qt.IsNil(err))
	ball := l.GetPrim(sdfpath.MustParse("/Ball"))
	qt.Assert(t, qt.IsNotNil(ball))

	sel, ok := ball.Metadata.Get("variants")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(sel.Kind, value.Dict))
	size, ok := sel.Dict.Get("size")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(size.String, "large"))

	qt.Assert(t, qt.IsNotNil(ball.VariantSets))
	vs, ok := ball.VariantSets.Get("size")
	qt.Assert(t, qt.IsTrue(ok))
	small, ok := vs.Variants.Get("small")
	qt.Assert(t, qt.IsTrue(ok))
	smallRadius, ok := small.Properties.Get("radius")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(smallRadius.Default.Int, int64(2)))

	large, ok := vs.Variants.Get("large")
	qt.Assert(t, qt.IsTrue(ok))
	largeRadius, ok := large.Properties.Get("radius")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(largeRadius.Default.Int, int64(10)))
}

func TestDecodeArraysAndDicts(t *testing.T) {
	text := `
(
    customLayerData = {
        "author" : "tester",
        "version" : 1
    }
)
def "A" (
    tags = [1, 2, 3]
) {
}
`
	l, err := sdftext.Decode(text, "/root.usda")
	qt.Assert(t, qt.IsNil(err))

	cld, ok := l.Metadata.Get("customLayerData")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(cld.Kind, value.Dict))
	author, ok := cld.Dict.Get("author")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(author.String, "tester"))
	ver, ok := cld.Dict.Get("version")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(ver.Int, int64(1)))

	a := l.GetPrim(sdfpath.MustParse("/A"))
	tags, ok := a.Metadata.Get("tags")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(tags.Kind, value.Array))
	qt.Assert(t, qt.Equals(tags.ElementType, value.Int))
	qt.Assert(t, qt.Equals(len(tags.Elems), 3))
}

func TestDecodeReopenedPrimMergesStrongOverWeak(t *testing.T) {
	text := `
def "A" {
    double radius = 1
    double height = 5
}
over "A" {
    double radius = 9
}
`
	l, err := sdftext.Decode(text, "/root.usda")
	qt.Assert(t, qt.IsNil(err))
	a := l.GetPrim(sdfpath.MustParse("/A"))
	qt.Assert(t, qt.IsNotNil(a))

	radius, ok := a.Properties.Get("radius")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(radius.Default.Int, int64(9)))

	height, ok := a.Properties.Get("height")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(height.Default.Int, int64(5)))
}

func TestDecodeNestedPrims(t *testing.T) {
	text := `
def "World" {
    def "Group" {
        def Sphere "Ball" {
            double radius = 4
        }
    }
}
`
	l, err := sdftext.Decode(text, "/root.usda")
	qt.Assert(t, qt.IsNil(err))
	ball := l.GetPrim(sdfpath.MustParse("/World/Group/Ball"))
	qt.Assert(t, qt.IsNotNil(ball))
	qt.Assert(t, qt.Equals(ball.TypeName, "Sphere"))
}

func TestDecodeErrorsOnUnterminatedString(t *testing.T) {
	text := `
def "A" {
    token name = "unterminated
}
`
	_, err := sdftext.Decode(text, "/root.usda")
	qt.Assert(t, qt.IsNotNil(err))
}

func TestDecodeErrorsOnMalformedPrim(t *testing.T) {
	text := `
def {
}
`
	_, err := sdftext.Decode(text, "/root.usda")
	qt.Assert(t, qt.IsNotNil(err))
}

func TestDecodeErrorsOnUnterminatedMetadataBlock(t *testing.T) {
	text := `
(
    defaultPrim = "World"
`
	_, err := sdftext.Decode(text, "/root.usda")
	qt.Assert(t, qt.IsNotNil(err))
}
