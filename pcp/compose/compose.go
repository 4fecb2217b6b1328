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

// Package compose implements the Composer of spec.md §4.1: the
// strong-over-weak merge of prim specs and property specs across a
// layer stack, plus the remap-on-graft clone every arc expansion uses
// to relocate a subtree from one path to another.
package compose

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/usdjs/usdlite/sdf/layer"
	sdfpath "github.com/usdjs/usdlite/sdf/path"
	"github.com/usdjs/usdlite/sdf/value"
)

// MergePrimSpec merges src into dst in place, src stronger than dst,
// per spec.md §4.1.
func MergePrimSpec(dst, src *layer.PrimSpec) {
	isRoot := dst.Path.IsRoot()

	if !isRoot && src.SpecifierAuthored {
		dst.Specifier = src.Specifier
		dst.SpecifierAuthored = true
	}
	if !isRoot && src.TypeName != "" {
		dst.TypeName = src.TypeName
	}

	mergeMetadataStrong(dst.Metadata, src.Metadata)

	for pair := src.Properties.Oldest(); pair != nil; pair = pair.Next() {
		if dstProp, ok := dst.Properties.Get(pair.Key); ok {
			MergePropertyStrong(dstProp, pair.Value)
		} else {
			dst.Properties.Set(pair.Key, pair.Value.Clone())
		}
	}

	if src.VariantSets != nil {
		for pair := src.VariantSets.Oldest(); pair != nil; pair = pair.Next() {
			srcVS := pair.Value
			dstVS := dst.EnsureVariantSet(srcVS.Name)
			for vp := srcVS.Variants.Oldest(); vp != nil; vp = vp.Next() {
				if dstVariant, ok := dstVS.Variants.Get(vp.Key); ok {
					MergePrimSpec(dstVariant, vp.Value)
				} else {
					dstVS.Variants.Set(vp.Key, vp.Value.Clone())
				}
			}
		}
	}

	for pair := src.Children.Oldest(); pair != nil; pair = pair.Next() {
		dstChild, ok := dst.Children.Get(pair.Key)
		if !ok {
			dstChild = layer.NewPrimSpec(pair.Value.Path, pair.Value.Specifier)
			dstChild.SpecifierAuthored = false
			dst.Children.Set(pair.Key, dstChild)
		}
		MergePrimSpec(dstChild, pair.Value)
	}
}

// MergePropertyStrong merges src into dst in place, src stronger.
func MergePropertyStrong(dst, src *layer.PropertySpec) {
	if src.TypeName != "" {
		dst.TypeName = src.TypeName
	}
	if src.Variability != "" {
		dst.Variability = src.Variability
	}
	if src.HasDefault {
		dst.HasDefault = true
		dst.Default = value.DeepCopy(src.Default)
	}
	if src.IsRelationship {
		dst.IsRelationship = true
	}

	merged := orderedmap.New[float64, value.Value]()
	if dst.TimeSamples != nil {
		for pair := dst.TimeSamples.Oldest(); pair != nil; pair = pair.Next() {
			merged.Set(pair.Key, pair.Value)
		}
	}
	if src.TimeSamples != nil {
		for pair := src.TimeSamples.Oldest(); pair != nil; pair = pair.Next() {
			merged.Set(pair.Key, value.DeepCopy(pair.Value))
		}
	}
	dst.TimeSamples = merged

	mergeMetadataStrong(dst.Metadata, src.Metadata)
}

func mergeMetadataStrong(dst, src *layer.Metadata) {
	if src == nil {
		return
	}
	for pair := src.Oldest(); pair != nil; pair = pair.Next() {
		dst.Set(pair.Key, value.DeepCopy(pair.Value))
	}
}

// MergePrimSpecWeak merges srcWeak into dstStrong in place, dstStrong
// winning every conflict, per spec.md §4.1. It is used to graft
// referenced, inherited, or specialized opinions in as weaker than
// the referring or inheriting site.
func MergePrimSpecWeak(dstStrong, srcWeak *layer.PrimSpec) {
	isRoot := dstStrong.Path.IsRoot()

	if !isRoot && !dstStrong.SpecifierAuthored && srcWeak.SpecifierAuthored {
		dstStrong.Specifier = srcWeak.Specifier
		dstStrong.SpecifierAuthored = true
	}
	if !isRoot && (dstStrong.TypeName == "" || dstStrong.TypeName == layer.UnknownTypeName) && srcWeak.TypeName != "" {
		dstStrong.TypeName = srcWeak.TypeName
	}

	mergeMetadataWeak(dstStrong.Metadata, srcWeak.Metadata)

	for pair := srcWeak.Properties.Oldest(); pair != nil; pair = pair.Next() {
		if dstProp, ok := dstStrong.Properties.Get(pair.Key); ok {
			mergePropertyWeak(dstProp, pair.Value)
		} else {
			dstStrong.Properties.Set(pair.Key, pair.Value.Clone())
		}
	}

	if srcWeak.VariantSets != nil {
		for pair := srcWeak.VariantSets.Oldest(); pair != nil; pair = pair.Next() {
			srcVS := pair.Value
			dstVS := dstStrong.EnsureVariantSet(srcVS.Name)
			for vp := srcVS.Variants.Oldest(); vp != nil; vp = vp.Next() {
				if dstVariant, ok := dstVS.Variants.Get(vp.Key); ok {
					MergePrimSpecWeak(dstVariant, vp.Value)
				} else {
					dstVS.Variants.Set(vp.Key, vp.Value.Clone())
				}
			}
		}
	}

	for pair := srcWeak.Children.Oldest(); pair != nil; pair = pair.Next() {
		dstChild, ok := dstStrong.Children.Get(pair.Key)
		if !ok {
			dstStrong.Children.Set(pair.Key, pair.Value.Clone())
			continue
		}
		MergePrimSpecWeak(dstChild, pair.Value)
	}
}

func mergePropertyWeak(dst, src *layer.PropertySpec) {
	if dst.TypeName == "" && src.TypeName != "" {
		dst.TypeName = src.TypeName
	}
	if dst.Variability == "" && src.Variability != "" {
		dst.Variability = src.Variability
	}
	if !dst.HasDefault && src.HasDefault {
		dst.HasDefault = true
		dst.Default = value.DeepCopy(src.Default)
	}
	if !dst.IsRelationship && src.IsRelationship {
		dst.IsRelationship = true
	}
	if src.TimeSamples != nil {
		if dst.TimeSamples == nil {
			dst.TimeSamples = orderedmap.New[float64, value.Value]()
		}
		for pair := src.TimeSamples.Oldest(); pair != nil; pair = pair.Next() {
			if _, exists := dst.TimeSamples.Get(pair.Key); !exists {
				dst.TimeSamples.Set(pair.Key, value.DeepCopy(pair.Value))
			}
		}
	}
	mergeMetadataWeak(dst.Metadata, src.Metadata)
}

func mergeMetadataWeak(dst, src *layer.Metadata) {
	if src == nil {
		return
	}
	for pair := src.Oldest(); pair != nil; pair = pair.Next() {
		if _, exists := dst.Get(pair.Key); !exists {
			dst.Set(pair.Key, value.DeepCopy(pair.Value))
		}
	}
}

// ComposeLayerStack applies MergePrimSpec across layers in weak→strong
// order (layers[0] weakest, layers[len-1] strongest), starting from a
// fresh root, and merges layer metadata under strong-wins. The result
// carries identifier, which must be the root layer's own identifier
// (spec.md §4.5) so downstream arc expansion resolves relative assets
// correctly.
func ComposeLayerStack(layers []*layer.Layer, identifier string) *layer.Layer {
	out := layer.New(identifier)
	for _, l := range layers {
		if l == nil {
			continue
		}
		mergeMetadataStrong(out.Metadata, l.Metadata)
		MergePrimSpec(out.Root, l.Root)
	}
	return out
}

// CloneWithRemap returns a deep clone of the subtree rooted at src
// (whose path is srcRoot), with every internal prim path rebased from
// srcRoot to dstRoot and every embedded Value path-string rewritten to
// match, per spec.md §4.1.1.
func CloneWithRemap(src *layer.PrimSpec, srcRoot, dstRoot sdfpath.Path) *layer.PrimSpec {
	newPath := sdfpath.Remap(src.Path, srcRoot, dstRoot)
	out := layer.NewPrimSpec(newPath, src.Specifier)
	out.SpecifierAuthored = src.SpecifierAuthored
	out.TypeName = src.TypeName

	for pair := src.Metadata.Oldest(); pair != nil; pair = pair.Next() {
		out.Metadata.Set(pair.Key, value.Remap(pair.Value, srcRoot, dstRoot))
	}

	for pair := src.Properties.Oldest(); pair != nil; pair = pair.Next() {
		out.Properties.Set(pair.Key, remapProperty(pair.Value, newPath, srcRoot, dstRoot))
	}

	if src.VariantSets != nil {
		out.VariantSets = orderedmap.New[string, *layer.VariantSetSpec]()
		for pair := src.VariantSets.Oldest(); pair != nil; pair = pair.Next() {
			vs := pair.Value
			newVS := layer.NewVariantSetSpec(vs.Name)
			for vp := vs.Variants.Oldest(); vp != nil; vp = vp.Next() {
				newVS.Variants.Set(vp.Key, CloneWithRemap(vp.Value, srcRoot, dstRoot))
			}
			out.VariantSets.Set(pair.Key, newVS)
		}
	}

	for pair := src.Children.Oldest(); pair != nil; pair = pair.Next() {
		child := CloneWithRemap(pair.Value, srcRoot, dstRoot)
		out.Children.Set(pair.Key, child)
	}

	return out
}

func remapProperty(src *layer.PropertySpec, newPrimPath, srcRoot, dstRoot sdfpath.Path) *layer.PropertySpec {
	out := src.Clone()
	out.Path, _ = sdfpath.Property(newPrimPath, src.Path.PropertyName(), src.Path.Field())
	if out.HasDefault {
		out.Default = value.Remap(src.Default, srcRoot, dstRoot)
	}
	if src.TimeSamples != nil {
		ts := orderedmap.New[float64, value.Value]()
		for pair := src.TimeSamples.Oldest(); pair != nil; pair = pair.Next() {
			ts.Set(pair.Key, value.Remap(pair.Value, srcRoot, dstRoot))
		}
		out.TimeSamples = ts
	}
	for pair := src.Metadata.Oldest(); pair != nil; pair = pair.Next() {
		out.Metadata.Set(pair.Key, value.Remap(pair.Value, srcRoot, dstRoot))
	}
	return out
}
