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

// Package expand implements the Arc Expander of spec.md §4.3: the
// stage-level driver that applies sublayers, variants, internal
// references, inherits, specializes, and external references/payloads
// to a composed layer until a fixpoint, producing the final composed
// layer.
package expand

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/google/uuid"

	"github.com/usdjs/usdlite/pcp/arcs"
	"github.com/usdjs/usdlite/pcp/compose"
	"github.com/usdjs/usdlite/pcp/resolve"
	sdferrors "github.com/usdjs/usdlite/sdf/errors"
	"github.com/usdjs/usdlite/sdf/layer"
	sdfpath "github.com/usdjs/usdlite/sdf/path"
	"github.com/usdjs/usdlite/sdf/value"
)

// Decoder turns asset text into a single (unexpanded, un-sublayered)
// layer. sdftext.Decode is the concrete implementation this module
// ships; the Arc Expander depends only on this function type so a
// binary-crate reader could be substituted without touching this
// package, matching spec.md §1's "external collaborator" framing.
type Decoder func(text, identifier string) (*layer.Layer, error)

const prototypeRoot = "/__usdjs_prototypes"

type externalArcGuard struct {
	prim, kind, assetPath, targetPath, fromIdentifier string
}

type prototypeKey struct {
	assetPath, targetPath, fromIdentifier string
}

// prototypeHash returns key's bucket in the prototype table. Collision
// between two distinct keys is astronomically unlikely at 64 bits but
// not impossible, so lookups always confirm with a full key
// comparison (see ensurePrototype) instead of trusting the hash alone.
func prototypeHash(key prototypeKey) string {
	h := fnv.New64a()
	h.Write([]byte(key.assetPath))
	h.Write([]byte{0})
	h.Write([]byte(key.targetPath))
	h.Write([]byte{0})
	h.Write([]byte(key.fromIdentifier))
	return fmt.Sprintf("%x", h.Sum64())
}

type prototypeEntry struct {
	key  prototypeKey
	path sdfpath.Path
}

// Expander runs the §4.3 pipeline against a composed layer. Every
// field below is scoped to a single composition call (spec.md §5): a
// fresh Expander must be used per Stage composition.
type Expander struct {
	Resolver resolve.Resolver
	Decode   Decoder
	Warnings *sdferrors.List

	layerCache       map[string]*layer.Layer // canonical identifier -> composed+expanded layer
	sharedCache      LayerCache              // set by SeedCache; written back to as new identifiers resolve
	expandedLayerIDs map[string]bool
	inProgress       map[string]bool
	prototypes       map[string][]prototypeEntry // prototypeHash -> entries sharing that bucket
	prototypeCounter int
	appliedVariants  map[[3]string]bool
	appliedArcs      map[[3]string]bool // metaKey, primPath, targetPath
	appliedExternal  map[externalArcGuard]bool
}

// LayerCache maps a canonical identifier to its already composed and
// expanded layer. A caller that composes many Stages sharing common
// sublayers/references (spec.md §4.5, "WithLayerCache") can pass the
// same LayerCache across calls via SeedCache to avoid re-resolving and
// re-expanding shared assets.
type LayerCache = map[string]*layer.Layer

// New returns an Expander ready to run against a single composition.
func New(resolver resolve.Resolver, decode Decoder, warnings *sdferrors.List) *Expander {
	return &Expander{
		Resolver:         resolver,
		Decode:           decode,
		Warnings:         warnings,
		layerCache:       map[string]*layer.Layer{},
		expandedLayerIDs: map[string]bool{},
		inProgress:       map[string]bool{},
		prototypes:       map[string][]prototypeEntry{},
		appliedVariants:  map[[3]string]bool{},
		appliedArcs:      map[[3]string]bool{},
		appliedExternal:  map[externalArcGuard]bool{},
	}
}

// SeedCache pre-populates the Expander's layer cache from a shared
// LayerCache, and arranges for every identifier resolved or produced
// during this Expander's lifetime to be written back into it. Assets
// already present in cache are treated exactly like ones this Expander
// resolved itself this run: expandedLayerIDs is marked for each so a
// later arc into the same identifier reuses it instead of re-expanding.
func (e *Expander) SeedCache(cache LayerCache) {
	if cache == nil {
		return
	}
	e.sharedCache = cache
	for id, l := range cache {
		e.layerCache[id] = l
		e.expandedLayerIDs[id] = true
	}
}

func (e *Expander) warnf(primPath, format string, args ...interface{}) {
	if e.Warnings != nil {
		e.Warnings.Addf(primPath, format, args...)
	}
}

// Expand runs the full §4.3 pipeline against composed in place.
// layerStack is the original weak→strong layer sequence that produced
// composed, used to approximate per-prim authoring strength for the
// inherit strength-flip heuristic (spec.md §4.3.3, §9).
//
// authoredIndex is computed once here and threaded through as a local
// value, never stored on the Expander: runExternalArcPass below
// recurses into e.Expand for every external arc it resolves, and each
// of those nested calls needs its own layerStack's authoredIndex
// without disturbing this call's.
func (e *Expander) Expand(ctx context.Context, composed *layer.Layer, layerStack []*layer.Layer) error {
	authoredIndex := computeAuthoredIndex(layerStack)

	e.runVariantPass(composed)
	e.runArcClassPass(composed, "references", false, authoredIndex)
	e.runArcClassPass(composed, "inherits", true, authoredIndex)
	e.runArcClassPass(composed, "specializes", false, authoredIndex)
	e.runVariantPass(composed)

	if err := e.runExternalArcPass(ctx, composed); err != nil {
		return err
	}

	for i := 0; i < 3; i++ {
		e.runArcClassPass(composed, "inherits", true, authoredIndex)
		e.runArcClassPass(composed, "specializes", false, authoredIndex)
		e.runVariantPass(composed)
		e.runArcClassPass(composed, "references", false, authoredIndex)
	}

	// Final in-layer pass: variant content merged above may have
	// introduced arcs not visible to the earlier passes.
	if err := e.runExternalArcPass(ctx, composed); err != nil {
		return err
	}
	return nil
}

func walk(ps *layer.PrimSpec, fn func(*layer.PrimSpec)) {
	fn(ps)
	for pair := ps.Children.Oldest(); pair != nil; pair = pair.Next() {
		walk(pair.Value, fn)
	}
}

func computeAuthoredIndex(layerStack []*layer.Layer) map[string]int {
	idx := map[string]int{}
	var assign func(ps *layer.PrimSpec, i int)
	assign = func(ps *layer.PrimSpec, i int) {
		idx[ps.Path.String()] = i
		for pair := ps.Children.Oldest(); pair != nil; pair = pair.Next() {
			assign(pair.Value, i)
		}
	}
	for i, l := range layerStack {
		if l == nil {
			continue
		}
		assign(l.Root, i)
	}
	return idx
}

func getToken(meta *layer.Metadata, key string) (string, bool) {
	v, ok := meta.Get(key)
	if !ok {
		return "", false
	}
	if v.Kind == value.Token || v.Kind == value.String {
		return v.String, true
	}
	return "", false
}

func getBool(meta *layer.Metadata, key string) bool {
	v, ok := meta.Get(key)
	return ok && v.Kind == value.Bool && v.Bool
}

// runVariantPass applies phase 1/4/6/7's variant selection to a
// fixpoint: for every prim carrying both variantSets and a "variants"
// selection dict, the selected variant prim is merged into its parent
// (strong, since authored). Testable property 6 bounds convergence at
// ≤ N passes for N total selections; 64 is a generous static cap.
func (e *Expander) runVariantPass(composed *layer.Layer) {
	for i := 0; i < 64; i++ {
		if !e.variantPassOnce(composed) {
			return
		}
	}
}

func (e *Expander) variantPassOnce(composed *layer.Layer) bool {
	changed := false
	walk(composed.Root, func(ps *layer.PrimSpec) {
		if ps.VariantSets == nil {
			return
		}
		sel, ok := ps.Metadata.Get("variants")
		if !ok || sel.Kind != value.Dict || sel.Dict == nil {
			return
		}
		for pair := sel.Dict.Oldest(); pair != nil; pair = pair.Next() {
			setName := pair.Key
			variantName := pair.Value.String
			key := [3]string{ps.Path.String(), setName, variantName}
			if e.appliedVariants[key] {
				continue
			}
			vs, ok := ps.VariantSets.Get(setName)
			if !ok {
				continue
			}
			variantPrim, ok := vs.Variants.Get(variantName)
			if !ok {
				e.warnf(ps.Path.String(), "variant %q not found in set %q", variantName, setName)
				continue
			}
			compose.MergePrimSpec(ps, variantPrim)
			e.appliedVariants[key] = true
			changed = true
		}
	})
	return changed
}

// runArcClassPass drives phases 2/3 (internal references and
// inherits) and the specializes arc, which never flips strong: for
// every prim carrying internal arcs under metaKey, the source prim is
// cloned-with-remap and accumulated, then folded into the prim either
// weak (the common case) or strong when allowStrengthFlip is set and
// the source was authored in a stronger layer than the referring
// prim (spec.md §4.3.3 step 3, an acknowledged approximation).
// authoredIndex is the caller's local path->layer-index map (see
// Expand), passed explicitly rather than read off the Expander so
// a recursive e.Expand call made while resolving an external arc
// elsewhere in the same pipeline can never clobber it.
func (e *Expander) runArcClassPass(composed *layer.Layer, metaKey string, allowStrengthFlip bool, authoredIndex map[string]int) {
	walk(composed.Root, func(ps *layer.PrimSpec) {
		if getBool(ps.Metadata, "__instance__") {
			return
		}
		v, ok := ps.Metadata.Get(metaKey)
		if !ok {
			return
		}
		_, internal := arcs.Extract(arcs.Reference, v, composed.Identifier)
		if len(internal) == 0 {
			return
		}

		accumulator := layer.NewPrimSpec(ps.Path, layer.Over)
		any := false
		for _, target := range internal {
			guard := [3]string{metaKey, ps.Path.String(), target.String()}
			if e.appliedArcs[guard] {
				continue
			}

			src := composed.GetPrim(target)
			if src == nil {
				e.warnf(ps.Path.String(), "%s target %q not found", metaKey, target)
				continue
			}
			// Only an arc whose target was found is recorded, so a target
			// that appears in a later pass (or in an outer layer) still applies.
			e.appliedArcs[guard] = true
			clone := compose.CloneWithRemap(src, target.PrimPart(), ps.Path)
			compose.MergePrimSpec(accumulator, clone)
			any = true
		}
		if !any {
			return
		}

		strong := false
		if allowStrengthFlip {
			psIdx := authoredIndex[ps.Path.String()]
			maxTargetIdx := -1
			for _, target := range internal {
				if idx, ok := authoredIndex[target.String()]; ok && idx > maxTargetIdx {
					maxTargetIdx = idx
				}
			}
			strong = maxTargetIdx > psIdx
		}
		if strong {
			compose.MergePrimSpec(ps, accumulator)
		} else {
			compose.MergePrimSpecWeak(ps, accumulator)
		}
	})
}

func metaKeyForKind(kind arcs.Kind) string {
	if kind == arcs.Payload {
		return "payload"
	}
	return "references"
}

// runExternalArcPass drives phase 5/7: for every prim, external
// reference and payload arcs are resolved, recursively expanded, and
// folded into a per-prim accumulator (references first, payloads on
// top so payload content can override reference content, matching
// spec.md §8 scenario S1), then merged weak into the prim.
func (e *Expander) runExternalArcPass(ctx context.Context, composed *layer.Layer) error {
	var firstErr error
	walk(composed.Root, func(ps *layer.PrimSpec) {
		if firstErr != nil {
			return
		}
		if err := e.applyExternalArcsForPrim(ctx, composed, ps); err != nil {
			firstErr = err
		}
	})
	return firstErr
}

func (e *Expander) applyExternalArcsForPrim(ctx context.Context, composed *layer.Layer, ps *layer.PrimSpec) error {
	instance := getBool(ps.Metadata, "instanceable")
	accumulator := layer.NewPrimSpec(ps.Path, layer.Over)
	any := false

	for _, kind := range [...]arcs.Kind{arcs.Reference, arcs.Payload} {
		key := metaKeyForKind(kind)
		v, ok := ps.Metadata.Get(key)
		if !ok {
			continue
		}
		external, _ := arcs.Extract(kind, v, composed.Identifier)
		for _, arc := range external {
			guard := externalArcGuard{ps.Path.String(), key, arc.AssetPath, arc.TargetPath, arc.FromIdentifier}
			if e.appliedExternal[guard] {
				continue
			}
			e.appliedExternal[guard] = true

			if instance {
				protoPath, found, err := e.ensurePrototype(ctx, composed, arc)
				if err != nil {
					e.warnf(ps.Path.String(), "resolving instanceable %s %q: %v", key, arc.AssetPath, err)
					continue
				}
				if !found {
					continue
				}
				ps.Metadata.Set(key, value.NewSdfPath(protoPath.String()))
				ps.Metadata.Set("__instance__", value.NewBool(true))
				continue
			}

			loaded, err := e.resolveAndExpand(ctx, arc)
			if err != nil {
				e.warnf(ps.Path.String(), "resolving %s %q: %v", key, arc.AssetPath, err)
				continue
			}
			src := selectSourcePrim(loaded, arc.TargetPath)
			if src == nil {
				continue
			}
			clone := compose.CloneWithRemap(src, src.Path, ps.Path)
			compose.MergePrimSpec(accumulator, clone)
			any = true
		}
	}

	if any {
		compose.MergePrimSpecWeak(ps, accumulator)
	}
	return nil
}

// ensurePrototype implements spec.md §4.3.2: an instanceable prim's
// referenced asset is materialized once under
// /__usdjs_prototypes/p<N>, keyed by (assetPath, targetPath,
// fromIdentifier), and the instance itself is never grafted.
func (e *Expander) ensurePrototype(ctx context.Context, composed *layer.Layer, arc arcs.External) (sdfpath.Path, bool, error) {
	key := prototypeKey{arc.AssetPath, arc.TargetPath, arc.FromIdentifier}
	bucket := prototypeHash(key)
	for _, entry := range e.prototypes[bucket] {
		if entry.key == key {
			return entry.path, true, nil
		}
	}

	loaded, err := e.resolveAndExpand(ctx, arc)
	if err != nil {
		return sdfpath.Path{}, false, err
	}
	src := selectSourcePrim(loaded, arc.TargetPath)
	if src == nil {
		return sdfpath.Path{}, false, nil
	}

	e.prototypeCounter++
	var protoPath sdfpath.Path
	if len(e.prototypes[bucket]) == 0 {
		protoPath = sdfpath.MustParse(fmt.Sprintf("%s/p%d", prototypeRoot, e.prototypeCounter))
	} else {
		// A different (assetPath, targetPath, fromIdentifier) triple
		// hashed into the same bucket. The deterministic p<N> name
		// would then be ambiguous across the two keys, so a uuid
		// suffix disambiguates this one instead.
		e.warnf("", "prototype hash collision for %q, disambiguating with a uuid suffix", arc.AssetPath)
		suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
		protoPath = sdfpath.MustParse(fmt.Sprintf("%s/p%d_%s", prototypeRoot, e.prototypeCounter, suffix))
	}

	protoSpec := composed.EnsurePrim(protoPath, layer.Def)
	clone := compose.CloneWithRemap(src, src.Path, protoPath)
	compose.MergePrimSpec(protoSpec, clone)
	e.prototypes[bucket] = append(e.prototypes[bucket], prototypeEntry{key: key, path: protoPath})
	return protoPath, true, nil
}

// ResolveAndExpand resolves assetPath relative to fromIdentifier,
// composes its own sublayers, and recursively expands it. It is the
// entry point usd/stage uses to load the root asset's own declared
// sublayers through the same cache and cycle guards arc expansion
// uses internally.
func (e *Expander) ResolveAndExpand(ctx context.Context, assetPath, fromIdentifier string) (*layer.Layer, error) {
	return e.resolveAndExpand(ctx, arcs.External{Kind: arcs.Reference, AssetPath: assetPath, FromIdentifier: fromIdentifier})
}

// resolveAndExpand resolves arc's asset, decodes it, composes its own
// sublayers weak→strong under its own identifier, and recursively
// expands it, guarded by expandedLayerIDs and inProgress (spec.md
// §4.3.1 step 5, §4.3.3, §9 "cyclic graphs").
func (e *Expander) resolveAndExpand(ctx context.Context, arc arcs.External) (*layer.Layer, error) {
	guess, gerr := resolve.CanonicalIdentifier(arc.AssetPath, arc.FromIdentifier)
	if gerr == nil {
		if l, ok := e.layerCache[guess]; ok {
			return l, nil
		}
	}

	res, err := e.Resolver.ReadText(ctx, arc.AssetPath, arc.FromIdentifier)
	if err != nil {
		return nil, &sdferrors.ResolverError{AssetPath: arc.AssetPath, FromIdentifier: arc.FromIdentifier, Err: err}
	}
	if l, ok := e.layerCache[res.Identifier]; ok {
		e.layerCache[guess] = l
		return l, nil
	}

	if e.inProgress[res.Identifier] {
		// Cycle: contribute this layer's own (unexpanded) content
		// once without recursing further, per spec.md §4.3.3/§9.
		loaded, derr := e.Decode(res.Text, res.Identifier)
		if derr != nil {
			return nil, derr
		}
		return loaded, nil
	}
	e.inProgress[res.Identifier] = true
	defer delete(e.inProgress, res.Identifier)

	loaded, err := e.Decode(res.Text, res.Identifier)
	if err != nil {
		return nil, err
	}

	var subLayers []*layer.Layer
	if subVal, ok := loaded.Metadata.Get("subLayers"); ok {
		for _, assetPath := range arcs.ExtractSublayers(subVal) {
			subArc := arcs.External{Kind: arcs.Reference, AssetPath: assetPath, FromIdentifier: res.Identifier}
			subLoaded, serr := e.resolveAndExpand(ctx, subArc)
			if serr != nil {
				e.warnf("", "resolving sublayer %q of %q: %v", assetPath, res.Identifier, serr)
				continue
			}
			subLayers = append(subLayers, subLoaded)
		}
	}

	composedLoaded := compose.ComposeLayerStack(append(subLayers, loaded), res.Identifier)

	if !e.expandedLayerIDs[res.Identifier] {
		e.expandedLayerIDs[res.Identifier] = true
		if err := e.Expand(ctx, composedLoaded, append(subLayers, loaded)); err != nil {
			return nil, err
		}
	}

	e.layerCache[res.Identifier] = composedLoaded
	if gerr == nil {
		e.layerCache[guess] = composedLoaded
	}
	if e.sharedCache != nil {
		e.sharedCache[res.Identifier] = composedLoaded
	}
	return composedLoaded, nil
}

// selectSourcePrim picks the prim an external arc grafts, per spec.md
// §4.3.1 step 5 and §4.6: targetPath if given, else defaultPrim, else
// the first root child; nil if none apply (the arc contributes
// nothing, silently).
func selectSourcePrim(l *layer.Layer, targetPath string) *layer.PrimSpec {
	if targetPath != "" {
		p, err := sdfpath.Parse(targetPath)
		if err != nil {
			return nil
		}
		return l.GetPrim(p)
	}
	if name, ok := getToken(l.Metadata, "defaultPrim"); ok && name != "" {
		child, _ := l.Root.Children.Get(name)
		return child
	}
	if pair := l.Root.Children.Oldest(); pair != nil {
		return pair.Value
	}
	return nil
}
