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

// Package stage implements the top-level entry point of spec.md §4.5:
// opening a root asset, composing its layer stack, and running the
// Arc Expander to produce a single composed, expanded layer a caller
// can query by path.
package stage

import (
	"context"
	"fmt"

	"github.com/usdjs/usdlite/pcp/arcs"
	"github.com/usdjs/usdlite/pcp/compose"
	"github.com/usdjs/usdlite/pcp/expand"
	"github.com/usdjs/usdlite/pcp/resolve"
	sdferrors "github.com/usdjs/usdlite/sdf/errors"
	"github.com/usdjs/usdlite/sdf/layer"
	sdfpath "github.com/usdjs/usdlite/sdf/path"
)

// sublayerAssets returns the authored subLayers list as plain asset
// strings, weakest first, per spec.md §4.1.
var sublayerAssets = arcs.ExtractSublayers

// Options configures a Stage composition. The zero value is not
// usable directly; build one with the With* functions below, the way
// cue/load's Config is built from its own option-setting helpers.
type Options struct {
	resolver   resolve.Resolver
	decode     expand.Decoder
	warnings   *sdferrors.List
	layerCache expand.LayerCache
}

// Option mutates an in-progress Options.
type Option func(*Options)

// WithResolver overrides the default FileResolver.
func WithResolver(r resolve.Resolver) Option {
	return func(o *Options) { o.resolver = r }
}

// WithDecoder sets the asset decoder (for example sdftext.Decode). No
// decoder is configured by default: without one, Open and OpenText
// return an error.
func WithDecoder(d expand.Decoder) Option {
	return func(o *Options) { o.decode = d }
}

// WithWarnings routes composition warnings (missing arc targets,
// unresolved variants, resolver failures on non-required assets) into
// the given list instead of discarding them.
func WithWarnings(l *sdferrors.List) Option {
	return func(o *Options) { o.warnings = l }
}

// WithLayerCache shares a composed-layer cache across multiple Stage
// opens, so Stages whose layer graphs overlap (a common sublayer, a
// frequently-referenced asset library) resolve and expand each shared
// identifier only once. The zero value (nil) disables sharing, the
// default.
func WithLayerCache(cache expand.LayerCache) Option {
	return func(o *Options) { o.layerCache = cache }
}

func newOptions(opts []Option) *Options {
	o := &Options{resolver: resolve.FileResolver{}}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Stage is the result of composing one root asset: a single composed,
// expanded layer plus bookkeeping needed to answer further queries.
type Stage struct {
	RootIdentifier string
	Composed       *layer.Layer
	Warnings       *sdferrors.List
}

// Open composes identifier as the root asset, resolving it and every
// arc it transitively reaches through the configured Resolver
// (FileResolver by default). This is the synchronous convenience path
// described by spec.md §4.5; OpenWithResolver is the same pipeline
// with explicit dependency injection for tests.
func Open(ctx context.Context, identifier string, opts ...Option) (*Stage, error) {
	return OpenWithResolver(ctx, identifier, opts...)
}

// OpenWithResolver runs the full composition pipeline: read the root
// asset, compose its declared sublayers weak→strong under its own
// identifier, then run the Arc Expander (pcp/expand) to resolve
// variants, internal references, inherits, specializes, and external
// references/payloads to a fixpoint.
func OpenWithResolver(ctx context.Context, identifier string, opts ...Option) (*Stage, error) {
	o := newOptions(opts)
	decode := o.decode
	if decode == nil {
		decode = defaultDecoder
	}
	warnings := o.warnings
	if warnings == nil {
		warnings = &sdferrors.List{}
	}

	res, err := o.resolver.ReadText(ctx, identifier, "")
	if err != nil {
		return nil, &sdferrors.ResolverError{AssetPath: identifier, Err: err}
	}

	root, err := decode(res.Text, res.Identifier)
	if err != nil {
		return nil, err
	}

	e := expand.New(o.resolver, decode, warnings)
	e.SeedCache(o.layerCache)
	var subLayers []*layer.Layer
	if subVal, ok := root.Metadata.Get("subLayers"); ok {
		for _, assetPath := range sublayerAssets(subVal) {
			sub, serr := e.ResolveAndExpand(ctx, assetPath, res.Identifier)
			if serr != nil {
				warnings.Addf("", "resolving sublayer %q of %q: %v", assetPath, res.Identifier, serr)
				continue
			}
			subLayers = append(subLayers, sub)
		}
	}

	composed := compose.ComposeLayerStack(append(subLayers, root), res.Identifier)

	if err := e.Expand(ctx, composed, append(subLayers, root)); err != nil {
		return nil, err
	}

	return &Stage{RootIdentifier: res.Identifier, Composed: composed, Warnings: warnings}, nil
}

// OpenText composes text as an in-memory root asset identified by
// identifier, without requiring it to be reachable through the
// configured Resolver. References and payloads it authors still
// resolve through the Resolver, relative to identifier.
func OpenText(ctx context.Context, text, identifier string, opts ...Option) (*Stage, error) {
	o := newOptions(opts)
	decode := o.decode
	if decode == nil {
		decode = defaultDecoder
	}
	warnings := o.warnings
	if warnings == nil {
		warnings = &sdferrors.List{}
	}

	root, err := decode(text, identifier)
	if err != nil {
		return nil, err
	}

	var subLayers []*layer.Layer
	e := expand.New(o.resolver, decode, warnings)
	e.SeedCache(o.layerCache)
	if subVal, ok := root.Metadata.Get("subLayers"); ok {
		for _, assetPath := range sublayerAssets(subVal) {
			sub, serr := e.ResolveAndExpand(ctx, assetPath, identifier)
			if serr != nil {
				warnings.Addf("", "resolving sublayer %q of %q: %v", assetPath, identifier, serr)
				continue
			}
			subLayers = append(subLayers, sub)
		}
	}

	composed := compose.ComposeLayerStack(append(subLayers, root), identifier)
	if err := e.Expand(ctx, composed, append(subLayers, root)); err != nil {
		return nil, err
	}

	return &Stage{RootIdentifier: identifier, Composed: composed, Warnings: warnings}, nil
}

// GetPrim returns the composed prim spec at p, or nil.
func (s *Stage) GetPrim(p sdfpath.Path) *layer.PrimSpec {
	return s.Composed.GetPrim(p)
}

func defaultDecoder(text, identifier string) (*layer.Layer, error) {
	return nil, fmt.Errorf("stage: no decoder configured for %q; pass stage.WithDecoder(sdftext.Decode)", identifier)
}
