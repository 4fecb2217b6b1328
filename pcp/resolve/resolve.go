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

// Package resolve implements the Resolver abstraction of spec.md §4.4:
// a capability that turns (assetPath, fromIdentifier) into a canonical
// identifier and the asset's text content. The engine only depends on
// the Resolver interface; FileResolver is one concrete, filesystem-
// backed implementation provided for tests and small standalone tools,
// grounded the way cue/build's loader resolves import paths relative
// to a module root.
package resolve

import (
	"context"
	"fmt"
	"net/url"
	"os"
	pathpkg "path"
	"strings"
)

// Result is what a Resolver read returns: the canonical identifier the
// asset was resolved to, and its text content.
type Result struct {
	Identifier string
	Text       string
}

// Resolver reads a named asset relative to fromIdentifier. The
// returned identifier must be canonical: the same (assetPath,
// fromIdentifier) pair must always yield the same identifier, so
// callers can cache reads by identifier (spec.md §4.4).
//
// ReadText is the only suspension point in the engine (spec.md §5);
// every other operation is synchronous.
type Resolver interface {
	ReadText(ctx context.Context, assetPath, fromIdentifier string) (Result, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, assetPath, fromIdentifier string) (Result, error)

func (f ResolverFunc) ReadText(ctx context.Context, assetPath, fromIdentifier string) (Result, error) {
	return f(ctx, assetPath, fromIdentifier)
}

// IsAbsolute reports whether assetPath should be used as-is rather
// than resolved relative to fromIdentifier: a leading "/" or a URL
// scheme ("scheme://").
func IsAbsolute(assetPath string) bool {
	if strings.HasPrefix(assetPath, "/") {
		return true
	}
	if u, err := url.Parse(assetPath); err == nil && u.Scheme != "" {
		return true
	}
	return false
}

// CanonicalIdentifier computes the canonical identifier spec.md §4.4
// requires: if assetPath is absolute it is returned as-is; else if
// fromIdentifier carries a URL scheme, standard URL-relative
// resolution applies; else path-style resolution joins the directory
// of fromIdentifier with assetPath and normalizes "." and ".."
// components without collapsing the leading "/".
func CanonicalIdentifier(assetPath, fromIdentifier string) (string, error) {
	if IsAbsolute(assetPath) {
		return assetPath, nil
	}
	if fromURL, err := url.Parse(fromIdentifier); err == nil && fromURL.Scheme != "" {
		rel, err := url.Parse(assetPath)
		if err != nil {
			return "", fmt.Errorf("resolve: invalid relative asset path %q: %w", assetPath, err)
		}
		return fromURL.ResolveReference(rel).String(), nil
	}
	dir := pathpkg.Dir(fromIdentifier)
	joined := pathpkg.Join(dir, assetPath)
	if !strings.HasPrefix(joined, "/") && strings.HasPrefix(fromIdentifier, "/") {
		joined = "/" + joined
	}
	return joined, nil
}

// FileResolver reads assets from the local filesystem, treating every
// identifier as a filesystem path.
type FileResolver struct{}

func (FileResolver) ReadText(ctx context.Context, assetPath, fromIdentifier string) (Result, error) {
	id, err := CanonicalIdentifier(assetPath, fromIdentifier)
	if err != nil {
		return Result{}, err
	}
	data, err := os.ReadFile(id)
	if err != nil {
		return Result{}, fmt.Errorf("resolve: reading %q: %w", id, err)
	}
	return Result{Identifier: id, Text: string(data)}, nil
}

// MapResolver resolves assets from an in-memory identifier->text map,
// useful for deterministic tests (spec.md §8's scenario fixtures).
type MapResolver map[string]string

func (m MapResolver) ReadText(ctx context.Context, assetPath, fromIdentifier string) (Result, error) {
	id, err := CanonicalIdentifier(assetPath, fromIdentifier)
	if err != nil {
		return Result{}, err
	}
	text, ok := m[id]
	if !ok {
		return Result{}, fmt.Errorf("resolve: no asset registered for %q (from %q)", id, fromIdentifier)
	}
	return Result{Identifier: id, Text: text}, nil
}

// CountingResolver wraps another Resolver and counts calls per
// canonical identifier, used by the bounded-fetch regression tests in
// spec.md §8 (testable properties 7 and 8).
type CountingResolver struct {
	Resolver
	calls int
	byID  map[string]int
}

func NewCountingResolver(r Resolver) *CountingResolver {
	return &CountingResolver{Resolver: r, byID: map[string]int{}}
}

func (c *CountingResolver) ReadText(ctx context.Context, assetPath, fromIdentifier string) (Result, error) {
	res, err := c.Resolver.ReadText(ctx, assetPath, fromIdentifier)
	c.calls++
	if err == nil {
		c.byID[res.Identifier]++
	}
	return res, err
}

// TotalCalls returns the number of ReadText calls made so far.
func (c *CountingResolver) TotalCalls() int { return c.calls }

// CallsFor returns how many times the given canonical identifier was
// successfully resolved.
func (c *CountingResolver) CallsFor(identifier string) int { return c.byID[identifier] }
