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

// Package path implements the immutable path algebra described by the
// scene description data model: absolute prim paths of the form
// "/A/B/C" and property paths of the form "/A/B/C.prop" or
// "/A/B/C.prop.field".
//
// A Path is a small, comparable value (backed by plain strings, not a
// slice of segments) so it can be used directly as a map key, the way
// adt.Feature is used as a map key throughout the composition engine
// this package is modeled on.
package path

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	sdferrors "github.com/usdjs/usdlite/sdf/errors"
)

// Kind distinguishes prim paths from property paths.
type Kind int

const (
	PrimPath Kind = iota
	PropertyPath
)

// Path is an absolute prim path, or a prim path plus a property (and
// optional field) suffix. The zero Path is invalid; use Root or Parse.
type Path struct {
	kind  Kind
	prim  string // canonical absolute prim path, e.g. "/", "/World/Char"
	prop  string // property name (possibly namespaced with ':'); empty for prim paths
	field string // optional sub-field after a second '.'; empty if absent
}

// Root is the absolute root prim path "/".
var Root = Path{kind: PrimPath, prim: "/"}

func (p Path) Kind() Kind { return p.kind }

func (p Path) IsPrimPath() bool     { return p.kind == PrimPath }
func (p Path) IsPropertyPath() bool { return p.kind == PropertyPath }

// PrimPart returns the prim-path portion of p, dropping any property suffix.
func (p Path) PrimPart() Path { return Path{kind: PrimPath, prim: p.prim} }

// PropertyName returns the property identifier, or "" for a prim path.
func (p Path) PropertyName() string { return p.prop }

// Field returns the optional field suffix, or "" if absent.
func (p Path) Field() string { return p.field }

// IsRoot reports whether p is exactly the root prim path "/".
func (p Path) IsRoot() bool { return p.kind == PrimPath && p.prim == "/" }

// Segments returns the prim path's components, excluding the leading
// "/". The root path returns an empty slice.
func (p Path) Segments() []string {
	if p.prim == "/" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(p.prim, "/"), "/")
}

// String renders p back to its canonical textual form.
func (p Path) String() string {
	var b strings.Builder
	b.WriteString(p.prim)
	if p.kind == PropertyPath {
		b.WriteByte('.')
		b.WriteString(p.prop)
		if p.field != "" {
			b.WriteByte('.')
			b.WriteString(p.field)
		}
	}
	return b.String()
}

// Equal reports whether p and q denote the same path.
func (p Path) Equal(q Path) bool { return p == q }

const identPart = `[A-Za-z_][A-Za-z0-9_]*`

func isIdentPart(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	if !(c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')) {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if !(c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')) {
			return false
		}
	}
	return true
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, part := range strings.Split(s, ":") {
		if !isIdentPart(part) {
			return false
		}
	}
	return true
}

// splitVariantSelection splits a path component of the form
// "Name{set=variant}" into ("Name", "set", "variant"), or returns
// ok=false if the component carries no variant selection.
func splitVariantSelection(comp string) (name, set, variant string, ok bool) {
	i := strings.IndexByte(comp, '{')
	if i < 0 {
		return comp, "", "", false
	}
	if !strings.HasSuffix(comp, "}") {
		return "", "", "", false
	}
	name = comp[:i]
	inner := comp[i+1 : len(comp)-1]
	eq := strings.IndexByte(inner, '=')
	if eq < 0 {
		return "", "", "", false
	}
	return name, inner[:eq], inner[eq+1:], true
}

func validComponent(comp string) bool {
	name, set, variant, hasSel := splitVariantSelection(comp)
	if hasSel {
		return isIdent(name) && isIdent(set) && isIdent(variant)
	}
	return isIdent(comp)
}

// Parse parses the textual form of a path, either a bare prim path
// ("/A/B") or a property path ("/A/B.prop" or "/A/B.prop.field").
//
// Parse errors are PathErrors (see sdf/errors); they are thrown
// synchronously as spec.md §7 requires.
func Parse(s string) (Path, error) {
	s = norm.NFC.String(s)
	if s == "" || s[0] != '/' {
		return Path{}, &sdferrors.PathError{Text: s, Message: "not absolute"}
	}

	primText := s
	var prop, field string
	kind := PrimPath
	if i := strings.IndexByte(s, '.'); i >= 0 {
		primText = s[:i]
		rest := s[i+1:]
		kind = PropertyPath
		if j := strings.IndexByte(rest, '.'); j >= 0 {
			prop, field = rest[:j], rest[j+1:]
		} else {
			prop = rest
		}
		if !isIdent(prop) {
			return Path{}, &sdferrors.PathError{Text: s, Message: fmt.Sprintf("invalid property name %q", prop)}
		}
		if field != "" && !isIdent(field) {
			return Path{}, &sdferrors.PathError{Text: s, Message: fmt.Sprintf("invalid field %q", field)}
		}
	}

	if primText == "/" {
		return Path{kind: kind, prim: "/", prop: prop, field: field}, nil
	}
	comps := strings.Split(strings.TrimPrefix(primText, "/"), "/")
	for _, c := range comps {
		if !validComponent(c) {
			return Path{}, &sdferrors.PathError{Text: s, Message: fmt.Sprintf("invalid path component %q", c)}
		}
	}
	return Path{kind: kind, prim: primText, prop: prop, field: field}, nil
}

// MustParse is Parse but panics on error; useful in tests and literals.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Child returns the prim path formed by appending name as a direct
// child of p. p must be a prim path.
func (p Path) Child(name string) (Path, error) {
	if p.kind != PrimPath {
		return Path{}, fmt.Errorf("path: Child called on property path %q", p)
	}
	if !validComponent(name) {
		return Path{}, fmt.Errorf("path: invalid child name %q", name)
	}
	if p.prim == "/" {
		return Path{kind: PrimPath, prim: "/" + name}, nil
	}
	return Path{kind: PrimPath, prim: p.prim + "/" + name}, nil
}

// Parent returns the parent prim path of p (dropping any property
// suffix first), and false if p is already the root.
func (p Path) Parent() (Path, bool) {
	prim := p.prim
	if prim == "/" {
		return Path{}, false
	}
	i := strings.LastIndexByte(prim, '/')
	if i == 0 {
		return Path{kind: PrimPath, prim: "/"}, true
	}
	return Path{kind: PrimPath, prim: prim[:i]}, true
}

// Name returns the final path component's plain name (ignoring any
// variant selection and any property suffix).
func (p Path) Name() string {
	segs := p.Segments()
	if len(segs) == 0 {
		return ""
	}
	last := segs[len(segs)-1]
	name, _, _, hasSel := splitVariantSelection(last)
	if hasSel {
		return name
	}
	return last
}

// Property builds a property path from a prim path, property name and
// optional field ("" for none).
func Property(prim Path, name, field string) (Path, error) {
	if prim.kind != PrimPath {
		return Path{}, fmt.Errorf("path: Property requires a prim path, got %q", prim)
	}
	if !isIdent(name) {
		return Path{}, fmt.Errorf("path: invalid property name %q", name)
	}
	if field != "" && !isIdent(field) {
		return Path{}, fmt.Errorf("path: invalid field %q", field)
	}
	return Path{kind: PropertyPath, prim: prim.prim, prop: name, field: field}, nil
}

// HasPrefix reports whether p's prim part is root, or equal to, or a
// descendant of root.
func (p Path) HasPrefix(root Path) bool {
	if root.prim == "/" {
		return true
	}
	if p.prim == root.prim {
		return true
	}
	return strings.HasPrefix(p.prim, root.prim+"/")
}

// Remap rewrites p so that any prim path equal to or rooted at srcRoot
// becomes rooted at dstRoot instead, preserving any property suffix
// and any deeper child segments. Paths that are neither equal to nor
// rooted at srcRoot pass through unchanged. Remap is total on valid
// (absolute) inputs and always produces an absolute result.
func Remap(p, srcRoot, dstRoot Path) Path {
	if !p.HasPrefix(srcRoot) {
		return p
	}
	if p.prim == srcRoot.prim {
		return Path{kind: p.kind, prim: dstRoot.prim, prop: p.prop, field: p.field}
	}
	var suffix string
	if srcRoot.prim == "/" {
		suffix = strings.TrimPrefix(p.prim, "/")
	} else {
		suffix = strings.TrimPrefix(p.prim, srcRoot.prim+"/")
	}
	var newPrim string
	if dstRoot.prim == "/" {
		newPrim = "/" + suffix
	} else {
		newPrim = dstRoot.prim + "/" + suffix
	}
	return Path{kind: p.kind, prim: newPrim, prop: p.prop, field: p.field}
}
