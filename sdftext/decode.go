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

package sdftext

import (
	"fmt"
	"strconv"

	"github.com/usdjs/usdlite/sdf/layer"
	sdfpath "github.com/usdjs/usdlite/sdf/path"
	"github.com/usdjs/usdlite/sdf/value"
)

var listOpKeywords = map[string]bool{
	"prepend": true, "append": true, "add": true, "delete": true,
}

type parser struct {
	lex  *lexer
	tok  token
	peek *token
}

// Decode parses text (the ".usda"-subset grammar of spec.md §6) into
// a single, un-sublayered, un-expanded layer named identifier. It
// satisfies pcp/expand.Decoder and is passed to usd/stage through
// stage.WithDecoder; usd/stage has no decoder by default.
func Decode(text, identifier string) (*layer.Layer, error) {
	p := &parser{lex: newLexer(text)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p.parseFile(identifier)
}

func (p *parser) advance() error {
	if p.peek != nil {
		p.tok = *p.peek
		p.peek = nil
		return nil
	}
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) errf(format string, args ...interface{}) error {
	return &lexError{line: p.tok.line, msg: fmt.Sprintf(format, args...)}
}

func (p *parser) expectPunct(s string) error {
	if p.tok.kind != tokPunct || p.tok.text != s {
		return p.errf("expected %q, got %q", s, p.tok.text)
	}
	return p.advance()
}

func (p *parser) atPunct(s string) bool { return p.tok.kind == tokPunct && p.tok.text == s }
func (p *parser) atWord(s string) bool  { return p.tok.kind == tokWord && p.tok.text == s }

// parseFile consumes an optional "#usda 1.0" header comment (already
// skipped by the lexer's '#' handling), an optional layer metadata
// block, and a sequence of top-level prim blocks.
func (p *parser) parseFile(identifier string) (*layer.Layer, error) {
	l := layer.New(identifier)

	if p.atPunct("(") {
		meta, err := p.parseMetadataBlock()
		if err != nil {
			return nil, err
		}
		for pair := meta.Oldest(); pair != nil; pair = pair.Next() {
			l.Metadata.Set(pair.Key, pair.Value)
		}
	}

	for p.tok.kind != tokEOF {
		if err := p.parsePrimInto(l.Root, sdfpath.Root); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// parseMetadataBlock parses "( key = value ... )", returning the
// entries in authored order.
func (p *parser) parseMetadataBlock() (*layer.Metadata, error) {
	meta := layer.NewMetadata()
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	for !p.atPunct(")") {
		if p.tok.kind == tokEOF {
			return nil, p.errf("unterminated metadata block")
		}
		key, val, err := p.parseKeyedValue()
		if err != nil {
			return nil, err
		}
		meta.Set(key, val)
	}
	return meta, p.expectPunct(")")
}

// parseKeyedValue parses one "[op] key = value" entry, wrapping value
// in {op, value} per spec.md §4.2 when a list-op prefix is present.
func (p *parser) parseKeyedValue() (string, value.Value, error) {
	if p.tok.kind != tokWord {
		return "", value.Value{}, p.errf("expected a metadata key, got %q", p.tok.text)
	}
	op := ""
	if listOpKeywords[p.tok.text] {
		op = p.tok.text
		if err := p.advance(); err != nil {
			return "", value.Value{}, err
		}
	}
	key := p.tok.text
	if err := p.advance(); err != nil {
		return "", value.Value{}, err
	}
	if err := p.expectPunct("="); err != nil {
		return "", value.Value{}, err
	}
	v, err := p.parseValue()
	if err != nil {
		return "", value.Value{}, err
	}
	if op != "" {
		d := value.NewDict()
		d.Set("op", value.NewToken(op))
		d.Set("value", v)
		v = value.NewDictValue(d)
	}
	return key, v, nil
}

// parseValue parses a single value literal: string, asset, sdfpath,
// word (number/bool/token), array, or dict.
func (p *parser) parseValue() (value.Value, error) {
	switch {
	case p.tok.kind == tokString:
		s := p.tok.text
		return value.NewString(s), p.advance()

	case p.tok.kind == tokAsset:
		return p.parseAssetOrReference()

	case p.tok.kind == tokSdfPath:
		s := p.tok.text
		if err := p.advance(); err != nil {
			return value.Value{}, err
		}
		return value.NewSdfPath(s), nil

	case p.atPunct("["):
		return p.parseArray()

	case p.atPunct("{"):
		return p.parseDict()

	case p.tok.kind == tokWord:
		return p.parseWordValue()
	}
	return value.Value{}, p.errf("unexpected token %q in value position", p.tok.text)
}

// parseAssetOrReference parses "@path@" or "@path@</Target>" into a
// plain Asset value or a Reference value.
func (p *parser) parseAssetOrReference() (value.Value, error) {
	assetPath := p.tok.text
	if err := p.advance(); err != nil {
		return value.Value{}, err
	}
	if p.tok.kind == tokSdfPath {
		target := p.tok.text
		if err := p.advance(); err != nil {
			return value.Value{}, err
		}
		return value.NewReference(value.Ref{AssetPath: assetPath, TargetPath: target}), nil
	}
	return value.NewAsset(assetPath), nil
}

func (p *parser) parseArray() (value.Value, error) {
	if err := p.expectPunct("["); err != nil {
		return value.Value{}, err
	}
	var elems []value.Value
	for !p.atPunct("]") {
		if p.tok.kind == tokEOF {
			return value.Value{}, p.errf("unterminated array")
		}
		v, err := p.parseValue()
		if err != nil {
			return value.Value{}, err
		}
		elems = append(elems, v)
		if p.atPunct(",") {
			if err := p.advance(); err != nil {
				return value.Value{}, err
			}
		}
	}
	if err := p.expectPunct("]"); err != nil {
		return value.Value{}, err
	}
	elemKind := value.Invalid
	if len(elems) > 0 {
		elemKind = elems[0].Kind
		for _, e := range elems[1:] {
			if e.Kind != elemKind {
				elemKind = value.Invalid
				break
			}
		}
	}
	return value.NewArray(elemKind, elems), nil
}

// parseDict parses "{ key : value, ... }" or "{ key = value ... }",
// used for inline dict values such as variants selections. variantSet
// bodies also open with '{' but are parsed by parseVariantSet.
func (p *parser) parseDict() (value.Value, error) {
	if err := p.expectPunct("{"); err != nil {
		return value.Value{}, err
	}
	d := value.NewDict()
	for !p.atPunct("}") {
		if p.tok.kind == tokEOF {
			return value.Value{}, p.errf("unterminated dict")
		}
		var key string
		if p.tok.kind == tokString || p.tok.kind == tokWord {
			key = p.tok.text
			if err := p.advance(); err != nil {
				return value.Value{}, err
			}
		} else {
			return value.Value{}, p.errf("expected dict key, got %q", p.tok.text)
		}
		if p.atPunct(":") || p.atPunct("=") {
			if err := p.advance(); err != nil {
				return value.Value{}, err
			}
		} else {
			return value.Value{}, p.errf("expected ':' or '=' after dict key %q", key)
		}
		v, err := p.parseValue()
		if err != nil {
			return value.Value{}, err
		}
		d.Set(key, v)
		if p.atPunct(",") {
			if err := p.advance(); err != nil {
				return value.Value{}, err
			}
		}
	}
	return value.NewDictValue(d), p.expectPunct("}")
}

func (p *parser) parseWordValue() (value.Value, error) {
	w := p.tok.text
	if err := p.advance(); err != nil {
		return value.Value{}, err
	}
	switch w {
	case "true":
		return value.NewBool(true), nil
	case "false":
		return value.NewBool(false), nil
	}
	if looksNumeric(w) {
		if i, err := strconv.ParseInt(w, 10, 64); err == nil {
			return value.NewInt(i), nil
		}
		f, _ := strconv.ParseFloat(w, 64)
		return value.NewFloat(f), nil
	}
	return value.NewToken(w), nil
}

var specifierWords = map[string]layer.Specifier{
	"def": layer.Def, "over": layer.Over, "class": layer.Class,
}

// parsePrimInto parses one def/over/class block (or, inside a body,
// one property or variantSet declaration) and merges it into parent,
// which already lives at parentPath.
func (p *parser) parsePrimInto(parent *layer.PrimSpec, parentPath sdfpath.Path) error {
	if specifier, ok := specifierWords[p.tok.text]; ok && p.tok.kind == tokWord {
		return p.parsePrim(parent, parentPath, specifier)
	}
	if p.atWord("variantSet") {
		return p.parseVariantSet(parent, parentPath)
	}
	return p.parseProperty(parent)
}

func (p *parser) parsePrim(parent *layer.PrimSpec, parentPath sdfpath.Path, specifier layer.Specifier) error {
	if err := p.advance(); err != nil { // consume def/over/class
		return err
	}
	typeName := ""
	if p.tok.kind == tokWord {
		typeName = p.tok.text
		if err := p.advance(); err != nil {
			return err
		}
	}
	if p.tok.kind != tokString {
		return p.errf("expected prim name, got %q", p.tok.text)
	}
	name := p.tok.text
	if err := p.advance(); err != nil {
		return err
	}

	childPath, err := parentPath.Child(name)
	if err != nil {
		return err
	}
	spec := layer.NewPrimSpec(childPath, specifier)
	spec.TypeName = typeName

	if p.atPunct("(") {
		meta, err := p.parseMetadataBlock()
		if err != nil {
			return err
		}
		for pair := meta.Oldest(); pair != nil; pair = pair.Next() {
			spec.Metadata.Set(pair.Key, pair.Value)
		}
	}

	if err := p.expectPunct("{"); err != nil {
		return err
	}
	for !p.atPunct("}") {
		if p.tok.kind == tokEOF {
			return p.errf("unterminated prim body for %q", childPath)
		}
		if err := p.parsePrimInto(spec, childPath); err != nil {
			return err
		}
	}
	if err := p.expectPunct("}"); err != nil {
		return err
	}

	if existing, ok := parent.Children.Get(name); ok {
		// A def/over/class re-opening an already-declared sibling
		// within the same file is folded into the first-seen spec,
		// the later block winning (see mergeSamePrim).
		mergeSamePrim(existing, spec)
		return nil
	}
	parent.Children.Set(name, spec)
	return nil
}

// mergeSamePrim folds a later in-file re-opening of a prim into the
// first-seen spec: the later type name, metadata entries, property
// specs (each replaced whole, not merged field by field) and variants
// win, children are merged recursively, and the first-seen specifier
// is kept. It does not use pcp/compose, so sdftext stays independent
// of the composition engine.
func mergeSamePrim(dst, src *layer.PrimSpec) {
	if src.TypeName != "" {
		dst.TypeName = src.TypeName
	}
	for pair := src.Metadata.Oldest(); pair != nil; pair = pair.Next() {
		dst.Metadata.Set(pair.Key, pair.Value)
	}
	for pair := src.Properties.Oldest(); pair != nil; pair = pair.Next() {
		dst.Properties.Set(pair.Key, pair.Value)
	}
	if src.VariantSets != nil {
		for pair := src.VariantSets.Oldest(); pair != nil; pair = pair.Next() {
			dst.EnsureVariantSet(pair.Key)
			for vp := pair.Value.Variants.Oldest(); vp != nil; vp = vp.Next() {
				vs, _ := dst.VariantSets.Get(pair.Key)
				vs.Variants.Set(vp.Key, vp.Value)
			}
		}
	}
	for pair := src.Children.Oldest(); pair != nil; pair = pair.Next() {
		if existing, ok := dst.Children.Get(pair.Key); ok {
			mergeSamePrim(existing, pair.Value)
		} else {
			dst.Children.Set(pair.Key, pair.Value)
		}
	}
}

// parseVariantSet parses `variantSet "name" = { "variant" { body } ... }`.
func (p *parser) parseVariantSet(parent *layer.PrimSpec, parentPath sdfpath.Path) error {
	if err := p.advance(); err != nil { // consume "variantSet"
		return err
	}
	if p.tok.kind != tokString {
		return p.errf("expected variant set name, got %q", p.tok.text)
	}
	setName := p.tok.text
	if err := p.advance(); err != nil {
		return err
	}
	if err := p.expectPunct("="); err != nil {
		return err
	}
	if err := p.expectPunct("{"); err != nil {
		return err
	}
	vs := parent.EnsureVariantSet(setName)
	for !p.atPunct("}") {
		if p.tok.kind != tokString {
			return p.errf("expected variant name, got %q", p.tok.text)
		}
		variantName := p.tok.text
		if err := p.advance(); err != nil {
			return err
		}
		variantSpec := layer.NewPrimSpec(parentPath, layer.Over)
		if err := p.expectPunct("{"); err != nil {
			return err
		}
		for !p.atPunct("}") {
			if p.tok.kind == tokEOF {
				return p.errf("unterminated variant %q body", variantName)
			}
			if err := p.parsePrimInto(variantSpec, parentPath); err != nil {
				return err
			}
		}
		if err := p.expectPunct("}"); err != nil {
			return err
		}
		vs.Variants.Set(variantName, variantSpec)
	}
	return p.expectPunct("}")
}

// parseProperty parses "[uniform] TYPE NAME = VALUE" or "rel NAME = VALUE".
func (p *parser) parseProperty(parent *layer.PrimSpec) error {
	variability := ""
	if p.atWord("uniform") {
		variability = "uniform"
		if err := p.advance(); err != nil {
			return err
		}
	} else if p.atWord("varying") {
		variability = "varying"
		if err := p.advance(); err != nil {
			return err
		}
	}

	isRel := false
	if p.atWord("rel") {
		isRel = true
		if err := p.advance(); err != nil {
			return err
		}
	}

	typeName := ""
	if !isRel {
		if p.tok.kind != tokWord {
			return p.errf("expected a property type, got %q", p.tok.text)
		}
		typeName = p.tok.text
		if err := p.advance(); err != nil {
			return err
		}
	}

	if p.tok.kind != tokWord {
		return p.errf("expected a property name, got %q", p.tok.text)
	}
	name := p.tok.text
	if err := p.advance(); err != nil {
		return err
	}

	propPath, err := sdfpath.Property(parent.Path, name, "")
	if err != nil {
		return err
	}
	prop := parent.GetOrCreateProperty(name, propPath)
	prop.TypeName = typeName
	prop.Variability = variability
	prop.IsRelationship = isRel

	if p.atPunct("=") {
		if err := p.advance(); err != nil {
			return err
		}
		v, err := p.parseValue()
		if err != nil {
			return err
		}
		prop.HasDefault = true
		prop.Default = v
	}

	if p.atPunct("(") {
		meta, err := p.parseMetadataBlock()
		if err != nil {
			return err
		}
		for pair := meta.Oldest(); pair != nil; pair = pair.Next() {
			prop.Metadata.Set(pair.Key, pair.Value)
		}
	}
	return nil
}
