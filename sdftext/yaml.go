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

	"gopkg.in/yaml.v3"

	"github.com/usdjs/usdlite/sdf/layer"
	sdfpath "github.com/usdjs/usdlite/sdf/path"
	"github.com/usdjs/usdlite/sdf/value"
)

// yamlLayer is the minimal YAML-encoded layer fixture shape DecodeYAML
// accepts: a document-root metadata map and a tree of prims. It is a
// test convenience, not an alternate wire format for spec.md §6's text
// grammar — property and metadata values are plain YAML scalars/lists,
// not the full asset/sdfpath/list-op literal syntax sdftext.Decode
// parses.
type yamlLayer struct {
	Metadata map[string]interface{} `yaml:"metadata"`
	Prims    []yamlPrim              `yaml:"prims"`
}

type yamlPrim struct {
	Name      string                 `yaml:"name"`
	Type      string                 `yaml:"type"`
	Specifier string                 `yaml:"specifier"`
	Metadata  map[string]interface{} `yaml:"metadata"`
	Props     map[string]interface{} `yaml:"properties"`
	Children  []yamlPrim             `yaml:"children"`
}

// DecodeYAML parses a YAML-encoded layer fixture into a layer, for
// tests that would rather author a small Go-native document than the
// ".usda"-subset text grammar Decode parses. It shares no parsing code
// with Decode: the two are independent front ends over the same
// sdf/layer data model.
func DecodeYAML(text, identifier string) (*layer.Layer, error) {
	var doc yamlLayer
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("sdftext: decoding YAML layer %q: %w", identifier, err)
	}

	l := layer.New(identifier)
	for k, v := range doc.Metadata {
		l.Metadata.Set(k, yamlToValue(v))
	}
	for _, p := range doc.Prims {
		if err := addYAMLPrim(l.Root, sdfpath.Root, p); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func addYAMLPrim(parent *layer.PrimSpec, parentPath sdfpath.Path, p yamlPrim) error {
	childPath, err := parentPath.Child(p.Name)
	if err != nil {
		return fmt.Errorf("sdftext: invalid prim name %q: %w", p.Name, err)
	}
	spec := layer.NewPrimSpec(childPath, yamlSpecifier(p.Specifier))
	spec.TypeName = p.Type

	for k, v := range p.Metadata {
		spec.Metadata.Set(k, yamlToValue(v))
	}
	for name, v := range p.Props {
		propPath, err := sdfpath.Property(childPath, name, "")
		if err != nil {
			return fmt.Errorf("sdftext: invalid property name %q on %q: %w", name, childPath, err)
		}
		prop := spec.GetOrCreateProperty(name, propPath)
		prop.HasDefault = true
		prop.Default = yamlToValue(v)
	}
	for _, c := range p.Children {
		if err := addYAMLPrim(spec, childPath, c); err != nil {
			return err
		}
	}

	parent.Children.Set(p.Name, spec)
	return nil
}

func yamlSpecifier(s string) layer.Specifier {
	switch s {
	case "over":
		return layer.Over
	case "class":
		return layer.Class
	default:
		return layer.Def
	}
}

// yamlToValue converts a decoded YAML scalar/sequence/mapping into the
// closest sdf/value.Value shape. Sequences become Array values (typed
// only when every element shares a kind); mappings become Dict values.
func yamlToValue(v interface{}) value.Value {
	switch t := v.(type) {
	case nil:
		return value.NewNull()
	case bool:
		return value.NewBool(t)
	case int:
		return value.NewInt(int64(t))
	case int64:
		return value.NewInt(t)
	case float64:
		return value.NewFloat(t)
	case string:
		return value.NewString(t)
	case []interface{}:
		elems := make([]value.Value, len(t))
		elemKind := value.Invalid
		for i, e := range t {
			elems[i] = yamlToValue(e)
			if i == 0 {
				elemKind = elems[i].Kind
			} else if elems[i].Kind != elemKind {
				elemKind = value.Invalid
			}
		}
		return value.NewArray(elemKind, elems)
	case map[string]interface{}:
		d := value.NewDict()
		for k, e := range t {
			d.Set(k, yamlToValue(e))
		}
		return value.NewDictValue(d)
	default:
		return value.NewString(fmt.Sprintf("%v", t))
	}
}
