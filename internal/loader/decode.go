package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"reflect"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/desertthunder/makin/internal/shared"
	"gopkg.in/yaml.v3"
)

// Formats lists the file extensions [Decode] understands.
var Formats = []string{".toml", ".yaml", ".yml", ".json"}

// Decode returns a [DecodeFunc] that unmarshals a module file into T according to its extension.
//
// Unknown keys are rejected so typos in module files fail loudly instead of being ignored.
func Decode[T any]() DecodeFunc[T] {
	return func(d Descriptor, data []byte) (T, error) {
		var module T
		ext := strings.ToLower(path.Ext(d.Filename))

		switch ext {
		case ".toml":
			md, err := toml.Decode(string(data), &module)
			if err != nil {
				return module, fmt.Errorf("%w: %v", shared.ErrInvalidModule, err)
			}
			if unknown := unknownKeys(reflect.TypeOf(module), md.Undecoded()); len(unknown) > 0 {
				return module, fmt.Errorf("%w: unknown keys %v", shared.ErrInvalidModule, unknown)
			}
		case ".yaml", ".yml":
			dec := yaml.NewDecoder(bytes.NewReader(data))
			dec.KnownFields(true)
			if err := dec.Decode(&module); err != nil {
				return module, fmt.Errorf("%w: %v", shared.ErrInvalidModule, err)
			}
		case ".json":
			dec := json.NewDecoder(bytes.NewReader(data))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&module); err != nil {
				return module, fmt.Errorf("%w: %v", shared.ErrInvalidModule, err)
			}
		default:
			return module, fmt.Errorf("%w: %q", shared.ErrUnsupportedFile, d.Filename)
		}

		return module, nil
	}
}

// unknownKeys drops the undecoded TOML keys that live below a free-form (interface) field of t.
// Those were decoded as a whole into the interface value.
func unknownKeys(t reflect.Type, undecoded []toml.Key) []toml.Key {
	var unknown []toml.Key
	for _, key := range undecoded {
		if !freeForm(t, key) {
			unknown = append(unknown, key)
		}
	}
	return unknown
}

func freeForm(t reflect.Type, key toml.Key) bool {
	if t == nil {
		return false
	}
	for _, part := range key {
		for t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
			t = t.Elem()
		}
		if t.Kind() == reflect.Interface || t.Kind() == reflect.Map {
			return true
		}
		if t.Kind() != reflect.Struct {
			return false
		}

		field, ok := tomlField(t, part)
		if !ok {
			return false
		}
		t = field.Type
	}
	return false
}

func tomlField(t reflect.Type, name string) (reflect.StructField, bool) {
	for i := range t.NumField() {
		f := t.Field(i)
		tag, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		if tag == name || (tag == "" && strings.EqualFold(f.Name, name)) {
			return f, true
		}
	}
	return reflect.StructField{}, false
}
