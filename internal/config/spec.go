package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/star/starflux/internal/lightcurve"
)

// LoadSpec reads a system description. Files ending in .json are decoded as
// JSON; anything else as YAML. Unknown fields are rejected.
func LoadSpec(path string) (lightcurve.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return lightcurve.Spec{}, fmt.Errorf("reading system file: %w", err)
	}
	spec, err := DecodeSpec(data, strings.EqualFold(filepath.Ext(path), ".json"))
	if err != nil {
		return lightcurve.Spec{}, fmt.Errorf("%s: %w", path, err)
	}
	return spec, nil
}

// DecodeSpec decodes a JSON or YAML system description and validates its
// shape.
func DecodeSpec(data []byte, isJSON bool) (lightcurve.Spec, error) {
	var spec lightcurve.Spec
	if isJSON {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&spec); err != nil {
			return spec, fmt.Errorf("decoding JSON: %w", err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&spec); err != nil && !errors.Is(err, io.EOF) {
			return spec, fmt.Errorf("decoding YAML: %w", err)
		}
	}
	if err := spec.Validate(); err != nil {
		return spec, err
	}
	return spec, nil
}

// EncodeSpec writes spec as YAML.
func EncodeSpec(w io.Writer, spec lightcurve.Spec) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(spec); err != nil {
		return fmt.Errorf("encoding YAML: %w", err)
	}
	return enc.Close()
}
