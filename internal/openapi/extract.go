// Package openapi extracts an OpenAPI document from a response and scores it against the API design rules.
package openapi

import (
	"strings"

	"github.com/codalotl/skilleval/internal/ordered"
	"github.com/codalotl/skilleval/internal/rules"
	"github.com/codalotl/skilleval/internal/textscan"
	"github.com/codalotl/skilleval/internal/unwrap"
)

var fenceTags = [][]string{{"json"}, {"yaml"}, {"yml"}, nil}

// Marker reports whether text mentions an OpenAPI document.
func Marker(text string) bool {
	return strings.Contains(text, "openapi") || strings.Contains(text, "paths")
}

// ExtractRaw runs Extract against the response text and then against any written-file payload.
func ExtractRaw(raw string) (*Object, error) {
	if raw == "" {
		return nil, rules.Extractionf("empty output")
	}
	for _, candidate := range []string{unwrap.Response(raw), unwrap.PermissionDenialContent(raw, nil)} {
		if candidate == "" {
			continue
		}
		if spec, err := Extract(candidate); err == nil {
			return spec, nil
		}
	}
	return nil, rules.Extractionf("could not extract valid JSON or YAML spec")
}

// Extract returns the first mapping found in text: the first json, yaml, yml or untagged fence that decodes to a mapping,
// the whole text as JSON, the whole text as YAML when it has an openapi or paths key, and finally the first balanced
// {...} span as JSON.
func Extract(text string) (*Object, error) {
	if strings.TrimSpace(text) == "" {
		return nil, rules.Extractionf("empty output")
	}

	for _, tags := range fenceTags {
		body, ok := textscan.FirstFence(text, tags...)
		if !ok {
			continue
		}
		if obj, ok := parseMapping(body); ok {
			return obj, nil
		}
	}

	if v, err := ordered.ParseJSON(text); err == nil {
		if obj, ok := v.(*Object); ok {
			return obj, nil
		}
	}
	if v, err := ordered.ParseYAML(text); err == nil {
		if obj, ok := v.(*Object); ok && (obj.Has("openapi") || obj.Has("paths")) {
			return obj, nil
		}
	}
	if span, ok := textscan.FirstBalanced(text); ok {
		if v, err := ordered.ParseJSON(span); err == nil {
			if obj, ok := v.(*Object); ok {
				return obj, nil
			}
		}
	}
	return nil, rules.Extractionf("could not extract valid JSON or YAML spec")
}

func parseMapping(body string) (*Object, bool) {
	if v, err := ordered.ParseJSON(body); err == nil {
		if obj, ok := v.(*Object); ok {
			return obj, true
		}
	}
	if v, err := ordered.ParseYAML(body); err == nil {
		if obj, ok := v.(*Object); ok {
			return obj, true
		}
	}
	return nil, false
}

// ValidateStructure reports missing or malformed openapi, info and paths keys.
func ValidateStructure(spec *Object) []string {
	var errs []string
	if !spec.Has("openapi") {
		if spec.Has("swagger") {
			errs = append(errs, "uses Swagger 2.0 instead of OpenAPI 3.0")
		} else {
			errs = append(errs, "missing 'openapi' version field")
		}
	}
	if !spec.Has("info") {
		errs = append(errs, "missing 'info' block")
	} else if spec.Obj("info") == nil {
		errs = append(errs, "'info' is not an object")
	}
	if !spec.Has("paths") {
		errs = append(errs, "missing 'paths' block")
	} else if spec.Obj("paths") == nil {
		errs = append(errs, "'paths' is not an object")
	}
	return errs
}
