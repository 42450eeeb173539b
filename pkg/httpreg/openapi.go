package httpreg

import (
	"regexp"
	"strings"
)

var pathParamPattern = regexp.MustCompile(`\{([^}/]+)\}`)

// OpenAPIDocument renders the registry as a minimal OpenAPI 3 document. The
// output is advisory: nothing at runtime depends on it, it exists for admin
// surfaces and client generation.
func (r *Registry) OpenAPIDocument(title, version string) map[string]any {
	paths := make(map[string]any)

	for _, ep := range r.List() {
		operation := map[string]any{
			"operationId": ep.Service,
			"responses": map[string]any{
				"200": map[string]any{"description": "service result"},
			},
		}
		if ep.Description != "" {
			operation["summary"] = ep.Description
		}
		if ep.Deprecated {
			operation["deprecated"] = true
		}

		var params []map[string]any
		for _, m := range pathParamPattern.FindAllStringSubmatch(ep.Path, -1) {
			params = append(params, map[string]any{
				"name":     m[1],
				"in":       "path",
				"required": true,
				"schema":   map[string]any{"type": "string"},
			})
		}
		if params != nil {
			operation["parameters"] = params
		}

		item, ok := paths[ep.Path].(map[string]any)
		if !ok {
			item = make(map[string]any)
			paths[ep.Path] = item
		}
		item[strings.ToLower(ep.Method)] = operation
	}

	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   title,
			"version": version,
		},
		"paths": paths,
	}
}
