package schema

import (
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"voice-agent-service/internal/config"
)

// Operation describes one documented route.
type Operation struct {
	Method      string
	Path        string
	Summary     string
	Tag         string
	Request     *jsonschema.Schema
	Response    *jsonschema.Schema
	ErrorStatus []string
}

// OpenAPI builds an OpenAPI 3.1 document for the given operations.
func OpenAPI(app config.AppConfig, ops []Operation) map[string]any {
	paths := map[string]any{}
	for _, op := range ops {
		item, _ := paths[op.Path].(map[string]any)
		if item == nil {
			item = map[string]any{}
			paths[op.Path] = item
		}

		responses := map[string]any{
			"200": map[string]any{
				"description": "Successful Response",
				"content":     jsonContent(op.Response),
			},
		}
		for _, status := range op.ErrorStatus {
			responses[status] = map[string]any{
				"description": "Error",
				"content":     jsonContent(errorSchema),
			}
		}

		entry := map[string]any{
			"summary":   op.Summary,
			"tags":      []string{op.Tag},
			"responses": responses,
		}
		if op.Request != nil {
			entry["requestBody"] = map[string]any{
				"required": true,
				"content":  jsonContent(op.Request),
			}
		}
		item[strings.ToLower(op.Method)] = entry
	}

	info := map[string]any{
		"title":       app.Name,
		"description": app.Description,
		"version":     app.APIVersion(),
	}
	if app.ContactName != "" || app.ContactURL != "" {
		contact := map[string]any{"name": app.ContactName}
		if app.ContactURL != "" {
			contact["url"] = app.ContactURL
		}
		info["contact"] = contact
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info":    info,
		"paths":   paths,
	}
}

var errorSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"detail": {Type: "string"},
	},
	Required: []string{"detail"},
}

func jsonContent(s *jsonschema.Schema) map[string]any {
	if s == nil {
		s = &jsonschema.Schema{Type: "object"}
	}
	return map[string]any{
		"application/json": map[string]any{"schema": s},
	}
}
