package httpapi

func openapiSpec() map[string]any {
	idParam := []map[string]any{{"name": "id", "in": "path", "required": true, "schema": map[string]any{"type": "string", "format": "uuid"}}}
	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "eventsapi",
			"version": "1.0.0",
		},
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"bearer": map[string]any{"type": "http", "scheme": "bearer"},
				"apiKey": map[string]any{"type": "apiKey", "in": "header", "name": "X-API-Key"},
			},
		},
		"paths": map[string]any{
			"/auth/register": map[string]any{
				"post": map[string]any{"summary": "Register a user"},
			},
			"/auth/login": map[string]any{
				"post": map[string]any{"summary": "Exchange credentials for a bearer token"},
			},
			"/auth/me": map[string]any{
				"get": map[string]any{"summary": "Current user"},
			},
			"/events": map[string]any{
				"get": map[string]any{
					"summary":    "List events by date",
					"parameters": []map[string]any{{"name": "search", "in": "query", "schema": map[string]any{"type": "string"}}},
				},
				"post": map[string]any{"summary": "Create event (multipart, optional image)"},
			},
			"/events/{id}": map[string]any{
				"parameters": idParam,
				"get":        map[string]any{"summary": "Get event"},
				"put":        map[string]any{"summary": "Update own event"},
				"delete":     map[string]any{"summary": "Delete own event"},
			},
			"/events/{id}/history": map[string]any{
				"parameters": idParam,
				"get":        map[string]any{"summary": "Audit trail of an event"},
			},
		},
	}
}
