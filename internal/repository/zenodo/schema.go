package zenodo

// metadataSchema is a JSON-schema-shaped description of the deposition
// metadata fields this adapter populates. Served to clients for form
// generation only; the pipeline does not validate against it.
var metadataSchema = map[string]any{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"title":   "Zenodo deposition metadata",
	"type":    "object",
	"properties": map[string]any{
		"title": map[string]any{
			"type":        "string",
			"description": "Deposition title, defaults to the session name",
		},
		"upload_type": map[string]any{
			"type": "string",
			"enum": []string{"dataset"},
		},
		"description": map[string]any{
			"type":        "string",
			"description": "Plain text with <br> separated blocks",
		},
		"creators": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":        map[string]any{"type": "string", "description": "Family, Given"},
					"affiliation": map[string]any{"type": "string"},
					"orcid":       map[string]any{"type": "string"},
				},
				"required": []string{"name"},
			},
		},
		"communities": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"identifier": map[string]any{"type": "string"},
				},
			},
		},
	},
	"required": []string{"title", "upload_type", "description"},
}
