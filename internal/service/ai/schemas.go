package ai

func stringArray() map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
}

func object(props map[string]any) map[string]any {
	required := make([]string, 0, len(props))
	for name := range props {
		required = append(required, name)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func str() map[string]any { return map[string]any{"type": "string"} }

// IdeasSchema wraps the list of titles in an object, as structured output
// requires an object at the top level.
var IdeasSchema = object(map[string]any{
	"ideas": stringArray(),
})

var DraftSchema = object(map[string]any{
	"content":         str(),
	"metaTitle":       str(),
	"metaDescription": str(),
	"focusKeywords":   stringArray(),
})

var StyleSchema = object(map[string]any{
	"tone":              str(),
	"sentenceStructure": str(),
	"paragraphLength":   str(),
	"formattingStyle":   str(),
})

var PlagiarismSchema = object(map[string]any{
	"originalityScore": map[string]any{"type": "number"},
	"flaggedPassages":  stringArray(),
	"summary":          str(),
})

var DataSectionSchema = object(map[string]any{
	"heading": str(),
	"facts":   stringArray(),
})
