package schema

import (
	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go/v3"
)

func generateSchema[T any]() any {
	r := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return r.Reflect(v)
}

// ChoiceSet wraps the branch options offered after a game-mode chapter.
type ChoiceSet struct {
	Choices []Choice `json:"choices" jsonschema_description:"2-3 meaningfully different options for the reader"`
}

var (
	ChapterDnaSchema = generateSchema[ChapterDna]()
	OutlineSchema    = generateSchema[Outline]()
	ChoiceSetSchema  = generateSchema[ChoiceSet]()
)

// DnaResponseFormat constrains the extraction call to the ChapterDna schema.
func DnaResponseFormat() openai.ChatCompletionNewParamsResponseFormatUnion {
	p := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "chapter_dna",
		Description: openai.String("Scene, character, emotional, plot, and ending genetics extracted from a chapter"),
		Schema:      ChapterDnaSchema,
		Strict:      openai.Bool(true),
	}
	return openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: p},
	}
}

// ChoicesResponseFormat constrains branch generation to the ChoiceSet schema.
func ChoicesResponseFormat() openai.ChatCompletionNewParamsResponseFormatUnion {
	p := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "chapter_choices",
		Description: openai.String("Branch options offered to the reader after a chapter"),
		Schema:      ChoiceSetSchema,
		Strict:      openai.Bool(true),
	}
	return openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: p},
	}
}

// OutlineResponseFormat constrains outline generation to the Outline schema.
func OutlineResponseFormat() openai.ChatCompletionNewParamsResponseFormatUnion {
	p := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "story_outline",
		Description: openai.String("A story outline planned from a reader's idea"),
		Schema:      OutlineSchema,
		Strict:      openai.Bool(true),
	}
	return openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: p},
	}
}
