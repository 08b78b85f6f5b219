package comment

import (
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/StefanHeng/test-ECG-Signal-Viewer/errors"
)

// documentSchema describes a stored comment document: an array of
// [centerTime, centerAmplitude, originTime, originAmplitude, channel, text].
const documentSchema = `{
	"$schema": "http://json-schema.org/draft-04/schema#",
	"type": "array",
	"items": {
		"type": "array",
		"minItems": 6,
		"maxItems": 6,
		"items": [
			{"type": "number"},
			{"type": "number"},
			{"type": "number"},
			{"type": "number"},
			{"type": "integer", "minimum": 0},
			{"type": "string"}
		]
	}
}`

var loadSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(documentSchema))
})

// validateDocument checks raw document bytes before decoding, so a damaged
// file is reported with the offending positions.
func validateDocument(data []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return errors.WrapFatal(err, "CommentStore", "validateDocument", "compile document schema")
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return corrupted("%v", err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.Field()+": "+desc.Description())
	}
	return corrupted("%s", strings.Join(problems, "; "))
}
