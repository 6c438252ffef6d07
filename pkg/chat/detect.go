package chat

import (
	"encoding/json"

	"gatehouse-hq/gatehouse/pkg/format"
)

// requestShape carries the fields that identify a request's dialect and
// routing inputs. Everything else in the body passes through untouched.
type requestShape struct {
	Model        string          `json:"model"`
	Messages     json.RawMessage `json:"messages"`
	Input        json.RawMessage `json:"input"`
	Instructions json.RawMessage `json:"instructions"`
	Stream       bool            `json:"stream"`
}

// DetectFormat identifies the client dialect from the body shape: a request
// carrying input or instructions speaks the responses dialect, one carrying
// messages speaks chat completions. Ambiguous bodies (both present) resolve
// to responses, since messages is not a responses-dialect field and the
// client clearly reached for responses-dialect fields.
func DetectFormat(body []byte) (format.Format, error) {
	var shape requestShape
	if err := json.Unmarshal(body, &shape); err != nil {
		return "", &BadRequestError{Message: "request body is not valid JSON", Cause: err}
	}
	switch {
	case len(shape.Input) > 0 || len(shape.Instructions) > 0:
		return format.FormatResponses, nil
	case len(shape.Messages) > 0:
		return format.FormatChat, nil
	}
	return "", &BadRequestError{Message: "request carries neither input nor messages"}
}

// parseShape decodes the routing fields, validating the model name.
func parseShape(body []byte) (requestShape, error) {
	var shape requestShape
	if err := json.Unmarshal(body, &shape); err != nil {
		return shape, &BadRequestError{Message: "request body is not valid JSON", Cause: err}
	}
	if shape.Model == "" {
		return shape, &BadRequestError{Message: "request is missing the model field"}
	}
	return shape, nil
}
