package domain

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// FieldKind is the blueprint's name for a kind of form field.
type FieldKind string

// Field kinds produced by the planner.
const (
	FieldText      FieldKind = "text"
	FieldParagraph FieldKind = "paragraph"
	FieldEmail     FieldKind = "email"
	FieldPhone     FieldKind = "phone"
	FieldNumber    FieldKind = "number"
	FieldDropdown  FieldKind = "dropdown"
	FieldCheckbox  FieldKind = "checkbox"
	FieldRadio     FieldKind = "radio"
	FieldDate      FieldKind = "date"
	FieldTime      FieldKind = "time"
	FieldRating    FieldKind = "rating"
	FieldFile      FieldKind = "file"
)

// IsChoice reports whether the kind presents a fixed list of options.
func (k FieldKind) IsChoice() bool {
	return k == FieldDropdown || k == FieldCheckbox || k == FieldRadio
}

// Blueprint is the desired state of a conversation's form. It travels as the
// payload of an execute_form task and is never mutated once enqueued.
type Blueprint struct {
	Title       string    `json:"title"                 validate:"required,max=300"`
	Description string    `json:"description,omitempty"`
	Fields      []Field   `json:"fields"                validate:"dive"`
	Settings    *Settings `json:"settings,omitempty"`
}

// Field is one question of the blueprint.
type Field struct {
	Type       FieldKind        `json:"type"                 validate:"required"`
	Label      string           `json:"label,omitempty"`
	Required   bool             `json:"required,omitempty"`
	Options    []string         `json:"options,omitempty"    validate:"dive,required"`
	Validation *FieldValidation `json:"validation,omitempty"`
}

// FieldValidation bounds a rating field.
type FieldValidation struct {
	Min *int `json:"min,omitempty"`
	Max *int `json:"max,omitempty"`
}

// Settings are form-level options.
type Settings struct {
	IsQuiz                 *bool  `json:"is_quiz,omitempty"`
	CollectEmail           bool   `json:"collect_email,omitempty"`
	ConfirmationMessage    string `json:"confirmation_message,omitempty"`
	AllowMultipleResponses *bool  `json:"allow_multiple_responses,omitempty"`
}

//go:embed schema/blueprint.json
var blueprintSchemaJSON []byte

var (
	blueprintSchemaOnce sync.Once
	blueprintSchema     *jsonschema.Schema
	blueprintSchemaErr  error

	validate = validator.New()
)

func compiledBlueprintSchema() (*jsonschema.Schema, error) {
	blueprintSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(blueprintSchemaJSON))
		if err != nil {
			blueprintSchemaErr = fmt.Errorf("unmarshal blueprint schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("blueprint.json", doc); err != nil {
			blueprintSchemaErr = fmt.Errorf("add blueprint schema resource: %w", err)
			return
		}
		blueprintSchema, blueprintSchemaErr = c.Compile("blueprint.json")
	})
	return blueprintSchema, blueprintSchemaErr
}

// ParseBlueprint checks payload against the blueprint JSON schema, decodes
// it and applies the business rules. Every rejection is a validation error.
func ParseBlueprint(payload []byte) (*Blueprint, error) {
	schema, err := compiledBlueprintSchema()
	if err != nil {
		return nil, NewFatalError("blueprint schema unavailable", err)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return nil, NewValidationError("blueprint is not valid JSON", err)
	}
	if err := schema.Validate(inst); err != nil {
		return nil, NewValidationError(fmt.Sprintf("blueprint does not match schema: %v", err), err)
	}

	var bp Blueprint
	if err := json.Unmarshal(payload, &bp); err != nil {
		return nil, NewValidationError("blueprint could not be decoded", err)
	}
	if err := bp.Validate(); err != nil {
		return nil, err
	}
	return &bp, nil
}

// Validate applies struct tags and the rules the schema cannot express.
func (b *Blueprint) Validate() error {
	if err := validate.Struct(b); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
			}
			return NewValidationError("invalid blueprint: "+strings.Join(msgs, "; "), err)
		}
		return NewValidationError("invalid blueprint", err)
	}

	for i, f := range b.Fields {
		if f.Type.IsChoice() && len(f.Options) == 0 {
			return NewValidationError(
				fmt.Sprintf("field %d (%s) requires at least one option", i, f.Type), nil)
		}
		if f.Type == FieldRating {
			low, high := f.RatingBounds()
			if low >= high {
				return NewValidationError(
					fmt.Sprintf("field %d rating bounds must satisfy min < max (got %d..%d)", i, low, high), nil)
			}
		}
	}
	return nil
}

// DisplayLabel is the label used on the form; unlabeled fields read "Question".
func (f Field) DisplayLabel() string {
	if strings.TrimSpace(f.Label) == "" {
		return "Question"
	}
	return f.Label
}

// RatingBounds returns the scale of a rating field, defaulting to 1..5.
func (f Field) RatingBounds() (int, int) {
	low, high := 1, 5
	if f.Validation != nil {
		if f.Validation.Min != nil {
			low = *f.Validation.Min
		}
		if f.Validation.Max != nil {
			high = *f.Validation.Max
		}
	}
	return low, high
}
