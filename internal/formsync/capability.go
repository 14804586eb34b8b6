package formsync

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/phrazzld/formrelay/internal/domain"
	"github.com/phrazzld/formrelay/internal/forms"
)

// converter turns a supported blueprint field into a question.
type converter func(f domain.Field) forms.Item

func textItem(kind forms.QuestionKind) converter {
	return func(f domain.Field) forms.Item {
		return forms.Item{Title: f.DisplayLabel(), Required: f.Required, Kind: kind}
	}
}

func choiceItem(choice forms.ChoiceType) converter {
	return func(f domain.Field) forms.Item {
		return forms.Item{
			Title:      f.DisplayLabel(),
			Required:   f.Required,
			Kind:       forms.KindChoice,
			ChoiceType: choice,
			Options:    append([]string(nil), f.Options...),
		}
	}
}

func scaleItem(f domain.Field) forms.Item {
	low, high := f.RatingBounds()
	return forms.Item{
		Title:          f.DisplayLabel(),
		Required:       f.Required,
		Kind:           forms.KindScale,
		ScaleLow:       low,
		ScaleHigh:      high,
		ScaleLowLabel:  strconv.Itoa(low),
		ScaleHighLabel: strconv.Itoa(high),
	}
}

// capabilities maps every supported field kind to its conversion.
var capabilities = map[domain.FieldKind]converter{
	domain.FieldText:      textItem(forms.KindShortText),
	domain.FieldEmail:     textItem(forms.KindShortText),
	domain.FieldPhone:     textItem(forms.KindShortText),
	domain.FieldNumber:    textItem(forms.KindShortText),
	domain.FieldParagraph: textItem(forms.KindLongText),
	domain.FieldDropdown:  choiceItem(forms.ChoiceDropDown),
	domain.FieldCheckbox:  choiceItem(forms.ChoiceCheckbox),
	domain.FieldRadio:     choiceItem(forms.ChoiceRadio),
	domain.FieldDate:      textItem(forms.KindDate),
	domain.FieldTime:      textItem(forms.KindTime),
	domain.FieldRating:    scaleItem,
}

// unsupported lists field kinds the external service cannot represent.
var unsupported = map[domain.FieldKind]bool{
	domain.FieldFile: true,
}

// Supported reports whether a field kind has a known conversion.
func Supported(kind domain.FieldKind) bool {
	_, ok := capabilities[kind]
	return ok
}

func skippedFieldWarning(f domain.Field) string {
	if f.Label == "" {
		return fmt.Sprintf("%s field skipped", f.Type)
	}
	return fmt.Sprintf("%s field %q skipped", f.Type, f.Label)
}

// Desired is the form a blueprint asks for, expressed in the external model.
type Desired struct {
	Title       string
	Description string
	Items       []forms.Item
	// IsQuiz is nil when the blueprint leaves the quiz setting alone.
	IsQuiz *bool
}

// Plan converts a blueprint into the desired form. Unsupported fields and
// settings are dropped and returned as warnings. Kinds outside the
// capability table fall back to short text.
func Plan(bp *domain.Blueprint, logger *slog.Logger) (Desired, []string) {
	desired := Desired{Title: bp.Title, Description: bp.Description}
	warnings := []string{}

	for i, f := range bp.Fields {
		if unsupported[f.Type] {
			warnings = append(warnings, skippedFieldWarning(f))
			continue
		}
		convert, ok := capabilities[f.Type]
		if !ok {
			logger.Warn("unknown field kind, using short text",
				"field_index", i,
				"field_type", string(f.Type))
			convert = textItem(forms.KindShortText)
		}
		desired.Items = append(desired.Items, convert(f))
	}

	if s := bp.Settings; s != nil {
		desired.IsQuiz = s.IsQuiz
		if s.CollectEmail {
			warnings = append(warnings, "setting collect_email skipped")
		}
		if s.ConfirmationMessage != "" {
			warnings = append(warnings, "setting confirmation_message skipped")
		}
		if s.AllowMultipleResponses != nil {
			warnings = append(warnings, "setting allow_multiple_responses skipped")
		}
	}
	return desired, warnings
}
