// Package forms defines the contract between the form sync and the external
// form service: a service-neutral model of a form, the operations that
// mutate it, and the client that applies them.
package forms

import (
	"context"
	"slices"
)

// QuestionKind is the external representation of a question.
type QuestionKind string

// Question kinds the external service supports.
const (
	KindShortText QuestionKind = "short_text"
	KindLongText  QuestionKind = "long_text"
	KindChoice    QuestionKind = "choice"
	KindDate      QuestionKind = "date"
	KindTime      QuestionKind = "time"
	KindScale     QuestionKind = "scale"
)

// ChoiceType selects how a choice question is presented.
type ChoiceType string

// Choice presentations.
const (
	ChoiceDropDown ChoiceType = "DROP_DOWN"
	ChoiceCheckbox ChoiceType = "CHECKBOX"
	ChoiceRadio    ChoiceType = "RADIO"
)

// Item is one question of a form.
type Item struct {
	// ItemID is assigned by the external service and is empty for items
	// that do not exist yet.
	ItemID   string
	Title    string
	Required bool
	Kind     QuestionKind

	ChoiceType ChoiceType
	Options    []string

	ScaleLow       int
	ScaleHigh      int
	ScaleLowLabel  string
	ScaleHighLabel string
}

// SameStructure reports whether two items render the same question,
// ignoring the service-assigned ID.
func (i Item) SameStructure(o Item) bool {
	return i.Title == o.Title &&
		i.Required == o.Required &&
		i.Kind == o.Kind &&
		i.ChoiceType == o.ChoiceType &&
		slices.Equal(i.Options, o.Options) &&
		i.ScaleLow == o.ScaleLow &&
		i.ScaleHigh == o.ScaleHigh &&
		i.ScaleLowLabel == o.ScaleLowLabel &&
		i.ScaleHighLabel == o.ScaleHighLabel
}

// Form is the state of an external form as read back from the service.
type Form struct {
	ExternalID  string
	URL         string
	Title       string
	Description string
	IsQuiz      bool
	Items       []Item
}

// OpKind discriminates Operation.
type OpKind string

// Operation kinds.
const (
	OpUpdateInfo     OpKind = "update_info"
	OpCreateItem     OpKind = "create_item"
	OpUpdateItem     OpKind = "update_item"
	OpDeleteItem     OpKind = "delete_item"
	OpUpdateSettings OpKind = "update_settings"
)

// Operation is one structural change. A batch is applied in order, so the
// index of each operation refers to the form as left by the previous one.
type Operation struct {
	Kind  OpKind
	Index int
	Item  *Item

	Title       string
	Description string
	IsQuiz      bool
}

// UpdateInfo sets the title and description.
func UpdateInfo(title, description string) Operation {
	return Operation{Kind: OpUpdateInfo, Title: title, Description: description}
}

// CreateItem inserts item at index.
func CreateItem(index int, item Item) Operation {
	return Operation{Kind: OpCreateItem, Index: index, Item: &item}
}

// UpdateItem replaces the item at index in place.
func UpdateItem(index int, item Item) Operation {
	return Operation{Kind: OpUpdateItem, Index: index, Item: &item}
}

// DeleteItem removes the item at index.
func DeleteItem(index int) Operation {
	return Operation{Kind: OpDeleteItem, Index: index}
}

// UpdateSettings sets the quiz flag.
func UpdateSettings(isQuiz bool) Operation {
	return Operation{Kind: OpUpdateSettings, IsQuiz: isQuiz}
}

// Client talks to the external form service on behalf of one principal.
// Implementations return domain.TaskError values classified by category and
// never retry.
type Client interface {
	// Create makes an empty form and returns its external ID.
	Create(ctx context.Context, title, description string) (string, error)

	// ApplyOperations applies ops as one batch.
	ApplyOperations(ctx context.Context, externalID string, ops []Operation) error

	// Read returns the current structure of a form.
	Read(ctx context.Context, externalID string) (*Form, error)
}

// ClientFactory builds a Client authorized with an access token.
type ClientFactory interface {
	ForToken(ctx context.Context, accessToken string) (Client, error)
}

// ClientFactoryFunc adapts a function to ClientFactory.
type ClientFactoryFunc func(ctx context.Context, accessToken string) (Client, error)

// ForToken calls f.
func (f ClientFactoryFunc) ForToken(ctx context.Context, accessToken string) (Client, error) {
	return f(ctx, accessToken)
}
