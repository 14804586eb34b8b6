package googleforms

import (
	"fmt"

	"github.com/phrazzld/formrelay/internal/forms"
	formsapi "google.golang.org/api/forms/v1"
)

const (
	infoUpdateMask     = "title,description"
	itemUpdateMask     = "*"
	settingsUpdateMask = "quizSettings.isQuiz"
)

func location(index int) *formsapi.Location {
	// Index 0 is a zero value and would be dropped from the JSON body.
	return &formsapi.Location{Index: int64(index), ForceSendFields: []string{"Index"}}
}

// toAPIItem converts a question into the API representation.
func toAPIItem(item forms.Item) (*formsapi.Item, error) {
	q := &formsapi.Question{Required: item.Required, ForceSendFields: []string{"Required"}}

	switch item.Kind {
	case forms.KindShortText:
		q.TextQuestion = &formsapi.TextQuestion{}
	case forms.KindLongText:
		q.TextQuestion = &formsapi.TextQuestion{Paragraph: true}
	case forms.KindChoice:
		options := make([]*formsapi.Option, 0, len(item.Options))
		for _, o := range item.Options {
			options = append(options, &formsapi.Option{Value: o})
		}
		q.ChoiceQuestion = &formsapi.ChoiceQuestion{Type: string(item.ChoiceType), Options: options}
	case forms.KindDate:
		q.DateQuestion = &formsapi.DateQuestion{IncludeYear: true}
	case forms.KindTime:
		q.TimeQuestion = &formsapi.TimeQuestion{}
	case forms.KindScale:
		q.ScaleQuestion = &formsapi.ScaleQuestion{
			Low:             int64(item.ScaleLow),
			High:            int64(item.ScaleHigh),
			LowLabel:        item.ScaleLowLabel,
			HighLabel:       item.ScaleHighLabel,
			ForceSendFields: []string{"Low"},
		}
	default:
		return nil, fmt.Errorf("question kind %q has no API representation", item.Kind)
	}

	return &formsapi.Item{
		ItemId:       item.ItemID,
		Title:        item.Title,
		QuestionItem: &formsapi.QuestionItem{Question: q},
	}, nil
}

// fromAPIItem converts an API item back into the neutral model. Items that
// are not questions (page breaks, images, text blocks) keep their position
// with an empty Kind so positional diffs stay aligned.
func fromAPIItem(in *formsapi.Item) forms.Item {
	out := forms.Item{ItemID: in.ItemId, Title: in.Title}
	if in.QuestionItem == nil || in.QuestionItem.Question == nil {
		return out
	}
	q := in.QuestionItem.Question
	out.Required = q.Required

	switch {
	case q.TextQuestion != nil && q.TextQuestion.Paragraph:
		out.Kind = forms.KindLongText
	case q.TextQuestion != nil:
		out.Kind = forms.KindShortText
	case q.ChoiceQuestion != nil:
		out.Kind = forms.KindChoice
		out.ChoiceType = forms.ChoiceType(q.ChoiceQuestion.Type)
		for _, o := range q.ChoiceQuestion.Options {
			out.Options = append(out.Options, o.Value)
		}
	case q.DateQuestion != nil:
		out.Kind = forms.KindDate
	case q.TimeQuestion != nil:
		out.Kind = forms.KindTime
	case q.ScaleQuestion != nil:
		out.Kind = forms.KindScale
		out.ScaleLow = int(q.ScaleQuestion.Low)
		out.ScaleHigh = int(q.ScaleQuestion.High)
		out.ScaleLowLabel = q.ScaleQuestion.LowLabel
		out.ScaleHighLabel = q.ScaleQuestion.HighLabel
	}
	return out
}

func fromAPIForm(in *formsapi.Form) *forms.Form {
	out := &forms.Form{ExternalID: in.FormId, URL: in.ResponderUri}
	if in.Info != nil {
		out.Title = in.Info.Title
		out.Description = in.Info.Description
	}
	if in.Settings != nil && in.Settings.QuizSettings != nil {
		out.IsQuiz = in.Settings.QuizSettings.IsQuiz
	}
	out.Items = make([]forms.Item, 0, len(in.Items))
	for _, item := range in.Items {
		out.Items = append(out.Items, fromAPIItem(item))
	}
	return out
}

// toRequests converts an operation batch into batchUpdate requests.
func toRequests(ops []forms.Operation) ([]*formsapi.Request, error) {
	reqs := make([]*formsapi.Request, 0, len(ops))
	for i, op := range ops {
		var req formsapi.Request
		switch op.Kind {
		case forms.OpUpdateInfo:
			req.UpdateFormInfo = &formsapi.UpdateFormInfoRequest{
				Info: &formsapi.Info{
					Title:           op.Title,
					Description:     op.Description,
					ForceSendFields: []string{"Description"},
				},
				UpdateMask: infoUpdateMask,
			}
		case forms.OpUpdateSettings:
			req.UpdateSettings = &formsapi.UpdateSettingsRequest{
				Settings: &formsapi.FormSettings{
					QuizSettings: &formsapi.QuizSettings{IsQuiz: op.IsQuiz, ForceSendFields: []string{"IsQuiz"}},
				},
				UpdateMask: settingsUpdateMask,
			}
		case forms.OpCreateItem, forms.OpUpdateItem:
			if op.Item == nil {
				return nil, fmt.Errorf("operation %d (%s) has no item", i, op.Kind)
			}
			item, err := toAPIItem(*op.Item)
			if err != nil {
				return nil, fmt.Errorf("operation %d: %w", i, err)
			}
			if op.Kind == forms.OpCreateItem {
				item.ItemId = ""
				req.CreateItem = &formsapi.CreateItemRequest{Item: item, Location: location(op.Index)}
			} else {
				req.UpdateItem = &formsapi.UpdateItemRequest{
					Item:       item,
					Location:   location(op.Index),
					UpdateMask: itemUpdateMask,
				}
			}
		case forms.OpDeleteItem:
			req.DeleteItem = &formsapi.DeleteItemRequest{Location: location(op.Index)}
		default:
			return nil, fmt.Errorf("operation %d has unknown kind %q", i, op.Kind)
		}
		reqs = append(reqs, &req)
	}
	return reqs, nil
}
