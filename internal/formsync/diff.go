package formsync

import "github.com/phrazzld/formrelay/internal/forms"

// Diff returns the operations that turn current into desired. Operations
// are positional and applied in order: trailing items are deleted from the
// end first, surviving positions are updated in place (or replaced when the
// question kind changes), then missing items are appended. An up-to-date
// form yields no operations.
func Diff(current *forms.Form, desired Desired) []forms.Operation {
	var ops []forms.Operation

	if current.Title != desired.Title || current.Description != desired.Description {
		ops = append(ops, forms.UpdateInfo(desired.Title, desired.Description))
	}

	have, want := current.Items, desired.Items
	for i := len(have) - 1; i >= len(want); i-- {
		ops = append(ops, forms.DeleteItem(i))
	}

	shared := min(len(have), len(want))
	for i := 0; i < shared; i++ {
		if have[i].SameStructure(want[i]) {
			continue
		}
		next := want[i]
		if have[i].Kind != "" && have[i].Kind == next.Kind {
			next.ItemID = have[i].ItemID
			ops = append(ops, forms.UpdateItem(i, next))
			continue
		}
		// A question cannot change kind in place.
		ops = append(ops, forms.DeleteItem(i), forms.CreateItem(i, next))
	}

	for i := shared; i < len(want); i++ {
		ops = append(ops, forms.CreateItem(i, want[i]))
	}

	if desired.IsQuiz != nil && *desired.IsQuiz != current.IsQuiz {
		ops = append(ops, forms.UpdateSettings(*desired.IsQuiz))
	}
	return ops
}
