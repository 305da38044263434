package policy

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/product-estimator/estimator/internal/coordinator"
	"github.com/product-estimator/estimator/internal/gateway"
)

type DialogKind int

const (
	KindDefault DialogKind = iota
	KindSuccess
	KindWarning
	KindError
	KindDelete
)

func (k DialogKind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindWarning:
		return "warning"
	case KindError:
		return "error"
	case KindDelete:
		return "delete"
	default:
		return "default"
	}
}

func (k DialogKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Choice is a button the user can press in a dialog.
type Choice string

const (
	ChoiceAcknowledge     Choice = "acknowledge"
	ChoiceConfirm         Choice = "confirm"
	ChoiceReplaceExisting Choice = "replace_existing"
	ChoiceBack            Choice = "back"
	ChoiceCancel          Choice = "cancel"
)

type Style struct {
	DialogClass  string `json:"dialog_class"`
	ConfirmClass string `json:"confirm_class"`
	Icon         string `json:"icon"`
}

type Button struct {
	Choice  Choice `json:"choice"`
	Label   string `json:"label"`
	Primary bool   `json:"primary,omitempty"`
}

var styles = map[DialogKind]Style{
	KindDefault: {DialogClass: "pe-dialog", ConfirmClass: "pe-button-primary", Icon: "info"},
	KindSuccess: {DialogClass: "pe-dialog pe-dialog-success", ConfirmClass: "pe-button-success", Icon: "check"},
	KindWarning: {DialogClass: "pe-dialog pe-dialog-warning", ConfirmClass: "pe-button-warning", Icon: "warning"},
	KindError:   {DialogClass: "pe-dialog pe-dialog-error", ConfirmClass: "pe-button-error", Icon: "error"},
	KindDelete:  {DialogClass: "pe-dialog pe-dialog-delete", ConfirmClass: "pe-button-danger", Icon: "trash"},
}

var defaultButtons = map[DialogKind][]Button{
	KindDefault: {{Choice: ChoiceAcknowledge, Label: "OK", Primary: true}},
	KindSuccess: {{Choice: ChoiceAcknowledge, Label: "OK", Primary: true}},
	KindWarning: {{Choice: ChoiceConfirm, Label: "Continue", Primary: true}, {Choice: ChoiceCancel, Label: "Cancel"}},
	KindError:   {{Choice: ChoiceAcknowledge, Label: "OK", Primary: true}},
	KindDelete:  {{Choice: ChoiceConfirm, Label: "Delete", Primary: true}, {Choice: ChoiceCancel, Label: "Cancel"}},
}

func (k DialogKind) Style() Style {
	if s, ok := styles[k]; ok {
		return s
	}
	return styles[KindDefault]
}

func (k DialogKind) DefaultButtons() []Button {
	buttons, ok := defaultButtons[k]
	if !ok {
		buttons = defaultButtons[KindDefault]
	}
	return append([]Button(nil), buttons...)
}

// Outcome says how a mutation result reaches the user.
type Outcome string

const (
	OutcomeNone            Outcome = "none"
	OutcomeDialog          Outcome = "dialog"
	OutcomeConflict        Outcome = "conflict"
	OutcomeInlineErrors    Outcome = "inline_errors"
	OutcomeChooseVariation Outcome = "choose_variation"
)

type Decision struct {
	Outcome    Outcome                           `json:"outcome"`
	Kind       DialogKind                        `json:"kind"`
	Style      Style                             `json:"style"`
	Title      string                            `json:"title,omitempty"`
	Message    string                            `json:"message,omitempty"`
	Buttons    []Button                          `json:"buttons,omitempty"`
	Fields     []coordinator.FieldError          `json:"fields,omitempty"`
	Conflict   *coordinator.PrimaryConflictError `json:"-"`
	Variations []gateway.Variation               `json:"variations,omitempty"`
	Data       map[string]any                    `json:"data,omitempty"`
}

// Allows reports whether choice is one of the decision's buttons.
func (d Decision) Allows(choice Choice) bool {
	for _, b := range d.Buttons {
		if b.Choice == choice {
			return true
		}
	}
	return false
}

func dialog(kind DialogKind, title, message string) Decision {
	return Decision{
		Outcome: OutcomeDialog,
		Kind:    kind,
		Style:   kind.Style(),
		Title:   title,
		Message: message,
		Buttons: kind.DefaultButtons(),
	}
}

// Decide maps a coordinator outcome to what the user sees. A nil error
// needs no decision.
func Decide(err error) Decision {
	if err == nil {
		return Decision{Outcome: OutcomeNone}
	}

	var dup *coordinator.DuplicateError
	var conflict *coordinator.PrimaryConflictError
	var verr *coordinator.ValidationError
	var variation *coordinator.VariationRequiredError
	var expected *gateway.ExpectedOutcomeError
	switch {
	case errors.As(err, &dup):
		d := dialog(KindDefault, "Product already added", "This product is already in this room.")
		d.Data = dup.Data()
		return d
	case errors.As(err, &conflict):
		return conflictDecision(conflict)
	case errors.As(err, &verr):
		return Decision{
			Outcome: OutcomeInlineErrors,
			Kind:    KindWarning,
			Style:   KindWarning.Style(),
			Fields:  append([]coordinator.FieldError(nil), verr.Fields...),
			Data:    verr.Data(),
		}
	case errors.As(err, &variation):
		return Decision{
			Outcome:    OutcomeChooseVariation,
			Kind:       KindDefault,
			Style:      KindDefault.Style(),
			Title:      "Choose an option",
			Variations: variation.Variations,
			Buttons:    []Button{{Choice: ChoiceCancel, Label: "Cancel"}},
			Data:       variation.Data(),
		}
	case errors.Is(err, coordinator.ErrVariationCancelled), errors.Is(err, coordinator.ErrBusy):
		return Decision{Outcome: OutcomeNone}
	case errors.As(err, &expected):
		return expectedDecision(expected)
	case errors.Is(err, coordinator.ErrCriticalData):
		return dialog(KindError, "Product unavailable", "We couldn't load the details for this product. Please try again.")
	case errors.Is(err, coordinator.ErrNotFound):
		return dialog(KindError, "Not found", "This item no longer exists. The estimate has been refreshed.")
	default:
		return dialog(KindError, "Something went wrong", err.Error())
	}
}

func conflictDecision(conflict *coordinator.PrimaryConflictError) Decision {
	existing := conflict.ExistingProductName
	if existing == "" {
		existing = "the existing product"
	}
	return Decision{
		Outcome: OutcomeConflict,
		Kind:    KindWarning,
		Style:   KindWarning.Style(),
		Title:   "Replace product?",
		Message: fmt.Sprintf("This room already contains %s from the same category. Do you want to replace it?", existing),
		Buttons: []Button{
			{Choice: ChoiceReplaceExisting, Label: "Replace existing product", Primary: true},
			{Choice: ChoiceBack, Label: "Back to rooms"},
			{Choice: ChoiceCancel, Label: "Cancel"},
		},
		Conflict: conflict,
		Data:     conflict.Data(),
	}
}

// expectedDecision handles duplicate and conflict outcomes reported by the
// server rather than detected locally.
func expectedDecision(e *gateway.ExpectedOutcomeError) Decision {
	var data map[string]any
	_ = json.Unmarshal(e.Data, &data)
	if e.Kind == gateway.OutcomePrimaryConflict {
		conflict := &coordinator.PrimaryConflictError{
			EstimateID:          stringField(data, "estimate_id"),
			RoomID:              stringField(data, "room_id"),
			ExistingProductID:   stringField(data, "existing_product_id"),
			ExistingProductName: stringField(data, "existing_product_name"),
			NewProductID:        stringField(data, "new_product_id"),
			NewProductName:      stringField(data, "new_product_name"),
		}
		return conflictDecision(conflict)
	}
	message := e.Message
	if message == "" {
		message = "This product is already in this room."
	}
	d := dialog(KindDefault, "Product already added", message)
	d.Data = data
	return d
}

// ConfirmDelete asks before removing an estimate, room or product.
func ConfirmDelete(what, name string) Decision {
	return dialog(KindDelete, "Delete "+what+"?", fmt.Sprintf("Are you sure you want to remove %q? This cannot be undone.", name))
}

func stringField(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%v", v)
	default:
		return ""
	}
}
