package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/product-estimator/estimator/internal/coordinator"
	"github.com/product-estimator/estimator/internal/estimate"
	"github.com/product-estimator/estimator/internal/gateway"
)

func TestDialogKindTable(t *testing.T) {
	for _, kind := range []DialogKind{KindDefault, KindSuccess, KindWarning, KindError, KindDelete} {
		if kind.Style().DialogClass == "" {
			t.Fatalf("%s: missing style", kind)
		}
		if len(kind.DefaultButtons()) == 0 {
			t.Fatalf("%s: missing default buttons", kind)
		}
	}
	buttons := KindDelete.DefaultButtons()
	buttons[0].Label = "mutated"
	if KindDelete.DefaultButtons()[0].Label != "Delete" {
		t.Fatalf("expected default buttons to be copied")
	}
	if DialogKind(42).Style() != KindDefault.Style() {
		t.Fatalf("expected unknown kinds to fall back to default style")
	}
}

func TestDecideDuplicateIsInformational(t *testing.T) {
	d := Decide(fmt.Errorf("add: %w", &coordinator.DuplicateError{EstimateID: "E1", RoomID: "R1", ProductID: "P1"}))
	if d.Outcome != OutcomeDialog || d.Kind != KindDefault {
		t.Fatalf("unexpected decision %+v", d)
	}
	if len(d.Buttons) != 1 || d.Buttons[0].Choice != ChoiceAcknowledge {
		t.Fatalf("expected acknowledge only, got %+v", d.Buttons)
	}
}

func TestDecidePrimaryConflictOffersThreeChoices(t *testing.T) {
	d := Decide(&coordinator.PrimaryConflictError{
		EstimateID: "E1", RoomID: "R1",
		ExistingProductID: "P1", ExistingProductName: "Oak floor",
		NewProductID: "P2", NewProductName: "Walnut floor",
	})
	if d.Outcome != OutcomeConflict || d.Conflict == nil {
		t.Fatalf("expected conflict decision, got %+v", d)
	}
	want := []Choice{ChoiceReplaceExisting, ChoiceBack, ChoiceCancel}
	if len(d.Buttons) != len(want) {
		t.Fatalf("expected %v, got %+v", want, d.Buttons)
	}
	for i, choice := range want {
		if d.Buttons[i].Choice != choice {
			t.Fatalf("button %d: expected %s, got %s", i, choice, d.Buttons[i].Choice)
		}
	}
	if d.Data["existing_product_id"] != "P1" || d.Data["new_product_id"] != "P2" {
		t.Fatalf("expected machine payload, got %v", d.Data)
	}
}

func TestDecideServerReportedConflict(t *testing.T) {
	err := &gateway.ExpectedOutcomeError{
		Action: gateway.ActionAddProductToRoom,
		Kind:   gateway.OutcomePrimaryConflict,
		Data:   json.RawMessage(`{"primary_conflict":true,"estimate_id":"E1","room_id":"R1","existing_product_id":"P1","new_product_id":42}`),
	}
	d := Decide(err)
	if d.Outcome != OutcomeConflict || d.Conflict.NewProductID != "42" {
		t.Fatalf("expected conflict rebuilt from server payload, got %+v", d.Conflict)
	}
}

func TestDecideOtherOutcomes(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		outcome Outcome
		kind    DialogKind
	}{
		{"nil", nil, OutcomeNone, KindDefault},
		{"validation", &coordinator.ValidationError{Fields: []coordinator.FieldError{{Field: "room_name", Message: "Please enter a room name"}}}, OutcomeInlineErrors, KindWarning},
		{"variation", &coordinator.VariationRequiredError{ProductID: "P1", Variations: []gateway.Variation{{ID: "V1"}}}, OutcomeChooseVariation, KindDefault},
		{"cancelled", coordinator.ErrVariationCancelled, OutcomeNone, KindDefault},
		{"critical", &coordinator.CriticalDataError{ProductID: "P1", Reason: "fallback response"}, OutcomeDialog, KindError},
		{"unknown", errors.New("boom"), OutcomeDialog, KindError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Decide(tc.err)
			if d.Outcome != tc.outcome || d.Kind != tc.kind {
				t.Fatalf("expected %s/%s, got %s/%s", tc.outcome, tc.kind, d.Outcome, d.Kind)
			}
		})
	}
	d := Decide(&coordinator.ValidationError{Fields: []coordinator.FieldError{{Field: "room_name", Message: "x"}}})
	if len(d.Fields) != 1 || d.Fields[0].Field != "room_name" {
		t.Fatalf("expected inline field error, got %+v", d.Fields)
	}
}

type fakeReplacer struct {
	requests []coordinator.ReplaceProductRequest
	err      error
}

func (f *fakeReplacer) ReplaceProductInRoom(ctx context.Context, req coordinator.ReplaceProductRequest) (coordinator.ProductResult, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return coordinator.ProductResult{}, f.err
	}
	return coordinator.ProductResult{EstimateID: req.EstimateID, RoomID: req.RoomID, ProductID: req.NewProductID}, nil
}

func conflictFixture() Decision {
	return Decide(&coordinator.PrimaryConflictError{EstimateID: "E1", RoomID: "R1", ExistingProductID: "P1", NewProductID: "P2"})
}

func TestResolveReplaceExistingTargetsExistingProduct(t *testing.T) {
	replacer := &fakeReplacer{}
	res, err := NewResolver(replacer).Resolve(context.Background(), conflictFixture(), ChoiceReplaceExisting)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(replacer.requests) != 1 {
		t.Fatalf("expected one replace call")
	}
	req := replacer.requests[0]
	if req.OldProductID != "P1" || req.NewProductID != "P2" || req.EstimateID != "E1" || req.RoomID != "R1" {
		t.Fatalf("unexpected replace request %+v", req)
	}
	if res.Navigation != NavigateEstimate || res.Result == nil || res.Result.ProductID != "P2" {
		t.Fatalf("unexpected resolution %+v", res)
	}
}

func TestResolveBackAndCancelDoNotMutate(t *testing.T) {
	replacer := &fakeReplacer{}
	resolver := NewResolver(replacer)
	back, err := resolver.Resolve(context.Background(), conflictFixture(), ChoiceBack)
	if err != nil || back.Navigation != NavigateRoomSelection {
		t.Fatalf("expected room selection, got %+v %v", back, err)
	}
	cancel, err := resolver.Resolve(context.Background(), conflictFixture(), ChoiceCancel)
	if err != nil || cancel.Navigation != NavigateStay {
		t.Fatalf("expected stay, got %+v %v", cancel, err)
	}
	if len(replacer.requests) != 0 {
		t.Fatalf("expected no mutation, got %d calls", len(replacer.requests))
	}
}

func TestResolveRejectsChoicesNotOffered(t *testing.T) {
	resolver := NewResolver(&fakeReplacer{})
	dup := Decide(&coordinator.DuplicateError{ProductID: "P1"})
	if _, err := resolver.Resolve(context.Background(), dup, ChoiceReplaceExisting); !errors.Is(err, ErrInvalidChoice) {
		t.Fatalf("expected ErrInvalidChoice, got %v", err)
	}
}

func TestResolveReplaceFailureBecomesFollowup(t *testing.T) {
	replacer := &fakeReplacer{err: &coordinator.CriticalDataError{ProductID: "P2", Reason: "empty payload"}}
	res, err := NewResolver(replacer).Resolve(context.Background(), conflictFixture(), ChoiceReplaceExisting)
	if err != nil {
		t.Fatalf("expected failure as followup, got %v", err)
	}
	if res.Followup == nil || res.Followup.Kind != KindError {
		t.Fatalf("expected error dialog followup, got %+v", res.Followup)
	}
}

func TestResolveAgainstCoordinator(t *testing.T) {
	store := estimate.NewStore(estimate.StoreOptions{})
	store.AddEstimate(estimate.Estimate{ID: "E1", Name: "Home"})
	store.AddRoom("E1", estimate.Room{ID: "R1", Name: "Kitchen", Width: 3, Length: 3})
	store.AddProductToRoom("E1", "R1", estimate.Product{ID: "P1", Name: "Oak", IsPrimaryCategory: true, MinPriceTotal: 10, MaxPriceTotal: 10})

	transport := gateway.TransportFunc(func(ctx context.Context, action string, payload gateway.Payload) (gateway.Envelope, error) {
		if action == gateway.ActionGetProductDataForStorage {
			return gateway.Envelope{Success: true, Data: json.RawMessage(`{"product_data":{"name":"Walnut","is_primary_category":true,"min_price_total":20,"max_price_total":25}}`)}, nil
		}
		return gateway.Envelope{Success: true, Data: json.RawMessage(`{}`)}, nil
	})
	coord := coordinator.New(store, gateway.New(transport, gateway.Options{}), nil, coordinator.Options{})

	_, err := coord.AddProductToRoom(context.Background(), coordinator.AddProductRequest{EstimateID: "E1", RoomID: "R1", ProductID: "P2"})
	decision := Decide(err)
	if decision.Outcome != OutcomeConflict {
		t.Fatalf("expected conflict, got %+v (err %v)", decision, err)
	}
	res, err := NewResolver(coord).Resolve(context.Background(), decision, ChoiceReplaceExisting)
	if err != nil || res.Followup != nil {
		t.Fatalf("resolve failed: %v %+v", err, res.Followup)
	}
	room, _ := store.GetRoom("E1", "R1")
	if ids := room.ProductIDs(); len(ids) != 1 || ids[0] != "P2" {
		t.Fatalf("expected P2 to replace P1, got %v", ids)
	}
	p2, _ := room.Products.Get("P2")
	if len(p2.ReplacementChain) != 1 || p2.ReplacementChain[0] != "P1" {
		t.Fatalf("expected replacement chain [P1], got %v", p2.ReplacementChain)
	}
}
