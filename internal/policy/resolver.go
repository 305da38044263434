package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/product-estimator/estimator/internal/coordinator"
)

var ErrInvalidChoice = errors.New("choice not offered by this dialog")

// Replacer runs the replace-product protocol.
type Replacer interface {
	ReplaceProductInRoom(ctx context.Context, req coordinator.ReplaceProductRequest) (coordinator.ProductResult, error)
}

// Navigation tells the caller where to send the user after a dialog closes.
type Navigation string

const (
	NavigateStay          Navigation = "stay"
	NavigateRoomSelection Navigation = "room_selection"
	NavigateEstimate      Navigation = "estimate"
)

type Resolution struct {
	Navigation Navigation                 `json:"navigation"`
	Result     *coordinator.ProductResult `json:"result,omitempty"`
	// Followup is set when the chosen action itself failed.
	Followup *Decision `json:"followup,omitempty"`
}

type Resolver struct {
	replacer Replacer
}

func NewResolver(replacer Replacer) *Resolver {
	return &Resolver{replacer: replacer}
}

// Resolve applies the user's choice for decision. Only replace-existing
// mutates anything; back and cancel only navigate.
func (r *Resolver) Resolve(ctx context.Context, decision Decision, choice Choice) (Resolution, error) {
	if !decision.Allows(choice) {
		return Resolution{}, fmt.Errorf("%w: %s", ErrInvalidChoice, choice)
	}
	switch choice {
	case ChoiceReplaceExisting:
		return r.replaceExisting(ctx, decision.Conflict)
	case ChoiceBack:
		return Resolution{Navigation: NavigateRoomSelection}, nil
	default:
		return Resolution{Navigation: NavigateStay}, nil
	}
}

func (r *Resolver) replaceExisting(ctx context.Context, conflict *coordinator.PrimaryConflictError) (Resolution, error) {
	if conflict == nil || conflict.ExistingProductID == "" || conflict.NewProductID == "" {
		return Resolution{}, fmt.Errorf("%w: no conflict to resolve", ErrInvalidChoice)
	}
	if r.replacer == nil {
		return Resolution{}, errors.New("no replacer configured")
	}
	result, err := r.replacer.ReplaceProductInRoom(ctx, coordinator.ReplaceProductRequest{
		EstimateID:   conflict.EstimateID,
		RoomID:       conflict.RoomID,
		OldProductID: conflict.ExistingProductID,
		NewProductID: conflict.NewProductID,
	})
	if err != nil {
		followup := Decide(err)
		return Resolution{Navigation: NavigateStay, Followup: &followup}, nil
	}
	return Resolution{Navigation: NavigateEstimate, Result: &result}, nil
}
