package coordinator

import (
	"context"
	"strings"

	"github.com/product-estimator/estimator/internal/estimate"
	"github.com/product-estimator/estimator/internal/gateway"
	"github.com/product-estimator/estimator/internal/mirror"
)

type AddRoomRequest struct {
	EstimateID string  `json:"estimate_id"`
	Name       string  `json:"room_name"`
	Width      float64 `json:"room_width"`
	Length     float64 `json:"room_length"`
	// PendingProductID is added to the room once the room exists.
	PendingProductID string `json:"product_id,omitempty"`
	VariationID      string `json:"variation_id,omitempty"`
}

// AddRoom creates the room shell and then, separately, adds the pending
// product. The room is kept even when the product add fails; that error is
// returned alongside a result whose RoomID is set.
func (c *Coordinator) AddRoom(ctx context.Context, req AddRoomRequest) (RoomResult, error) {
	result, err := c.addRoomShell(req)
	c.observe("add_room", err)
	if err != nil {
		return RoomResult{}, err
	}
	if req.PendingProductID == "" {
		return result, nil
	}
	product, err := c.RequestAddProduct(ctx, AddProductRequest{
		EstimateID:  req.EstimateID,
		RoomID:      result.RoomID,
		ProductID:   req.PendingProductID,
		VariationID: req.VariationID,
	})
	if err != nil {
		return result, err
	}
	result.Product = &product
	result.EstimateTotals = product.EstimateTotals
	return result, nil
}

func (c *Coordinator) addRoomShell(req AddRoomRequest) (RoomResult, error) {
	if err := validateIDs("estimate_id", req.EstimateID); err != nil {
		return RoomResult{}, err
	}
	if err := forms.load(); err != nil {
		return RoomResult{}, err
	}
	name := strings.TrimSpace(req.Name)
	if err := validateForm(forms.room, map[string]any{
		"room_name":   name,
		"room_width":  req.Width,
		"room_length": req.Length,
	}); err != nil {
		return RoomResult{}, err
	}
	release, err := c.acquire("add_room:" + req.EstimateID)
	if err != nil {
		return RoomResult{}, err
	}
	defer release()

	if _, ok := c.store.GetEstimate(req.EstimateID); !ok {
		return RoomResult{}, notFound("estimate %s", req.EstimateID)
	}
	roomID := c.store.AddRoom(req.EstimateID, estimate.Room{Name: name, Width: req.Width, Length: req.Length})
	if roomID == "" {
		return RoomResult{}, notFound("estimate %s", req.EstimateID)
	}
	e, _ := c.store.GetEstimate(req.EstimateID)
	result := RoomResult{EstimateID: req.EstimateID, RoomID: roomID}
	if e != nil {
		result.EstimateTotals = e.Totals
	}
	result.Mirror = c.detach(mirror.Task{
		Action:     gateway.ActionAddNewRoom,
		EstimateID: req.EstimateID,
		RoomID:     roomID,
		Name:       name,
		Width:      req.Width,
		Length:     req.Length,
	})
	return result, nil
}

func (c *Coordinator) RemoveRoom(ctx context.Context, estimateID, roomID string) (result EstimateResult, err error) {
	defer func() { c.observe("remove_room", err) }()
	if err := validateIDs("estimate_id", estimateID, "room_id", roomID); err != nil {
		return EstimateResult{}, err
	}
	release, err := c.acquire("remove_room:" + estimateID + ":" + roomID)
	if err != nil {
		return EstimateResult{}, err
	}
	defer release()

	if !c.store.RemoveRoom(estimateID, roomID) {
		return EstimateResult{}, notFound("room %s in estimate %s", roomID, estimateID)
	}
	c.invalidateRoomCaches()
	e, ok := c.store.GetEstimate(estimateID)
	if !ok {
		return EstimateResult{}, notFound("estimate %s", estimateID)
	}
	return EstimateResult{
		EstimateID: estimateID,
		Totals:     e.Totals,
		Mirror: c.detach(mirror.Task{
			Action:     gateway.ActionRemoveRoom,
			EstimateID: estimateID,
			RoomID:     roomID,
		}),
	}, nil
}

type AddEstimateRequest struct {
	Name string `json:"estimate_name"`
}

func (c *Coordinator) AddEstimate(ctx context.Context, req AddEstimateRequest) (result EstimateResult, err error) {
	defer func() { c.observe("add_estimate", err) }()
	if err := forms.load(); err != nil {
		return EstimateResult{}, err
	}
	name := strings.TrimSpace(req.Name)
	if err := validateForm(forms.estimate, map[string]any{"estimate_name": name}); err != nil {
		return EstimateResult{}, err
	}
	release, err := c.acquire("add_estimate")
	if err != nil {
		return EstimateResult{}, err
	}
	defer release()

	estimateID := c.store.AddEstimate(estimate.Estimate{Name: name})
	if estimateID == "" {
		return EstimateResult{}, &ValidationError{Fields: []FieldError{{Field: "estimate_name", Message: "Could not create estimate"}}}
	}
	return EstimateResult{
		EstimateID: estimateID,
		Mirror: c.detach(mirror.Task{
			Action:     gateway.ActionAddNewEstimate,
			EstimateID: estimateID,
			Name:       name,
		}),
	}, nil
}

// RemoveEstimate removes the estimate locally and mirrors the removal. The
// local removal stands whatever the mirror outcome.
func (c *Coordinator) RemoveEstimate(ctx context.Context, estimateID string) (result EstimateResult, err error) {
	defer func() { c.observe("remove_estimate", err) }()
	if err := validateIDs("estimate_id", estimateID); err != nil {
		return EstimateResult{}, err
	}
	release, err := c.acquire("remove_estimate:" + estimateID)
	if err != nil {
		return EstimateResult{}, err
	}
	defer release()

	if !c.store.RemoveEstimate(estimateID) {
		return EstimateResult{}, notFound("estimate %s", estimateID)
	}
	c.remote.InvalidateAll()
	return EstimateResult{
		EstimateID: estimateID,
		Mirror: c.detach(mirror.Task{
			Action:     gateway.ActionRemoveEstimate,
			EstimateID: estimateID,
		}),
	}, nil
}

// UpdateCustomerDetails validates and stores the details. Subscribers of
// the store's change hook are notified.
func (c *Coordinator) UpdateCustomerDetails(ctx context.Context, details estimate.CustomerDetails) (err error) {
	defer func() { c.observe("update_customer_details", err) }()
	if err := forms.load(); err != nil {
		return err
	}
	details = estimate.CustomerDetails{
		Name:     strings.TrimSpace(details.Name),
		Email:    strings.TrimSpace(details.Email),
		Phone:    strings.TrimSpace(details.Phone),
		Postcode: strings.TrimSpace(details.Postcode),
	}
	form := map[string]any{
		"customer_name":     details.Name,
		"customer_email":    details.Email,
		"customer_postcode": details.Postcode,
	}
	if details.Phone != "" {
		form["customer_phone"] = details.Phone
	}
	if err := validateForm(forms.customer, form); err != nil {
		return err
	}
	c.store.UpdateCustomerDetails(details)
	return nil
}

func (c *Coordinator) ClearCustomerDetails(ctx context.Context) {
	c.store.ClearCustomerDetails()
}
