package coordinator

import (
	"context"
	"fmt"

	"github.com/product-estimator/estimator/internal/estimate"
	"github.com/product-estimator/estimator/internal/gateway"
	"github.com/product-estimator/estimator/internal/mirror"
)

type AddProductRequest struct {
	EstimateID string `json:"estimate_id"`
	RoomID     string `json:"room_id"`
	ProductID  string `json:"product_id"`
	// VariationID preselects a variation of a variable product.
	VariationID string `json:"variation_id,omitempty"`
}

type ReplaceProductRequest struct {
	EstimateID      string `json:"estimate_id"`
	RoomID          string `json:"room_id"`
	OldProductID    string `json:"old_product_id"`
	NewProductID    string `json:"new_product_id"`
	ParentProductID string `json:"parent_product_id,omitempty"`
	VariationID     string `json:"variation_id,omitempty"`
}

// RequestAddProduct resolves variations for req.ProductID and then runs
// AddProductToRoom with the concrete product ID.
func (c *Coordinator) RequestAddProduct(ctx context.Context, req AddProductRequest) (ProductResult, error) {
	if err := validateIDs("estimate_id", req.EstimateID, "room_id", req.RoomID, "product_id", req.ProductID); err != nil {
		c.observe("add_product", err)
		return ProductResult{}, err
	}
	productID, err := c.resolveVariation(ctx, req.ProductID, req.VariationID)
	if err != nil {
		c.observe("add_product", err)
		return ProductResult{}, err
	}
	req.ProductID = productID
	return c.AddProductToRoom(ctx, req)
}

func (c *Coordinator) RequestReplaceProduct(ctx context.Context, req ReplaceProductRequest) (ProductResult, error) {
	if err := validateIDs("estimate_id", req.EstimateID, "room_id", req.RoomID,
		"old_product_id", req.OldProductID, "new_product_id", req.NewProductID); err != nil {
		c.observe("replace_product", err)
		return ProductResult{}, err
	}
	productID, err := c.resolveVariation(ctx, req.NewProductID, req.VariationID)
	if err != nil {
		c.observe("replace_product", err)
		return ProductResult{}, err
	}
	req.NewProductID = productID
	return c.ReplaceProductInRoom(ctx, req)
}

// resolveVariation returns the ID to store: productID itself for simple
// products, otherwise the chosen variation.
func (c *Coordinator) resolveVariation(ctx context.Context, productID, variationID string) (string, error) {
	info, err := c.remote.GetProductVariations(ctx, productID)
	if err != nil {
		return "", &CriticalDataError{ProductID: productID, Reason: "variation lookup failed", Err: err}
	}
	if !info.IsVariable {
		return productID, nil
	}
	if variationID != "" {
		for _, v := range info.Variations {
			if v.ID == variationID {
				return variationID, nil
			}
		}
		return "", &ValidationError{Fields: []FieldError{{Field: "variation_id", Message: "Please choose an available option"}}}
	}
	if c.picker == nil {
		return "", &VariationRequiredError{ProductID: productID, Variations: info.Variations}
	}
	chosen, err := c.picker.PickVariation(ctx, productID, info.Variations)
	if err != nil {
		return "", err
	}
	if chosen == "" {
		return "", ErrVariationCancelled
	}
	return chosen, nil
}

// AddProductToRoom adds a concrete product. Nothing is written when the
// product is already present, when product data cannot be fetched, or when
// it would become a second primary-category product.
func (c *Coordinator) AddProductToRoom(ctx context.Context, req AddProductRequest) (result ProductResult, err error) {
	defer func() { c.observe("add_product", err) }()
	if err := validateIDs("estimate_id", req.EstimateID, "room_id", req.RoomID, "product_id", req.ProductID); err != nil {
		return ProductResult{}, err
	}
	release, err := c.acquire("add_product:" + req.EstimateID + ":" + req.RoomID + ":" + req.ProductID)
	if err != nil {
		return ProductResult{}, err
	}
	defer release()

	room, ok := c.store.GetRoom(req.EstimateID, req.RoomID)
	if !ok {
		return ProductResult{}, notFound("room %s in estimate %s", req.RoomID, req.EstimateID)
	}
	if room.Products.Has(req.ProductID) {
		return ProductResult{}, &DuplicateError{EstimateID: req.EstimateID, RoomID: req.RoomID, ProductID: req.ProductID}
	}

	prospective := append(room.ProductIDs(), req.ProductID)
	data, err := c.fetchProductData(ctx, req.ProductID, room, prospective)
	if err != nil {
		return ProductResult{}, err
	}
	product := *data.ProductData
	product.ID = req.ProductID

	if product.IsPrimaryCategory {
		if existing, ok := room.PrimaryProduct(); ok {
			return ProductResult{}, &PrimaryConflictError{
				EstimateID:          req.EstimateID,
				RoomID:              req.RoomID,
				ExistingProductID:   existing.ID,
				ExistingProductName: existing.Name,
				NewProductID:        product.ID,
				NewProductName:      product.Name,
			}
		}
	}

	if !c.store.AddProductToRoom(req.EstimateID, req.RoomID, product) {
		return ProductResult{}, c.classifyWriteFailure(req.EstimateID, req.RoomID, product, "")
	}
	c.storeSuggestions(req.EstimateID, req.RoomID, data.RoomSuggestedProducts, true)
	c.invalidateRoomCaches()

	result, err = c.productResult(req.EstimateID, req.RoomID, product.ID, "")
	if err != nil {
		return ProductResult{}, err
	}
	result.Mirror = c.detach(mirror.Task{
		Action:     gateway.ActionAddProductToRoom,
		EstimateID: req.EstimateID,
		RoomID:     req.RoomID,
		ProductID:  product.ID,
	})
	return result, nil
}

// ReplaceProductInRoom swaps OldProductID for NewProductID in place. With
// ParentProductID set, the old product is one of that product's additional
// products.
func (c *Coordinator) ReplaceProductInRoom(ctx context.Context, req ReplaceProductRequest) (result ProductResult, err error) {
	defer func() { c.observe("replace_product", err) }()
	if err := validateIDs("estimate_id", req.EstimateID, "room_id", req.RoomID,
		"old_product_id", req.OldProductID, "new_product_id", req.NewProductID); err != nil {
		return ProductResult{}, err
	}
	if req.ParentProductID != "" && !validID(req.ParentProductID) {
		return ProductResult{}, &ValidationError{Fields: []FieldError{{Field: "parent_product_id", Message: "Missing or malformed identifier"}}}
	}
	release, err := c.acquire("replace_product:" + req.EstimateID + ":" + req.RoomID + ":" + req.OldProductID)
	if err != nil {
		return ProductResult{}, err
	}
	defer release()

	room, ok := c.store.GetRoom(req.EstimateID, req.RoomID)
	if !ok {
		return ProductResult{}, notFound("room %s in estimate %s", req.RoomID, req.EstimateID)
	}
	container := &room.Products
	if req.ParentProductID != "" {
		parent, ok := room.Products.Get(req.ParentProductID)
		if !ok || parent == nil {
			return ProductResult{}, notFound("product %s in room %s", req.ParentProductID, req.RoomID)
		}
		container = &parent.AdditionalProducts
	}
	if !container.Has(req.OldProductID) {
		return ProductResult{}, notFound("product %s in room %s", req.OldProductID, req.RoomID)
	}
	if req.NewProductID != req.OldProductID && container.Has(req.NewProductID) {
		return ProductResult{}, &DuplicateError{EstimateID: req.EstimateID, RoomID: req.RoomID, ProductID: req.NewProductID}
	}

	prospective := room.ProductIDs()
	if req.ParentProductID == "" {
		prospective = swapID(prospective, req.OldProductID, req.NewProductID)
	}
	data, err := c.fetchProductData(ctx, req.NewProductID, room, prospective)
	if err != nil {
		return ProductResult{}, err
	}
	product := *data.ProductData
	product.ID = req.NewProductID

	if req.ParentProductID == "" && product.IsPrimaryCategory {
		if existing, ok := room.PrimaryProduct(); ok && existing.ID != req.OldProductID {
			return ProductResult{}, &PrimaryConflictError{
				EstimateID:          req.EstimateID,
				RoomID:              req.RoomID,
				ExistingProductID:   existing.ID,
				ExistingProductName: existing.Name,
				NewProductID:        product.ID,
				NewProductName:      product.Name,
			}
		}
	}

	if !c.store.ReplaceProductInRoom(req.EstimateID, req.RoomID, req.OldProductID, product, req.ParentProductID) {
		return ProductResult{}, c.classifyWriteFailure(req.EstimateID, req.RoomID, product, req.OldProductID)
	}
	c.storeSuggestions(req.EstimateID, req.RoomID, data.RoomSuggestedProducts, true)
	c.invalidateRoomCaches()

	result, err = c.productResult(req.EstimateID, req.RoomID, product.ID, req.ParentProductID)
	if err != nil {
		return ProductResult{}, err
	}
	result.Mirror = c.detach(mirror.Task{
		Action:          gateway.ActionReplaceProductInRoom,
		EstimateID:      req.EstimateID,
		RoomID:          req.RoomID,
		ProductID:       product.ID,
		OldProductID:    req.OldProductID,
		ParentProductID: req.ParentProductID,
	})
	return result, nil
}

// RemoveProductFromRoom removes a top-level product. When suggestions are
// enabled they are refreshed against the remaining products.
func (c *Coordinator) RemoveProductFromRoom(ctx context.Context, estimateID, roomID, productID string) (result ProductResult, err error) {
	defer func() { c.observe("remove_product", err) }()
	if err := validateIDs("estimate_id", estimateID, "room_id", roomID, "product_id", productID); err != nil {
		return ProductResult{}, err
	}
	release, err := c.acquire("remove_product:" + estimateID + ":" + roomID + ":" + productID)
	if err != nil {
		return ProductResult{}, err
	}
	defer release()

	room, ok := c.store.GetRoom(estimateID, roomID)
	if !ok {
		return ProductResult{}, notFound("room %s in estimate %s", roomID, estimateID)
	}
	if !room.Products.Has(productID) {
		return ProductResult{}, notFound("product %s in room %s", productID, roomID)
	}
	remaining := removeID(room.ProductIDs(), productID)

	var refreshed []estimate.SuggestedProduct
	refreshedOK := false
	if c.suggestions {
		resp, fetchErr := c.remote.FetchSuggestionsForModifiedRoom(ctx, estimateID, roomID, remaining)
		switch {
		case fetchErr != nil:
			c.logf("refresh suggestions for room %s failed: %v", roomID, fetchErr)
		case resp.IsFallback:
			c.logf("refresh suggestions for room %s unavailable, keeping previous list", roomID)
		default:
			refreshed = resp.UpdatedSuggestions
			refreshedOK = true
		}
	}

	if !c.store.RemoveProductFromRoom(estimateID, roomID, productID) {
		return ProductResult{}, notFound("product %s in room %s", productID, roomID)
	}
	c.storeSuggestions(estimateID, roomID, refreshed, refreshedOK)
	c.invalidateRoomCaches()

	result, err = c.productResult(estimateID, roomID, "", "")
	if err != nil {
		return ProductResult{}, err
	}
	result.ProductID = productID
	result.Mirror = c.detach(mirror.Task{
		Action:     gateway.ActionRemoveProductFromRoom,
		EstimateID: estimateID,
		RoomID:     roomID,
		ProductID:  productID,
	})
	return result, nil
}

// fetchProductData is the mandatory authoritative fetch. Any failure,
// fallback or empty payload is a CriticalDataError.
func (c *Coordinator) fetchProductData(ctx context.Context, productID string, room *estimate.Room, prospective []string) (gateway.ProductDataResponse, error) {
	data, err := c.remote.GetProductDataForStorage(ctx, gateway.ProductDataRequest{
		ProductID:          productID,
		RoomWidth:          room.Width,
		RoomLength:         room.Length,
		RoomProducts:       prospective,
		IncludeSuggestions: c.suggestions,
	})
	if err != nil {
		return gateway.ProductDataResponse{}, &CriticalDataError{ProductID: productID, Err: err}
	}
	if data.IsFallback {
		return gateway.ProductDataResponse{}, &CriticalDataError{ProductID: productID, Reason: "fallback response"}
	}
	if data.ProductData == nil {
		return gateway.ProductDataResponse{}, &CriticalDataError{ProductID: productID, Reason: "empty payload"}
	}
	return data, nil
}

// storeSuggestions replaces the room's suggestions when fresh ones are
// available, and clears them whenever the feature is off.
func (c *Coordinator) storeSuggestions(estimateID, roomID string, suggestions []estimate.SuggestedProduct, fresh bool) {
	switch {
	case !c.suggestions:
		c.store.SetSuggestionsForRoom(estimateID, roomID, nil)
	case fresh:
		c.store.SetSuggestionsForRoom(estimateID, roomID, suggestions)
	}
}

// roomCacheFamilies hold responses derived from a room's product set.
// Product data carries room suggestions, so it goes stale with the room.
var roomCacheFamilies = []gateway.Family{
	gateway.FamilySuggestions,
	gateway.FamilyUpgrades,
	gateway.FamilySimilarProducts,
	gateway.FamilyProductData,
}

func (c *Coordinator) invalidateRoomCaches() {
	for _, family := range roomCacheFamilies {
		c.remote.InvalidateFamily(family)
	}
}

// classifyWriteFailure explains a refused store write after the fact: the
// room may have changed between the read and the write.
func (c *Coordinator) classifyWriteFailure(estimateID, roomID string, product estimate.Product, oldProductID string) error {
	room, ok := c.store.GetRoom(estimateID, roomID)
	if !ok {
		return notFound("room %s in estimate %s", roomID, estimateID)
	}
	if product.ID != oldProductID && room.Products.Has(product.ID) {
		return &DuplicateError{EstimateID: estimateID, RoomID: roomID, ProductID: product.ID}
	}
	if existing, ok := room.PrimaryProduct(); ok && product.IsPrimaryCategory && existing.ID != oldProductID {
		return &PrimaryConflictError{
			EstimateID:          estimateID,
			RoomID:              roomID,
			ExistingProductID:   existing.ID,
			ExistingProductName: existing.Name,
			NewProductID:        product.ID,
			NewProductName:      product.Name,
		}
	}
	if oldProductID != "" {
		return notFound("product %s in room %s", oldProductID, roomID)
	}
	return fmt.Errorf("store refused product %s in room %s", product.ID, roomID)
}

func swapID(ids []string, oldID, newID string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == oldID {
			out = append(out, newID)
			continue
		}
		out = append(out, id)
	}
	return out
}

func removeID(ids []string, target string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}
