package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/product-estimator/estimator/internal/estimate"
)

// Server action names.
const (
	ActionGetProductUpgrades       = "get_product_upgrades"
	ActionGetProductDataForStorage = "get_product_data_for_storage"
	ActionGetSimilarProducts       = "get_similar_products"
	ActionFetchSuggestionsForRoom  = "fetch_suggestions_for_modified_room"
	ActionGetProductVariations     = "get_product_variations"
	ActionAddProductToRoom         = "add_product_to_room"
	ActionReplaceProductInRoom     = "replace_product_in_room"
	ActionRemoveProductFromRoom    = "remove_product_from_room"
	ActionAddNewRoom               = "add_new_room"
	ActionAddNewEstimate           = "add_new_estimate"
	ActionRemoveRoom               = "remove_room"
	ActionRemoveEstimate           = "remove_estimate"
)

type UpgradesRequest struct {
	ProductID   string
	EstimateID  string
	RoomID      string
	RoomArea    float64
	UpgradeType string
}

type UpgradesResponse struct {
	Upgrades   []json.RawMessage `json:"upgrades"`
	IsFallback bool              `json:"-"`
}

// GetProductUpgrades is cached per product, estimate, room and upgrade type.
// Failures resolve to an empty fallback.
func (g *Gateway) GetProductUpgrades(ctx context.Context, req UpgradesRequest) (UpgradesResponse, error) {
	res, err := g.Invoke(ctx, ActionGetProductUpgrades, Payload{
		"product_id":   req.ProductID,
		"estimate_id":  req.EstimateID,
		"room_id":      req.RoomID,
		"room_area":    req.RoomArea,
		"upgrade_type": req.UpgradeType,
	}, CallOptions{
		AllowFailure: true,
		CacheFamily:  FamilyUpgrades,
		CacheKey:     CacheKey(req.ProductID, req.EstimateID, req.RoomID, req.UpgradeType),
	})
	if err != nil {
		return UpgradesResponse{}, err
	}
	var out UpgradesResponse
	if err := decodeData(res, &out); err != nil {
		return UpgradesResponse{}, err
	}
	out.IsFallback = res.IsFallback
	return out, nil
}

type ProductDataRequest struct {
	ProductID  string
	RoomWidth  float64
	RoomLength float64
	// RoomProducts is the room's product ID set as it will be after the
	// mutation.
	RoomProducts       []string
	IncludeSuggestions bool
}

type ProductDataResponse struct {
	ProductData           *estimate.Product           `json:"product_data"`
	RoomSuggestedProducts []estimate.SuggestedProduct `json:"room_suggested_products,omitempty"`
	IsFallback            bool                        `json:"-"`
}

// Usable reports whether the response carries authoritative product data.
func (r ProductDataResponse) Usable() bool {
	return !r.IsFallback && r.ProductData != nil
}

// GetProductDataForStorage fetches pricing, the primary-category flag and
// similar products for a product about to be stored. Failures resolve to a
// fallback the caller must refuse to store.
func (g *Gateway) GetProductDataForStorage(ctx context.Context, req ProductDataRequest) (ProductDataResponse, error) {
	products := append([]string(nil), req.RoomProducts...)
	sort.Strings(products)
	payload := Payload{
		"product_id":    req.ProductID,
		"room_width":    req.RoomWidth,
		"room_length":   req.RoomLength,
		"room_products": products,
	}
	if req.IncludeSuggestions {
		payload["include_suggestions"] = true
	}
	res, err := g.Invoke(ctx, ActionGetProductDataForStorage, payload, CallOptions{
		AllowFailure: true,
		CacheFamily:  FamilyProductData,
		CacheKey: CacheKey(req.ProductID, formatFloat(req.RoomWidth), formatFloat(req.RoomLength),
			strings.Join(products, ","), strconv.FormatBool(req.IncludeSuggestions)),
	})
	if err != nil {
		return ProductDataResponse{}, err
	}
	var out ProductDataResponse
	if err := decodeData(res, &out); err != nil {
		return ProductDataResponse{}, err
	}
	out.IsFallback = res.IsFallback
	if out.ProductData != nil && out.ProductData.ID == "" {
		out.ProductData.ID = req.ProductID
	}
	return out, nil
}

type SimilarProductsResponse struct {
	Products   []estimate.SimilarProduct `json:"products"`
	IsFallback bool                      `json:"-"`
}

func (g *Gateway) GetSimilarProducts(ctx context.Context, productID string, roomArea float64) (SimilarProductsResponse, error) {
	res, err := g.Invoke(ctx, ActionGetSimilarProducts, Payload{
		"product_id": productID,
		"room_area":  roomArea,
	}, CallOptions{
		AllowFailure: true,
		CacheFamily:  FamilySimilarProducts,
		CacheKey:     CacheKey(productID, formatFloat(roomArea)),
	})
	if err != nil {
		return SimilarProductsResponse{}, err
	}
	var out SimilarProductsResponse
	if err := decodeData(res, &out); err != nil {
		return SimilarProductsResponse{}, err
	}
	out.IsFallback = res.IsFallback
	return out, nil
}

type SuggestionsResponse struct {
	UpdatedSuggestions []estimate.SuggestedProduct `json:"updated_suggestions"`
	IsFallback         bool                        `json:"-"`
}

// FetchSuggestionsForModifiedRoom computes suggestions against productIDs,
// which should be the room's product set after the mutation.
func (g *Gateway) FetchSuggestionsForModifiedRoom(ctx context.Context, estimateID, roomID string, productIDs []string) (SuggestionsResponse, error) {
	ids := append([]string(nil), productIDs...)
	sort.Strings(ids)
	res, err := g.Invoke(ctx, ActionFetchSuggestionsForRoom, Payload{
		"estimate_id":                      estimateID,
		"room_id":                          roomID,
		"room_product_ids_for_suggestions": ids,
	}, CallOptions{
		AllowFailure: true,
		CacheFamily:  FamilySuggestions,
		CacheKey:     CacheKey(estimateID, roomID, strings.Join(ids, ",")),
	})
	if err != nil {
		return SuggestionsResponse{}, err
	}
	var out SuggestionsResponse
	if err := decodeData(res, &out); err != nil {
		return SuggestionsResponse{}, err
	}
	out.IsFallback = res.IsFallback
	return out, nil
}

type Variation struct {
	ID           string            `json:"variation_id"`
	Attributes   map[string]string `json:"attributes"`
	DisplayPrice float64           `json:"display_price"`
	Image        string            `json:"image,omitempty"`
	InStock      bool              `json:"is_in_stock"`
}

func (v *Variation) UnmarshalJSON(data []byte) error {
	type variationAlias Variation
	aux := struct {
		ID    json.RawMessage `json:"variation_id"`
		Image json.RawMessage `json:"image"`
		*variationAlias
	}{variationAlias: (*variationAlias)(v)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	v.ID = flexID(aux.ID)
	v.Image = imageURL(aux.Image)
	return nil
}

type VariationsResponse struct {
	IsVariable bool            `json:"is_variable"`
	Variations []Variation     `json:"variations"`
	Attributes json.RawMessage `json:"attributes,omitempty"`
}

// GetProductVariations fails hard: gating an add on a fallback would skip
// variation selection.
func (g *Gateway) GetProductVariations(ctx context.Context, productID string) (VariationsResponse, error) {
	res, err := g.Invoke(ctx, ActionGetProductVariations, Payload{
		"product_id": productID,
	}, CallOptions{
		CacheFamily: FamilyVariations,
		CacheKey:    CacheKey(productID),
	})
	if err != nil {
		return VariationsResponse{}, err
	}
	var out VariationsResponse
	if err := decodeData(res, &out); err != nil {
		return VariationsResponse{}, err
	}
	return out, nil
}

func (g *Gateway) AddProductToRoom(ctx context.Context, estimateID, roomID, productID string) error {
	return g.mirror(ctx, ActionAddProductToRoom, Payload{
		"estimate_id": estimateID,
		"room_id":     roomID,
		"product_id":  productID,
	})
}

func (g *Gateway) ReplaceProductInRoom(ctx context.Context, estimateID, roomID, oldProductID, newProductID, parentProductID string) error {
	payload := Payload{
		"estimate_id":    estimateID,
		"room_id":        roomID,
		"product_id":     newProductID,
		"old_product_id": oldProductID,
	}
	if parentProductID != "" {
		payload["parent_product_id"] = parentProductID
		payload["replace_type"] = "additional_products"
	} else {
		payload["replace_type"] = "main"
	}
	return g.mirror(ctx, ActionReplaceProductInRoom, payload)
}

func (g *Gateway) RemoveProductFromRoom(ctx context.Context, estimateID, roomID, productID string) error {
	return g.mirror(ctx, ActionRemoveProductFromRoom, Payload{
		"estimate_id": estimateID,
		"room_id":     roomID,
		"product_id":  productID,
	})
}

type RoomPayload struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Width  float64 `json:"width"`
	Length float64 `json:"length"`
}

func (g *Gateway) AddNewRoom(ctx context.Context, estimateID string, room RoomPayload) error {
	return g.mirror(ctx, ActionAddNewRoom, Payload{
		"estimate_id": estimateID,
		"room_id":     room.ID,
		"form_data":   room,
	})
}

func (g *Gateway) AddNewEstimate(ctx context.Context, estimateID, name string) error {
	return g.mirror(ctx, ActionAddNewEstimate, Payload{
		"estimate_id":   estimateID,
		"estimate_name": name,
	})
}

func (g *Gateway) RemoveRoom(ctx context.Context, estimateID, roomID string) error {
	return g.mirror(ctx, ActionRemoveRoom, Payload{
		"estimate_id": estimateID,
		"room_id":     roomID,
	})
}

func (g *Gateway) RemoveEstimate(ctx context.Context, estimateID string) error {
	return g.mirror(ctx, ActionRemoveEstimate, Payload{
		"estimate_id": estimateID,
	})
}

func (g *Gateway) mirror(ctx context.Context, action string, payload Payload) error {
	_, err := g.Invoke(ctx, action, payload, CallOptions{})
	return err
}

// CacheKey joins request parameters into a cache signature.
func CacheKey(parts ...string) string {
	return strings.Join(parts, "|")
}

func decodeData(res Result, out any) error {
	data := bytes.TrimSpace(res.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	// WordPress sends an empty array for empty objects.
	if bytes.Equal(data, []byte("[]")) {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func flexID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return ""
	}
	return n.String()
}

// imageURL accepts a plain URL or WooCommerce's {"url": ...} image object.
func imageURL(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		URL string `json:"url"`
		Src string `json:"src"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.URL != "" {
			return obj.URL
		}
		return obj.Src
	}
	return ""
}
