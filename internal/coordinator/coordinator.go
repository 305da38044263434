package coordinator

import (
	"context"
	"errors"

	"github.com/product-estimator/estimator/internal/estimate"
	"github.com/product-estimator/estimator/internal/gateway"
	"github.com/product-estimator/estimator/internal/mirror"
)

// Remote is the part of the gateway the local-first protocols depend on.
type Remote interface {
	GetProductDataForStorage(ctx context.Context, req gateway.ProductDataRequest) (gateway.ProductDataResponse, error)
	FetchSuggestionsForModifiedRoom(ctx context.Context, estimateID, roomID string, productIDs []string) (gateway.SuggestionsResponse, error)
	GetProductVariations(ctx context.Context, productID string) (gateway.VariationsResponse, error)
	InvalidateFamily(family gateway.Family)
	InvalidateAll()
}

// Detacher queues server-mirroring tasks without waiting for them.
type Detacher interface {
	Detach(task mirror.Task) mirror.Detached
}

// VariationPicker asks the shopper to choose a variation. It returns
// ErrVariationCancelled, or an empty ID, when the shopper backs out.
type VariationPicker interface {
	PickVariation(ctx context.Context, productID string, variations []gateway.Variation) (string, error)
}

type Logger interface {
	Printf(format string, args ...any)
}

type Recorder interface {
	ObserveMutation(operation, outcome string)
}

type Options struct {
	Picker VariationPicker
	// SuggestionsEnabled controls whether room suggestions are fetched and
	// stored. When false, stored suggestions are cleared on every product
	// change.
	SuggestionsEnabled bool
	Logger             Logger
	Metrics            Recorder
	Guard              *Guard
}

// Coordinator runs the local-first protocol for every user-visible change:
// validate, check local conflicts, fetch authoritative data, write the store,
// then detach a mirror call.
type Coordinator struct {
	store       *estimate.Store
	remote      Remote
	mirror      Detacher
	picker      VariationPicker
	suggestions bool
	logger      Logger
	metrics     Recorder
	guard       *Guard
}

func New(store *estimate.Store, remote Remote, detacher Detacher, opts Options) *Coordinator {
	guard := opts.Guard
	if guard == nil {
		guard = NewGuard()
	}
	return &Coordinator{
		store:       store,
		remote:      remote,
		mirror:      detacher,
		picker:      opts.Picker,
		suggestions: opts.SuggestionsEnabled,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		guard:       guard,
	}
}

func (c *Coordinator) Store() *estimate.Store {
	return c.store
}

func (c *Coordinator) Guard() *Guard {
	return c.guard
}

// ProductResult is read back from the store after a product mutation.
type ProductResult struct {
	EstimateID               string                      `json:"estimate_id"`
	RoomID                   string                      `json:"room_id"`
	ProductID                string                      `json:"product_id"`
	Product                  *estimate.Product           `json:"product,omitempty"`
	RoomTotals               estimate.Totals             `json:"room_totals"`
	EstimateTotals           estimate.Totals             `json:"estimate_totals"`
	PrimaryCategoryProductID *string                     `json:"primary_category_product_id"`
	Suggestions              []estimate.SuggestedProduct `json:"suggestions"`
	Mirror                   mirror.Detached             `json:"-"`
}

type RoomResult struct {
	EstimateID     string          `json:"estimate_id"`
	RoomID         string          `json:"room_id"`
	EstimateTotals estimate.Totals `json:"estimate_totals"`
	// Product is set when a pending product was added to the new room.
	Product *ProductResult  `json:"product,omitempty"`
	Mirror  mirror.Detached `json:"-"`
}

type EstimateResult struct {
	EstimateID string          `json:"estimate_id"`
	Totals     estimate.Totals `json:"totals"`
	Mirror     mirror.Detached `json:"-"`
}

func (c *Coordinator) detach(task mirror.Task) mirror.Detached {
	if c.mirror == nil {
		return mirror.Detached{}
	}
	return c.mirror.Detach(task)
}

func (c *Coordinator) observe(operation string, err error) {
	if c.metrics != nil {
		c.metrics.ObserveMutation(operation, outcome(err))
	}
	if err == nil {
		return
	}
	// Conflicts and validation are routed to the dialog policy, not logged.
	if errors.Is(err, ErrDuplicate) || errors.Is(err, ErrPrimaryConflict) || errors.Is(err, ErrValidation) {
		return
	}
	c.logf("%s failed: %v", operation, err)
}

func (c *Coordinator) logf(format string, args ...any) {
	if c.logger == nil {
		return
	}
	c.logger.Printf(format, args...)
}

func (c *Coordinator) acquire(key string) (func(), error) {
	release, ok := c.guard.Acquire(key)
	if !ok {
		return nil, ErrBusy
	}
	return release, nil
}

// productResult reads the room and estimate back from the store so callers
// render exactly what was persisted.
func (c *Coordinator) productResult(estimateID, roomID, productID, parentProductID string) (ProductResult, error) {
	root := c.store.Load()
	e, ok := root.Estimate(estimateID)
	if !ok {
		return ProductResult{}, notFound("estimate %s", estimateID)
	}
	r, ok := root.Room(estimateID, roomID)
	if !ok {
		return ProductResult{}, notFound("room %s", roomID)
	}
	result := ProductResult{
		EstimateID:               estimateID,
		RoomID:                   roomID,
		ProductID:                productID,
		RoomTotals:               r.Totals,
		EstimateTotals:           e.Totals,
		PrimaryCategoryProductID: r.PrimaryCategoryProductID,
		Suggestions:              r.ProductSuggestions,
	}
	if productID != "" {
		container := &r.Products
		if parentProductID != "" {
			if parent, ok := r.Products.Get(parentProductID); ok && parent != nil {
				container = &parent.AdditionalProducts
			}
		}
		if p, ok := container.Get(productID); ok {
			result.Product = p
		}
	}
	return result, nil
}
