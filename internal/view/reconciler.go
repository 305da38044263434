package view

import (
	"sync"

	"github.com/product-estimator/estimator/internal/estimate"
)

// Snapshotter supplies the current persisted state.
type Snapshotter interface {
	Load() estimate.Root
}

type Logger interface {
	Printf(format string, args ...any)
}

// RegionUpdate describes one change to the document. Removed updates carry
// no HTML.
type RegionUpdate struct {
	Region  RegionID `json:"region"`
	HTML    Fragment `json:"html,omitempty"`
	Removed bool     `json:"removed,omitempty"`
}

type ReconcilerOptions struct {
	Document *Document
	Logger   Logger
	// OnUpdate receives the changes of each reconcile call after the call
	// finishes.
	OnUpdate func([]RegionUpdate)
}

// Reconciler keeps the Document consistent with the store. Everything is
// re-rendered as whole subtrees except aggregate totals and the room's
// primary product header, which are patched in place.
type Reconciler struct {
	mu       sync.Mutex
	source   Snapshotter
	renderer Renderer
	doc      *Document
	logger   Logger
	onUpdate func([]RegionUpdate)
	pending  []RegionUpdate
}

func NewReconciler(source Snapshotter, renderer Renderer, opts ReconcilerOptions) *Reconciler {
	doc := opts.Document
	if doc == nil {
		doc = NewDocument()
	}
	return &Reconciler{
		source:   source,
		renderer: renderer,
		doc:      doc,
		logger:   opts.Logger,
		onUpdate: opts.OnUpdate,
	}
}

func (r *Reconciler) Document() *Document {
	return r.doc
}

// RenderAll rebuilds the whole document from a fresh snapshot.
func (r *Reconciler) RenderAll() error {
	r.mu.Lock()
	err := r.renderAllLocked(r.source.Load())
	updates := r.takeLocked()
	r.mu.Unlock()
	r.emit(updates)
	return err
}

// RenderEstimate re-renders one estimate subtree. A removed estimate is
// unmounted and the estimates list refreshed.
func (r *Reconciler) RenderEstimate(estimateID string) error {
	r.mu.Lock()
	err := r.renderEstimateByIDLocked(r.source.Load(), estimateID)
	updates := r.takeLocked()
	r.mu.Unlock()
	r.emit(updates)
	return err
}

// RenderRoom re-renders one room subtree when it is mounted.
func (r *Reconciler) RenderRoom(estimateID, roomID string) error {
	r.mu.Lock()
	err := r.renderRoomByIDLocked(r.source.Load(), estimateID, roomID)
	updates := r.takeLocked()
	r.mu.Unlock()
	r.emit(updates)
	return err
}

// ProductChanged reconciles after a product add, replace or remove. The
// product list and suggestions are re-rendered as a whole; totals and the
// primary header are patched with the values the mutation returned.
func (r *Reconciler) ProductChanged(estimateID, roomID string, roomTotals, estimateTotals estimate.Totals, primary *estimate.Product) error {
	r.mu.Lock()
	root := r.source.Load()
	var err error
	if room, ok := root.Room(estimateID, roomID); ok {
		err = r.renderRoomBodyLocked(NewRoomView(estimateID, room, r.doc.Expanded(estimateID, roomID)))
	}
	r.patchTotalsLocked(estimateID, roomID, roomTotals, estimateTotals)
	r.patchPrimaryLocked(estimateID, roomID, primary)
	updates := r.takeLocked()
	r.mu.Unlock()
	r.emit(updates)
	return err
}

// PatchTotals updates the room and estimate totals in place. Regions that
// are not mounted are skipped; it reports whether anything was patched.
func (r *Reconciler) PatchTotals(estimateID, roomID string, roomTotals, estimateTotals estimate.Totals) bool {
	r.mu.Lock()
	patched := r.patchTotalsLocked(estimateID, roomID, roomTotals, estimateTotals)
	updates := r.takeLocked()
	r.mu.Unlock()
	r.emit(updates)
	return patched
}

// PatchPrimaryProduct updates the room's primary product header in place,
// or does nothing when the room header is not mounted.
func (r *Reconciler) PatchPrimaryProduct(estimateID, roomID string, primary *estimate.Product) bool {
	r.mu.Lock()
	patched := r.patchPrimaryLocked(estimateID, roomID, primary)
	updates := r.takeLocked()
	r.mu.Unlock()
	r.emit(updates)
	return patched
}

// Expand opens an accordion and renders what it reveals.
func (r *Reconciler) Expand(estimateID, roomID string) error {
	r.doc.Expand(estimateID, roomID)
	if roomID == "" {
		return r.RenderEstimate(estimateID)
	}
	return r.RenderRoom(estimateID, roomID)
}

func (r *Reconciler) Collapse(estimateID, roomID string) error {
	r.mu.Lock()
	for _, id := range r.doc.Collapse(estimateID, roomID) {
		r.pending = append(r.pending, RegionUpdate{Region: id, Removed: true})
	}
	root := r.source.Load()
	var err error
	if roomID == "" {
		err = r.renderEstimateByIDLocked(root, estimateID)
	} else {
		err = r.renderRoomByIDLocked(root, estimateID, roomID)
	}
	updates := r.takeLocked()
	r.mu.Unlock()
	r.emit(updates)
	return err
}

func (r *Reconciler) renderAllLocked(root estimate.Root) error {
	for _, id := range r.doc.reset() {
		r.pending = append(r.pending, RegionUpdate{Region: id, Removed: true})
	}
	r.doc.retainEstimates(root.Estimates.Keys())
	if err := r.renderListLocked(root); err != nil {
		return err
	}
	for _, e := range root.Estimates.Values() {
		if e == nil {
			continue
		}
		if err := r.renderEstimateLocked(e); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) renderListLocked(root estimate.Root) error {
	views := make([]EstimateView, 0, root.Estimates.Len())
	for _, e := range root.Estimates.Values() {
		if e != nil {
			views = append(views, NewEstimateView(e, false, nil))
		}
	}
	return r.renderInto(EstimatesRegion, TemplateEstimates, views)
}

func (r *Reconciler) renderEstimateByIDLocked(root estimate.Root, estimateID string) error {
	e, ok := root.Estimate(estimateID)
	if !ok {
		r.unmountLocked(EstimateRegion(estimateID))
		r.unmountLocked(RegionID("room/" + estimateID))
		r.doc.forget(estimateID)
		return r.renderListLocked(root)
	}
	if !r.doc.Mounted(EstimateRegion(estimateID)) {
		if err := r.renderListLocked(root); err != nil {
			return err
		}
	}
	return r.renderEstimateLocked(e)
}

func (r *Reconciler) renderEstimateLocked(e *estimate.Estimate) error {
	r.doc.retainRooms(e.ID, e.Rooms.Keys())
	expanded := r.doc.Expanded(e.ID, "")
	ev := NewEstimateView(e, expanded, func(roomID string) bool { return r.doc.Expanded(e.ID, roomID) })
	if err := r.renderInto(EstimateRegion(e.ID), TemplateEstimate, ev); err != nil {
		return err
	}
	if err := r.renderInto(EstimateTotalsRegion(e.ID), TemplateTotals, ev.Totals); err != nil {
		return err
	}
	r.unmountLocked(RegionID("room/" + e.ID))
	if !expanded {
		return nil
	}
	for _, rv := range ev.Rooms {
		if err := r.renderRoomLocked(rv); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) renderRoomByIDLocked(root estimate.Root, estimateID, roomID string) error {
	room, ok := root.Room(estimateID, roomID)
	if !ok {
		return r.renderEstimateByIDLocked(root, estimateID)
	}
	if !r.doc.Expanded(estimateID, "") {
		return nil
	}
	return r.renderRoomLocked(NewRoomView(estimateID, room, r.doc.Expanded(estimateID, roomID)))
}

func (r *Reconciler) renderRoomLocked(rv RoomView) error {
	if err := r.renderInto(RoomRegion(rv.EstimateID, rv.ID), TemplateRoom, rv); err != nil {
		return err
	}
	if err := r.renderInto(RoomTotalsRegion(rv.EstimateID, rv.ID), TemplateTotals, rv.Totals); err != nil {
		return err
	}
	if err := r.renderInto(PrimaryProductRegion(rv.EstimateID, rv.ID), TemplatePrimaryProduct, rv.Primary); err != nil {
		return err
	}
	return r.renderRoomBodyLocked(rv)
}

// renderRoomBodyLocked replaces the product list and suggestions as whole
// subtrees. An empty room gets the empty-state template.
func (r *Reconciler) renderRoomBodyLocked(rv RoomView) error {
	products := ProductListRegion(rv.EstimateID, rv.ID)
	suggestions := SuggestionsRegion(rv.EstimateID, rv.ID)
	if !rv.Expanded || !r.doc.Mounted(RoomRegion(rv.EstimateID, rv.ID)) {
		r.unmountLocked(products)
		r.unmountLocked(suggestions)
		return nil
	}
	var err error
	if len(rv.Products) == 0 {
		err = r.renderInto(products, TemplateProductsEmpty, rv)
	} else {
		err = r.renderInto(products, TemplateProductList, rv.Products)
	}
	if err != nil {
		return err
	}
	return r.renderInto(suggestions, TemplateSuggestions, rv.Suggestions)
}

func (r *Reconciler) patchTotalsLocked(estimateID, roomID string, roomTotals, estimateTotals estimate.Totals) bool {
	patched := false
	if roomID != "" && r.patchLocked(RoomTotalsRegion(estimateID, roomID), TemplateTotals, NewTotalsView(roomTotals)) {
		patched = true
	}
	if r.patchLocked(EstimateTotalsRegion(estimateID), TemplateTotals, NewTotalsView(estimateTotals)) {
		patched = true
	}
	return patched
}

func (r *Reconciler) patchPrimaryLocked(estimateID, roomID string, primary *estimate.Product) bool {
	var pv *ProductView
	if primary != nil {
		v := NewProductView(estimateID, roomID, primary)
		pv = &v
	}
	return r.patchLocked(PrimaryProductRegion(estimateID, roomID), TemplatePrimaryProduct, pv)
}

func (r *Reconciler) patchLocked(id RegionID, templateID string, data any) bool {
	if !r.doc.Mounted(id) {
		return false
	}
	f, err := r.renderer.Render(templateID, data)
	if err != nil {
		r.logf("patch %s failed: %v", id, err)
		return false
	}
	if !r.doc.patch(id, f) {
		return false
	}
	r.pending = append(r.pending, RegionUpdate{Region: id, HTML: f})
	return true
}

func (r *Reconciler) renderInto(id RegionID, templateID string, data any) error {
	f, err := r.renderer.Render(templateID, data)
	if err != nil {
		r.logf("render %s failed: %v", id, err)
		return err
	}
	r.doc.mount(id, f)
	r.pending = append(r.pending, RegionUpdate{Region: id, HTML: f})
	return nil
}

func (r *Reconciler) unmountLocked(prefix RegionID) {
	for _, id := range r.doc.unmount(prefix) {
		r.pending = append(r.pending, RegionUpdate{Region: id, Removed: true})
	}
}

func (r *Reconciler) takeLocked() []RegionUpdate {
	updates := r.pending
	r.pending = nil
	return updates
}

func (r *Reconciler) emit(updates []RegionUpdate) {
	if r.onUpdate == nil || len(updates) == 0 {
		return
	}
	r.onUpdate(updates)
}

func (r *Reconciler) logf(format string, args ...any) {
	if r.logger == nil {
		return
	}
	r.logger.Printf(format, args...)
}
