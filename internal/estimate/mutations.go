package estimate

// The functions in this file are the pure in-memory mutations behind the
// Store helpers. They report false when the target path does not exist or
// the change would break an invariant, and leave root untouched in that case.

func (root *Root) Estimate(estimateID string) (*Estimate, bool) {
	e, ok := root.Estimates.Get(estimateID)
	return e, ok && e != nil
}

func (root *Root) Room(estimateID, roomID string) (*Room, bool) {
	e, ok := root.Estimate(estimateID)
	if !ok {
		return nil, false
	}
	r, ok := e.Rooms.Get(roomID)
	return r, ok && r != nil
}

func (root *Root) AddEstimate(e *Estimate) bool {
	if e == nil || e.ID == "" || root.Estimates.Has(e.ID) {
		return false
	}
	e.recompute()
	root.Estimates.Set(e.ID, e)
	return true
}

func (root *Root) RemoveEstimate(estimateID string) bool {
	return root.Estimates.Delete(estimateID)
}

func (root *Root) AddRoom(estimateID string, r *Room) bool {
	e, ok := root.Estimate(estimateID)
	if !ok || r == nil || r.ID == "" || e.Rooms.Has(r.ID) {
		return false
	}
	r.recompute()
	e.Rooms.Set(r.ID, r)
	e.recompute()
	return true
}

func (root *Root) RemoveRoom(estimateID, roomID string) bool {
	e, ok := root.Estimate(estimateID)
	if !ok {
		return false
	}
	if !e.Rooms.Delete(roomID) {
		return false
	}
	e.recompute()
	return true
}

// AddProductToRoom refuses duplicates and a second primary-category product.
func (root *Root) AddProductToRoom(estimateID, roomID string, p *Product) bool {
	e, ok := root.Estimate(estimateID)
	if !ok {
		return false
	}
	r, ok := root.Room(estimateID, roomID)
	if !ok || p == nil || p.ID == "" || r.Products.Has(p.ID) {
		return false
	}
	if p.IsPrimaryCategory {
		if _, exists := r.PrimaryProduct(); exists {
			return false
		}
	}
	r.Products.Set(p.ID, p)
	r.recompute()
	e.recompute()
	return true
}

func (root *Root) RemoveProductFromRoom(estimateID, roomID, productID string) bool {
	e, ok := root.Estimate(estimateID)
	if !ok {
		return false
	}
	r, ok := root.Room(estimateID, roomID)
	if !ok {
		return false
	}
	if !r.Products.Delete(productID) {
		return false
	}
	r.recompute()
	e.recompute()
	return true
}

// ReplaceProductInRoom swaps oldProductID for p in place. When
// parentProductID is set the old product is looked up in that product's
// additional products. The new product inherits the old product's
// replacement chain plus the old ID.
func (root *Root) ReplaceProductInRoom(estimateID, roomID, oldProductID string, p *Product, parentProductID string) bool {
	e, ok := root.Estimate(estimateID)
	if !ok {
		return false
	}
	r, ok := root.Room(estimateID, roomID)
	if !ok || p == nil || p.ID == "" {
		return false
	}
	container := &r.Products
	if parentProductID != "" {
		parent, ok := r.Products.Get(parentProductID)
		if !ok || parent == nil {
			return false
		}
		container = &parent.AdditionalProducts
	}
	old, ok := container.Get(oldProductID)
	if !ok || old == nil {
		return false
	}
	if parentProductID == "" && p.IsPrimaryCategory {
		if primary, exists := r.PrimaryProduct(); exists && primary.ID != oldProductID {
			return false
		}
	}
	p.ReplacementChain = extendChain(old.ReplacementChain, oldProductID, p.ID)
	if !container.Swap(oldProductID, p.ID, p) {
		return false
	}
	r.recompute()
	e.recompute()
	return true
}

func extendChain(chain []string, oldID, newID string) []string {
	out := make([]string, 0, len(chain)+1)
	seen := map[string]struct{}{}
	for _, id := range append(append([]string(nil), chain...), oldID) {
		if id == "" || id == newID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (root *Root) SetSuggestionsForRoom(estimateID, roomID string, suggestions []SuggestedProduct) bool {
	r, ok := root.Room(estimateID, roomID)
	if !ok {
		return false
	}
	r.ProductSuggestions = append([]SuggestedProduct(nil), suggestions...)
	return true
}
