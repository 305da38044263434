package estimate

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Root is the whole persisted record.
type Root struct {
	Estimates       OrderedMap[*Estimate] `json:"estimates"`
	CustomerDetails *CustomerDetails      `json:"customerDetails,omitempty"`
}

type Estimate struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Rooms  OrderedMap[*Room] `json:"rooms"`
	Totals Totals            `json:"totals"`
}

type Room struct {
	ID                       string               `json:"id"`
	Name                     string               `json:"name"`
	Width                    float64              `json:"width"`
	Length                   float64              `json:"length"`
	Products                 OrderedMap[*Product] `json:"products"`
	ProductSuggestions       []SuggestedProduct   `json:"product_suggestions"`
	PrimaryCategoryProductID *string              `json:"primary_category_product_id"`
	Totals                   Totals               `json:"totals"`
}

// Area is width × length in the room's unit.
func (r *Room) Area() float64 {
	if r == nil {
		return 0
	}
	return r.Width * r.Length
}

type Product struct {
	ID                 string               `json:"id"`
	Name               string               `json:"name"`
	Image              string               `json:"image,omitempty"`
	MinPriceTotal      float64              `json:"min_price_total"`
	MaxPriceTotal      float64              `json:"max_price_total"`
	PricingMethod      string               `json:"pricing_method,omitempty"`
	PricingSource      string               `json:"pricing_source,omitempty"`
	IsPrimaryCategory  bool                 `json:"is_primary_category"`
	SimilarProducts    []SimilarProduct     `json:"similar_products"`
	AdditionalProducts OrderedMap[*Product] `json:"additional_products"`
	AdditionalNotes    OrderedMap[*Note]    `json:"additional_notes"`
	ReplacementChain   []string             `json:"replacement_chain,omitempty"`
}

func (p *Product) UnmarshalJSON(data []byte) error {
	type productAlias Product
	aux := struct {
		ID json.RawMessage `json:"id"`
		*productAlias
	}{productAlias: (*productAlias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.ID = flexString(aux.ID)
	return nil
}

type SimilarProduct struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Image         string  `json:"image,omitempty"`
	MinPriceTotal float64 `json:"min_price_total,omitempty"`
	MaxPriceTotal float64 `json:"max_price_total,omitempty"`
}

func (p *SimilarProduct) UnmarshalJSON(data []byte) error {
	type similarAlias SimilarProduct
	aux := struct {
		ID json.RawMessage `json:"id"`
		*similarAlias
	}{similarAlias: (*similarAlias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.ID = flexString(aux.ID)
	return nil
}

type SuggestedProduct struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Image    string  `json:"image,omitempty"`
	MinPrice float64 `json:"min_price,omitempty"`
	MaxPrice float64 `json:"max_price,omitempty"`
}

func (p *SuggestedProduct) UnmarshalJSON(data []byte) error {
	type suggestedAlias SuggestedProduct
	aux := struct {
		ID json.RawMessage `json:"id"`
		*suggestedAlias
	}{suggestedAlias: (*suggestedAlias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.ID = flexString(aux.ID)
	return nil
}

type Note struct {
	ID   string `json:"id"`
	Note string `json:"note"`
}

type CustomerDetails struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Postcode string `json:"postcode"`
}

func (d CustomerDetails) IsZero() bool {
	return d == CustomerDetails{}
}

type Totals struct {
	MinTotal float64 `json:"min_total"`
	MaxTotal float64 `json:"max_total"`
}

func sumTotals(parts []Totals) Totals {
	minSum := decimal.Zero
	maxSum := decimal.Zero
	for _, t := range parts {
		minSum = minSum.Add(decimal.NewFromFloat(t.MinTotal))
		maxSum = maxSum.Add(decimal.NewFromFloat(t.MaxTotal))
	}
	return Totals{MinTotal: minSum.InexactFloat64(), MaxTotal: maxSum.InexactFloat64()}
}

// productTotals includes the product's additional products.
func productTotals(p *Product) Totals {
	if p == nil {
		return Totals{}
	}
	parts := []Totals{{MinTotal: p.MinPriceTotal, MaxTotal: p.MaxPriceTotal}}
	p.AdditionalProducts.Range(func(_ string, extra *Product) bool {
		parts = append(parts, productTotals(extra))
		return true
	})
	return sumTotals(parts)
}

func (r *Room) recompute() {
	parts := make([]Totals, 0, r.Products.Len())
	var primary *string
	r.Products.Range(func(id string, p *Product) bool {
		parts = append(parts, productTotals(p))
		if p != nil && p.IsPrimaryCategory && primary == nil {
			pid := id
			primary = &pid
		}
		return true
	})
	r.Totals = sumTotals(parts)
	r.PrimaryCategoryProductID = primary
}

func (e *Estimate) recompute() {
	parts := make([]Totals, 0, e.Rooms.Len())
	e.Rooms.Range(func(_ string, r *Room) bool {
		if r != nil {
			parts = append(parts, r.Totals)
		}
		return true
	})
	e.Totals = sumTotals(parts)
}

// PrimaryProduct returns the room's primary-category product, if any.
func (r *Room) PrimaryProduct() (*Product, bool) {
	if r == nil || r.PrimaryCategoryProductID == nil {
		return nil, false
	}
	return r.Products.Get(*r.PrimaryCategoryProductID)
}

// ProductIDs lists the room's top-level product IDs in order.
func (r *Room) ProductIDs() []string {
	if r == nil {
		return nil
	}
	return r.Products.Keys()
}

func (root *Root) legacy() bool {
	if root.Estimates.Legacy() {
		return true
	}
	found := false
	root.Estimates.Range(func(_ string, e *Estimate) bool {
		if e == nil {
			return true
		}
		if e.Rooms.Legacy() {
			found = true
			return false
		}
		e.Rooms.Range(func(_ string, r *Room) bool {
			if r == nil {
				return true
			}
			if r.Products.Legacy() {
				found = true
				return false
			}
			r.Products.Range(func(_ string, p *Product) bool {
				if p != nil && (p.AdditionalProducts.Legacy() || p.AdditionalNotes.Legacy()) {
					found = true
					return false
				}
				return true
			})
			return !found
		})
		return !found
	})
	return found
}

// normalize fixes entries whose embedded id disagrees with their key and
// drops nil entries, then recomputes derived fields.
func (root *Root) normalize() {
	for _, key := range root.Estimates.Keys() {
		e, _ := root.Estimates.Get(key)
		if e == nil {
			root.Estimates.Delete(key)
			continue
		}
		if e.ID == "" {
			e.ID = key
		}
		for _, roomKey := range e.Rooms.Keys() {
			r, _ := e.Rooms.Get(roomKey)
			if r == nil {
				e.Rooms.Delete(roomKey)
				continue
			}
			if r.ID == "" {
				r.ID = roomKey
			}
			for _, productKey := range r.Products.Keys() {
				p, _ := r.Products.Get(productKey)
				if p == nil {
					r.Products.Delete(productKey)
					continue
				}
				if p.ID == "" {
					p.ID = productKey
				}
			}
			r.recompute()
		}
		e.recompute()
	}
}
