package view

import (
	"strconv"

	"github.com/product-estimator/estimator/internal/estimate"
	"github.com/shopspring/decimal"
)

type TotalsView struct {
	Min      string
	Max      string
	MinValue float64
	MaxValue float64
}

// Range is "$min" when both ends match, else "$min - $max".
func (t TotalsView) Range() string {
	if t.Min == t.Max {
		return t.Min
	}
	return t.Min + " - " + t.Max
}

type ProductView struct {
	EstimateID         string
	RoomID             string
	ID                 string
	Name               string
	Image              string
	Totals             TotalsView
	IsPrimary          bool
	AdditionalProducts []ProductView
	Notes              []string
	SimilarCount       int
	ReplacedFrom       []string
}

type SuggestionView struct {
	ID    string
	Name  string
	Image string
	Price TotalsView
}

type RoomView struct {
	EstimateID  string
	ID          string
	Name        string
	Dimensions  string
	Area        string
	Totals      TotalsView
	Primary     *ProductView
	Products    []ProductView
	Suggestions []SuggestionView
	Expanded    bool
}

type EstimateView struct {
	ID       string
	Name     string
	Totals   TotalsView
	Rooms    []RoomView
	Expanded bool
}

func NewTotalsView(t estimate.Totals) TotalsView {
	return TotalsView{
		Min:      FormatPrice(t.MinTotal),
		Max:      FormatPrice(t.MaxTotal),
		MinValue: t.MinTotal,
		MaxValue: t.MaxTotal,
	}
}

// FormatPrice renders a dollar amount with two decimals and thousands
// separators.
func FormatPrice(v float64) string {
	fixed := decimal.NewFromFloat(v).Round(2).StringFixed(2)
	sign := ""
	if fixed[0] == '-' {
		sign = "-"
		fixed = fixed[1:]
	}
	whole, frac := fixed[:len(fixed)-3], fixed[len(fixed)-3:]
	out := make([]byte, 0, len(whole)+len(whole)/3)
	for i := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, whole[i])
	}
	return sign + "$" + string(out) + frac
}

func formatMeasure(v float64) string {
	return decimal.NewFromFloat(v).Round(2).String()
}

func NewProductView(estimateID, roomID string, p *estimate.Product) ProductView {
	if p == nil {
		return ProductView{EstimateID: estimateID, RoomID: roomID}
	}
	pv := ProductView{
		EstimateID:   estimateID,
		RoomID:       roomID,
		ID:           p.ID,
		Name:         p.Name,
		Image:        p.Image,
		Totals:       NewTotalsView(estimate.Totals{MinTotal: p.MinPriceTotal, MaxTotal: p.MaxPriceTotal}),
		IsPrimary:    p.IsPrimaryCategory,
		SimilarCount: len(p.SimilarProducts),
		ReplacedFrom: append([]string(nil), p.ReplacementChain...),
	}
	p.AdditionalProducts.Range(func(_ string, extra *estimate.Product) bool {
		if extra != nil {
			pv.AdditionalProducts = append(pv.AdditionalProducts, NewProductView(estimateID, roomID, extra))
		}
		return true
	})
	p.AdditionalNotes.Range(func(_ string, note *estimate.Note) bool {
		if note != nil && note.Note != "" {
			pv.Notes = append(pv.Notes, note.Note)
		}
		return true
	})
	return pv
}

func NewRoomView(estimateID string, r *estimate.Room, expanded bool) RoomView {
	if r == nil {
		return RoomView{EstimateID: estimateID}
	}
	rv := RoomView{
		EstimateID: estimateID,
		ID:         r.ID,
		Name:       r.Name,
		Dimensions: formatMeasure(r.Width) + " x " + formatMeasure(r.Length),
		Area:       formatMeasure(r.Area()),
		Totals:     NewTotalsView(r.Totals),
		Expanded:   expanded,
	}
	if primary, ok := r.PrimaryProduct(); ok {
		pv := NewProductView(estimateID, r.ID, primary)
		rv.Primary = &pv
	}
	r.Products.Range(func(_ string, p *estimate.Product) bool {
		if p != nil {
			rv.Products = append(rv.Products, NewProductView(estimateID, r.ID, p))
		}
		return true
	})
	for _, s := range r.ProductSuggestions {
		rv.Suggestions = append(rv.Suggestions, SuggestionView{
			ID:    s.ID,
			Name:  s.Name,
			Image: s.Image,
			Price: NewTotalsView(estimate.Totals{MinTotal: s.MinPrice, MaxTotal: s.MaxPrice}),
		})
	}
	return rv
}

// NewEstimateView builds the estimate and its rooms. expanded reports
// whether a room accordion is open; it may be nil.
func NewEstimateView(e *estimate.Estimate, estimateExpanded bool, expanded func(roomID string) bool) EstimateView {
	if e == nil {
		return EstimateView{}
	}
	ev := EstimateView{
		ID:       e.ID,
		Name:     e.Name,
		Totals:   NewTotalsView(e.Totals),
		Expanded: estimateExpanded,
	}
	e.Rooms.Range(func(_ string, r *estimate.Room) bool {
		if r != nil {
			ev.Rooms = append(ev.Rooms, NewRoomView(e.ID, r, expanded != nil && expanded(r.ID)))
		}
		return true
	})
	return ev
}

func roomCount(n int) string {
	if n == 1 {
		return "1 room"
	}
	return strconv.Itoa(n) + " rooms"
}
