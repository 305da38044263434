package view

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
)

// Template IDs understood by every Renderer.
const (
	TemplateEstimates      = "estimates"
	TemplateEstimate       = "estimate"
	TemplateTotals         = "totals"
	TemplateRoom           = "room"
	TemplatePrimaryProduct = "primary-product"
	TemplateProductList    = "product-list"
	TemplateProductsEmpty  = "products-empty"
	TemplateSuggestions    = "suggestions"
)

var ErrUnknownTemplate = errors.New("unknown template")

// Fragment is rendered, already-escaped HTML.
type Fragment string

func (f Fragment) HTML() template.HTML {
	return template.HTML(f)
}

type Renderer interface {
	Render(templateID string, data any) (Fragment, error)
}

const defaultTemplates = `
{{define "estimates"}}<div class="estimates">{{if .}}{{range .}}{{region (estimateRegion .ID)}}{{end}}{{else}}<p class="no-estimates">You don't have any estimates yet.</p>{{end}}</div>{{end}}

{{define "estimate"}}<section class="estimate{{if .Expanded}} expanded{{end}}" data-estimate-id="{{.ID}}">
<header><h3 class="estimate-name">{{.Name}}</h3><span class="room-count">{{roomCount (len .Rooms)}}</span>{{region (estimateTotalsRegion .ID)}}</header>
{{- if .Expanded}}<div class="rooms">{{if .Rooms}}{{range .Rooms}}{{region (roomRegion .EstimateID .ID)}}{{end}}{{else}}<p class="no-rooms">No rooms added to this estimate yet.</p>{{end}}</div>{{end}}
</section>{{end}}

{{define "totals"}}<span class="totals" data-min="{{.MinValue}}" data-max="{{.MaxValue}}">{{.Range}}</span>{{end}}

{{define "room"}}<div class="room{{if .Expanded}} expanded{{end}}" data-estimate-id="{{.EstimateID}}" data-room-id="{{.ID}}">
<header><h4 class="room-name">{{.Name}}</h4><span class="room-dimensions">{{.Dimensions}}</span>{{region (roomTotalsRegion .EstimateID .ID)}}{{region (primaryRegion .EstimateID .ID)}}</header>
{{- if .Expanded}}<div class="room-body">{{region (productsRegion .EstimateID .ID)}}{{region (suggestionsRegion .EstimateID .ID)}}</div>{{end}}
</div>{{end}}

{{define "primary-product"}}{{if .}}<div class="primary-product" data-product-id="{{.ID}}">{{if .Image}}<img src="{{.Image}}" alt="{{.Name}}">{{end}}<span class="primary-product-name">{{.Name}}</span></div>{{else}}<div class="primary-product empty"></div>{{end}}{{end}}

{{define "product"}}<li class="product{{if .IsPrimary}} primary{{end}}" data-product-id="{{.ID}}">
{{- if .Image}}<img src="{{.Image}}" alt="{{.Name}}">{{end}}<span class="product-name">{{.Name}}</span>{{template "totals" .Totals}}
{{- if .AdditionalProducts}}<ul class="additional-products">{{range .AdditionalProducts}}{{template "product" .}}{{end}}</ul>{{end}}
{{- if .Notes}}<ul class="product-notes">{{range .Notes}}<li>{{.}}</li>{{end}}</ul>{{end}}
{{- if .SimilarCount}}<button type="button" class="similar-products-toggle" data-product-id="{{.ID}}">Similar products ({{.SimilarCount}})</button>{{end}}
</li>{{end}}

{{define "product-list"}}<ul class="product-list">{{range .}}{{template "product" .}}{{end}}</ul>{{end}}

{{define "products-empty"}}<div class="product-list-empty">No products added to this room yet.</div>{{end}}

{{define "suggestions"}}<div class="suggestions">{{range .}}<div class="suggestion" data-product-id="{{.ID}}">{{if .Image}}<img src="{{.Image}}" alt="{{.Name}}">{{end}}<span class="suggestion-name">{{.Name}}</span><span class="suggestion-price">{{.Price.Range}}</span><button type="button" class="add-suggestion" data-product-id="{{.ID}}">Add</button></div>{{end}}</div>{{end}}
`

var templateFuncs = template.FuncMap{
	"region":               placeholder,
	"roomCount":            roomCount,
	"estimateRegion":       EstimateRegion,
	"estimateTotalsRegion": EstimateTotalsRegion,
	"roomRegion":           RoomRegion,
	"roomTotalsRegion":     RoomTotalsRegion,
	"primaryRegion":        PrimaryProductRegion,
	"productsRegion":       ProductListRegion,
	"suggestionsRegion":    SuggestionsRegion,
}

// TemplateRenderer renders the built-in html/template set, or a replacement
// set that defines the same template IDs.
type TemplateRenderer struct {
	tmpl *template.Template
}

func NewTemplateRenderer() (*TemplateRenderer, error) {
	return ParseTemplates(defaultTemplates)
}

func ParseTemplates(src string) (*TemplateRenderer, error) {
	tmpl, err := template.New("view").Funcs(templateFuncs).Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse view templates: %w", err)
	}
	return &TemplateRenderer{tmpl: tmpl}, nil
}

func (r *TemplateRenderer) Render(templateID string, data any) (Fragment, error) {
	t := r.tmpl.Lookup(templateID)
	if t == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, templateID)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", templateID, err)
	}
	return Fragment(buf.String()), nil
}

func placeholder(id RegionID) template.HTML {
	return template.HTML(placeholderFor(id))
}

func placeholderFor(id RegionID) string {
	return `<div data-region="` + template.HTMLEscapeString(string(id)) + `"></div>`
}
