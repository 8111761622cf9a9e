package model

// Product is a catalog node as the export pipeline sees it: the scalar
// attributes plus every hydrated relation a feed column can draw from.
// Optional relations stay nil/empty when the catalog has no data for them;
// extractors are expected to cope.
type Product struct {
	ID               string  `db:"id"`
	Name             string  `db:"name"`
	PageTitle        string  `db:"page_title"`
	ShortDescription string  `db:"short_description"`
	LongDescription  string  `db:"long_description"`
	UPC              string  `db:"upc"`
	Brand            string  `db:"brand"`
	ManufacturerName string  `db:"manufacturer_name"`
	ManufacturerSKU  string  `db:"manufacturer_sku"`
	BasePrice        float64 `db:"base_price"`
	Online           bool    `db:"online"`

	ProductType

	Images     []Image           `db:"-"`
	Categories []Category        `db:"-"`
	Custom     map[string]string `db:"-"`
	Variation  *VariationModel   `db:"-"`

	Price        PriceModel          `db:"-"`
	Promotions   []Promotion         `db:"-"`
	Availability *AvailabilityRecord `db:"-"`
}

// ProductType is a capability set, not an enum: a catalog node may carry more
// than one flag (e.g. an option product that is also part of a set).
type ProductType struct {
	Bundle         bool `db:"is_bundle"`
	Master         bool `db:"is_master"`
	Option         bool `db:"is_option"`
	Set            bool `db:"is_set"`
	Variant        bool `db:"is_variant"`
	VariationGroup bool `db:"is_variation_group"`
}

// Item reports whether the product is a plain item, i.e. none of the other
// type flags apply.
func (t ProductType) Item() bool {
	return !t.Bundle && !t.Master && !t.Option && !t.Set && !t.Variant && !t.VariationGroup
}

// Image is one product image of a given view type, ordered by position
// within that type.
type Image struct {
	ViewType string `db:"view_type"`
	AbsURL   string `db:"abs_url"`
	Position int    `db:"position"`
}

// ImagesOf returns the product's images of the given view type, in position
// order as hydrated.
func (p *Product) ImagesOf(viewType string) []Image {
	var out []Image
	for _, img := range p.Images {
		if img.ViewType == viewType {
			out = append(out, img)
		}
	}
	return out
}

// OnlineCategories returns the product's directly assigned categories that
// are online. It does not fall back to the master; that policy belongs to
// the caller.
func (p *Product) OnlineCategories() []Category {
	var out []Category
	for _, c := range p.Categories {
		if c.Online {
			out = append(out, c)
		}
	}
	return out
}

// VariationModel ties a variant or variation group back to its master and
// carries the variation attributes. The back-reference is one-directional:
// the master does not own its variants.
//
// On a variant or variation group each attribute holds its one concrete
// Value. On a master each attribute holds the full Values domain observed
// across the variation family.
type VariationModel struct {
	MasterID   string
	Master     *Product // nil when the relation cannot be resolved
	Attributes []VariationAttribute
}

type VariationAttribute struct {
	ID     string
	Value  string
	Values []string
}
