package export

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/omnifeed/feed-export-service/internal/model"
)

// perpetualATS is the quantity reported for perpetual inventory records.
const perpetualATS = 999999

// Site is the read-only storefront context extractors need beyond the
// product itself: absolute link building, feed image selection and the
// site's price-book set.
type Site struct {
	BaseURL       string
	Currency      string
	ImageViewType string
	PriceBookIDs  []string
}

// Extractor maps one product to one flat cell value. Extractors are total
// for well-formed products: absent sub-data yields the column's documented
// default, never an error.
type Extractor func(site Site, p *model.Product) string

// extractors is the column registry. Adding a feed column means adding an
// entry here; the row builder dispatches through this map in schema order.
var extractors = map[Column]Extractor{
	ColID:                   func(_ Site, p *model.Product) string { return p.ID },
	ColName:                 func(_ Site, p *model.Product) string { return p.Name },
	ColTitle:                func(_ Site, p *model.Product) string { return p.PageTitle },
	ColDescription:          extractDescription,
	ColUPC:                  func(_ Site, p *model.Product) string { return p.UPC },
	ColImage:                extractImage,
	ColProductLink:          extractProductLink,
	ColCategory:             extractCategories,
	ColMasterProductID:      extractMasterID,
	ColBrand:                func(_ Site, p *model.Product) string { return p.Brand },
	ColPrice:                extractPrice,
	ColBookPrice:            extractBookPrices,
	ColPromoPrice:           extractPromoPrices,
	ColInventory:            extractATS,
	ColInStock:              extractInStock,
	ColAdditionalImageLinks: extractAdditionalImages,
	ColCustomFields:         extractCustomFields,
	ColVariantAttributes:    extractVariationAttributes,
	ColProductType:          extractProductTypes,
	ColManufacturerName:     func(_ Site, p *model.Product) string { return p.ManufacturerName },
	ColManufacturerSKU:      func(_ Site, p *model.Product) string { return p.ManufacturerSKU },
	ColOnline:               extractOnline,
	ColAllBookPrice:         extractAllBookPrices,
}

// extractDescription emits both description lengths as a JSON payload. Each
// key degrades to the empty string independently.
func extractDescription(_ Site, p *model.Product) string {
	payload := struct {
		Short string `json:"short_description"`
		Long  string `json:"long_description"`
	}{
		Short: p.ShortDescription,
		Long:  p.LongDescription,
	}
	return marshalJSON(payload)
}

// extractImage returns the absolute URL of the primary feed image.
func extractImage(site Site, p *model.Product) string {
	images := p.ImagesOf(site.ImageViewType)
	if len(images) == 0 {
		return ""
	}
	return images[0].AbsURL
}

// extractAdditionalImages joins the absolute URLs of up to the first 10 feed
// images.
func extractAdditionalImages(site Site, p *model.Product) string {
	images := p.ImagesOf(site.ImageViewType)
	if len(images) == 0 {
		return ""
	}
	if len(images) > 10 {
		images = images[:10]
	}
	urls := make([]string, len(images))
	for i, img := range images {
		urls[i] = img.AbsURL
	}
	return strings.Join(urls, FieldSeparator)
}

func extractProductLink(site Site, p *model.Product) string {
	return strings.TrimRight(site.BaseURL, "/") + "/products/" + url.PathEscape(p.ID)
}

// extractCategories emits the product's online category IDs. Variants and
// variation groups without directly assigned online categories inherit the
// master's.
func extractCategories(_ Site, p *model.Product) string {
	cats := p.OnlineCategories()
	if len(cats) == 0 && (p.Variant || p.VariationGroup) && p.Variation != nil && p.Variation.Master != nil {
		cats = p.Variation.Master.OnlineCategories()
	}
	if len(cats) == 0 {
		return ""
	}
	ids := make([]string, len(cats))
	for i, c := range cats {
		ids[i] = c.ID
	}
	return strings.Join(ids, FieldSeparator)
}

func extractMasterID(_ Site, p *model.Product) string {
	if !p.Variant || p.Variation == nil {
		return ""
	}
	return p.Variation.MasterID
}

func extractPrice(_ Site, p *model.Product) string {
	return formatPrice(p.Price.Base)
}

// extractATS reports available-to-sell: the perpetual sentinel, the tracked
// quantity clamped at zero, or 0 when the record tracks nothing.
func extractATS(_ Site, p *model.Product) string {
	avm := p.Availability
	if avm == nil {
		return "0"
	}
	if avm.Perpetual {
		return strconv.Itoa(perpetualATS)
	}
	if avm.ATS == nil || *avm.ATS <= 0 {
		return "0"
	}
	return formatPrice(*avm.ATS)
}

func extractInStock(_ Site, p *model.Product) string {
	if p.Availability != nil && p.Availability.Orderable {
		return "1"
	}
	return "0"
}

// extractOnline gates a variant's online flag on its master's.
func extractOnline(_ Site, p *model.Product) string {
	online := p.Online
	if online && p.Variant && p.Variation != nil && p.Variation.Master != nil {
		online = p.Variation.Master.Online
	}
	if online {
		return "1"
	}
	return "0"
}

// extractCustomFields emits every custom attribute present on the product.
// Absent keys are omitted, not defaulted.
func extractCustomFields(_ Site, p *model.Product) string {
	custom := p.Custom
	if custom == nil {
		custom = map[string]string{}
	}
	return marshalJSON(custom)
}

// extractVariationAttributes emits concrete values for variants and
// variation groups, and the joined value domain per attribute for masters.
// Products without a variation model contribute an empty cell.
func extractVariationAttributes(_ Site, p *model.Product) string {
	vm := p.Variation
	if vm == nil {
		return ""
	}
	switch {
	case p.Variant || p.VariationGroup:
		payload := make(map[string]string, len(vm.Attributes))
		for _, attr := range vm.Attributes {
			payload[attr.ID] = attr.Value
		}
		return marshalJSON(payload)
	case p.Master:
		payload := make(map[string]string, len(vm.Attributes))
		for _, attr := range vm.Attributes {
			payload[attr.ID] = strings.Join(attr.Values, FieldSeparator)
		}
		return marshalJSON(payload)
	default:
		return ""
	}
}

// extractProductTypes emits the capability set plus the derived item flag.
func extractProductTypes(_ Site, p *model.Product) string {
	payload := struct {
		Bundle         bool `json:"bundle"`
		Master         bool `json:"master"`
		Option         bool `json:"option"`
		Set            bool `json:"set"`
		Variant        bool `json:"variant"`
		VariationGroup bool `json:"variation_group"`
		Item           bool `json:"item"`
	}{
		Bundle:         p.Bundle,
		Master:         p.Master,
		Option:         p.Option,
		Set:            p.Set,
		Variant:        p.Variant,
		VariationGroup: p.VariationGroup,
		Item:           p.ProductType.Item(),
	}
	return marshalJSON(payload)
}

// extractBookPrices walks each price-book entry's parent chain to the root,
// collecting one price per book encountered: the entry's own price for the
// leaf, the product's computed price for ancestors. Each book contributes at
// most once, and a malformed chain (cycle) terminates at the first repeat.
func extractBookPrices(_ Site, p *model.Product) string {
	if len(p.Price.Entries) == 0 {
		return PriceSentinel
	}

	seen := make(map[string]bool)
	var entries []map[string]float64

	for _, entry := range p.Price.Entries {
		book := entry.Book
		if book == nil || seen[book.ID] {
			continue
		}
		seen[book.ID] = true
		entries = append(entries, map[string]float64{book.ID: entry.Price})

		for parent := book.Parent; parent != nil && !seen[parent.ID]; parent = parent.Parent {
			seen[parent.ID] = true
			entries = append(entries, map[string]float64{parent.ID: p.Price.BookPrice(parent.ID)})
		}
	}

	if len(entries) == 0 {
		return PriceSentinel
	}
	return marshalJSON(entries)
}

// extractPromoPrices emits one entry per active product-class promotion that
// produces a promotional price.
func extractPromoPrices(_ Site, p *model.Product) string {
	var entries []map[string]float64
	for _, promo := range p.Promotions {
		if promo.Class != model.PromotionClassProduct || promo.PromotionalPrice == nil {
			continue
		}
		entries = append(entries, map[string]float64{promo.ID: *promo.PromotionalPrice})
	}
	if len(entries) == 0 {
		return PriceSentinel
	}
	return marshalJSON(entries)
}

// extractAllBookPrices reports the product's computed price in every price
// book configured for the site, whether or not the product defines a direct
// entry there.
func extractAllBookPrices(site Site, p *model.Product) string {
	if len(site.PriceBookIDs) == 0 {
		return PriceSentinel
	}
	entries := make([]map[string]float64, 0, len(site.PriceBookIDs))
	for _, id := range site.PriceBookIDs {
		entries = append(entries, map[string]float64{id: p.Price.BookPrice(id)})
	}
	return marshalJSON(entries)
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// marshalJSON serializes structured cell payloads. Map keys come out sorted,
// which keeps feed output reproducible run to run.
func marshalJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
