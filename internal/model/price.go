package model

// PriceModel carries a product's base price plus its price-book data.
type PriceModel struct {
	Base     float64
	Currency string

	// Entries are the price-book prices defined directly on the product.
	Entries []PriceBookEntry

	// BookPrices maps price-book ID to the product's computed price in that
	// book, covering ancestor books reached through parent chains. Missing
	// entries resolve to 0.
	BookPrices map[string]float64
}

// BookPrice returns the product's computed price in the given price book.
func (m PriceModel) BookPrice(bookID string) float64 {
	return m.BookPrices[bookID]
}

type PriceBookEntry struct {
	Book  *PriceBook
	Price float64
}

// PriceBook is a named price list. Books chain to an optional parent,
// forming a fallback hierarchy walked root-to-leaf during price resolution.
type PriceBook struct {
	ID     string
	Parent *PriceBook
}

// Promotion classes as the campaign system reports them. Only product-class
// promotions contribute to the promoprice feed column.
const (
	PromotionClassProduct  = "product"
	PromotionClassOrder    = "order"
	PromotionClassShipping = "shipping"
)

// Promotion is one currently active promotion applicable to the product.
// PromotionalPrice is nil when the promotion does not produce a price.
type Promotion struct {
	ID               string
	Class            string
	PromotionalPrice *float64
}
