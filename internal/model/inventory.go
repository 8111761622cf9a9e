package model

// AvailabilityRecord is a product's inventory view. Perpetual means
// unlimited/untracked stock; otherwise ATS (available to sell) holds the
// quantity when the record tracks one.
type AvailabilityRecord struct {
	ProductID string   `db:"product_id"`
	Perpetual bool     `db:"perpetual"`
	ATS       *float64 `db:"ats"`
	Orderable bool     `db:"orderable"`
}
