package model

type Category struct {
	ID       string  `db:"id"`
	ParentID *string `db:"parent_id"` // Nullable
	Name     string  `db:"name"`
	Online   bool    `db:"online"`
	Position int     `db:"position"`
}
