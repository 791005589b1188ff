package models

import "time"

// Settings is the single shop configuration row. AdminPinHash gates the
// admin session namespace.
type Settings struct {
	ShopName     string     `db:"shop_name" json:"shop_name"`
	Currency     string     `db:"currency" json:"currency"`
	AdminPinHash string     `db:"admin_pin_hash" json:"-"`
	LabelPrinter string     `db:"label_printer" json:"label_printer"`
	UpdatedAt    *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

type Location struct {
	LocationID string    `db:"location_id" json:"location_id"`
	Name       string    `db:"name" json:"name"`
	Notes      string    `db:"notes" json:"notes,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
