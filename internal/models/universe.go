package models

import "time"

// UniverseEntry is one known listed identifier eligible for ingestion.
type UniverseEntry struct {
	Symbol      string    `json:"symbol" badgerhold:"key" db:"symbol"`
	Description string    `json:"description" db:"description"`
	Exchange    string    `json:"exchange" db:"exchange"`
	Currency    string    `json:"currency" db:"currency"`
	Type        string    `json:"type" db:"type"`
	Active      bool      `json:"active" badgerhold:"index" db:"active"`
	ListedAt    time.Time `json:"listed_at" db:"listed_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// UniverseRefresh reports the outcome of a universe refresh.
type UniverseRefresh struct {
	Exchange    string `json:"exchange"`
	Listed      int    `json:"listed"`
	Upserted    int    `json:"upserted"`
	Filtered    int    `json:"filtered"`
	Deactivated int    `json:"deactivated"`
}
