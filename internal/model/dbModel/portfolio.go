package dbModel

import "time"

type Portfolio struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	BaseCurrency string    `db:"base_currency"`
	Description  string    `db:"description"`
	CreatedAt    time.Time `db:"created_at"`
}
