package entitlement

import "time"

// SetNowFunc подменяет часы движка в тестах.
func SetNowFunc(e *Engine, now func() time.Time) {
	e.now = now
}
