package task

//go:generate mockgen -source=store.go -package=task -destination=store_mock.go

// Store persists task rows and their completed-run counters.
// Implementations must be safe for concurrent use.
type Store interface {
	// LoadAll returns every row, in a stable order.
	LoadAll() ([]Row, error)

	// IncrementRunCount persists RunCount+1 for the given row.
	IncrementRunCount(id int) error
}
