package index

// Index is the common interface for all implementations.
type Index[K, V any] interface {
	Insert(key K, value V) error
	// Get returns the value stored under key and whether it was found.
	Get(key K) (V, bool, error)
	Delete(key K) error
	// Range iterates over all keys in [start, end] inclusive, ascending.
	Range(start, end K) (Iterator[K, V], error)
	Close() error
}

// Iterator allows scanning over a range of key-value pairs.
type Iterator[K, V any] interface {
	Next() bool
	Key() K
	Value() V
	Error() error
	Close() error
}

// Collect drains it into parallel key and value slices and closes it.
func Collect[K, V any](it Iterator[K, V]) ([]K, []V, error) {
	var (
		keys []K
		vals []V
	)
	for it.Next() {
		keys = append(keys, it.Key())
		vals = append(vals, it.Value())
	}
	err := it.Error()
	if cerr := it.Close(); err == nil {
		err = cerr
	}
	return keys, vals, err
}
