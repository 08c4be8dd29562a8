package common

import "strconv"

// RollingIndex keeps the most recent items of a gapless sequence indexed by
// round number. It holds between size and 2*size items; when full, the oldest
// size items are dropped in one go.
type RollingIndex[T any] struct {
	name      string
	size      int
	lastIndex int64
	items     []T
}

// NewRollingIndex ...
func NewRollingIndex[T any](name string, size int) *RollingIndex[T] {
	return &RollingIndex[T]{
		name:      name,
		size:      size,
		items:     make([]T, 0, 2*size),
		lastIndex: -1,
	}
}

// LastIndex returns the index of the newest item, or -1 when empty.
func (r *RollingIndex[T]) LastIndex() int64 {
	return r.lastIndex
}

// oldest returns the index of the oldest cached item. Items are gapless.
func (r *RollingIndex[T]) oldest() int64 {
	return r.lastIndex - int64(len(r.items)) + 1
}

// Since returns the cached items with an index strictly greater than skip.
func (r *RollingIndex[T]) Since(skip int64) ([]T, error) {
	if skip >= r.lastIndex {
		return []T{}, nil
	}
	if skip+1 < r.oldest() {
		return nil, NewStoreErr(r.name, TooLate, strconv.FormatInt(skip, 10))
	}
	start := skip - r.oldest() + 1
	res := make([]T, len(r.items)-int(start))
	copy(res, r.items[start:])
	return res, nil
}

// GetItem ...
func (r *RollingIndex[T]) GetItem(index int64) (T, error) {
	var zero T
	if index < r.oldest() {
		return zero, NewStoreErr(r.name, TooLate, strconv.FormatInt(index, 10))
	}
	pos := index - r.oldest()
	if pos >= int64(len(r.items)) {
		return zero, NewStoreErr(r.name, KeyNotFound, strconv.FormatInt(index, 10))
	}
	return r.items[pos], nil
}

// Set appends item at index lastIndex+1 or replaces a cached item. Any other
// index is rejected so that the sequence stays gapless.
func (r *RollingIndex[T]) Set(item T, index int64) error {
	if 0 <= r.lastIndex && index > r.lastIndex+1 {
		return NewStoreErr(r.name, SkippedIndex, strconv.FormatInt(index, 10))
	}

	if r.lastIndex < 0 || index == r.lastIndex+1 {
		if len(r.items) >= 2*r.size {
			r.roll()
		}
		r.items = append(r.items, item)
		r.lastIndex = index
		return nil
	}

	if index < r.oldest() {
		return NewStoreErr(r.name, TooLate, strconv.FormatInt(index, 10))
	}
	r.items[index-r.oldest()] = item
	return nil
}

func (r *RollingIndex[T]) roll() {
	items := make([]T, 0, 2*r.size)
	items = append(items, r.items[r.size:]...)
	r.items = items
}
