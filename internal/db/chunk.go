package db

// MaxIDsPerQuery bounds the identifiers bound into a single IN clause.
const MaxIDsPerQuery = 98

// Chunk splits ids into consecutive slices of at most size elements. A
// non-positive size uses MaxIDsPerQuery.
func Chunk[T any](ids []T, size int) [][]T {
	if size <= 0 {
		size = MaxIDsPerQuery
	}
	if len(ids) == 0 {
		return nil
	}
	out := make([][]T, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, ids[start:end])
	}
	return out
}
