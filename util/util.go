package util

// Exclude returns the elements of source that do not appear in exclude,
// preserving order.
func Exclude[T comparable](source, exclude []T) []T {
	list := make([]T, 0, len(source))
	for _, item := range source {
		if Contains(exclude, item) {
			continue
		}
		list = append(list, item)
	}

	return list
}

func Contains[T comparable](elems []T, v T) bool {
	for _, s := range elems {
		if v == s {
			return true
		}
	}

	return false
}

// Dedupe returns source with duplicates removed, preserving first-seen order.
func Dedupe[T comparable](source []T) []T {
	seen := make(map[T]struct{}, len(source))
	list := make([]T, 0, len(source))
	for _, item := range source {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		list = append(list, item)
	}

	return list
}
