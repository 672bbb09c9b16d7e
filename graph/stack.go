package graph

// Stack is the recursion stack of a depth-first walk.
type Stack[T comparable] []T

func (s *Stack[T]) Push(value T) {
	*s = append(*s, value)
}

func (s *Stack[T]) Pop() (T, bool) {
	if len(*s) == 0 {
		return *new(T), false
	}

	item := (*s)[len(*s)-1]
	*s = (*s)[:len(*s)-1]
	return item, true
}

// Index returns the position of the first occurrence of value, or -1.
func (s Stack[T]) Index(value T) int {
	for i, item := range s {
		if item == value {
			return i
		}
	}

	return -1
}
