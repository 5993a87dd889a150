package vm

// DefaultStackSize is the operand stack capacity used when none is configured.
const DefaultStackSize = 512

// Stack is the operand stack. It grows on demand up to its capacity and
// reports overflow and underflow as errors.
type Stack struct {
	items []Value
	limit int
}

// NewStack creates an empty stack holding at most limit values.
func NewStack(limit int) *Stack {
	if limit <= 0 {
		limit = DefaultStackSize
	}
	return &Stack{
		items: make([]Value, 0, min(limit, 64)),
		limit: limit,
	}
}

// Len returns the number of values on the stack.
func (s *Stack) Len() int {
	return len(s.items)
}

// Cap returns the configured capacity.
func (s *Stack) Cap() int {
	return s.limit
}

// Push adds v to the top of the stack.
func (s *Stack) Push(v Value) error {
	if len(s.items) >= s.limit {
		return ErrStackOverflow
	}
	s.items = append(s.items, v)
	return nil
}

// Pop removes and returns the top value.
func (s *Stack) Pop() (Value, error) {
	n := len(s.items)
	if n == 0 {
		return nil, ErrStackUnderflow
	}
	v := s.items[n-1]
	s.items[n-1] = nil
	s.items = s.items[:n-1]
	return v, nil
}

// Pop2 removes the top two values. a was pushed before b.
func (s *Stack) Pop2() (a, b Value, err error) {
	if len(s.items) < 2 {
		return nil, nil, ErrStackUnderflow
	}
	b, _ = s.Pop()
	a, _ = s.Pop()
	return a, b, nil
}

// Peek returns the top value without removing it.
func (s *Stack) Peek() (Value, error) {
	if len(s.items) == 0 {
		return nil, ErrStackUnderflow
	}
	return s.items[len(s.items)-1], nil
}

// Values returns a copy of the stack contents, bottom first.
func (s *Stack) Values() []Value {
	out := make([]Value, len(s.items))
	copy(out, s.items)
	return out
}
