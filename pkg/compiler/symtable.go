package compiler

// SymbolTable maps variable names to register slots. The language has no
// block scoping, so one flat table covers the whole program: the first
// assignment to a name (or its use as a for-loop variable) allocates the
// next free slot, and every later reference reuses it.
type SymbolTable struct {
	slots map[string]int
	order []string
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{slots: make(map[string]int)}
}

// Define returns the slot for name, allocating the next free one if the name
// has not been seen before.
func (st *SymbolTable) Define(name string) int {
	if slot, ok := st.slots[name]; ok {
		return slot
	}
	slot := len(st.order)
	st.slots[name] = slot
	st.order = append(st.order, name)
	return slot
}

// Lookup returns the slot for name. ok is false when the name has never been
// assigned; reading such a name is a compile error.
func (st *SymbolTable) Lookup(name string) (int, bool) {
	slot, ok := st.slots[name]
	return slot, ok
}

// Len returns the number of allocated slots.
func (st *SymbolTable) Len() int {
	return len(st.order)
}

// Names returns the variable names in slot order.
func (st *SymbolTable) Names() []string {
	out := make([]string, len(st.order))
	copy(out, st.order)
	return out
}
