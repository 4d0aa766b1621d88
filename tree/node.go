// Package tree models a mailbox hierarchy and its messages as a lazily
// fetched tree, the way a mail client's UI would walk it: children of a
// mailbox are filled in by LIST, a mailbox's messages by SELECT/EXAMINE
// plus UID enumeration, and individual message fields and body parts
// only once something actually asks for them.
//
// The tree exposes a row/column/parent index abstraction of the kind
// UI item models consume: a Node is anything that can report its
// position among siblings, and an Index is an opaque (row, column,
// node) handle a caller can hold onto, compare, and walk without
// knowing the concrete node type underneath.
package tree

// Node is a position in the mailbox hierarchy: the account root or one
// of its (possibly nested) mailboxes.
type Node interface {
	row() int
	parent() Node
	childCount() int
	childAt(row int) Node
}

// Index is an opaque handle into the tree, carrying a row, a column, and
// the node it addresses. The zero Index is invalid and denotes "no such
// position".
type Index struct {
	row    int
	column int
	node   Node
}

// Valid reports whether idx addresses an actual node.
func (idx Index) Valid() bool { return idx.node != nil }

// Row returns idx's row among its siblings, or -1 if idx is invalid.
func (idx Index) Row() int {
	if idx.node == nil {
		return -1
	}
	return idx.row
}

// Column returns idx's column, or -1 if idx is invalid.
func (idx Index) Column() int {
	if idx.node == nil {
		return -1
	}
	return idx.column
}

// Model walks an AccountRoot's mailbox hierarchy through the Index
// abstraction, exposing the index/parent/row-count/column-count
// contract a UI item view binds to.
type Model struct {
	root *AccountRoot
}

// NewModel returns a Model over root.
func NewModel(root *AccountRoot) *Model {
	return &Model{root: root}
}

// Root returns the account root.
func (m *Model) Root() *AccountRoot { return m.root }

func (m *Model) nodeFor(idx Index) Node {
	if idx.node == nil {
		return m.root
	}
	return idx.node
}

// Index returns the index of the child at (row, column) under parent.
// An invalid parent means "under the account root". It returns an
// invalid Index if row is out of range.
func (m *Model) Index(row, column int, parent Index) Index {
	p := m.nodeFor(parent)
	if row < 0 || row >= p.childCount() {
		return Index{}
	}
	return Index{row: row, column: column, node: p.childAt(row)}
}

// Parent returns the index of idx's parent, or an invalid Index if idx
// is invalid or already addresses a top-level mailbox.
func (m *Model) Parent(idx Index) Index {
	if idx.node == nil {
		return Index{}
	}
	p := idx.node.parent()
	if p == nil || p == Node(m.root) {
		return Index{}
	}
	return Index{row: p.row(), column: 0, node: p}
}

// RowCount returns the number of children under idx (or under the
// account root, if idx is invalid).
func (m *Model) RowCount(idx Index) int {
	return m.nodeFor(idx).childCount()
}

// ColumnCount returns the number of columns under idx. The mailbox tree
// is single-column: a mailbox's name.
func (m *Model) ColumnCount(idx Index) int { return 1 }

// Data returns idx's display value: a mailbox's name, or nil for an
// invalid index.
func (m *Model) Data(idx Index) any {
	mb, ok := idx.node.(*Mailbox)
	if !ok {
		return nil
	}
	return mb.Name
}

// Mailbox returns the Mailbox idx addresses, if any.
func (m *Model) Mailbox(idx Index) (*Mailbox, bool) {
	mb, ok := idx.node.(*Mailbox)
	return mb, ok
}
