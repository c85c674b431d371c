package collection

// Item is one named blob in a collection. Size is populated where the engine
// knows the blob length; zero-length files are valid, so callers that need to
// distinguish must consult the engine.
type Item struct {
	Name string `json:"name"`
	Hash Hash   `json:"hash"`
	Size uint64 `json:"size"`
}

// Collection is an ordered set of (name, hash) pairs representing the files
// in one transfer. Order is transfer order.
type Collection struct {
	items []Item
}

// New returns a collection over items. The slice is copied.
func New(items []Item) Collection {
	c := Collection{items: make([]Item, len(items))}
	copy(c.items, items)
	return c
}

// Add appends an item to the collection.
func (c *Collection) Add(item Item) {
	c.items = append(c.items, item)
}

// Len returns the number of items.
func (c Collection) Len() int {
	return len(c.items)
}

// Items returns a copy of the ordered items.
func (c Collection) Items() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Names returns the ordered file names.
func (c Collection) Names() []string {
	out := make([]string, len(c.items))
	for i, item := range c.items {
		out[i] = item.Name
	}
	return out
}

// TotalBytes returns the sum of known item sizes.
func (c Collection) TotalBytes() uint64 {
	var total uint64
	for _, item := range c.items {
		total += item.Size
	}
	return total
}

// Metadata builds the metadata record for this collection.
func (c Collection) Metadata() Metadata {
	return Metadata{Names: c.Names()}
}
