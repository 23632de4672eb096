package domain

// Item is the polymorphic interface for catalog records displayed in lists.
// Character, Location and Episode implement it on their pointer types.
type Item interface {
	// GetID returns the stable API identifier
	GetID() int

	// GetName returns the display name
	GetName() string

	// GetDescription returns secondary info for display (e.g. "Alive - Human")
	GetDescription() string

	// GetKind returns which collection the item belongs to
	GetKind() Kind
}
