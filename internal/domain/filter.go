package domain

// SortField names the product attribute used for ordering
type SortField string

const (
	SortByName     SortField = "name"
	SortByPrice    SortField = "price"
	SortByRating   SortField = "rating"
	SortByCategory SortField = "category"
)

// Valid reports whether f is a known sort field
func (f SortField) Valid() bool {
	switch f {
	case SortByName, SortByPrice, SortByRating, SortByCategory:
		return true
	}
	return false
}

// SortOrder is either ascending or descending
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Valid reports whether o is asc or desc
func (o SortOrder) Valid() bool {
	return o == SortAsc || o == SortDesc
}

// FilterState is the persisted search/filter/sort selection
type FilterState struct {
	SearchTerm string    `json:"searchTerm"`
	Category   Category  `json:"category"`
	SortBy     SortField `json:"sortBy"`
	SortOrder  SortOrder `json:"sortOrder"`
}

// DefaultFilterState returns the state used when nothing is persisted
func DefaultFilterState() FilterState {
	return FilterState{
		SortBy:    SortByName,
		SortOrder: SortAsc,
	}
}

// Normalize replaces unknown enum values with their defaults.
func (s FilterState) Normalize() FilterState {
	def := DefaultFilterState()
	if !s.SortBy.Valid() {
		s.SortBy = def.SortBy
	}
	if !s.SortOrder.Valid() {
		s.SortOrder = def.SortOrder
	}
	return s
}
