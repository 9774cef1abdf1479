package catalog

import (
	"cmp"
	"slices"
	"strings"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

// Search keeps products whose name, description, category, brand or any tag
// contains term, ignoring case. A blank term returns products unchanged.
func Search(term string, products []domain.Product) []domain.Product {
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return products
	}

	matched := make([]domain.Product, 0)
	for _, p := range products {
		if matches(p, needle) {
			matched = append(matched, p)
		}
	}
	return matched
}

func matches(p domain.Product, needle string) bool {
	if containsFold(p.Name, needle) ||
		containsFold(p.Description, needle) ||
		containsFold(string(p.Category), needle) ||
		containsFold(p.Brand, needle) {
		return true
	}
	for _, tag := range p.Tags {
		if containsFold(tag, needle) {
			return true
		}
	}
	return false
}

// containsFold expects needle already lower-cased
func containsFold(s, needle string) bool {
	return strings.Contains(strings.ToLower(s), needle)
}

// FilterByCategory keeps exact category matches. An empty category returns
// products unchanged.
func FilterByCategory(category domain.Category, products []domain.Product) []domain.Product {
	if category == "" {
		return products
	}

	matched := make([]domain.Product, 0)
	for _, p := range products {
		if p.Category == category {
			matched = append(matched, p)
		}
	}
	return matched
}

// Sort returns a stably sorted copy. Descending order negates the ascending
// comparison, so equal keys keep their input order either way.
func Sort(products []domain.Product, field domain.SortField, order domain.SortOrder) []domain.Product {
	sorted := slices.Clone(products)
	compare := comparator(field)
	if compare == nil {
		return sorted
	}

	sign := 1
	if order == domain.SortDesc {
		sign = -1
	}
	slices.SortStableFunc(sorted, func(a, b domain.Product) int {
		return sign * compare(a, b)
	})
	return sorted
}

func comparator(field domain.SortField) func(a, b domain.Product) int {
	switch field {
	case domain.SortByName:
		return func(a, b domain.Product) int {
			return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		}
	case domain.SortByPrice:
		return func(a, b domain.Product) int {
			return a.Price.Cmp(b.Price)
		}
	case domain.SortByRating:
		return func(a, b domain.Product) int {
			return cmp.Compare(a.Rating, b.Rating)
		}
	case domain.SortByCategory:
		return func(a, b domain.Product) int {
			return cmp.Compare(strings.ToLower(string(a.Category)), strings.ToLower(string(b.Category)))
		}
	}
	return nil
}

// Paginate returns page (1-indexed) of size pageSize. Pages outside the
// result are empty.
func Paginate(products []domain.Product, page, pageSize int) []domain.Product {
	if page < 1 || pageSize < 1 {
		return []domain.Product{}
	}
	start := (page - 1) * pageSize
	if start >= len(products) {
		return []domain.Product{}
	}
	end := min(start+pageSize, len(products))
	return products[start:end:end]
}

// Query is one full catalog request
type Query struct {
	Filters  domain.FilterState
	Page     int
	PageSize int
}

// Result is a visible page plus the pagination metadata derived from it.
// Start and End are the 1-indexed positions of the first and last visible
// product, both 0 when the page is empty.
type Result struct {
	Products    []domain.Product
	Total       int
	Page        int
	PageSize    int
	HasNextPage bool
	HasPrevPage bool
	Start       int
	End         int
}

// Run applies search, category filter, sort and pagination in that order
func Run(products []domain.Product, q Query) Result {
	filtered := Search(q.Filters.SearchTerm, products)
	filtered = FilterByCategory(q.Filters.Category, filtered)
	filtered = Sort(filtered, q.Filters.SortBy, q.Filters.SortOrder)

	total := len(filtered)
	page := Paginate(filtered, q.Page, q.PageSize)

	res := Result{
		Products:    page,
		Total:       total,
		Page:        q.Page,
		PageSize:    q.PageSize,
		HasNextPage: q.Page >= 1 && q.Page*q.PageSize < total,
		HasPrevPage: q.Page > 1,
	}
	if len(page) > 0 {
		res.Start = (q.Page-1)*q.PageSize + 1
		res.End = res.Start + len(page) - 1
	}
	return res
}
