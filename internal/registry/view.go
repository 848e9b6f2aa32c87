package registry

import (
	"strings"

	"contacthub/internal/contact/models"
)

// PageSize is the fixed number of rows per admin page.
const PageSize = 10

// FilterAll selects every status.
const FilterAll = "all"

// Query selects a view: a status filter, a free-text search term, and a
// page number. Filter and search compose; search runs within the filtered
// subset. Consumers reset Page to 1 whenever Filter or Search changes.
type Query struct {
	Filter string
	Search string
	Page   int
}

// View is the filtered, searched, paginated subset eligible for rendering.
// Pages lists every valid page number so navigation can only reach them.
type View struct {
	Records    []models.ContactRecord `json:"records"`
	Total      int                    `json:"total"`
	Page       int                    `json:"page"`
	TotalPages int                    `json:"totalPages"`
	Pages      []int                  `json:"pages"`
}

// View derives the current page for q. It is a pure function of the mirror
// state and touches no store; ordering is inherited from the mirror's
// recency order.
func (r *Registry) View(q Query) View {
	r.mu.RLock()
	matched := make([]models.ContactRecord, 0, len(r.records))
	for _, rec := range r.records {
		if matchesFilter(rec, q.Filter) && matchesSearch(rec, q.Search) {
			matched = append(matched, rec)
		}
	}
	r.mu.RUnlock()

	totalPages := (len(matched) + PageSize - 1) / PageSize
	if totalPages == 0 {
		totalPages = 1
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	start := (page - 1) * PageSize
	end := min(start+PageSize, len(matched))

	pages := make([]int, totalPages)
	for i := range pages {
		pages[i] = i + 1
	}

	return View{
		Records:    matched[start:end],
		Total:      len(matched),
		Page:       page,
		TotalPages: totalPages,
		Pages:      pages,
	}
}

func matchesFilter(rec models.ContactRecord, filter string) bool {
	if filter == "" || filter == FilterAll {
		return true
	}
	return string(rec.Status) == filter
}

// matchesSearch is a case-insensitive substring match OR-combined across
// the text-bearing fields.
func matchesSearch(rec models.ContactRecord, term string) bool {
	if term == "" {
		return true
	}
	term = strings.ToLower(term)
	for _, field := range []string{rec.Name, rec.Email, rec.Company, rec.Phone, rec.Service, rec.Message} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}
