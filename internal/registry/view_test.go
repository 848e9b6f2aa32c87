package registry

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contacthub/internal/contact/models"
)

// seed loads n synthetic records, newest first.
func seed(reg *Registry, n int) {
	base := time.Now()
	events := make([]models.ChangeEvent, 0, n)
	for i := range n {
		rec := record(
			fmt.Sprintf("id-%02d", i),
			fmt.Sprintf("contact%02d", i),
			models.StatusNew,
			base.Add(-time.Duration(i)*time.Minute),
		)
		events = append(events, models.ChangeEvent{Type: models.ChangeAdded, ID: rec.ID, Record: rec})
	}
	reg.applyBatch(events)
}

func TestViewFilterAndSearchCompose(t *testing.T) {
	reg, _ := newTestRegistry()
	base := time.Now()

	acmeClosed := record("1", "Acme Industries", models.StatusClosed, base)
	acmeNew := record("2", "ACME Support", models.StatusNew, base.Add(-time.Minute))
	otherClosed := record("3", "Globex", models.StatusClosed, base.Add(-2*time.Minute))
	reg.applyBatch([]models.ChangeEvent{
		{Type: models.ChangeAdded, ID: "1", Record: acmeClosed},
		{Type: models.ChangeAdded, ID: "2", Record: acmeNew},
		{Type: models.ChangeAdded, ID: "3", Record: otherClosed},
	})

	view := reg.View(Query{Filter: "closed", Search: "acme", Page: 1})
	require.Len(t, view.Records, 1)
	assert.Equal(t, "1", view.Records[0].ID)
}

func TestViewSearchMatchesAllTextFields(t *testing.T) {
	reg, _ := newTestRegistry()
	base := time.Now()

	rec := record("1", "Ada", models.StatusNew, base)
	rec.Company = "Initech"
	rec.Phone = "+1 555 0100"
	rec.Service = "consulting"
	rec.Message = "Please call me about the Q3 engagement"
	reg.applyBatch([]models.ChangeEvent{{Type: models.ChangeAdded, ID: "1", Record: rec}})

	for _, term := range []string{"ada", "INITECH", "555 0100", "consult", "q3 engagement", "ada@example.com"} {
		view := reg.View(Query{Search: term, Page: 1})
		assert.Len(t, view.Records, 1, "term %q should match", term)
	}

	view := reg.View(Query{Search: "unrelated"})
	assert.Empty(t, view.Records)
}

func TestViewPagination(t *testing.T) {
	reg, _ := newTestRegistry()
	seed(reg, 25)

	page1 := reg.View(Query{Page: 1})
	assert.Len(t, page1.Records, 10)
	assert.Equal(t, 25, page1.Total)
	assert.Equal(t, 3, page1.TotalPages)
	assert.Equal(t, []int{1, 2, 3}, page1.Pages, "no page-4 control")
	assert.Equal(t, "id-00", page1.Records[0].ID)

	page3 := reg.View(Query{Page: 3})
	assert.Len(t, page3.Records, 5)
	assert.Equal(t, "id-20", page3.Records[0].ID)
	assert.Equal(t, "id-24", page3.Records[4].ID)
}

func TestViewClampsPageIntoValidRange(t *testing.T) {
	reg, _ := newTestRegistry()
	seed(reg, 25)

	assert.Equal(t, 3, reg.View(Query{Page: 99}).Page)
	assert.Equal(t, 1, reg.View(Query{Page: 0}).Page)
	assert.Equal(t, 1, reg.View(Query{Page: -5}).Page)
}

func TestViewEmptySet(t *testing.T) {
	reg, _ := newTestRegistry()

	view := reg.View(Query{Page: 1})
	assert.Empty(t, view.Records)
	assert.Equal(t, 0, view.Total)
	assert.Equal(t, 1, view.TotalPages)
	assert.Equal(t, 1, view.Page)
}

func TestViewSearchAppliesWithinFilteredSubset(t *testing.T) {
	reg, _ := newTestRegistry()
	base := time.Now()

	match := record("1", "acme lead", models.StatusContacted, base)
	wrongStatus := record("2", "acme other", models.StatusNew, base.Add(-time.Minute))
	reg.applyBatch([]models.ChangeEvent{
		{Type: models.ChangeAdded, ID: "1", Record: match},
		{Type: models.ChangeAdded, ID: "2", Record: wrongStatus},
	})

	view := reg.View(Query{Filter: "contacted", Search: "acme"})
	require.Len(t, view.Records, 1)
	assert.Equal(t, "1", view.Records[0].ID)
}
