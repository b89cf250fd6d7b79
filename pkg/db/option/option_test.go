package option

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithQuerySortBy(t *testing.T) {
	allowed := map[string]bool{"name": true, "created_at": true}

	assert.Equal(t, SortBy{Column: "name", Desc: false}, WithQuerySortBy("Name", "asc", allowed))
	assert.Equal(t, SortBy{Column: "name", Desc: true}, WithQuerySortBy("name", "", allowed))
	assert.Equal(t, SortBy{Column: "created_at", Desc: true}, WithQuerySortBy("price; drop table", "asc", allowed))
}
