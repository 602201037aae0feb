package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterManagement(t *testing.T) {
	filters, err := New("weather/#")
	require.NoError(t, err)

	t.Run("Add Filters", func(t *testing.T) {
		require.NoError(t, filters.Add("news/+", "sports"))
		assert.Equal(t, []string{"weather/#", "news/+", "sports"}, filters.List())
	})

	t.Run("Prevent Duplicate Filters", func(t *testing.T) {
		require.NoError(t, filters.Add("news/+"))
		assert.Equal(t, 3, filters.Len())
	})

	t.Run("Reject Malformed Batch", func(t *testing.T) {
		err := filters.Add("tech", "bad/#/filter")
		assert.ErrorIs(t, err, ErrInvalidFilter)
		assert.Equal(t, 3, filters.Len(), "nothing from a malformed batch is added")
	})

	t.Run("Matches", func(t *testing.T) {
		assert.True(t, filters.Matches("weather/london/temp"))
		assert.True(t, filters.Matches("news/today"))
		assert.False(t, filters.Matches("news/today/late"))
		assert.False(t, filters.Matches("tech"))
	})

	t.Run("Remove Filter", func(t *testing.T) {
		filters.Remove("news/+")
		filters.Remove("not-there")
		assert.Equal(t, []string{"weather/#", "sports"}, filters.List())
		assert.False(t, filters.Matches("news/today"))
	})

	t.Run("List Is A Copy", func(t *testing.T) {
		l := filters.List()
		l[0] = "changed"
		assert.Equal(t, "weather/#", filters.List()[0])
	})
}

func TestMatch(t *testing.T) {
	tests := []struct {
		filter string
		name   string
		want   bool
	}{
		{"#", "a/b/c", true},
		{"a/#", "a", true},
		{"a/#", "a/b/c", true},
		{"a/+", "a/b", true},
		{"a/+", "a/b/c", false},
		{"a/+/c", "a/b/c", true},
		{"+/+", "a/b", true},
		{"a/b", "a/b", true},
		{"a/b", "a/c", false},
		{"a/+", "a/", true},
		{"#", "$SYS/broker/uptime", false},
		{"+/broker/uptime", "$SYS/broker/uptime", false},
		{"$SYS/#", "$SYS/broker/uptime", true},
	}
	for _, tt := range tests {
		t.Run(tt.filter+" "+tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.filter, tt.name))
		})
	}
}

func TestValidate(t *testing.T) {
	for _, f := range []string{"#", "+", "a/+/b", "a/#", "/", "+/+/#"} {
		assert.NoError(t, ValidateFilter(f), f)
	}
	for _, f := range []string{"", "a#", "a/#/b", "a+", "a/b+/c"} {
		assert.ErrorIs(t, ValidateFilter(f), ErrInvalidFilter, f)
	}
	assert.NoError(t, ValidateName("unfezant/console"))
	for _, n := range []string{"", "a/+", "a/#", "a\x00b"} {
		assert.ErrorIs(t, ValidateName(n), ErrInvalidName, n)
	}
}
