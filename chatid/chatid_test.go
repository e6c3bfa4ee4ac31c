package chatid

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse_Integer(t *testing.T) {
	id := Parse("42")
	assert.False(t, id.IsName())
	n, ok := id.Int64Value()
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)
	assert.Equal(t, "42", id.String())
}

func TestParse_NegativeInteger(t *testing.T) {
	id := Parse("-7")
	assert.False(t, id.IsName())
	n, _ := id.Int64Value()
	assert.Equal(t, int64(-7), n)
}

func TestParse_Handle(t *testing.T) {
	id := Parse("@some_channel")
	assert.True(t, id.IsName())
	assert.Equal(t, "@some_channel", id.String())
}

func TestParse_HandleWithoutAt(t *testing.T) {
	id := Parse("some_channel")
	assert.True(t, id.IsName())
	assert.Equal(t, "@some_channel", id.String(), "leading @ is restored on render")
}

func TestParse_NonNumericLooking(t *testing.T) {
	// ParseInt would accept a leading "+", the wire format never does.
	id := Parse("+123")
	assert.True(t, id.IsName())
}

func TestEqual_CaseInsensitiveNames(t *testing.T) {
	a := Name("Foo")
	b := Name("foo")
	assert.True(t, a.Equal(b))
	assert.NotEqual(t, a, b, "raw struct equality is case-sensitive; Equal is not")
}

func TestEqual_DifferentVariantsNeverEqual(t *testing.T) {
	a := Int64(1)
	b := Name("1")
	assert.False(t, a.Equal(b))
}

func TestLess_IntegersTotallyOrdered(t *testing.T) {
	assert.True(t, Int64(1).Less(Int64(2)))
	assert.False(t, Int64(2).Less(Int64(1)))
}

func TestLess_StringsOrdinalCaseInsensitive(t *testing.T) {
	assert.True(t, Name("apple").Less(Name("Banana")))
	assert.False(t, Name("Banana").Less(Name("apple")))
}

func TestLess_IntegerAlwaysGreaterThanString(t *testing.T) {
	assert.False(t, Int64(0).Less(Name("z")))
	assert.True(t, Name("z").Less(Int64(0)))
}

func TestSortMixed(t *testing.T) {
	ids := []ChatId{Int64(5), Name("bob"), Int64(-3), Name("Alice")}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	var rendered []string
	for _, id := range ids {
		rendered = append(rendered, id.String())
	}
	assert.Equal(t, []string{"@Alice", "@bob", "-3", "5"}, rendered)
}

func TestChatId_UsableAsMapKey(t *testing.T) {
	m := map[ChatId]string{
		Int64(1):    "one",
		Name("abc"): "handle",
	}
	assert.Equal(t, "one", m[Int64(1)])
	assert.Equal(t, "handle", m[Name("abc")])
}

func TestChatId_KeyIsCaseInsensitiveAndTagDisjoint(t *testing.T) {
	assert.Equal(t, Name("Foo").Key(), Name("foo").Key())
	assert.Equal(t, Name("FOO").Key(), Name("foo").Key())
	assert.NotEqual(t, Int64(1).Key(), Name("1").Key())
}
