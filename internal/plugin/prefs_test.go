package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quill/internal/value"
)

func openTestStore(t *testing.T) *PrefStore {
	t.Helper()
	store, err := OpenPrefStore("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPrefStoreRoundTrip(t *testing.T) {
	store := openTestStore(t)

	nested := value.NewMap()
	nested.SetAttr("volume", &value.Number{Value: 0.8})
	nested.SetAttr("muted", value.FALSE)

	type testCase struct {
		name string
		v    value.Value
		want string
	}

	testCases := []testCase{
		{name: "nil", v: value.NIL, want: "nil"},
		{name: "boolean", v: value.TRUE, want: "true"},
		{name: "number", v: &value.Number{Value: 17}, want: "17"},
		{name: "string", v: &value.String{Value: "freenode"}, want: "freenode"},
		{
			name: "list",
			v:    &value.List{Items: []value.Value{&value.String{Value: "#go"}, &value.String{Value: "#irc"}}},
			want: "[#go, #irc]",
		},
		{name: "map", v: nested, want: nested.Inspect()},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, store.Set("greeter", tc.name, tc.v))
			got, ok, err := store.Get("greeter", tc.name)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tc.want, got.Inspect())
		})
	}
}

func TestPrefStoreReplaceDeleteList(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Set("greeter", "nick", &value.String{Value: "alice"}))
	require.NoError(t, store.Set("greeter", "nick", &value.String{Value: "bob"}))

	got, ok, err := store.Get("greeter", "nick")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bob", got.Inspect())

	require.NoError(t, store.Set("greeter", "autoconnect", value.TRUE))
	require.NoError(t, store.Set("other", "nick", &value.String{Value: "carol"}))

	names, err := store.List("greeter")
	require.NoError(t, err)
	assert.Equal(t, []string{"autoconnect", "nick"}, names)

	require.NoError(t, store.Delete("greeter", "nick"))
	_, ok, err = store.Get("greeter", "nick")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting again is not an error.
	require.NoError(t, store.Delete("greeter", "nick"))
}

func TestPrefStoreRejectsUnstorable(t *testing.T) {
	store := openTestStore(t)

	fn := &value.Func{Name: "cb"}
	err := store.Set("greeter", "callback", fn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not storable")

	badMap := value.NewMap()
	badMap.Set(&value.Number{Value: 1}, value.TRUE)
	err = store.Set("greeter", "numkeys", badMap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keys must be strings")
}
