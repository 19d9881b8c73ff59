package menu

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func findItem(t *testing.T, tpl Template, menuLabel, itemLabel string) Item {
	t.Helper()
	for _, m := range tpl.Menus {
		if m.Label != menuLabel {
			continue
		}
		for _, it := range m.Items {
			if it.Label == itemLabel {
				return it
			}
		}
	}
	t.Fatalf("item %s/%s not found", menuLabel, itemLabel)
	return Item{}
}

func TestBuildIsPure(t *testing.T) {
	for _, opts := range []Options{
		{Scheme: "https"},
		{Scheme: "dat"},
		{Scheme: "none", NoWindows: true},
		{Scheme: "dat", Platform: PlatformDarwin},
	} {
		first, err := Build(opts).Encode()
		require.NoError(t, err)
		second, err := Build(opts).Encode()
		require.NoError(t, err)
		require.True(t, bytes.Equal(first, second), "output differs for %+v", opts)
	}
}

func TestVariantFor(t *testing.T) {
	require.Equal(t, VariantGeneric, VariantFor("https", false))
	require.Equal(t, VariantGeneric, VariantFor("none", false))
	require.Equal(t, VariantPeerSynced, VariantFor("dat", false))
	require.Equal(t, VariantNoWindows, VariantFor("dat", true))
}

func TestPeerSyncedEnablesLiveReloading(t *testing.T) {
	require.True(t, findItem(t, Build(Options{Scheme: "dat"}), "View", "Toggle Live Reloading").Enabled)
	require.False(t, findItem(t, Build(Options{Scheme: "https"}), "View", "Toggle Live Reloading").Enabled)
}

func TestNoWindowsDisablesWindowItems(t *testing.T) {
	tpl := Build(Options{NoWindows: true})
	require.Equal(t, VariantNoWindows, tpl.Variant)
	require.False(t, findItem(t, tpl, "File", "Close Tab").Enabled)
	require.False(t, findItem(t, tpl, "Window", "Next Tab").Enabled)
	require.True(t, findItem(t, tpl, "File", "New Window").Enabled)
}

func TestDarwinAddsApplicationMenu(t *testing.T) {
	tpl := Build(Options{Scheme: "https", Platform: PlatformDarwin})
	require.Equal(t, "Beaker", tpl.Menus[0].Label)
	other := Build(Options{Scheme: "https", Platform: "linux"})
	require.Equal(t, "File", other.Menus[0].Label)
	require.Len(t, other.Menus, len(tpl.Menus)-1)
}
