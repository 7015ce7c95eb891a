package patterns

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	set := Default()

	assert.NotEmpty(t, set.Domains)
	assert.NotEmpty(t, set.Classes)
	assert.NotEmpty(t, set.Resources)
	assert.Contains(t, set.Permissions, "AD_ID")
	assert.Contains(t, set.Components, "admob")
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "domains.txt")

	content := `# custom ad domains
example-ads.com

# trailing comment
tracker.example.net
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	entries, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"example-ads.com", "tracker.example.net"}, entries)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestLoad_Overrides(t *testing.T) {
	dir := t.TempDir()
	domainsPath := filepath.Join(dir, "domains.txt")
	require.NoError(t, os.WriteFile(domainsPath, []byte("only.example.com\n"), 0o644))

	set, err := Load(Overrides{Domains: domainsPath})
	require.NoError(t, err)

	assert.Equal(t, []string{"only.example.com"}, set.Domains)
	// Untouched lists keep their defaults.
	assert.NotEmpty(t, set.Classes)
	assert.True(t, set.MatchResource("admob_banner"))
}

func TestLoad_BadResourcePattern(t *testing.T) {
	dir := t.TempDir()
	resPath := filepath.Join(dir, "resources.txt")
	require.NoError(t, os.WriteFile(resPath, []byte("[unclosed\n"), 0o644))

	_, err := Load(Overrides{Resources: resPath})
	assert.Error(t, err)
}

func TestMatchResource(t *testing.T) {
	set := Default()
	require.NoError(t, set.Compile())

	tests := []struct {
		stem string
		want bool
	}{
		{"native_ad_layout", true},
		{"banner_ad", true},
		{"admob_view", true},
		{"activity_main", false},
		{"address_form", false},
		{"ad_unit_small", true},
	}

	for _, tt := range tests {
		t.Run(tt.stem, func(t *testing.T) {
			assert.Equal(t, tt.want, set.MatchResource(tt.stem))
		})
	}
}

func TestMatchResource_Uncompiled(t *testing.T) {
	set := Default()
	assert.False(t, set.MatchResource("admob_banner"))
}

func TestMatchComponent(t *testing.T) {
	set := Default()

	tests := []struct {
		name string
		want bool
	}{
		{"com.google.android.gms.ads.AdActivity", true},
		{"com.example.AdMobInitProvider", true},
		{"net.doubleclick.TrackingReceiver", true},
		{"com.example.MainActivity", false},
		{"com.example.DownloadService", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, set.MatchComponent(tt.name))
		})
	}
}

func TestMatchPermission(t *testing.T) {
	set := Default()

	assert.True(t, set.MatchPermission("com.google.android.gms.permission.AD_ID"))
	assert.False(t, set.MatchPermission("android.permission.ACCESS_NETWORK_STATE"))
	assert.False(t, set.MatchPermission("android.permission.INTERNET"))
}

func TestAddDomain(t *testing.T) {
	set := Default()
	before := len(set.Domains)

	set.AddDomain("new-ads.example.com")
	assert.Len(t, set.Domains, before+1)

	// Duplicates and blanks are ignored.
	set.AddDomain("new-ads.example.com")
	set.AddDomain("  ")
	assert.Len(t, set.Domains, before+1)
}

func TestAddClass(t *testing.T) {
	set := Default()
	before := len(set.Classes)

	set.AddClass("com/example/ads")
	assert.Len(t, set.Classes, before+1)

	set.AddClass("com/example/ads")
	assert.Len(t, set.Classes, before+1)
}

func TestSortedDomains(t *testing.T) {
	set := &Set{Domains: []string{"a.com", "longer-domain.com", "bb.com"}}

	sorted := set.SortedDomains()
	assert.Equal(t, []string{"longer-domain.com", "bb.com", "a.com"}, sorted)
	// Original order untouched.
	assert.Equal(t, []string{"a.com", "longer-domain.com", "bb.com"}, set.Domains)
}
