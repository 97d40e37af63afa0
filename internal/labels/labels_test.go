package labels

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Label
		wantErr bool
	}{
		{in: "6G-NETFAB", want: NetFab},
		{in: "QuINSiDa", want: QuINSiDa},
		{in: "NOT ASSIGNABLE", want: NotAssignable},
		{in: "quinsida", wantErr: true},
		{in: "", wantErr: true},
		{in: "UNKNOWN", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownLabel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAll_DisplayOrderAndCopy(t *testing.T) {
	got := All()
	require.Len(t, got, 10)
	assert.Equal(t, NetFab, got[0])
	assert.Equal(t, NotAssignable, got[len(got)-1])

	got[0] = "mutated"
	assert.Equal(t, NetFab, All()[0], "All must return a copy")
}

func TestIsSentinel(t *testing.T) {
	assert.True(t, NotAssignable.IsSentinel())
	assert.True(t, PartiallyAssignable.IsSentinel())
	assert.False(t, Shinka.IsSentinel())
	assert.False(t, Label("").Valid())
}

func TestDefaultRules(t *testing.T) {
	rules, err := DefaultRules()
	require.NoError(t, err)

	assert.Contains(t, rules.Keywords(NetFab), "NETCONF")
	assert.Contains(t, rules.Keywords(Shinka), "RESOURCE POOL")
	assert.Empty(t, rules.Keywords(NotAssignable))
	assert.NotContains(t, rules.Labels(), NotAssignable)
	assert.Equal(t, NetFab, rules.Labels()[0])
}

func TestParseRules(t *testing.T) {
	t.Run("normalizes whitespace and drops duplicates", func(t *testing.T) {
		rules, err := ParseRules([]byte("SHINKA:\n  - \"resource   pool\"\n  - RESOURCE POOL\n  - \"\"\n"))
		require.NoError(t, err)
		assert.Equal(t, []string{"resource pool"}, rules.Keywords(Shinka))
	})

	t.Run("rejects labels outside the closed set", func(t *testing.T) {
		_, err := ParseRules([]byte("MOONSHOT:\n  - ROCKET\n"))
		assert.ErrorIs(t, err, ErrUnknownLabel)
	})

	t.Run("rejects malformed yaml", func(t *testing.T) {
		_, err := ParseRules([]byte("SHINKA: [unterminated"))
		assert.Error(t, err)
	})
}

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keywords.yaml")
	require.NoError(t, os.WriteFile(path, []byte("SASPIT:\n  - FIREWALL\n"), 0o644))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"FIREWALL"}, rules.Keywords(Saspit))
	assert.Empty(t, rules.Keywords(NetFab))

	_, err = LoadRules(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	rules, err = LoadRules("")
	require.NoError(t, err)
	assert.NotEmpty(t, rules.Keywords(NetFab))
}
