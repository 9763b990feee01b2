package selector

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompile_Rules(t *testing.T) {
	leaves := []string{"a", "b", "c", "Pref1_suf", "Pref2_suf", "other"}

	tests := []struct {
		name string
		sel  string
		want []string
	}{
		{"empty matches nothing", "", nil},
		{"literal exact match", "b", []string{"b"}},
		{"literal no match", "z", nil},
		{"wildcard", "Pref*_suf", []string{"Pref1_suf", "Pref2_suf"}},
		{"regex in parens", "(a|c)", []string{"a", "c"}},
		{"whitespace stripped", " b ", []string{"b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Compile(tt.sel)
			require.NoError(t, err)
			got := ListMatching(leaves, s)
			if tt.want == nil {
				require.Empty(t, got)
			} else {
				require.Equal(t, tt.want, got)
			}
		})
	}
}

func TestListMatching_PreservesOrderAndIsSubset(t *testing.T) {
	leaves := []string{"z", "y", "x", "zz"}
	s, err := Compile("(z|zz)")
	require.NoError(t, err)

	got := ListMatching(leaves, s)
	require.Equal(t, []string{"z", "zz"}, got)

	set := make(map[string]bool, len(leaves))
	for _, l := range leaves {
		set[l] = true
	}
	for _, g := range got {
		require.True(t, set[g])
	}
}

func TestCompile_LiteralNameLookingLikeRegex(t *testing.T) {
	// §9 open question: a literal name of the form "(foo)" collides with the
	// regex rule. Current behaviour treats it as regex, documented here.
	s, err := Compile("(foo)")
	require.NoError(t, err)
	require.True(t, s.Match("foo"))
	require.False(t, s.Match("(foo)"))
}

func TestCompile_InvalidRegex(t *testing.T) {
	_, err := Compile("(unterminated[")
	require.Error(t, err)
}
