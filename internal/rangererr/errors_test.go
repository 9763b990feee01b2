package rangererr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRangerError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *RangerError
		want string
	}{
		{
			name: "with cause",
			err:  New(KindPathMissing, "tree foo in dir bar", errors.New("no such key")),
			want: "PathMissing: tree foo in dir bar: no such key",
		},
		{
			name: "without cause",
			err:  New(KindAlignmentAmbiguous, "multiple dimension leaves touched", nil),
			want: "AlignmentAmbiguous: multiple dimension leaves touched",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestRangerError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := New(KindInputCorrupt, "superblock", cause)

	require.ErrorIs(t, err, cause)

	var re *RangerError
	require.ErrorAs(t, err, &re)
	require.Equal(t, KindInputCorrupt, re.Kind)
}

func TestKind_Fatal(t *testing.T) {
	fatal := []Kind{KindInputUnavailable, KindInputCorrupt, KindPathMissing, KindUnknownLeafType}
	for _, k := range fatal {
		require.True(t, k.Fatal(), k.String())
	}

	nonFatal := []Kind{KindAlignmentAmbiguous, KindFormulaUnbound}
	for _, k := range nonFatal {
		require.False(t, k.Fatal(), k.String())
	}
}

func TestWrap(t *testing.T) {
	require.Nil(t, Wrap("noop", nil))

	err := Wrap("open failed", errors.New("enoent"))
	var re *RangerError
	require.ErrorAs(t, err, &re)
	require.Equal(t, KindUnspecified, re.Kind)
}
