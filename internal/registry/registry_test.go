package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vukanj/rootranger/internal/leaftype"
)

func TestAppend_TracksFlattenIndices(t *testing.T) {
	r := New()

	_, idx0, err := r.Append(leaftype.Float64, 4, true)
	require.NoError(t, err)
	require.Equal(t, 0, idx0)

	_, idx1, err := r.Append(leaftype.Float64, 1, false)
	require.NoError(t, err)
	require.Equal(t, 1, idx1)

	_, idx2, err := r.Append(leaftype.Float64, 4, true)
	require.NoError(t, err)
	require.Equal(t, 2, idx2)

	require.Equal(t, []int{0, 2}, r.flattenIdx[leaftype.Float64])
	require.Equal(t, 3, r.Len())
}

func TestStepAll_OnlyShiftsFlattenBuffers(t *testing.T) {
	r := New()

	flatBuf, _, err := r.Append(leaftype.Int32, 3, true)
	require.NoError(t, err)
	plainBuf, _, err := r.Append(leaftype.Int32, 3, false)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, flatBuf.Set(i, int32(i*100)))
		require.NoError(t, plainBuf.Set(i, int32(i*100)))
	}

	r.StepAll(2)

	require.Equal(t, int32(200), flatBuf.Get(0))
	require.Equal(t, int32(0), plainBuf.Get(0), "non-flatten buffers are untouched by StepAll")
}

func TestClear_ResetsRegistry(t *testing.T) {
	r := New()
	_, _, err := r.Append(leaftype.Uint8, 2, false)
	require.NoError(t, err)
	require.Equal(t, 1, r.Len())

	r.Clear()
	require.Equal(t, 0, r.Len())
}

func TestAppend_UnknownType(t *testing.T) {
	r := New()
	_, _, err := r.Append(leaftype.Code('?'), 2, false)
	require.Error(t, err)
}

func TestMustValidCode(t *testing.T) {
	require.NoError(t, MustValidCode(leaftype.Int32))
	require.Error(t, MustValidCode(leaftype.Code('?')))
}
