package faketree

import (
	"fmt"
	"sort"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vukanj/rootranger/internal/leaftype"
)

// EncodeFixtureRow serialises one event's named scalar values to the
// protobuf wire format. Tests encode their fixture rows this way at run time
// and hand them to NewTreeFromFixtureRows, in the spirit of the teacher's
// testdata/generators building synthetic HDF5 files instead of
// hand-writing binary layouts.
func EncodeFixtureRow(values map[string]float64) ([]byte, error) {
	fields := make(map[string]interface{}, len(values))
	for k, v := range values {
		fields[k] = v
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("faketree: building fixture row: %w", err)
	}
	return proto.Marshal(s)
}

// DecodeFixtureRow reverses EncodeFixtureRow.
func DecodeFixtureRow(data []byte) (map[string]float64, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("faketree: decoding fixture row: %w", err)
	}
	out := make(map[string]float64, len(s.GetFields()))
	for k, v := range s.AsMap() {
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("faketree: fixture field %q is not numeric", k)
		}
		out[k] = f
	}
	return out, nil
}

// NewTreeFromFixtureRows builds a scalar-only fixture Tree from a slice of
// protobuf-encoded rows (EncodeFixtureRow output), one per event. codes
// gives every column's primitive type; a row missing a column is an error.
func NewTreeFromFixtureRows(name string, codes map[string]leaftype.Code, encodedRows [][]byte) (*Tree, error) {
	columns := make([]string, 0, len(codes))
	for col := range codes {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	series := make(map[string][]float64, len(columns))
	for _, rowBytes := range encodedRows {
		row, err := DecodeFixtureRow(rowBytes)
		if err != nil {
			return nil, err
		}
		for _, col := range columns {
			v, ok := row[col]
			if !ok {
				return nil, fmt.Errorf("faketree: fixture row missing column %q", col)
			}
			series[col] = append(series[col], v)
		}
	}

	t := NewTree(name)
	for _, col := range columns {
		t.AddScalar(col, codes[col], series[col])
	}
	return t, nil
}
