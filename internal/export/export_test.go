package export

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmkenv/OS-ST-GIS/internal/core/model"
)

func recordSet(name string, cols []string, rows ...map[string]any) *model.RecordSet {
	rs := &model.RecordSet{Name: name, CRS: model.CRSWGS84, Columns: cols}
	for i, r := range rows {
		rs.Records = append(rs.Records, model.Record{Attrs: r, Geometry: orb.Point{float64(i), 1}})
	}
	return rs
}

func TestCombine_UnionSchemaInOrder(t *testing.T) {
	a := recordSet("a", []string{"name", "pop"},
		map[string]any{"name": "x", "pop": int64(1)},
		map[string]any{"name": "y", "pop": nil},
	)
	b := recordSet("b", []string{"county", "name"},
		map[string]any{"county": "Kent", "name": "z"},
	)

	tbl := Combine([]*model.RecordSet{a, nil, b})
	assert.Equal(t, []string{"name", "pop", "county"}, tbl.Columns)
	require.Len(t, tbl.Rows, 3)
	assert.Equal(t, []any{"x", int64(1), nil}, tbl.Rows[0])
	assert.Equal(t, []any{"y", nil, nil}, tbl.Rows[1])
	assert.Equal(t, []any{"z", nil, "Kent"}, tbl.Rows[2])
}

func TestSerialize_RoundTrip(t *testing.T) {
	rs := recordSet("stations", []string{"name", "lat", "lon", "count", "active", "note"},
		map[string]any{"name": "Annapolis, MD", "lat": 38.97, "lon": -76.49, "count": int64(12), "active": true, "note": nil},
		map[string]any{"name": `Say "hi"`, "lat": 39.29, "lon": -76.61, "count": int64(0), "active": false, "note": "n"},
	)

	var buf bytes.Buffer
	require.NoError(t, Serialize(&buf, Combine([]*model.RecordSet{rs})))

	back, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, back, 1+rs.Len())
	assert.Equal(t, rs.Columns, back[0])
	for i, r := range rs.Records {
		for j, c := range rs.Columns {
			assert.Equal(t, model.FormatValue(r.Attrs[c]), back[i+1][j], "row %d col %s", i, c)
		}
	}
}

func TestStream(t *testing.T) {
	tbl := Table{Columns: []string{"a", "b"}, Rows: [][]any{{"1", 2.5}, {nil, "x"}}}
	var src bytes.Buffer
	require.NoError(t, Serialize(&src, tbl))
	const want = "a,b\n1,2.5\n,x\n"

	var plain bytes.Buffer
	n, err := Stream(&plain, bytes.NewReader(src.Bytes()), false)
	require.NoError(t, err)
	assert.Equal(t, want, plain.String())
	assert.Equal(t, int64(len(want)), n)

	var gz bytes.Buffer
	n, err = Stream(&gz, bytes.NewReader(src.Bytes()), true)
	require.NoError(t, err)
	assert.Equal(t, int64(gz.Len()), n)
	zr, err := gzip.NewReader(&gz)
	require.NoError(t, err)
	out, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, want, string(out))
}

func TestWorkspace_WriteAndClose(t *testing.T) {
	root := t.TempDir()
	ws, err := NewWorkspace(root)
	require.NoError(t, err)

	path, n, err := ws.WriteCombined(Table{Columns: []string{"a", "b"}, Rows: [][]any{{"x", int64(2)}}})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ws.Dir(), CombinedFileName), path)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\nx,2\n", string(b))
	assert.Equal(t, int64(len(b)), n)

	require.NoError(t, ws.Close())
	require.NoError(t, ws.Close())
	_, err = os.Stat(ws.Dir())
	assert.True(t, os.IsNotExist(err), "workspace dir must be removed")

	_, _, err = ws.WriteCombined(Table{})
	assert.ErrorIs(t, err, ErrWorkspaceClosed)
}
