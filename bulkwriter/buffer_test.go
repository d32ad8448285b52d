package bulkwriter

import (
	"testing"

	"github.com/maxpert/provision/partition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowBuffer_LastWriteWins(t *testing.T) {
	b := NewRowBuffer()
	b.Add([]byte("row"), []byte("col"), []byte("first"), 1)
	b.Add([]byte("row"), []byte("col"), []byte("second"), 1)

	assert.Equal(t, 1, b.Len())
	assert.Equal(t, 1, b.Cells())

	rows := b.Rows()
	require.Len(t, rows, 1)
	require.Len(t, rows[0].Cells, 1)
	assert.Equal(t, []byte("second"), rows[0].Cells[0].Value)
}

func TestRowBuffer_ColumnsSorted(t *testing.T) {
	b := NewRowBuffer()
	for _, col := range []string{"realm", "_exists", "digest_ha1", "associated_irs_x", "plaintext_password"} {
		b.Add([]byte("1@x.test"), []byte(col), nil, 1)
	}

	rows := b.Rows()
	require.Len(t, rows, 1)

	var names []string
	for _, c := range rows[0].Cells {
		names = append(names, string(c.Column))
	}
	assert.Equal(t, []string{"_exists", "associated_irs_x", "digest_ha1", "plaintext_password", "realm"}, names)
}

func TestRowBuffer_SortedByTokenThenKey(t *testing.T) {
	b := NewRowBuffer()
	keys := []string{"zeta", "alpha", "mid", "beta", "omega"}
	for _, k := range keys {
		b.Add([]byte(k), []byte("value"), []byte(k), 1)
	}

	p := partition.RandomPartitioner{}
	sorted := b.Sorted(p)
	require.Len(t, sorted, len(keys))

	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if partition.Compare(prev.Token, prev.Key, cur.Token, cur.Key) >= 0 {
			t.Fatalf("rows out of order at %d: %q then %q", i, prev.Key, cur.Key)
		}
		assert.Equal(t, p.Token(cur.Key), cur.Token)
	}
}

// constPartitioner maps every key to the same token so ordering falls to the row key
type constPartitioner struct{}

func (constPartitioner) Name() string               { return "const" }
func (constPartitioner) Token(rowKey []byte) []byte { return []byte{0x42} }

func TestRowBuffer_EqualTokensOrderByKey(t *testing.T) {
	b := NewRowBuffer()
	for _, k := range []string{"c", "a", "b"} {
		b.Add([]byte(k), []byte("v"), nil, 1)
	}

	sorted := b.Sorted(constPartitioner{})
	var got []string
	for _, r := range sorted {
		got = append(got, string(r.Key))
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestRowBuffer_Reset(t *testing.T) {
	b := NewRowBuffer()
	b.Add([]byte("k"), []byte("c"), nil, 1)
	b.Reset()
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 0, b.Cells())
	assert.Empty(t, b.Rows())
}
