package source

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/maxpert/provision/cfg"
	"github.com/maxpert/provision/common"
	"github.com/maxpert/provision/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drain reads every seed, collecting skippable errors separately
func drain(t *testing.T, s Source) ([]identity.Seed, []error) {
	t.Helper()
	var seeds []identity.Seed
	var skipped []error
	for {
		seed, err := s.Next()
		if err == io.EOF {
			return seeds, skipped
		}
		var parseErr *common.InputParseError
		if errors.As(err, &parseErr) {
			skipped = append(skipped, err)
			continue
		}
		require.NoError(t, err)
		seeds = append(seeds, seed)
	}
}

const flatInput = `# public,private,realm,password
sip:1@x.test,1@x.test,x.test,pw

sip:2@x.test, 2@x.test ,x.test,secret
sip:3@x.test,3@x.test
`

func TestCSV_Flat(t *testing.T) {
	s := NewCSV("users.csv", strings.NewReader(flatInput), cfg.SourceFlat, "#")
	seeds, skipped := drain(t, s)

	require.Len(t, seeds, 2)
	assert.Equal(t, identity.Seed{
		Origin:    "users.csv",
		Line:      2,
		PublicID:  "sip:1@x.test",
		PrivateID: "1@x.test",
		Realm:     "x.test",
		Secret:    "pw",
	}, seeds[0])
	assert.Equal(t, "2@x.test", seeds[1].PrivateID)
	assert.Equal(t, 4, seeds[1].Line)

	require.Len(t, skipped, 1)
	var parseErr *common.InputParseError
	require.True(t, errors.As(skipped[0], &parseErr))
	assert.Equal(t, "users.csv", parseErr.Origin)
	assert.Equal(t, 5, parseErr.Line)
	assert.Contains(t, parseErr.Error(), "line 5 of users.csv")
}

func TestCSV_Auto(t *testing.T) {
	input := strings.Join([]string{
		"sip:1@x.test,1@x.test,x.test,pw",
		"sip:2@x.test,2@x.test,0123abcd,<simservs/>,<ServiceProfile/>",
		"sip:3@x.test,3@x.test,x.test,ha1,<simservs/>,<PublicIdentity/>,<ServiceProfile/>,<IMSSubscription/>,123e4567-e89b-12d3-a456-426614174000,123e4567-e89b-12d3-a456-426614174001,pw3",
		"a,b,c,d,e,f",
	}, "\n")

	seeds, skipped := drain(t, NewCSV("mixed.csv", strings.NewReader(input), cfg.SourceAuto, "#"))
	require.Len(t, seeds, 3)
	require.Len(t, skipped, 1)

	assert.Equal(t, "pw", seeds[0].Secret)

	assert.Equal(t, "0123abcd", seeds[1].Digest)
	assert.Equal(t, "<ServiceProfile/>", seeds[1].IFCXML)
	assert.Empty(t, seeds[1].Realm)

	assert.Equal(t, "ha1", seeds[2].Digest)
	assert.Equal(t, "<IMSSubscription/>", seeds[2].IMSSubscriptionXML)
	assert.Equal(t, "123e4567-e89b-12d3-a456-426614174000", seeds[2].IRS)
	assert.Equal(t, "123e4567-e89b-12d3-a456-426614174001", seeds[2].SP)
	assert.Equal(t, "pw3", seeds[2].Secret)
}

func TestCSV_PreparedNineColumns(t *testing.T) {
	input := "sip:1@x.test,1@x.test,x.test,ha1,s,p,i,m,123e4567-e89b-12d3-a456-426614174000\n"
	seeds, skipped := drain(t, NewCSV("p.csv", strings.NewReader(input), cfg.SourcePrepared, "#"))
	require.Len(t, seeds, 1)
	assert.Empty(t, skipped)
	assert.Empty(t, seeds[0].SP)
	assert.Empty(t, seeds[0].Secret)
}

func TestCSV_LegacyStrictWidth(t *testing.T) {
	input := "a,b,c,d,e\na,b,c,d\n"
	seeds, skipped := drain(t, NewCSV("l.csv", strings.NewReader(input), cfg.SourceLegacy, "#"))
	assert.Len(t, seeds, 1)
	assert.Len(t, skipped, 1)
}

func TestCSV_ByteOrderMark(t *testing.T) {
	input := "\uFEFFsip:1@x.test,1@x.test,x.test,pw\n"
	seeds, _ := drain(t, NewCSV("bom.csv", strings.NewReader(input), cfg.SourceAuto, "#"))
	require.Len(t, seeds, 1)
	assert.Equal(t, "sip:1@x.test", seeds[0].PublicID)
}

func TestCSV_MultiCharacterComment(t *testing.T) {
	input := "-- header\nsip:1@x.test,1@x.test,x.test,pw\n"
	seeds, skipped := drain(t, NewCSV("c.csv", strings.NewReader(input), cfg.SourceAuto, "--"))
	assert.Len(t, seeds, 1)
	assert.Empty(t, skipped)
}

func TestOpenFile_Compressed(t *testing.T) {
	dir := t.TempDir()
	plain := []byte("sip:1@x.test,1@x.test,x.test,pw\nsip:2@x.test,2@x.test,x.test,pw\n")

	var zbuf bytes.Buffer
	zw, err := zstd.NewWriter(&zbuf)
	require.NoError(t, err)
	_, err = zw.Write(plain)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	var gbuf bytes.Buffer
	gw := gzip.NewWriter(&gbuf)
	_, err = gw.Write(plain)
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	files := map[string][]byte{
		"users.csv":     plain,
		"users.csv.zst": zbuf.Bytes(),
		"users.csv.gz":  gbuf.Bytes(),
	}

	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, content, 0644))

			s, err := OpenFile(path, cfg.SourceAuto, "#")
			require.NoError(t, err)
			assert.Equal(t, name, s.Origin())

			seeds, skipped := drain(t, s)
			assert.Empty(t, skipped)
			require.Len(t, seeds, 2)
			assert.Equal(t, "sip:2@x.test", seeds[1].PublicID)
			assert.NoError(t, s.Close())
		})
	}
}

func TestOpenFile_Missing(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "absent.csv"), cfg.SourceAuto, "#")
	assert.Error(t, err)
}

func TestRange(t *testing.T) {
	s, err := NewRange(7, 9, "x.test", "pw")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), s.Len())

	seeds, skipped := drain(t, s)
	assert.Empty(t, skipped)
	require.Len(t, seeds, 3)
	assert.Equal(t, identity.Seed{
		Origin:    "range",
		PublicID:  "sip:7@x.test",
		PrivateID: "7@x.test",
		Realm:     "x.test",
		Secret:    "pw",
	}, seeds[0])
	assert.Equal(t, "sip:9@x.test", seeds[2].PublicID)
	assert.Equal(t, uint64(0), s.Len())

	_, err = s.Next()
	assert.Equal(t, io.EOF, err)
}

func TestRange_SingleAndMax(t *testing.T) {
	s, err := NewRange(^uint64(0), ^uint64(0), "x.test", "pw")
	require.NoError(t, err)
	seeds, _ := drain(t, s)
	assert.Len(t, seeds, 1)
}

func TestParseRange(t *testing.T) {
	s, err := ParseRange([]string{"1", "2", "x.test", "pw"})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), s.Len())

	bad := [][]string{
		{"1", "2", "x.test"},
		{"a", "2", "x.test", "pw"},
		{"1", "-2", "x.test", "pw"},
		{"5", "2", "x.test", "pw"},
		{"1", "2", "", "pw"},
	}
	for _, args := range bad {
		_, err := ParseRange(args)
		var usage *common.UsageError
		assert.True(t, errors.As(err, &usage), "args %v: %v", args, err)
	}
}
