package plinkodb

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ledgerwatch/log/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plinko-ubt/internal/pir2"
)

func quietLogger() log.Logger {
	l := log.New()
	l.SetHandler(log.DiscardHandler())
	return l
}

func testRecords(n int) []pir2.Record {
	recs := make([]pir2.Record, n)
	for i := range recs {
		recs[i].Address = common.BytesToAddress([]byte{0xaa, byte(i / 3)})
		recs[i].Slot[31] = byte(i)
		recs[i].Value[0] = byte(i + 1)
		recs[i].Value[31] = 0xee
	}
	return recs
}

func encode(recs []pir2.Record, tail int) []byte {
	var out []byte
	for _, r := range recs {
		out = r.AppendTo(out)
	}
	return append(out, bytes.Repeat([]byte{0xff}, tail)...)
}

func convert(t *testing.T, dir string, data []byte) Result {
	t.Helper()
	c := NewConverter(dir, Options{Logger: quietLogger()})
	res, err := c.Convert(pir2.NewReader(bytes.NewReader(data), pir2.RecordSize))
	require.NoError(t, err)
	return res
}

func TestConvertLayout(t *testing.T) {
	dir := t.TempDir()
	recs := testRecords(7)
	res := convert(t, dir, encode(recs, 0))

	assert.Equal(t, uint64(7), res.Records)
	assert.False(t, res.Misaligned)

	db, err := os.ReadFile(filepath.Join(dir, DatabaseFile))
	require.NoError(t, err)
	require.Len(t, db, 7*ValueSize)

	mapping, err := os.ReadFile(filepath.Join(dir, StorageMappingFile))
	require.NoError(t, err)
	require.Len(t, mapping, 7*StorageMappingEntrySize)

	for i, r := range recs {
		assert.Equal(t, r.Value[:], db[i*32:(i+1)*32], "value %d", i)
		row := mapping[i*56 : (i+1)*56]
		assert.Equal(t, r.Address[:], row[0:20], "address %d", i)
		assert.Equal(t, r.Slot[:], row[20:52], "slot %d", i)
		assert.Equal(t, uint32(i), binary.LittleEndian.Uint32(row[52:56]), "index %d", i)
	}

	accounts, err := os.ReadFile(filepath.Join(dir, AccountMappingFile))
	require.NoError(t, err)
	assert.Empty(t, accounts)

	meta, err := ReadMetadata(filepath.Join(dir, MetadataFile))
	require.NoError(t, err)
	assert.Equal(t, Metadata{
		Chain:            DefaultChain,
		NumStorageSlots:  7,
		NumAccounts:      0,
		EntrySize:        32,
		MappingEntrySize: 56,
		FormatVersion:    DefaultFormatVersion,
		Source:           DefaultSource,
	}, meta)

	leftovers, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestConvertMetadataOptions(t *testing.T) {
	dir := t.TempDir()
	c := NewConverter(dir, Options{Chain: "mainnet", Source: "test", FormatVersion: "2.0.0", Logger: quietLogger()})
	res, err := c.Convert(pir2.NewReader(bytes.NewReader(encode(testRecords(1), 0)), pir2.RecordSize))
	require.NoError(t, err)
	assert.Equal(t, "mainnet", res.Metadata.Chain)
	assert.Equal(t, "test", res.Metadata.Source)
	assert.Equal(t, "2.0.0", res.Metadata.FormatVersion)
}

func TestConvertEmpty(t *testing.T) {
	dir := t.TempDir()
	res := convert(t, dir, nil)
	assert.Zero(t, res.Records)

	db, err := os.ReadFile(filepath.Join(dir, DatabaseFile))
	require.NoError(t, err)
	assert.Empty(t, db)
}

func TestConvertMisaligned(t *testing.T) {
	dir := t.TempDir()
	res := convert(t, dir, encode(testRecords(4), 40))

	assert.True(t, res.Misaligned)
	assert.Equal(t, 40, res.DiscardedBytes)
	assert.Equal(t, uint64(4), res.Records)

	fi, err := os.Stat(filepath.Join(dir, DatabaseFile))
	require.NoError(t, err)
	assert.Equal(t, int64(4*ValueSize), fi.Size())
}

func TestConvertShortOfDeclaredCount(t *testing.T) {
	for _, tc := range []struct {
		name       string
		tail       int
		misaligned bool
	}{
		{"record_boundary", 0, false},
		{"partial_record", 40, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			c := NewConverter(dir, Options{Logger: quietLogger()})
			r := pir2.NewReader(bytes.NewReader(encode(testRecords(3), tc.tail)), pir2.RecordSize).Limit(5)
			res, err := c.Convert(r)
			require.NoError(t, err)

			assert.Equal(t, uint64(3), res.Records)
			assert.True(t, res.Truncated)
			assert.Equal(t, uint64(5), res.DeclaredRecords)
			assert.Equal(t, tc.misaligned, res.Misaligned)
			assert.Equal(t, tc.tail, res.DiscardedBytes)

			meta, err := ReadMetadata(filepath.Join(dir, MetadataFile))
			require.NoError(t, err)
			assert.Equal(t, uint64(3), meta.NumStorageSlots)
		})
	}
}

func TestConvertUnlimitedIsNeverTruncated(t *testing.T) {
	res := convert(t, t.TempDir(), encode(testRecords(2), 10))
	assert.False(t, res.Truncated)
	assert.Zero(t, res.DeclaredRecords)
	assert.True(t, res.Misaligned)
}

func TestConvertMetadataFailureCommitsNothing(t *testing.T) {
	dir := t.TempDir()
	// A directory in the way of the metadata temp file makes it uncreatable.
	require.NoError(t, os.Mkdir(filepath.Join(dir, MetadataFile+".tmp"), 0o755))

	c := NewConverter(dir, Options{Logger: quietLogger()})
	_, err := c.Convert(pir2.NewReader(bytes.NewReader(encode(testRecords(2), 0)), pir2.RecordSize))
	require.Error(t, err)

	for _, name := range Artifacts {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.True(t, os.IsNotExist(err), "%s should not exist", name)
	}
	leftovers, err := filepath.Glob(filepath.Join(dir, "*.bin*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestWriteJSONReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", MetadataFile)
	require.NoError(t, writeJSON(path, Metadata{Chain: "a"}))
	require.NoError(t, writeJSON(path, Metadata{Chain: "b"}))

	meta, err := ReadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, "b", meta.Chain)
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestCheckAlignment(t *testing.T) {
	for _, tc := range []struct {
		size      int64
		records   int64
		remainder int64
	}{
		{0, 0, 0},
		{84, 1, 0},
		{84*10 + 40, 10, 40},
		{83, 0, 83},
	} {
		records, rem := CheckAlignment(tc.size, pir2.RecordSize)
		assert.Equal(t, tc.records, records, "size %d", tc.size)
		assert.Equal(t, tc.remainder, rem, "size %d", tc.size)
	}
}

type failingReader struct{ after []byte }

func (f *failingReader) Read(p []byte) (int, error) {
	if len(f.after) == 0 {
		return 0, errors.New("disk on fire")
	}
	n := copy(p, f.after)
	f.after = f.after[n:]
	return n, nil
}

func TestConvertReadErrorLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	c := NewConverter(dir, Options{Logger: quietLogger()})
	_, err := c.Convert(pir2.NewReader(&failingReader{after: encode(testRecords(2), 0)}, pir2.RecordSize))
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestVerify(t *testing.T) {
	dir := t.TempDir()
	convert(t, dir, encode(testRecords(9), 0))

	rep, err := Verify(dir, VerifyOptions{CheckDuplicates: true, Logger: quietLogger()})
	require.NoError(t, err)
	assert.Equal(t, uint64(9), rep.Metadata.NumStorageSlots)
	assert.Equal(t, int64(9*32), rep.DatabaseBytes)
	assert.Equal(t, int64(9*56), rep.StorageMappingBytes)
	assert.Zero(t, rep.Accounts)
}

func TestVerifyDetectsCorruption(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mangle func(t *testing.T, dir string)
	}{
		{"short_database", func(t *testing.T, dir string) {
			require.NoError(t, os.Truncate(filepath.Join(dir, DatabaseFile), 3*32))
		}},
		{"short_mapping", func(t *testing.T, dir string) {
			require.NoError(t, os.Truncate(filepath.Join(dir, StorageMappingFile), 4*56+10))
		}},
		{"wrong_index", func(t *testing.T, dir string) {
			path := filepath.Join(dir, StorageMappingFile)
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			binary.LittleEndian.PutUint32(data[2*56+52:], 99)
			require.NoError(t, os.WriteFile(path, data, 0o644))
		}},
		{"account_count", func(t *testing.T, dir string) {
			require.NoError(t, os.WriteFile(filepath.Join(dir, AccountMappingFile), make([]byte, 24), 0o644))
		}},
		{"account_alignment", func(t *testing.T, dir string) {
			require.NoError(t, os.WriteFile(filepath.Join(dir, AccountMappingFile), make([]byte, 5), 0o644))
		}},
		{"entry_size", func(t *testing.T, dir string) {
			path := filepath.Join(dir, MetadataFile)
			meta, err := ReadMetadata(path)
			require.NoError(t, err)
			meta.EntrySize = 64
			require.NoError(t, writeJSON(path, meta))
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			convert(t, dir, encode(testRecords(5), 0))
			tc.mangle(t, dir)

			_, err := Verify(dir, VerifyOptions{Logger: quietLogger()})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCorrupt), "got %v", err)
		})
	}
}

func TestVerifyDuplicates(t *testing.T) {
	recs := testRecords(3)
	recs[2].Address, recs[2].Slot = recs[0].Address, recs[0].Slot

	dir := t.TempDir()
	convert(t, dir, encode(recs, 0))

	_, err := Verify(dir, VerifyOptions{Logger: quietLogger()})
	require.NoError(t, err)

	_, err = Verify(dir, VerifyOptions{CheckDuplicates: true, Logger: quietLogger()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorrupt))
	assert.Contains(t, err.Error(), "duplicate")
}

func TestLookup(t *testing.T) {
	dir := t.TempDir()
	recs := testRecords(6)
	convert(t, dir, encode(recs, 0))

	idx, val, err := Lookup(dir, StorageKey{Address: recs[4].Address, Slot: recs[4].Slot})
	require.NoError(t, err)
	assert.Equal(t, uint32(4), idx)
	assert.Equal(t, recs[4].Value, val)

	_, _, err = Lookup(dir, StorageKey{Address: common.HexToAddress("0x01")})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLoadAccountMapping(t *testing.T) {
	path := filepath.Join(t.TempDir(), AccountMappingFile)
	var data []byte
	for i := 0; i < 3; i++ {
		row := make([]byte, AccountMappingEntrySize)
		row[19] = byte(i + 1)
		binary.LittleEndian.PutUint32(row[20:], uint32(10+i))
		data = append(data, row...)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))

	m, err := LoadAccountMapping(path)
	require.NoError(t, err)
	assert.Len(t, m, 3)
	assert.Equal(t, uint32(12), m[common.BytesToAddress([]byte{3})])
}

type fakePublisher struct{}

func (fakePublisher) PublishFile(path string) (string, error) {
	return "bafy-" + filepath.Base(path), nil
}

func (fakePublisher) GatewayURL(cid string) string { return "https://gw.example/ipfs/" + cid }

func TestWriteManifest(t *testing.T) {
	dir := t.TempDir()
	convert(t, dir, encode(testRecords(3), 0))

	m, err := WriteManifest(context.Background(), dir, "", nil)
	require.NoError(t, err)
	require.Len(t, m.Files, len(Artifacts))
	assert.Len(t, m.Version, 12)
	assert.Equal(t, m.Files[0].SHA256[:12], m.Version)
	assert.Equal(t, uint64(3), m.NumStorageSlots)

	for i, f := range m.Files {
		assert.Equal(t, Artifacts[i], f.Path)
		data, err := os.ReadFile(filepath.Join(dir, f.Path))
		require.NoError(t, err)
		sum := sha256.Sum256(data)
		assert.Equal(t, int64(len(data)), f.Size)
		assert.Equal(t, hex.EncodeToString(sum[:]), f.SHA256)
		assert.Empty(t, f.CID)
	}
	assert.Equal(t, "storage-only", m.Files[2].Comment)

	_, err = os.Stat(filepath.Join(dir, ManifestFile))
	require.NoError(t, err)
}

func TestWriteManifestPublishes(t *testing.T) {
	dir := t.TempDir()
	convert(t, dir, encode(testRecords(2), 0))

	m, err := WriteManifest(context.Background(), dir, "v1", fakePublisher{})
	require.NoError(t, err)
	assert.Equal(t, "v1", m.Version)
	for _, f := range m.Files {
		assert.Equal(t, "bafy-"+f.Path, f.CID)
		assert.Equal(t, fmt.Sprintf("https://gw.example/ipfs/bafy-%s", f.Path), f.URL)
	}
}

func TestNormalizeIPFSAPI(t *testing.T) {
	for in, want := range map[string]string{
		"/ip4/127.0.0.1/tcp/5001":       "127.0.0.1:5001",
		"/dns4/ipfs/tcp/5001/http":      "ipfs:5001",
		"http://localhost:5001/api/v0":  "localhost:5001",
		"https://ipfs.example.com:443/": "ipfs.example.com:443",
		"  127.0.0.1:5001  ":            "127.0.0.1:5001",
		"/ip6/::1/tcp/5001":             "[::1]:5001",
	} {
		assert.Equal(t, want, NormalizeIPFSAPI(in), in)
	}
}

func TestGatewayURL(t *testing.T) {
	p := &IPFSPublisher{gateway: "https://gw.example/ipfs/"}
	assert.Equal(t, "https://gw.example/ipfs/bafy", p.GatewayURL("bafy"))
	assert.Empty(t, p.GatewayURL(""))
	assert.Empty(t, (&IPFSPublisher{}).GatewayURL("bafy"))
}

func TestNewIPFSPublisherDisabled(t *testing.T) {
	p, err := NewIPFSPublisher("  ", "")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Empty(t, p.GatewayURL("cid"))
}
