package main

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ethereum/go-ethereum/params"
)

// writeFileAtomic writes path through a temporary file that is renamed into
// place only when write succeeds.
func writeFileAtomic(path string, write func(w *bufio.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(f, 1<<20)
	if err := write(bw); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, path)
}

// chainName maps a chain id to the name used in metadata.json.
func chainName(id uint64) string {
	for _, c := range []struct {
		name string
		cfg  *params.ChainConfig
	}{
		{"mainnet", params.MainnetChainConfig},
		{"sepolia", params.SepoliaChainConfig},
		{"holesky", params.HoleskyChainConfig},
	} {
		if c.cfg.ChainID != nil && c.cfg.ChainID.Uint64() == id {
			return c.name
		}
	}
	return strconv.FormatUint(id, 10)
}
