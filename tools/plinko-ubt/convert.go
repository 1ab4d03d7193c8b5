package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"plinko-ubt/internal/config"
	"plinko-ubt/internal/metrics"
	"plinko-ubt/internal/pir2"
	"plinko-ubt/internal/plinkodb"
)

func (a *app) convertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert <input.bin> <output-dir>",
		Short: "Re-encode a storage dump as a plinko PIR database",
		Long: `Writes database.bin, storage-mapping.bin, account-mapping.bin and metadata.json
into output-dir. The input is a headerless stream of 84-byte records unless
--input-format=pir2 is given.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runConvert(cmd, args[0], args[1])
		},
	}
	f := cmd.Flags()
	f.String(config.KeyChain, "", "chain name for metadata.json (default sepolia, or taken from a PIR2 header)")
	f.String(config.KeySource, plinkodb.DefaultSource, "source tag for metadata.json")
	f.String(config.KeyFormatVersion, plinkodb.DefaultFormatVersion, "format version for metadata.json")
	f.String(config.KeyInputFormat, config.InputRaw, "input layout: raw or pir2")
	f.Bool(config.KeyManifest, false, "write manifest.json with artifact hashes")
	f.String(config.KeyManifestVersion, "", "manifest version (default: database hash prefix)")
	f.String(config.KeyIPFSAPI, "", "IPFS API to pin artifacts to (implies --manifest)")
	f.String(config.KeyIPFSGateway, "", "gateway base URL recorded next to each CID")
	return cmd
}

func (a *app) runConvert(cmd *cobra.Command, input, outDir string) error {
	start := time.Now()
	w := cmd.OutOrStdout()

	in, err := pir2.Open(input)
	if err != nil {
		return err
	}
	defer in.Close()

	r, chain, err := a.convertReader(input, in)
	if err != nil {
		return err
	}

	conv := plinkodb.NewConverter(outDir, plinkodb.Options{
		Chain:         chain,
		Source:        a.cfg.Source,
		FormatVersion: a.cfg.FormatVersion,
		ProgressEvery: a.cfg.ProgressEvery,
		Logger:        a.logger,
	})
	res, err := conv.Convert(r)
	if err != nil {
		return fmt.Errorf("convert %s: %w", input, err)
	}

	m := metrics.New("convert")
	if res.Misaligned {
		m.Warn("misaligned")
	}
	if res.Truncated {
		m.Warn("truncated")
	}
	m.SetDistinct("storage_slots", res.Records)
	m.Finish(res.Records, time.Since(start))

	fmt.Fprintf(w, "Converted %d entries into %s\n", res.Records, conv.Dir())
	fmt.Fprintf(w, "  %s: %d bytes\n", plinkodb.DatabaseFile, res.Records*plinkodb.ValueSize)
	fmt.Fprintf(w, "  %s: %d bytes\n", plinkodb.StorageMappingFile, res.Records*plinkodb.StorageMappingEntrySize)
	fmt.Fprintf(w, "  %s: 0 bytes (storage-only)\n", plinkodb.AccountMappingFile)
	if res.Misaligned {
		fmt.Fprintf(w, "WARNING: discarded %d trailing bytes of a partial record\n", res.DiscardedBytes)
	}
	if res.Truncated {
		fmt.Fprintf(w, "WARNING: input ended after %d of %d declared entries\n", res.Records, res.DeclaredRecords)
	}

	if a.cfg.Manifest {
		var pub plinkodb.Publisher
		ipfs, err := plinkodb.NewIPFSPublisher(a.cfg.IPFSAPI, a.cfg.IPFSGateway)
		if err != nil {
			a.logger.Warn("Failed to initialize IPFS publisher, artifacts will not be pinned", "err", err)
			m.Warn("ipfs_unavailable")
		} else if ipfs != nil {
			pub = ipfs
			a.logger.Info("IPFS publisher initialized", "api", a.cfg.IPFSAPI)
		}
		manifest, err := plinkodb.WriteManifest(cmd.Context(), outDir, a.cfg.ManifestVersion, pub)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s: version %s\n", plinkodb.ManifestFile, manifest.Version)
	}

	if err := m.WriteTextfile(a.cfg.MetricsTextfile); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

// convertReader wraps in for the configured input format and picks the chain
// name for metadata.json.
func (a *app) convertReader(path string, in io.Reader) (*pir2.Reader, string, error) {
	if a.cfg.InputFormat == config.InputPIR2 {
		hdr, err := pir2.ReadHeader(in)
		if err != nil {
			return nil, "", fmt.Errorf("read %s: %w", path, err)
		}
		chain := a.cfg.Chain
		if chain == "" {
			chain = chainName(hdr.ChainID)
		}
		a.logger.Info("PIR2 input", "entries", hdr.EntryCount, "block", hdr.BlockNumber, "chain", chain)
		return pir2.NewReader(in, int(hdr.EntrySize)).Limit(hdr.EntryCount), chain, nil
	}

	if size, ok, err := pir2.Size(path); err != nil {
		return nil, "", err
	} else if ok {
		records, rem := plinkodb.CheckAlignment(size, pir2.RecordSize)
		a.logger.Info("Raw input", "bytes", size, "entries", records)
		if rem != 0 {
			a.logger.Warn("Input size is not a multiple of the record size", "bytes", size, "record_size", pir2.RecordSize, "remainder", rem)
		}
	}
	return pir2.NewReader(in, pir2.RecordSize), a.cfg.Chain, nil
}
