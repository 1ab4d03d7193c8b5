package main

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"plinko-ubt/internal/plinkodb"
	"plinko-ubt/internal/ubt"
)

func (a *app) lookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <dir> <address> <slot>",
		Short: "Print the index, value and tree keys of one storage slot",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !common.IsHexAddress(args[1]) {
				return fmt.Errorf("invalid address %q", args[1])
			}
			addr := common.HexToAddress(args[1])
			slot, err := parseSlot(args[2])
			if err != nil {
				return err
			}

			index, value, err := plinkodb.Lookup(args[0], plinkodb.StorageKey{Address: addr, Slot: slot})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "index:   %d\n", index)
			fmt.Fprintf(w, "value:   %s\n", value.Hex())
			for _, s := range []ubt.Scheme{ubt.SchemeRaw, ubt.SchemeEIP7864} {
				key := ubt.StorageTreeKey(addr, slot, s)
				fmt.Fprintf(w, "%-8s %x\n", s.String()+":", key[:])
			}
			return nil
		},
	}
}

// parseSlot accepts a 0x-prefixed hex slot of up to 32 bytes or a decimal one.
func parseSlot(v string) (common.Hash, error) {
	v = strings.TrimSpace(v)
	if h, ok := strings.CutPrefix(strings.ToLower(v), "0x"); ok {
		if len(h)%2 == 1 {
			h = "0" + h
		}
		b, err := hex.DecodeString(h)
		if err != nil || len(b) == 0 || len(b) > common.HashLength {
			return common.Hash{}, fmt.Errorf("invalid slot %q", v)
		}
		return common.BytesToHash(b), nil
	}
	b, ok := new(big.Int).SetString(v, 10)
	if !ok || b.Sign() < 0 {
		return common.Hash{}, fmt.Errorf("invalid slot %q", v)
	}
	n, overflow := uint256.FromBig(b)
	if overflow {
		return common.Hash{}, fmt.Errorf("slot %q exceeds 256 bits", v)
	}
	return common.Hash(n.Bytes32()), nil
}
