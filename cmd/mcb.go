package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var mcbAllocations []string

var mcbCmd = &cobra.Command{
	Use:                   "mcb",
	Short:                 "Displays the conventional-memory MCB chain",
	Long:                  `Boots the kernel and prints every Memory Control Block, optionally after a series of test allocations.`,
	Args:                  cobra.NoArgs,
	DisableFlagsInUseLine: true,
	Run: func(cmd *cobra.Command, args []string) {
		k, err := bootKernel("")
		if err != nil {
			fmt.Println(err)
			return
		}

		for _, arg := range mcbAllocations {
			paragraphs, err := strconv.ParseUint(arg, 0, 16)
			if err != nil {
				fmt.Printf("bad paragraph count %q\n", arg)
				return
			}
			segment, res := k.Alloc.Allocate(uint16(paragraphs), k.Psps.Current())
			if !res.OK() {
				fmt.Printf("alloc %#04x: %s (largest free %#04x)\n", paragraphs, res.Code, res.Value)
				continue
			}
			fmt.Printf("alloc %#04x: block at %04X\n", paragraphs, segment)
		}

		fmt.Println("MCB CHAIN:")
		for _, b := range k.Alloc.Chain() {
			owner := "free"
			if !b.Free() {
				owner = fmt.Sprintf("psp %04X %s", b.PspSegment(), b.OwnerName())
			}
			fmt.Printf("%04X: type %c size %5d paragraphs  %s\n", b.Base, b.Type(), b.Size(), owner)
		}
	},
}

func init() {
	mcbCmd.Flags().StringArrayVarP(&mcbAllocations, "alloc", "a", nil, `Allocate N paragraphs before printing, repeatable`)
	rootCmd.AddCommand(mcbCmd)
}
