package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var loadTail string

var loadCmd = &cobra.Command{
	Use:                   "load FILE",
	Short:                 "Loads a DOS executable and reports its placement",
	Long:                  `Mounts the file's directory as drive C:, runs the EXEC path against it, and prints the resulting PSP, entry point, and memory layout. No instructions are executed.`,
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	Run: func(cmd *cobra.Command, args []string) {
		hostDir := filepath.Dir(args[0])
		name := strings.ToUpper(filepath.Base(args[0]))

		k, err := bootKernel(hostDir)
		if err != nil {
			fmt.Println(err)
			return
		}

		res := k.Exec(`C:\`+name, loadTail)
		if !res.OK() {
			fmt.Printf("load failed: %s\n", res.Code)
			return
		}

		psp := k.Psps.Current()
		fmt.Printf("PSP:    %04X\n", psp)
		fmt.Printf("CS:IP   %04X:%04X\n", k.Regs.CS(), k.Regs.IP())
		fmt.Printf("SS:SP   %04X:%04X\n", k.Regs.SS(), k.Regs.SP())

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
	loadCmd.Flags().StringVarP(&loadTail, "tail", "t", "", `Command tail passed to the program`)
	rootCmd.AddCommand(loadCmd)
}
