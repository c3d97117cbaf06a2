package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"dosk/clock"
	"dosk/dos"
	"dosk/fcb"
)

var lsCmd = &cobra.Command{
	Use:                   "ls DIR [SPEC]",
	Short:                 "Lists a host directory through the DOS search path",
	Long:                  `Mounts DIR as drive C: and walks it with find-first/find-next, printing each Disk Transfer Area record the way a guest program would see it.`,
	Args:                  cobra.RangeArgs(1, 2),
	DisableFlagsInUseLine: true,
	Run: func(cmd *cobra.Command, args []string) {
		spec := "*.*"
		if len(args) == 2 {
			spec = args[1]
		}

		k, err := bootKernel(args[0])
		if err != nil {
			fmt.Println(err)
			return
		}

		root := k.Psps.CurrentView()
		dta := k.Files.GetDTA(root.Base)

		res := k.Files.FindFirst(root, spec, 0)
		for res.OK() {
			e := fcb.ReadEntry(k.Mem, k.Codec, dta)
			year, month, day := clock.DecodeDate(e.Date)
			hour, minute, _ := clock.DecodeTime(e.Time)
			kind := " "
			if e.Attr&0x10 != 0 {
				kind = "D"
			}
			fmt.Printf("%-12s %s %10d  %04d-%02d-%02d %02d:%02d\n",
				e.Name, kind, e.FileSize, year, month, day, hour, minute)
			res = k.Files.FindNext(root)
		}
		if res.Code != dos.NoMoreFiles {
			fmt.Println(res.Code)
		}
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
}
