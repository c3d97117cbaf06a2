// Package cmd implements the dosktool diagnostic CLI: small commands for
// exercising the drive map, the directory search, the MCB allocator, and
// the program loader against a host directory, without a running CPU.
package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"dosk/kernel"
	"dosk/registers"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "dosktool",
	Short: "DOS kernel core diagnostics",
	Long:  `Inspect and exercise the DOS kernel emulation core from the host side.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", `Config file, default: built-in defaults`)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, `Debug logging`)
}

// bootKernel builds a kernel with hostDir mounted as C: and C: current.
func bootKernel(hostDir string) (*kernel.Kernel, error) {
	cfg, err := kernel.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if hostDir != "" {
		if cfg.Mounts == nil {
			cfg.Mounts = map[string]string{}
		}
		cfg.Mounts["C"] = hostDir
		cfg.CurrentDrive = "C"
	}

	log := logrus.New()
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	return kernel.New(cfg, &registers.Fake{}, os.Stdin, os.Stdout, log)
}
