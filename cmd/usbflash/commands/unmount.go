package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"usbflash/internal/config"
	"usbflash/pkg/errors"
)

var unmountCmd = &cobra.Command{
	Use:   "unmount <device-path>",
	Short: "Unmount all filesystems on a device",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnmount,
}

func init() {
	rootCmd.AddCommand(unmountCmd)
}

func runUnmount(cmd *cobra.Command, args []string) error {
	devicePath := args[0]

	if err := requireRoot(); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	if err := newFlasher(cfg).ReleaseDevice(devicePath); err != nil {
		return err
	}

	fmt.Printf("%s released\n", devicePath)
	return nil
}
