package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"usbflash/internal/config"
	"usbflash/pkg/errors"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List candidate removable target devices",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	f := newFlasher(cfg)
	devices, err := f.ListDevices()
	if err != nil {
		return errors.Wrap(err, "device enumeration failed")
	}

	if len(devices) == 0 {
		fmt.Println("No removable devices found")
		return nil
	}

	fmt.Printf("%-12s %-24s %-10s %-11s %-24s\n", "DEVICE", "MODEL", "SIZE", "REMOVABLE", "MOUNTPOINT")
	fmt.Println("---------------------------------------------------------------------------------------")

	for _, d := range devices {
		model := d.Model
		if d.Vendor != "" {
			model = d.Vendor + " " + d.Model
		}
		fmt.Printf("%-12s %-24s %-10s %-11s %-24s\n",
			d.Path, model, humanSize(d.Size), d.Removable, d.Mountpoint)
	}

	return nil
}
