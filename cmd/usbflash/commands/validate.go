package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"usbflash/internal/config"
	"usbflash/pkg/errors"
)

var validateCmd = &cobra.Command{
	Use:   "validate <image-path>",
	Short: "Validate an image file without writing anything",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config invalid")
	}

	desc := newFlasher(cfg).ValidateImage(args[0])
	if !desc.Valid {
		return errors.Newf(errors.Validation, "%s: %s", desc.Path, desc.Err)
	}

	format := "raw disk image"
	switch {
	case desc.ISO9660 && desc.Hybrid:
		format = "hybrid ISO 9660"
	case desc.ISO9660:
		format = "ISO 9660"
	}

	fmt.Printf("image:   %s\n", desc.Path)
	fmt.Printf("size:    %s (%d bytes)\n", humanSize(uint64(desc.Size)), desc.Size)
	fmt.Printf("format:  %s\n", format)
	fmt.Printf("sha256:  %s\n", desc.SHA256)
	return nil
}
