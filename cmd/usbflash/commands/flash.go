package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"usbflash/internal/config"
	"usbflash/pkg/errors"
	"usbflash/pkg/flasher"
)

var flashCmd = &cobra.Command{
	Use:   "flash <image-path> <device-path>",
	Short: "Write an image to a removable device",
	Long: `Validates the image, checks the target is a safe removable device,
unmounts any mounted filesystems, writes the image, and verifies the
result. Ctrl-C cancels the write in flight.`,
	Args: cobra.ExactArgs(2),
	RunE: runFlash,
}

func init() {
	rootCmd.AddCommand(flashCmd)
}

func runFlash(cmd *cobra.Command, args []string) error {
	imagePath, devicePath := args[0], args[1]

	if err := requireRoot(); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config invalid")
	}

	f := newFlasher(cfg)
	f.SetStatusCallback(func(message string) {
		fmt.Printf("\r\033[K%s\n", message)
	})
	f.SetProgressCallback(func(current, max int) {
		fmt.Printf("\r%3d%% [%-50s]", current, progressBar(current, max, 50))
	})

	// Ctrl-C cancels the in-flight write; the pipeline winds down and
	// reports a cancelled result.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			f.CancelWrite()
		}
	}()

	res := f.WriteImage(context.Background(), imagePath, devicePath, flasher.WriteOptions{
		Verify:    cfg.Verify,
		SyncAfter: cfg.SyncAfter,
	})
	fmt.Println()

	if !res.Success {
		return res.Err
	}

	fmt.Printf("wrote %s in %s", humanSize(uint64(res.BytesWritten)), res.Duration.Round(time.Millisecond))
	if res.ChecksumVerified {
		fmt.Print(" (verified)")
	}
	fmt.Println()
	return nil
}

func progressBar(current, max, width int) string {
	if max <= 0 {
		max = 1
	}
	filled := current * width / max
	if filled > width {
		filled = width
	}
	bar := make([]byte, width)
	for i := range bar {
		if i < filled {
			bar[i] = '='
		} else {
			bar[i] = ' '
		}
	}
	return string(bar)
}
