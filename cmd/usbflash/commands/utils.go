package commands

import (
	"fmt"
	"os"
	"runtime"

	"usbflash/internal/config"
	"usbflash/pkg/errors"
	"usbflash/pkg/flasher"
)

// requireRoot rejects early: writing raw block devices and unmounting
// need elevated privileges on Linux.
func requireRoot() error {
	if runtime.GOOS != "linux" {
		return nil
	}
	if os.Geteuid() != 0 {
		return errors.New(errors.TargetRejected, "this command must run as root (try sudo)")
	}
	return nil
}

// newFlasher builds the write engine from loaded configuration.
func newFlasher(cfg *config.Config) *flasher.Flasher {
	return flasher.New(flasher.Options{
		BlockSize:      cfg.BlockSize,
		MaxImageSize:   cfg.MaxImageSize,
		UseDD:          cfg.UseDD,
		DDPath:         cfg.DDPath,
		PollInterval:   cfg.PollInterval,
		SettleInterval: cfg.SettleInterval,
		KillGrace:      cfg.KillGrace,
	})
}

// humanSize formats a byte count for table output.
func humanSize(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
