package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "usbflash",
	Short: "usbflash - Write bootable images to removable USB devices",
	Long: `Writes ISO and raw disk images to removable USB block devices with
target safety checks, automatic unmounting, and post-write verification.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			})))
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")
	rootCmd.PersistentFlags().Int64("block-size", 4*1024*1024, "Copy block size in bytes")
	rootCmd.PersistentFlags().Bool("use-dd", false, "Delegate copying to the dd utility")
	rootCmd.PersistentFlags().String("dd-path", "dd", "Path to the dd binary")
	rootCmd.PersistentFlags().Int64("max-image-size", 10*1024*1024*1024, "Max image size in bytes")
	rootCmd.PersistentFlags().Bool("verify", true, "Verify the device after writing")
	rootCmd.PersistentFlags().Bool("sync-after", true, "Flush kernel buffers after writing")

	viper.BindPFlag("block-size", rootCmd.PersistentFlags().Lookup("block-size"))
	viper.BindPFlag("use-dd", rootCmd.PersistentFlags().Lookup("use-dd"))
	viper.BindPFlag("dd-path", rootCmd.PersistentFlags().Lookup("dd-path"))
	viper.BindPFlag("max-image-size", rootCmd.PersistentFlags().Lookup("max-image-size"))
	viper.BindPFlag("verify", rootCmd.PersistentFlags().Lookup("verify"))
	viper.BindPFlag("sync-after", rootCmd.PersistentFlags().Lookup("sync-after"))
}
