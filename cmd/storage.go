package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"TrackHound/config"
	"TrackHound/storage"
)

var (
	storagePrefix  string
	storagePresign string
	storageRemove  string
)

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Inspect the archive bucket",
	Long:  `Connects to MinIO and reports archive bucket statistics, mints presigned URLs, or removes archived objects.`,
	Example: `  # totals for the whole bucket
  trackhound storage

  # totals for one source
  trackhound storage --prefix vk_audio/

  # hand out a 24h download URL for an archived object
  trackhound storage --presign vk_audio/12345.mp3

  # drop an archived object
  trackhound storage --remove vk_audio/12345.mp3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		initLogging(cfg)

		store, err := storage.NewStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		switch {
		case storagePresign != "":
			url, err := store.PresignedGet(cmd.Context(), storagePresign, 24*time.Hour)
			if err != nil {
				return err
			}
			fmt.Println(url)
		case storageRemove != "":
			if err := store.Remove(cmd.Context(), storageRemove); err != nil {
				return err
			}
			fmt.Printf("removed %s\n", storageRemove)
		default:
			stats, err := store.Stats(cmd.Context(), storagePrefix)
			if err != nil {
				return err
			}
			fmt.Printf("bucket:   %s\n", cfg.MinioBucket)
			if storagePrefix != "" {
				fmt.Printf("prefix:   %s\n", storagePrefix)
			}
			fmt.Printf("objects:  %d\n", stats.Objects)
			fmt.Printf("size:     %.2f MiB\n", float64(stats.TotalSize)/(1024*1024))
			if !stats.LastModified.IsZero() {
				fmt.Printf("newest:   %s\n", stats.LastModified.Format(time.RFC3339))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(storageCmd)
	storageCmd.Flags().StringVarP(&storagePrefix, "prefix", "p", "", "limit stats to objects under this prefix")
	storageCmd.Flags().StringVar(&storagePresign, "presign", "", "mint a presigned URL for this object key")
	storageCmd.Flags().StringVar(&storageRemove, "remove", "", "remove this object key from the bucket")
}
