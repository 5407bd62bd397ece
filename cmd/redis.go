package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"TrackHound/config"
	"TrackHound/db"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Check the Redis connection",
	Long:  `Connects to Redis with the configured settings and runs a set/get/del round trip.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		initLogging(cfg)

		fmt.Printf("connecting to redis at %s:%s (db %d)\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)
		client, err := db.ConnectRedis(cfg)
		if err != nil {
			return err
		}
		defer client.Close()

		if err := db.VerifyRedis(cmd.Context(), client); err != nil {
			return err
		}
		fmt.Println("redis round trip ok")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
