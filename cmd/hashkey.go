package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"TrackHound/core/auth"
)

var hashkeyCmd = &cobra.Command{
	Use:   "hashkey [key]",
	Short: "Generate a bcrypt hash for ADMIN_KEY_HASH",
	Long: `Hashes an admin key with bcrypt so the plaintext never has to live in the
environment. Put the output in ADMIN_KEY_HASH and keep the key itself
somewhere safe.`,
	Example: `  trackhound hashkey my-secret-key
  trackhound hashkey   # reads the key from stdin`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var key string
		if len(args) == 1 {
			key = args[0]
		} else {
			fmt.Fprint(os.Stderr, "admin key: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil {
				return fmt.Errorf("failed to read key: %w", err)
			}
			key = strings.TrimSpace(line)
		}
		if key == "" {
			return fmt.Errorf("admin key must not be empty")
		}

		hash, err := auth.HashKey(key)
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashkeyCmd)
}
