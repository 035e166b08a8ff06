package password

import (
	"encoding/hex"
	"fmt"

	"github.com/quennic/rconx/security"
	"github.com/spf13/cobra"
)

// Cmd hashes a password into the salted format the server stores.
var Cmd = &cobra.Command{
	Use:   "password <password>",
	Short: "Hash a password for server-side storage",
	Args:  cobra.ExactArgs(1),
	RunE:  runHash,
}

func runHash(cmd *cobra.Command, args []string) error {
	hashed, err := security.HashPassword(args[0])
	if err != nil {
		return err
	}
	fmt.Println(hex.EncodeToString(hashed))
	return nil
}
