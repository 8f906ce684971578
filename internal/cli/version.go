package cli

import (
	"context"
	"fmt"

	"github.com/cruciblehq/kiln/internal"
)

// Represents the 'kiln version' command.
type VersionCmd struct {
	Short bool `help:"Print only the version number."`
}

// Executes the version command.
func (c *VersionCmd) Run(ctx context.Context) error {
	if c.Short {
		fmt.Println(internal.Version())
		return nil
	}
	fmt.Println(internal.VersionString())
	return nil
}
