package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// flagValue returns the value read by get. Flags are registered in init(),
// so a lookup error is a programming bug and panics.
func flagValue[T any](name string, get func(string) (T, error)) T {
	v, err := get(name)
	if err != nil {
		panic(fmt.Sprintf("rollcall: flag --%s: %v", name, err))
	}
	return v
}

func mustGetBool(cmd *cobra.Command, name string) bool {
	return flagValue(name, cmd.Flags().GetBool)
}

func mustGetInt(cmd *cobra.Command, name string) int {
	return flagValue(name, cmd.Flags().GetInt)
}

func mustGetString(cmd *cobra.Command, name string) string {
	return flagValue(name, cmd.Flags().GetString)
}

func mustGetFloat64(cmd *cobra.Command, name string) float64 {
	return flagValue(name, cmd.Flags().GetFloat64)
}

func mustGetStringSlice(cmd *cobra.Command, name string) []string {
	return flagValue(name, cmd.Flags().GetStringSlice)
}
