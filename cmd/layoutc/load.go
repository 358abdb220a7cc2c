package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"layoutcore/internal/catalog"
	"layoutcore/internal/layout"
)

// addTargetFlags registers --target and --triple on cmd.
func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().String("target", "", "TOML target description overriding the catalog's [target]")
	cmd.Flags().String("triple", "", "built-in target triple overriding the catalog's [target]")
}

// loadCatalog reads the catalog at path and picks the target: --target,
// then --triple, then the catalog's own [target], then armv7 hard-float.
func loadCatalog(cmd *cobra.Command, path string) (*catalog.Catalog, layout.Target, error) {
	c, err := catalog.LoadFile(path)
	if err != nil {
		return nil, layout.Target{}, err
	}
	targetPath, err := cmd.Flags().GetString("target")
	if err != nil {
		return nil, layout.Target{}, fmt.Errorf("failed to get target flag: %w", err)
	}
	triple, err := cmd.Flags().GetString("triple")
	if err != nil {
		return nil, layout.Target{}, fmt.Errorf("failed to get triple flag: %w", err)
	}
	switch {
	case targetPath != "":
		t, err := layout.LoadTarget(targetPath)
		return c, t, err
	case triple != "":
		t, ok := layout.TargetByTriple(triple)
		if !ok {
			return nil, layout.Target{}, fmt.Errorf("unknown triple %q", triple)
		}
		return c, t, nil
	case c.HasTarget:
		return c, c.Target, nil
	default:
		return c, layout.ARMv7HF(), nil
	}
}
