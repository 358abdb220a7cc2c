package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"layoutcore/internal/layout"
)

func newLayoutCmd() *cobra.Command {
	var exprs []string
	cmd := &cobra.Command{
		Use:   "layout <catalog.toml>",
		Short: "Print size, alignment and register class of declared types",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, target, err := loadCatalog(cmd, args[0])
			if err != nil {
				return err
			}
			le := layout.New(target, c.Types)
			names := append(c.StructNames(), exprs...)

			fmt.Fprintf(cmd.OutOrStdout(), "target %s (%d-bit pointers, objects < %s)\n",
				target.Triple, target.PtrBits(), units.BytesSize(float64(target.ObjSizeBound())))
			tbl := newTable("type", "size", "align", "bytes", "class", "offsets")
			for _, name := range names {
				ty, err := c.Type(name)
				if err != nil {
					return err
				}
				l, err := le.LayoutOf(ty)
				if err != nil {
					tbl.add(name, "-", "-", "-", "-", err.Error())
					continue
				}
				size := strconv.Itoa(l.Size)
				human := units.BytesSize(float64(l.Size))
				if l.Unsized {
					size, human = "?", "unsized"
				}
				class := "-"
				if h, err := le.HomogeneousAggregate(ty); err == nil && !l.Unsized {
					class = h.String()
				}
				tbl.add(name, size, strconv.Itoa(l.Align), human, class, joinInts(l.FieldOffsets))
			}
			return tbl.write(cmd.OutOrStdout())
		},
	}
	addTargetFlags(cmd)
	cmd.Flags().StringArrayVar(&exprs, "expr", nil, "additional type expression to lay out (repeatable)")
	return cmd
}

func joinInts(xs []int) string {
	if len(xs) == 0 {
		return "-"
	}
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}
