package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"layoutcore/internal/testkit"
	"layoutcore/internal/trace"
	"layoutcore/internal/types"
	"layoutcore/internal/vm"
)

func newVtableCmd() *cobra.Command {
	var typeExpr, ifaceExpr, snapshotPath string
	cmd := &cobra.Command{
		Use:   "vtable <catalog.toml>",
		Short: "Build the dispatch table for a type and print its words",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			timer := timerFor(cmd)
			defer printTimings(cmd, timer)

			done := track(timer, "load")
			c, target, err := loadCatalog(cmd, args[0])
			done("")
			if err != nil {
				return err
			}
			ty, err := c.Type(typeExpr)
			if err != nil {
				return err
			}
			ex := types.NoExistential
			if ifaceExpr != "" {
				if ex, err = c.Existential(ifaceExpr); err != nil {
					return err
				}
			}

			done = track(timer, "build")
			cx := vm.NewEvalContext(target, c.Types, vm.WithTracer(trace.FromContext(cmd.Context())))
			vt, err := cx.GetVtable(ty, ex)
			done(types.Label(c.Types, ty))
			if err != nil {
				return err
			}
			if err := testkit.CheckVtableInvariants(cx, ty, ex, vt); err != nil {
				return fmt.Errorf("internal error: %w", err)
			}
			if err := printVtable(cmd.OutOrStdout(), cx, ty, ex, vt); err != nil {
				return err
			}
			if snapshotPath != "" {
				done = track(timer, "snapshot")
				err := writeSnapshotFile(snapshotPath, cx)
				done(snapshotPath)
				return err
			}
			return nil
		},
	}
	addTargetFlags(cmd)
	cmd.Flags().StringVar(&typeExpr, "type", "", "concrete type expression")
	cmd.Flags().StringVar(&ifaceExpr, "iface", "", "interface reference, e.g. Shape or Sink<i32>")
	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "write an lz4-compressed memory snapshot to this file")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func printVtable(w io.Writer, cx *vm.EvalContext, ty types.TypeID, ex types.ExistentialID, vt vm.Pointer) error {
	in := cx.Types
	addr, _ := cx.Memory.Address(vt)
	fmt.Fprintf(w, "vtable for %s as dyn %s at %#x (%s)\n", types.Label(in, ty), types.ExistentialLabel(in, ex), addr, vt)

	names := []string{"drop", "size", "align"}
	if ref, ok := in.Existential(ex); ok {
		if info, ok := in.InterfaceInfo(ref.Interface); ok {
			for _, m := range info.Methods {
				names = append(names, m.Name)
			}
		}
	}
	ptrSize := cx.Memory.PtrSize()
	tbl := newTable("word", "slot", "value")
	for i, name := range names {
		v, err := cx.Memory.ReadPtrSized(vt.Add(ptrSize * uint64(i)))
		if err != nil {
			return err
		}
		tbl.add(fmt.Sprint(i), name, describeWord(cx, v))
	}
	return tbl.write(w)
}

func describeWord(cx *vm.EvalContext, v vm.ScalarMaybeUndef) string {
	if v.Undef {
		return "undef"
	}
	if !v.Scalar.IsPtr() {
		bits, err := v.Scalar.ToBits(v.Scalar.Size())
		if err != nil {
			return v.String()
		}
		return fmt.Sprint(bits)
	}
	fn, err := cx.Memory.GetFn(v.Scalar)
	if err != nil {
		return v.String()
	}
	if instance, err := fn.AsInstance(); err == nil {
		return instance.Label(cx.Types)
	}
	return fn.Name
}

func writeSnapshotFile(path string, cx *vm.EvalContext) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return vm.WriteSnapshot(f, cx.Memory, cx.Types)
}
