package main

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"layoutcore/internal/abi"
	"layoutcore/internal/catalog"
	"layoutcore/internal/layout"
	"layoutcore/internal/trace"
	"layoutcore/internal/types"
)

func newClassifyCmd() *cobra.Command {
	var jobs int
	var only string
	cmd := &cobra.Command{
		Use:   "classify <catalog.toml>",
		Short: "Classify how every declared signature passes its arguments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			timer := timerFor(cmd)
			defer printTimings(cmd, timer)

			done := track(timer, "load")
			c, target, err := loadCatalog(cmd, args[0])
			if err != nil {
				return err
			}
			sigs := c.Signatures
			if only != "" {
				sig, ok := c.Signature(only)
				if !ok {
					return fmt.Errorf("signature %q is not declared", only)
				}
				sigs = []abi.Signature{sig}
			}
			done(strconv.Itoa(len(sigs)) + " signatures")

			done = track(timer, "classify")
			blocks, err := classifyAll(cmd.Context(), c, target, sigs, jobs)
			done(target.Triple)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, block := range blocks {
				if _, err := out.Write(block); err != nil {
					return err
				}
			}
			return nil
		},
	}
	addTargetFlags(cmd)
	cmd.Flags().IntVarP(&jobs, "jobs", "j", runtime.GOMAXPROCS(0), "number of signatures classified in parallel")
	cmd.Flags().StringVar(&only, "sig", "", "classify only the named signature")
	return cmd
}

// classifyAll renders one block per signature, in declaration order. The
// interner is only read here, so jobs share it; each job owns its layout
// cache.
func classifyAll(ctx context.Context, c *catalog.Catalog, target layout.Target, sigs []abi.Signature, jobs int) ([][]byte, error) {
	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopePass, "classify", trace.ParentSpan(ctx))
	defer span.End("")

	blocks := make([][]byte, len(sigs))
	g, gctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, sig := range sigs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cx := abi.NewContext(layout.New(target, c.Types))
			cx.Tracer = tracer
			fn, err := abi.FnAbiOf(cx, sig)
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := renderFnAbi(&buf, c.Types, target, sig, fn); err != nil {
				return err
			}
			blocks[i] = buf.Bytes()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	span.WithExtra("signatures", strconv.Itoa(len(sigs)))
	return blocks, nil
}

func renderFnAbi(buf *bytes.Buffer, in *types.Interner, target layout.Target, sig abi.Signature, fn *abi.FnAbi) error {
	variadic := ""
	if fn.CVariadic {
		variadic = ", variadic"
	}
	fmt.Fprintf(buf, "%s (%s%s) on %s\n", sig.Name, fn.Conv, variadic, target.Triple)
	tbl := newTable("", "type", "size", "pass")
	row := func(name string, arg *abi.ArgAbi) {
		tbl.add("  "+name, types.Label(in, arg.Type), strconv.Itoa(arg.Layout.Size), arg.String())
	}
	row("ret", &fn.Ret)
	for i := range fn.Args {
		row("arg"+strconv.Itoa(i), &fn.Args[i])
	}
	if err := tbl.write(buf); err != nil {
		return err
	}
	buf.WriteByte('\n')
	return nil
}
