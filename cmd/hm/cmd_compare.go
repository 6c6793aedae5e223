package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/daviddao/hlcmail/pkg/hlc"
	"github.com/daviddao/hlcmail/pkg/order"
	"github.com/daviddao/hlcmail/pkg/physical"
)

type compareResult struct {
	A        hlc.Stamp             `json:"a" yaml:"a"`
	B        hlc.Stamp             `json:"b" yaml:"b"`
	Ordering order.PartialOrdering `json:"ordering" yaml:"ordering"`
	Code     uint8                 `json:"code" yaml:"code"`
}

func newCompareCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "compare <a> <b>",
		Short: "Order two stamps",
		Example: `  hm compare 100.3 100.7    # less_than (code 0)
  hm compare 120.0 100.9    # greater_than (code 1)`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			x, y, err := parseStampPair(args)
			if err != nil {
				return err
			}
			o := x.Compare(y)
			res := compareResult{A: x, B: y, Ordering: o, Code: o.Code()}
			return a.emit(res, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s %s (code %d)\n", x, o, y, o.Code())
			})
		},
	}
}

type mergeResult struct {
	A      hlc.Stamp `json:"a" yaml:"a"`
	B      hlc.Stamp `json:"b" yaml:"b"`
	Causal hlc.Stamp `json:"causal" yaml:"causal"`
	Join   hlc.Stamp `json:"join" yaml:"join"`
}

func newMergeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "merge <local> <remote>",
		Short: "Show the result of merging a remote stamp into a local one",
		Long: `Merge prints two results. The causal merge is what a node at <local>
becomes on receiving <remote>: strictly greater than both. The join is the
plain maximum of the two, used when combining views without an event.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			x, y, err := parseStampPair(args)
			if err != nil {
				return err
			}
			// The result only depends on the stamps, never on the source.
			src := physical.NewManualSource(0)
			causal := hlc.Rebind(x, src).Observe(y).Stamp()
			res := mergeResult{A: x, B: y, Causal: causal, Join: x.Merge(y)}
			return a.emit(res, func(w io.Writer) {
				fmt.Fprintf(w, "causal %s\njoin   %s\n", res.Causal, res.Join)
			})
		},
	}
}

func parseStampPair(args []string) (hlc.Stamp, hlc.Stamp, error) {
	x, err := hlc.ParseStamp(args[0])
	if err != nil {
		return hlc.Stamp{}, hlc.Stamp{}, commandError("first stamp", err)
	}
	y, err := hlc.ParseStamp(args[1])
	if err != nil {
		return hlc.Stamp{}, hlc.Stamp{}, commandError("second stamp", err)
	}
	return x, y, nil
}
