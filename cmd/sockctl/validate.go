package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/irctrakz/sockmgr/pkg/resolver"
)

func newValidateCommand(g *globalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:                   "validate ADDRESS [...]",
		Short:                 "report whether addresses are IP literals or resolvable hostnames",
		DisableFlagsInUseLine: true,
		Args:                  cobra.MinimumNArgs(1),
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	c.RunE = func(cmd *cobra.Command, args []string) error {
		r := resolver.New(resolver.WithTimeout(g.cfg.Socket.ResolveTimeout()))
		return runValidate(r, args, os.Stdout)
	}
	return c
}

func runValidate(r *resolver.Resolver, addrs []string, out io.Writer) error {
	bad := 0
	for _, a := range addrs {
		ok := r.ValidAddress(a)
		if !ok {
			bad++
		}
		fmt.Fprintf(out, "%s\t%v\n", a, ok)
	}
	if bad > 0 {
		return fmt.Errorf("%d of %d addresses invalid", bad, len(addrs))
	}
	return nil
}
