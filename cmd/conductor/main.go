package main

import (
    "log"

    "github.com/spf13/cobra"

    condcli "github.com/arturolabs/conductor/pkg/cli"
)

func main() {
    if err := newRoot().Execute(); err != nil {
        log.Fatal(err)
    }
}

func newRoot() *cobra.Command {
    root := &cobra.Command{
        Use:           "conductor",
        Short:         "sequencer conductor CLI",
        SilenceUsage:  true,
        SilenceErrors: true,
    }
    // Attach all subcommands from pkg/cli for reuse in services
    condcli.AddAll(root)
    return root
}
