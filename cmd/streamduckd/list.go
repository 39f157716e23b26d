package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/streamduck/streamduckd/internal/model"
	"github.com/streamduck/streamduckd/internal/transport"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List connected deck devices",
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	t := transport.NewHID(model.VendorElgato)
	infos, err := t.Enumerate()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("No devices found.")
		return nil
	}

	for _, info := range infos {
		m, err := model.Lookup(info.VendorID, info.ProductID)
		if err != nil {
			fmt.Printf("%s  (unsupported: %s)\n", info.ID(), info.Product)
			continue
		}
		fmt.Printf("%s  %s  %dx%d keys, %dx%d px\n",
			info.ID(), m.Name, m.Rows, m.Cols, m.KeySize.X, m.KeySize.Y)
	}
	return nil
}
