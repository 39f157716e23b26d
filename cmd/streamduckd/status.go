package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/streamduck/streamduckd/internal/model"
	"github.com/streamduck/streamduckd/internal/profile"
	"github.com/streamduck/streamduckd/internal/transport"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Validate the profile and report connected devices",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	path := profilePath()
	prof, err := profile.Load(path)
	if err != nil {
		return fmt.Errorf("profile %s: %w", path, err)
	}
	fmt.Printf("Profile: %s\n", path)
	fmt.Printf("  pages: %d, start page: %s, brightness: %d, hold after: %s\n",
		len(prof.Pages), prof.StartPage, prof.Brightness, prof.HoldAfter())
	for serial := range prof.Devices {
		fmt.Printf("  override for device %s: start page %s, brightness %d\n",
			serial, prof.StartPageFor(serial), prof.BrightnessFor(serial))
	}

	t := transport.NewHID(model.VendorElgato)
	infos, err := t.Enumerate()
	if err != nil {
		return err
	}
	fmt.Printf("Devices: %d\n", len(infos))
	for _, info := range infos {
		m, err := model.Lookup(info.VendorID, info.ProductID)
		if err != nil {
			fmt.Printf("  %s  (unsupported: %s)\n", info.ID(), info.Product)
			continue
		}
		fmt.Printf("  %s  %s  %d keys\n", info.ID(), m.Name, m.Keys())
	}
	return nil
}
