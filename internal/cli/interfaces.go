package cli

import (
	"fmt"

	"github.com/google/gopacket/pcap"
	"github.com/spf13/cobra"

	"wireloop/internal/models"
)

// NewInterfacesCommand builds "wireloop interfaces", listing every
// capture-capable device pcap can see.
func NewInterfacesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "interfaces",
		Short: "list available capture interfaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			ifaces, err := listInterfaces()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to enumerate interfaces", err)
			}
			for _, iface := range ifaces {
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %-30s %v\n", iface.Name, iface.Description, iface.Addresses)
			}
			return nil
		},
	}
}

func listInterfaces() ([]models.InterfaceInfo, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, err
	}

	out := make([]models.InterfaceInfo, 0, len(devs))
	for _, d := range devs {
		addrs := make([]string, 0, len(d.Addresses))
		for _, a := range d.Addresses {
			addrs = append(addrs, a.IP.String())
		}
		out = append(out, models.InterfaceInfo{
			Name:        d.Name,
			Description: d.Description,
			Addresses:   addrs,
		})
	}
	return out, nil
}
