package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/remoteplay/rpctl/internal/constants"
	"github.com/remoteplay/rpctl/internal/discovery"
	"github.com/remoteplay/rpctl/internal/hostconfig"
)

func newHostsCommand() *cobra.Command {
	hostsCmd := &cobra.Command{
		Use:   "hosts",
		Short: "Inspect consoles registered with Chiaki",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered consoles",
		Args:  cobra.NoArgs,
		RunE:  hostsList,
	}

	showCmd := &cobra.Command{
		Use:   "show <name|mac>",
		Short: "Show one registered console",
		Args:  cobra.ExactArgs(1),
		RunE:  hostsShow,
	}
	showCmd.Flags().Bool("keys", false, "Include key material")

	hostsCmd.AddCommand(listCmd, showCmd)
	return hostsCmd
}

func consoleType(h hostconfig.Host) string {
	if h.IsPS5() {
		return "PS5"
	}
	return "PS4"
}

func hostsList(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)
	store := hostStore()
	hosts := store.Hosts()

	if out.jsonMode {
		return out.Print(hosts)
	}
	if len(hosts) == 0 {
		fmt.Printf("No registered hosts in %s\n", store.Path)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tADDRESS\tMAC")
	for _, h := range hosts {
		addr := h.Address
		if addr == "" {
			addr = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", h.Name, consoleType(h), addr, h.MAC)
	}
	return w.Flush()
}

func hostsShow(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	h, ok := hostStore().Lookup(args[0])
	if !ok {
		return fmt.Errorf("host %q not found", args[0])
	}
	showKeys, _ := cmd.Flags().GetBool("keys")

	if out.jsonMode {
		data := map[string]interface{}{
			"name":    h.Name,
			"type":    consoleType(h),
			"mac":     h.MAC,
			"host":    h.Address,
			"target":  h.Target,
			"ap_ssid": h.APSSID,
		}
		if showKeys {
			data["regist_key"] = h.RegistKey
			data["rp_key"] = h.RPKeyHex()
		}
		return out.Print(data)
	}

	fmt.Printf("Name:     %s\n", h.Name)
	fmt.Printf("Type:     %s (target %d)\n", consoleType(h), h.Target)
	fmt.Printf("MAC:      %s\n", h.MAC)
	if h.Address != "" {
		fmt.Printf("Address:  %s\n", h.Address)
	}
	if h.APSSID != "" {
		fmt.Printf("AP SSID:  %s\n", h.APSSID)
	}
	if showKeys {
		fmt.Printf("Regist:   %s\n", h.RegistKey)
		fmt.Printf("RP key:   %s\n", h.RPKeyHex())
	}
	return nil
}

func discoveryOptions(cmd *cobra.Command) discovery.Options {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	return discovery.Options{Binary: cfg.Chiaki.CLI, Timeout: timeout}
}

func newDiscoverCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find consoles on the local network",
		Args:  cobra.NoArgs,
		RunE:  runDiscover,
	}
	cmd.Flags().Duration("timeout", constants.DiscoveryTimeout, "How long to wait for answers")
	return cmd
}

func runDiscover(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)
	ctx, cancel := signalContext()
	defer cancel()

	consoles := discovery.Discover(ctx, discoveryOptions(cmd))
	if out.jsonMode {
		return out.Print(consoles)
	}
	if len(consoles) == 0 {
		fmt.Println("No consoles found")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HOST\tTYPE\tNAME")
	for _, c := range consoles {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.Host, c.Type, c.Name)
	}
	return w.Flush()
}

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <name|address>",
		Short: "Query whether a console is awake and what it is running",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatus,
	}
	cmd.Flags().Duration("timeout", constants.DiscoveryTimeout, "How long to wait for an answer")
	return cmd
}

// statusAddress maps a registered name to its manual address and passes
// anything else through as an address.
func statusAddress(store *hostconfig.Store, ref string) string {
	if h, ok := store.Lookup(ref); ok && h.Address != "" {
		return h.Address
	}
	return ref
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	ctx, cancel := signalContext()
	defer cancel()

	addr := statusAddress(hostStore(), args[0])
	st, err := discovery.QueryStatus(ctx, addr, discoveryOptions(cmd))
	if err != nil {
		if ctx.Err() == context.Canceled {
			return nil
		}
		return err
	}
	if out.jsonMode {
		return out.Print(st)
	}

	state := "offline"
	if st.Online {
		state = "ready"
	} else if st.State != "" {
		state = st.State
	}
	fmt.Printf("Host:     %s\n", st.Host)
	if st.Name != "" {
		fmt.Printf("Name:     %s (%s)\n", st.Name, st.Type)
	}
	fmt.Printf("State:    %s\n", state)
	if st.RunningApp != "" {
		fmt.Printf("Running:  %s [%s]\n", st.RunningApp, st.RunningAppID)
	}
	return nil
}
