package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/remoteplay/rpctl/internal/version"
)

func newVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show client and relay versions",
		RunE:  runVersion,
	}
	cmd.Flags().String("relay", "", "Relay address to compare against (default from config)")
	return cmd
}

// relayVersion asks a running rpctld for its version.
func relayVersion(ctx context.Context, addr string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/api/status", nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("relay returned %s", resp.Status)
	}
	var status struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return "", err
	}
	return status.Version, nil
}

func runVersion(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)
	clientVersion := version.String()

	addr, _ := cmd.Flags().GetString("relay")
	if addr == "" {
		addr = cfg.Relay.Listen
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	relay, relayErr := relayVersion(ctx, addr)

	if out.jsonMode {
		data := map[string]any{
			"client": clientVersion,
		}
		if relayErr == nil {
			data["relay"] = relay
			if w := version.CheckVersionMismatch(relay); w != "" {
				data["mismatch"] = true
				data["warning"] = w
			}
		} else {
			data["relay"] = nil
		}
		return out.Print(data)
	}

	fmt.Printf("Client: %s\n", version.FormatVersion(clientVersion))
	if relayErr != nil {
		fmt.Println("Relay:  not running")
		return nil
	}
	fmt.Printf("Relay:  %s\n", version.FormatVersion(relay))
	if w := version.CheckVersionMismatch(relay); w != "" {
		fmt.Println(w)
	}
	return nil
}
