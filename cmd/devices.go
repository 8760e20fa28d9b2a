package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var devicesHost string

// devicesCmd lists the live registry from the command line against a
// running controller's HTTP API, in the spirit of the teacher's
// several read-only cmd/ subcommands (seed, cleanup, simulate) that
// talk to already-running infrastructure rather than embedding logic
// twice.
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "list devices known to a running controller",
	RunE:  runDevicesList,
}

func init() {
	devicesCmd.Flags().StringVar(&devicesHost, "host", "http://localhost:5000", "controller base URL")
	RootCmd.AddCommand(devicesCmd)
}

type deviceListResponse struct {
	Success bool `json:"success"`
	Data    []struct {
		ID       string `json:"ID"`
		Serial   string `json:"Serial"`
		Platform string `json:"Platform"`
		Name     string `json:"Name"`
		Status   string `json:"Status"`
		Battery  int    `json:"Battery"`
	} `json:"data"`
	Error string `json:"error"`
}

func runDevicesList(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(devicesHost + "/devices")
	if err != nil {
		return fmt.Errorf("contacting controller: %w", err)
	}
	defer resp.Body.Close()

	var body deviceListResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if !body.Success {
		return fmt.Errorf("controller returned an error: %s", body.Error)
	}

	if len(body.Data) == 0 {
		fmt.Println("no devices")
		return nil
	}
	for _, d := range body.Data {
		fmt.Printf("%-36s %-8s %-20s %-10s battery=%d%%\n", d.ID, d.Platform, d.Name, d.Status, d.Battery)
	}
	return nil
}
