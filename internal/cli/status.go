package cli

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/calvinhq/calvin/internal/config"
	"github.com/calvinhq/calvin/pkg/gateway"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running Calvin service",
	Long: `Query a running Calvin service over its gateway websocket and print
provider and generation backend status.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	host := cfg.Gateway.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	u := url.URL{
		Scheme: "ws",
		Host:   fmt.Sprintf("%s:%d", host, cfg.Gateway.Port),
		Path:   "/ws",
	}
	if cfg.Gateway.SharedSecret != "" {
		u.RawQuery = "secret=" + url.QueryEscape(cfg.Gateway.SharedSecret)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("service is not reachable at %s: %w", u.Host, err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(gateway.ClientMessage{Type: gateway.MsgServerStatus}); err != nil {
		return fmt.Errorf("failed to send status request: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		var msg gateway.ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("failed to read status response: %w", err)
		}
		// Skip broadcast events that may arrive first
		if msg.Type != gateway.MsgServerStatus {
			continue
		}

		data, err := json.MarshalIndent(msg.Data, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
}
