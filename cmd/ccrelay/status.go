package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
)

type channelStatus struct {
	Name         string `json:"name"`
	Enabled      bool   `json:"enabled"`
	Connected    bool   `json:"connected"`
	State        string `json:"state"`
	LastActivity string `json:"lastActivity,omitempty"`
	LastError    string `json:"lastError,omitempty"`
}

type daemonStatus struct {
	Status           string          `json:"status"`
	Enabled          bool            `json:"enabled"`
	ActiveSessions   int             `json:"activeSessions"`
	PendingResponses int             `json:"pendingResponses"`
	Uptime           float64         `json:"uptime"`
	TunnelURL        string          `json:"tunnelUrl,omitempty"`
	Channels         []channelStatus `json:"channels"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and channel status",
	RunE: func(cmd *cobra.Command, args []string) error {
		url := fmt.Sprintf("http://127.0.0.1:%d/api/status", cfg.Server.Port)

		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get(url)
		if err != nil {
			return fmt.Errorf("daemon not reachable on port %d: %w", cfg.Server.Port, err)
		}
		defer resp.Body.Close()

		var st daemonStatus
		if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
			return fmt.Errorf("decode status response: %w", err)
		}

		relay := "enabled"
		if !st.Enabled {
			relay = "muted"
		}
		fmt.Printf("Relay %s. Uptime %s. Sessions: %d active, %d awaiting reply.\n",
			relay, (time.Duration(st.Uptime) * time.Second).String(), st.ActiveSessions, st.PendingResponses)
		if st.TunnelURL != "" {
			fmt.Printf("Webhook base: %s\n", st.TunnelURL)
		}

		fmt.Println(renderChannelTable(st.Channels))
		return nil
	},
}

func renderChannelTable(channels []channelStatus) string {
	purple := lipgloss.Color("99")
	gray := lipgloss.Color("245")
	lightGray := lipgloss.Color("241")

	headerStyle := lipgloss.NewStyle().
		Foreground(purple).
		Bold(true).
		Align(lipgloss.Center).
		Padding(0, 1)
	oddRowStyle := lipgloss.NewStyle().
		Foreground(gray).
		Padding(0, 1)
	evenRowStyle := lipgloss.NewStyle().
		Foreground(lightGray).
		Padding(0, 1)
	borderStyle := lipgloss.NewStyle().
		Foreground(purple)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row%2 == 0:
				return evenRowStyle
			default:
				return oddRowStyle
			}
		}).
		Headers("Channel", "State", "Connected", "Last Error")

	for _, ch := range channels {
		connected := "no"
		if ch.Connected {
			connected = "yes"
		}
		t.Row(ch.Name, ch.State, connected, truncateString(ch.LastError, 40))
	}

	return t.String()
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
