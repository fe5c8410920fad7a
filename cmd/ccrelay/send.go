package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// send and prompt are the hook-facing entry points: a coding tool's hook
// shells out to these instead of speaking HTTP itself.

var sendCmd = &cobra.Command{
	Use:   "send [message]",
	Short: "Send a one-shot notification for a session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		event, _ := cmd.Flags().GetString("event")
		body := strings.Join(args, " ")

		payload := map[string]string{
			"sessionId": sessionID,
			"event":     event,
			"message":   body,
		}

		var result struct {
			Sent   bool   `json:"sent"`
			Reason string `json:"reason,omitempty"`
		}
		if err := postJSON("/api/send", payload, &result); err != nil {
			return err
		}

		if !result.Sent {
			fmt.Printf("Not sent: %s\n", result.Reason)
			return nil
		}
		fmt.Println("Sent.")
		return nil
	},
}

var promptCmd = &cobra.Command{
	Use:   "prompt [text]",
	Short: "Register a session awaiting a reply and send the prompt",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		event, _ := cmd.Flags().GetString("event")
		wait, _ := cmd.Flags().GetDuration("wait")
		text := strings.Join(args, " ")

		payload := map[string]string{
			"sessionId": sessionID,
			"event":     event,
			"prompt":    text,
		}
		if err := postJSON("/api/session", payload, nil); err != nil {
			return err
		}

		if wait <= 0 {
			fmt.Println("Registered.")
			return nil
		}

		deadline := time.Now().Add(wait)
		for time.Now().Before(deadline) {
			var envelope struct {
				Response *struct {
					Response string `json:"response"`
					Origin   string `json:"origin"`
				} `json:"response"`
			}
			if err := getJSON("/api/response/"+sessionID, &envelope); err != nil {
				return err
			}
			if envelope.Response != nil {
				fmt.Println(envelope.Response.Response)
				return nil
			}
			time.Sleep(2 * time.Second)
		}
		return fmt.Errorf("no reply within %s", wait)
	},
}

func apiClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

func apiURL(path string) string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", cfg.Server.Port, path)
}

func postJSON(path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := apiClient().Post(apiURL(path), "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("daemon not reachable on port %d: %w", cfg.Server.Port, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func getJSON(path string, out any) error {
	resp, err := apiClient().Get(apiURL(path))
	if err != nil {
		return fmt.Errorf("daemon not reachable on port %d: %w", cfg.Server.Port, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func init() {
	sendCmd.Flags().String("session", "", "session identifier")
	sendCmd.Flags().String("event", "Notification", "hook event kind")
	sendCmd.MarkFlagRequired("session")

	promptCmd.Flags().String("session", "", "session identifier")
	promptCmd.Flags().String("event", "Notification", "hook event kind")
	promptCmd.Flags().Duration("wait", 0, "poll for a reply up to this long (0 to return immediately)")
	promptCmd.MarkFlagRequired("session")

	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(promptCmd)
}
