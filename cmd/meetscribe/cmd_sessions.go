package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// sessionsCmd lists the sessions of a running serve instance.
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions on a running daemon",
	RunE:  runSessions,
}

func runSessions(cmd *cobra.Command, args []string) error {
	addr := cfg.API.ListenAddr
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get("http://" + addr + "/api/sessions")
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned %s", resp.Status)
	}

	var listing struct {
		Sessions []struct {
			SessionID    string  `json:"session_id"`
			MeetingID    string  `json:"meeting_id"`
			Status       string  `json:"status"`
			SegmentCount int     `json:"segment_count"`
			Duration     float64 `json:"duration"`
			Error        string  `json:"error"`
		} `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if len(listing.Sessions) == 0 {
		fmt.Println("no sessions")
		return nil
	}
	fmt.Printf("%-38s %-20s %-18s %9s %9s\n", "SESSION", "MEETING", "STATUS", "SEGMENTS", "DURATION")
	for _, s := range listing.Sessions {
		status := s.Status
		if s.Error != "" {
			status += " (" + s.Error + ")"
		}
		fmt.Printf("%-38s %-20s %-18s %9d %8.0fs\n",
			s.SessionID, s.MeetingID, status, s.SegmentCount, s.Duration)
	}
	return nil
}
