package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"meetscribe/internal/orchestrator"
	"meetscribe/internal/registry"
	"meetscribe/internal/relay"
	"meetscribe/internal/transcript"
)

var joinMeetingID string

// joinCmd captures a single meeting from the CLI: join, record until the
// meeting ends or Ctrl+C, print the transcript.
var joinCmd = &cobra.Command{
	Use:   "join <meeting-url>",
	Short: "Capture a single meeting",
	Args:  cobra.ExactArgs(1),
	RunE:  runJoin,
}

func init() {
	joinCmd.Flags().StringVar(&joinMeetingID, "meeting-id", "", "external meeting id (default: generated)")
}

// echoBackend wraps the relay and mirrors live events to stdout so the
// one-shot session is observable from the terminal.
type echoBackend struct {
	*relay.Relay
}

func (b echoBackend) NotifyStatus(session orchestrator.Session) {
	fmt.Printf("status: %s", session.Status)
	if session.Error != "" {
		fmt.Printf(" (%s)", session.Error)
	}
	fmt.Println()
	b.Relay.NotifyStatus(session)
}

func (b echoBackend) NotifyCaption(meetingID string, segment transcript.Segment) {
	fmt.Printf("%s: %s\n", segment.Speaker, segment.Text)
	b.Relay.NotifyCaption(meetingID, segment)
}

func runJoin(cmd *cobra.Command, args []string) error {
	url := args[0]
	meetingID := joinMeetingID
	if meetingID == "" {
		meetingID = uuid.NewString()
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	backendRelay := relay.New(cfg.Backend)
	backendRelay.Start(ctx)
	defer backendRelay.Close()

	reg := registry.New(cfg, echoBackend{backendRelay}, nil, nil)

	if _, err := reg.StartSession(ctx, meetingID, url); err != nil {
		return err
	}
	fmt.Printf("joining %s (meeting id %s), Ctrl+C to leave\n", url, meetingID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			fmt.Println("leaving meeting...")
			session, err := reg.StopSession(context.Background(), meetingID, "operator stop")
			if err != nil {
				return err
			}
			printTranscript(session)
			return nil
		case <-ticker.C:
			session, err := reg.GetSession(meetingID)
			if err != nil {
				return err
			}
			if session.Status.Terminal() {
				printTranscript(session)
				if session.Error != "" {
					return fmt.Errorf("session failed: %s", session.Error)
				}
				return nil
			}
		}
	}
}

func printTranscript(session orchestrator.Session) {
	fmt.Printf("\nsession %s finished: %s, %d segments, %.0fs\n",
		session.SessionID, session.Status, session.SegmentCount(), session.Duration())
	if text := session.Transcript(); text != "" {
		fmt.Println()
		fmt.Println(text)
	}
}
