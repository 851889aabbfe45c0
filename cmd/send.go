package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BioHazard786/warpmesh/internal/files"
	"github.com/BioHazard786/warpmesh/internal/transfer"
	"github.com/BioHazard786/warpmesh/internal/ui"
	"github.com/spf13/cobra"
)

var (
	flagMinPeers int
	flagWait     time.Duration
	flagSettle   time.Duration
)

var sendCmd = &cobra.Command{
	Use:     "send <room-id|url> <files...>",
	Aliases: []string{"s"},
	Short:   "Send files to everyone in a room",
	Long: `Join a room, wait for peers to connect, broadcast the files to every
connected peer and leave. Directories are sent as zip archives.

Examples:
  warpmesh send ABC123 report.pdf photos/
  warpmesh send ABC123 --peers 3 big.iso
  warpmesh send https://warpdrop.qzz.io/r/ABC123 notes.txt --relay`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseRoomInput(args[0])
		if err != nil {
			return err
		}
		return sendFiles(cmd.Context(), roomID, args[1:])
	},
}

func sendFiles(ctx context.Context, roomID string, paths []string) error {
	stopSpinner := ui.RunSpinner("Reading files...")
	outgoing, err := files.LoadAll(paths)
	stopSpinner()
	if err != nil {
		return err
	}

	fmt.Println()
	ui.RenderFileTable(transfer.BuildFileTable(outgoing))

	stopSpinner = ui.RunSpinner("Connecting to server...")
	session, err := StartSession(ctx, cfg, roomID, SessionOptions{})
	stopSpinner()
	if err != nil {
		return err
	}
	defer session.Close()

	fmt.Println()
	fmt.Println(ui.RoomInfoView(roomID, cfg.RoomLink(roomID), cfg.ClientID))

	if err := waitForPeers(ctx, session, flagMinPeers, flagWait, flagSettle); err != nil {
		return err
	}

	tracker := transfer.NewProgressTracker(outgoing)
	tracker.Start()

	done := make(chan struct{})
	drawn := make(chan struct{})
	go func() {
		transfer.RunProgressLoop(done, len(outgoing), tracker.View)
		close(drawn)
	}()

	var (
		sendErr    error
		recipients int
		sent       int
	)
	for i, f := range outgoing {
		t, err := session.Mesh.SendFileWithProgress(ctx, f, tracker.Observer(i))
		if err != nil {
			tracker.Error(i, shortError(err))
			sendErr = errors.Join(sendErr, err)
			if errors.Is(err, transfer.ErrTransferCancelled) {
				break
			}
			continue
		}
		tracker.Complete(i)
		sent++
		recipients = max(recipients, len(t.Recipients))
	}
	close(done)
	<-drawn

	status := ui.IconSuccess + " Complete"
	if sendErr != nil {
		status = ui.IconError + " Incomplete"
	}
	transfer.RenderSummary(status, sent, recipients, tracker.TotalSize(), tracker.Duration())
	return sendErr
}

// waitForPeers blocks until at least n file channels are open, then lets
// late joiners connect for the settle period.
func waitForPeers(ctx context.Context, s *Session, n int, timeout, settle time.Duration) error {
	sp := ui.NewWaitingSpinner(fmt.Sprintf("Waiting for %d peer(s) to connect...", n))
	sp.Start()
	defer sp.Stop()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	var ready time.Time
	for {
		open := s.Mesh.OpenChannels()
		if open >= n && ready.IsZero() {
			ready = time.Now()
			sp.UpdateMessage(fmt.Sprintf("%d peer(s) connected, waiting for others...", open))
		}
		if !ready.IsZero() && time.Since(ready) >= settle {
			sp.Success(fmt.Sprintf("%d peer(s) connected", open))
			return nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return transfer.WrapError("wait for peers", transfer.ErrTransferUnavailable,
					fmt.Sprintf("%d of %d peers connected after %s", open, n, timeout))
			}
			return ctx.Err()
		case err := <-s.Errors():
			return transfer.NewError("wait for peers", err)
		case <-ticker.C:
		}
	}
}

func shortError(err error) string {
	var te *transfer.TransferError
	if errors.As(err, &te) && te.Err != nil {
		return te.Err.Error()
	}
	return err.Error()
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().IntVarP(&flagMinPeers, "peers", "p", 1, "Peers that must be connected before sending")
	sendCmd.Flags().DurationVarP(&flagWait, "wait", "w", 5*time.Minute, "Give up if peers have not connected by then (0 waits forever)")
	sendCmd.Flags().DurationVar(&flagSettle, "settle", 2*time.Second, "Extra time for other peers once enough are connected")
}
