package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/BioHazard786/warpmesh/internal/config"
	"github.com/BioHazard786/warpmesh/internal/transfer"
	"github.com/BioHazard786/warpmesh/internal/version"
	"github.com/spf13/cobra"
)

var (
	flagConfigFile string
	cfg            *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "warpmesh",
	Short: "Join a room and share files and media with every peer in it over WebRTC",
	Long: `WarpMesh connects everyone in a room directly to everyone else using WebRTC.
Files you send are broadcast to every connected peer, and audio or video you
publish reaches the whole room without passing through a server.`,
	Version: version.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		loaded, err := LoadConfig(config.Options{ConfigFile: flagConfigFile, Flags: cmd.Flags()})
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		transfer.PrintErr(err)
		stop()
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfigFile, "config", "", "Config file (default ./warpmesh.yaml or ~/.config/warpmesh/warpmesh.yaml)")
	pf.StringP("domain", "d", "", "Relay domain, or a full ws:// URL")
	pf.String("stun-server", "", "STUN server URL")
	pf.String("turn-server", "", "TURN server host")
	pf.String("turn-username", "", "TURN username")
	pf.String("turn-password", "", "TURN password")
	pf.BoolP("force-relay", "r", false, "Only use TURN relay candidates")
	pf.StringP("display-name", "n", "", "Display name shown to other peers")
	pf.String("client-id", "", "Client id (random when empty)")
	pf.Duration("chunk-interval", 0, "Pause between file chunks")
}
