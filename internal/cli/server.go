package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ostanin/quizpair/internal/config"
	"github.com/ostanin/quizpair/internal/server"
)

func newServerCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			var c server.Config
			c.HTTP.Port = 8080

			if err := config.Load(*configPath, &c); err != nil {
				return err
			}

			s, err := server.Init(c)
			if err != nil {
				return err
			}

			shutdown := make(chan os.Signal, 1)
			signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

			go s.Start()

			select {
			case <-shutdown:
			case <-cmd.Context().Done():
			}

			s.Shutdown()
			return nil
		},
	}
}
