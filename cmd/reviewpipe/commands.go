package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dcshock/reviewpipe/internal/approval"
	"github.com/dcshock/reviewpipe/internal/consumer"
	"github.com/dcshock/reviewpipe/internal/server"
	"github.com/dcshock/reviewpipe/internal/telemetry"
)

var configFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "reviewpipe",
		Short: "Approve pull requests once every review comment is resolved",
		Long: `reviewpipe checks the open pull requests of every team with a code
management integration and approves those whose review comments are all
resolved, when approval is enabled for the repository.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to settings file (default reviewpipe.yaml)")

	root.AddCommand(serveCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(consumeCmd())
	root.AddCommand(validateCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the approval check API, health and metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, logger, err := loadSettings(configFile)
			if err != nil {
				return err
			}
			ctx, cancel := telemetry.SignalContext(cmd.Context(), logger)
			defer cancel()

			a, err := newApp(ctx, s, logger)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			return server.New(s.Addr(), a.checker, a.registry, logger).Start(ctx)
		},
	}
}

func checkCmd() *cobra.Command {
	var teamID, orgID string
	var enqueue bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the approval check once for all teams or a single team",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if orgID != "" && teamID == "" {
				return errors.New("--org requires --team")
			}
			s, logger, err := loadSettings(configFile)
			if err != nil {
				return err
			}
			ctx, cancel := telemetry.SignalContext(cmd.Context(), logger)
			defer cancel()

			if enqueue {
				if teamID == "" {
					return errors.New("--enqueue requires --team")
				}
				if len(s.Kafka.Brokers) == 0 {
					return errors.New("kafka.brokers is required to enqueue")
				}
				pub := consumer.NewPublisher(consumer.NewWriter(s.Kafka.Brokers, s.Kafka.Topic))
				defer pub.Close()
				if err := pub.Publish(ctx, consumer.Request{OrganizationID: orgID, TeamID: teamID}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enqueued approval check for team %s\n", teamID)
				return nil
			}

			a, err := newApp(ctx, s, logger)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			if teamID != "" {
				report, err := a.checker.CheckTeamByID(ctx, approval.OrganizationAndTeamData{OrganizationID: orgID, TeamID: teamID})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			}
			sum, err := a.checker.Run(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sum)
		},
	}
	cmd.Flags().StringVar(&teamID, "team", "", "check only this team id")
	cmd.Flags().StringVar(&orgID, "org", "", "organization id of --team")
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "publish the check to Kafka instead of running it")
	return cmd
}

func consumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Run team approval checks requested on Kafka",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, logger, err := loadSettings(configFile)
			if err != nil {
				return err
			}
			if len(s.Kafka.Brokers) == 0 {
				return errors.New("kafka.brokers is required")
			}
			ctx, cancel := telemetry.SignalContext(cmd.Context(), logger)
			defer cancel()

			a, err := newApp(ctx, s, logger)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			c := consumer.New(consumer.NewReader(s.Kafka.Brokers, s.Kafka.Topic, s.Kafka.GroupID), a.checker, logger)
			defer c.Close()
			return c.Run(ctx)
		},
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a pipeline definitions file",
		Long:  "Validate a pipeline definitions file. Without an argument the built-in definitions are checked.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data := approval.DefaultDefinitions()
			name := "built-in definitions"
			if len(args) == 1 {
				var err error
				if data, err = os.ReadFile(args[0]); err != nil {
					return err
				}
				name = args[0]
			}
			if err := approval.ValidateDefinitions(data); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", name)
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

