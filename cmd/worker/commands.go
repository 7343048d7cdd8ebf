package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	grpcapi "voice-agent-service/internal/api/grpc"
	"voice-agent-service/internal/app"
	"voice-agent-service/internal/config"
	"voice-agent-service/internal/events"
	"voice-agent-service/internal/models"
	"voice-agent-service/internal/observability"
	"voice-agent-service/internal/worker"
)

var rootCmd = &cobra.Command{
	Use:           "worker",
	Short:         "Voice agent worker",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Consume room jobs from Kafka and run a session per job",
	Long: `Consume room jobs from the Kafka jobs topic and run one agent session
per job, up to AGENT_MAX_SESSIONS at a time.

Jobs are JSON objects:
  {"job_id": "j-1", "room_name": "sala", "participant_identity": "ana"}`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) == 0 {
			return errors.New("start needs KAFKA_ENABLED=true and KAFKA_BROKERS; use connect for a single room")
		}
		source, err := worker.NewKafkaJobs(worker.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.JobsTopic,
			GroupID: cfg.Kafka.GroupID,
		})
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg, source)
	},
}

var (
	connectRoom        string
	connectParticipant string
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Join one room and run the agent until the room ends",
	Example: `  worker connect --room sala
  worker connect --room sala --participant ana`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		source := worker.NewStaticJobs(models.Job{
			RoomName:            connectRoom,
			ParticipantIdentity: connectParticipant,
		})
		return serve(cmd.Context(), cfg, source)
	},
}

func init() {
	connectCmd.Flags().StringVar(&connectRoom, "room", "", "room to join")
	connectCmd.Flags().StringVar(&connectParticipant, "participant", "", "participant whose departure ends the session")
	_ = connectCmd.MarkFlagRequired("room")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(connectCmd)
}

// serve runs the worker with its health and metrics endpoints until the
// source is exhausted or the process is interrupted.
func serve(parent context.Context, cfg *config.Configuration, source worker.JobSource) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg)
	logger := application.Logger

	publisher := events.New(&events.Config{
		Enabled:         cfg.Kafka.Enabled,
		Brokers:         cfg.Kafka.Brokers,
		TopicTranscript: cfg.Kafka.TopicTranscript,
		TopicResponse:   cfg.Kafka.TopicResponse,
		Principal:       cfg.Kafka.Principal,
	})
	defer publisher.Close()
	defer source.Close()

	lis, err := net.Listen("tcp", net.JoinHostPort("", cfg.Service.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen on gRPC port %s: %w", cfg.Service.GRPCPort, err)
	}
	health := grpcapi.New()
	go func() {
		if err := health.Serve(lis); err != nil {
			logger.Error().Err(err).Msg("gRPC health server stopped")
		}
	}()
	defer health.Stop()

	obs := observability.NewServer(net.JoinHostPort("", cfg.Service.MetricsPort), application.Ready)
	obs.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Observability server shutdown failed")
		}
	}()

	if err := application.Start(); err != nil {
		return err
	}
	health.SetServing(true)

	w := worker.New(*cfg, source, worker.WithObserver(publisher))
	runErr := w.Run(ctx)

	application.Shutdown()
	health.SetServing(false)
	return runErr
}
