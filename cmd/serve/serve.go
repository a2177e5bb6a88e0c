package serve

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mousetube/mousetube-go/internal/conf"
	"github.com/mousetube/mousetube-go/internal/datastore"
	"github.com/mousetube/mousetube-go/internal/httpcontroller"
	"github.com/mousetube/mousetube-go/internal/jobqueue"
	"github.com/mousetube/mousetube-go/internal/mediapath"
	"github.com/mousetube/mousetube-go/internal/observability"
	pipeline "github.com/mousetube/mousetube-go/internal/observability/metrics"
	"github.com/mousetube/mousetube-go/internal/publish"
	"github.com/mousetube/mousetube-go/internal/repository"
	"github.com/mousetube/mousetube-go/internal/repository/zenodo"
)

// Command creates the serve command, running the catalog and publication server.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the catalog and publication server",
		Long:  "Serve the metadata catalog API and process publication tasks in the background.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.WebServer.Port, "port", viper.GetString("webserver.port"), "Port to listen on")
	cmd.Flags().StringVar(&settings.Media.Root, "mediaroot", viper.GetString("media.root"), "Root directory of uploaded media files")
	cmd.Flags().StringVar(&settings.Publication.Zenodo.AccessToken, "zenodotoken", viper.GetString("publication.zenodo.accesstoken"), "Zenodo API access token")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}

// runServer wires the datastore, repository adapters, job queue and HTTP
// server together and blocks until the process is signalled to stop.
func runServer(settings *conf.Settings) error {
	store := datastore.New(settings)
	if err := store.Open(); err != nil {
		return fmt.Errorf("failed to open datastore: %w", err)
	}
	defer closeDataStore(store)

	metrics, err := observability.NewMetrics()
	if err != nil {
		log.Printf("Warning: metrics initialization failed, continuing without: %v", err)
		metrics = nil
	}

	registry := repository.NewRegistry()
	resolver := mediapath.NewResolver(&settings.Media)
	if settings.Publication.Zenodo.Enabled {
		registry.Register(zenodo.New(settings, store, resolver))
	} else {
		log.Println("Zenodo publication disabled, no repository adapters registered")
	}

	queue := jobqueue.NewFromSettings(&settings.Publication.Jobs)
	queue.Start()

	var pipelineMetrics *pipeline.PipelineMetrics
	if metrics != nil {
		pipelineMetrics = metrics.Pipeline
	}
	publisher := publish.NewService(settings, store, registry, queue, pipelineMetrics)

	server, err := httpcontroller.New(settings, store, publisher, registry, metrics)
	if err != nil {
		return err
	}
	server.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	fmt.Printf("Received signal %v, shutting down\n", sig)

	if err := server.Shutdown(); err != nil {
		log.Printf("Error shutting down server: %v", err)
	}
	if err := queue.Stop(); err != nil {
		log.Printf("Error stopping job queue: %v", err)
	}

	return nil
}

func closeDataStore(store datastore.Interface) {
	if err := store.Close(); err != nil {
		log.Printf("Error closing datastore: %v", err)
	}
}

