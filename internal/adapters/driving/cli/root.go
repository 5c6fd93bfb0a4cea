// Package cli provides the dz command-line interface.
// It is a driving adapter: commands parse flags and call the core services.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/audiovideoron/distillyzer/internal/adapters/driving/mcp"
	"github.com/audiovideoron/distillyzer/internal/core/ports/driven"
	"github.com/audiovideoron/distillyzer/internal/core/ports/driving"
	"github.com/audiovideoron/distillyzer/internal/logger"
)

// annotationServices marks commands that need the harvest and query services.
const annotationServices = "services"

// Services bundles the driving ports the commands call.
type Services struct {
	Harvest driving.HarvestService
	Query   driving.QueryService
}

// Bootstrap builds the services on first use. The returned cleanup
// releases whatever the services hold open.
type Bootstrap func(ctx context.Context) (*Services, func(), error)

var (
	version = "dev"
	verbose bool

	harvestService driving.HarvestService
	queryService   driving.QueryService
	configStore    driven.ConfigStore

	bootstrap Bootstrap
	cleanup   func()
)

// errNotConfigured is returned when a command runs without its service.
var errNotConfigured = errors.New("service not configured")

var rootCmd = &cobra.Command{
	Use:   "dz",
	Short: "Harvest videos, code and articles into a searchable knowledge base",
	Long: `dz harvests YouTube videos, GitHub repositories and web articles,
splits them into chunks, embeds them and answers questions over them with
citations that point back at the exact timestamp or line range.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: prepare,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print debug output")
}

// needsServices marks cmd as requiring the harvest and query services.
func needsServices(cmd *cobra.Command) {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[annotationServices] = "true"
}

func prepare(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	if cmd.Annotations[annotationServices] != "true" {
		return nil
	}
	if harvestService != nil || queryService != nil || bootstrap == nil {
		return nil
	}

	svc, release, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	SetServices(svc)
	cleanup = release
	return nil
}

// SetVersion sets the version printed by "dz version".
func SetVersion(v string) {
	version = v
	mcp.Version = v
}

// SetConfigStore sets the store behind "dz config".
func SetConfigStore(store driven.ConfigStore) {
	configStore = store
}

// SetBootstrap sets how services are built for commands that need them.
// Commands such as "config" and "version" never trigger it, so they work
// without API keys.
func SetBootstrap(b Bootstrap) {
	bootstrap = b
}

// SetServices injects ready services, bypassing the bootstrap.
func SetServices(svc *Services) {
	if svc == nil {
		harvestService, queryService = nil, nil
		return
	}
	harvestService, queryService = svc.Harvest, svc.Query
}

// Execute runs the root command and releases any bootstrapped services.
func Execute(ctx context.Context) error {
	defer func() {
		if cleanup != nil {
			cleanup()
			cleanup = nil
		}
	}()
	return rootCmd.ExecuteContext(ctx)
}

func requireHarvest() (driving.HarvestService, error) {
	if harvestService == nil {
		return nil, fmt.Errorf("harvest %w", errNotConfigured)
	}
	return harvestService, nil
}

func requireQuery() (driving.QueryService, error) {
	if queryService == nil {
		return nil, fmt.Errorf("query %w", errNotConfigured)
	}
	return queryService, nil
}
