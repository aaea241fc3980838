package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"solarsim/config"
	"solarsim/internal/api"
	"solarsim/internal/metrics"
	"solarsim/internal/modbus"
	"solarsim/internal/mqtt"
	"solarsim/internal/registers"
	"solarsim/internal/simulator"
	"solarsim/internal/solar"
	"solarsim/internal/storage"
	"solarsim/internal/store"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "solarsim",
		Short: "Solar plant fleet simulator",
		Long:  "Simulates a fleet of PV plants and serves their telemetry over Modbus TCP",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(estimateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the simulator",
		Long:  "Start the simulation workers, Modbus TCP server, API server, and MQTT publisher",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			// Register map is total and static; building it is the point where
			// a bad plant list fails, before any listener opens.
			regs, err := registers.Build(cfg.PlantIDs())
			if err != nil {
				return fmt.Errorf("failed to build register map: %w", err)
			}
			log.Printf("Register map built: %d plants, %d registers each", len(cfg.Plants), registers.BlockSize)

			st := store.New(cfg.PlantIDs(), cfg.Simulator.Interval)

			db, err := storage.NewDatabase(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()
			log.Printf("Database opened at %s", cfg.Database.Path)

			publisher, err := mqtt.NewPublisher(mqtt.PublisherConfig{
				Broker:      cfg.MQTT.Broker,
				ClientID:    cfg.MQTT.ClientID,
				Username:    cfg.MQTT.Username,
				Password:    cfg.MQTT.Password,
				TopicPrefix: cfg.MQTT.TopicPrefix,
				Enabled:     cfg.MQTT.Enabled,
			})
			if err != nil {
				log.Printf("Warning: MQTT connection failed: %v", err)
				publisher = nil
			} else if cfg.MQTT.Enabled {
				log.Printf("MQTT connected to %s", cfg.MQTT.Broker)
				for _, plant := range cfg.Plants {
					if err := publisher.PublishDiscovery(plant.ID, plant.Name); err != nil {
						log.Printf("Warning: discovery announce for %s failed: %v", plant.ID, err)
					}
				}
			}

			fleet, err := simulator.NewFleet(simulator.FleetConfig{
				Plants:    cfg.Plants,
				Store:     st,
				Publisher: publisherOrNil(publisher),
				Counters:  db,
				Interval:  cfg.Simulator.Interval,
				Timeout:   cfg.Simulator.SourceTimeout,
				Offline:   cfg.OfflineMode,
			})
			if err != nil {
				return fmt.Errorf("failed to build fleet: %w", err)
			}

			modbusServer, err := modbus.NewServer(
				cfg.Modbus.Port,
				cfg.Modbus.Timeout,
				cfg.Modbus.MaxClients,
				modbus.NewHandler(regs, st),
			)
			if err != nil {
				return fmt.Errorf("failed to create modbus server: %w", err)
			}

			registry := prometheus.NewRegistry()
			registry.MustRegister(metrics.NewCollector(st))

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			fleet.Start(ctx)

			if err := modbusServer.Start(); err != nil {
				return fmt.Errorf("failed to start modbus server: %w", err)
			}
			log.Printf("Modbus TCP server listening on port %d", cfg.Modbus.Port)

			var apiServer *api.Server
			if cfg.Server.Enabled {
				apiServer = api.NewServer(api.ServerConfig{
					Port:            cfg.Server.Port,
					Store:           st,
					Fleet:           fleet,
					Registers:       regs,
					Metrics:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
					ModbusPort:      cfg.Modbus.Port,
					MQTTEnabled:     cfg.MQTT.Enabled,
					MQTTBroker:      cfg.MQTT.Broker,
					MQTTTopicPrefix: cfg.MQTT.TopicPrefix,
				})

				go func() {
					if err := apiServer.Start(); err != nil {
						log.Printf("API server error: %v", err)
					}
				}()
			}

			log.Println("solarsim started. Press Ctrl+C to stop.")

			<-sigChan
			log.Println("Shutting down...")
			cancel()
			fleet.Wait()

			if err := modbusServer.Stop(); err != nil {
				log.Printf("Modbus server stop: %v", err)
			}
			if apiServer != nil {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := apiServer.Stop(shutdownCtx); err != nil {
					log.Printf("API server stop: %v", err)
				}
			}
			if publisher != nil {
				publisher.Close()
			}

			return nil
		},
	}
}

// publisherOrNil keeps the Publisher interface value nil when the concrete
// pointer is nil, so workers can test it with a plain nil check.
func publisherOrNil(p *mqtt.Publisher) simulator.Publisher {
	if p == nil {
		return nil
	}
	return p
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Long:  "Load the configuration, check it, and print the resulting register layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}

			regs, err := registers.Build(cfg.PlantIDs())
			if err != nil {
				return err
			}

			fmt.Printf("Configuration OK: %d plants\n\n", len(cfg.Plants))
			for i, p := range cfg.Plants {
				fmt.Printf("  %-20s %8.1f kW  base register %5d  (%s)\n",
					p.ID, p.NominalPowerKW, i*registers.PlantStride, p.Timezone)
			}
			fmt.Printf("\n%d registers mapped in total\n", len(regs.Entries()))
			return nil
		},
	}
}

func estimateCmd() *cobra.Command {
	var (
		lat     float64
		lon     float64
		nominal float64
		at      string
	)

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Print a one-shot solar estimate",
		Long:  "Run the offline solar model once for a location and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now().UTC()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at timestamp: %w", err)
				}
				now = t.UTC()
			}

			est := solar.Compute(lat, lon, nominal, now)
			output, err := json.MarshalIndent(est, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(output))
			return nil
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", 45.07, "latitude in degrees")
	cmd.Flags().Float64Var(&lon, "lon", 7.69, "longitude in degrees")
	cmd.Flags().Float64Var(&nominal, "nominal-kw", 1000, "plant nominal power in kW")
	cmd.Flags().StringVar(&at, "at", "", "RFC3339 timestamp (default now)")

	return cmd
}
