package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/castbot/castbot/internal/config"
	"github.com/castbot/castbot/internal/logger"
	"github.com/castbot/castbot/internal/server"
	"github.com/castbot/castbot/plugins/quotes"
	"github.com/castbot/castbot/plugins/uptime"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "castbot",
		Short: "Plugin-driven stream companion bot",
		Long:  "castbot hosts chat commands, HTTP endpoints, and background services as plugins with dependency-ordered lifecycles.",
	}
	root.AddCommand(serveCmd(), pluginsCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot and its HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(configPath); err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			cfg := config.Get()
			logger.Setup(cfg.Logging.Level)

			srv, err := server.New(cfg)
			if err != nil {
				return err
			}
			srv.RegisterStatic(quotes.New())
			srv.RegisterStatic(uptime.New())

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	return cmd
}

func pluginsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect plugins on a running instance",
	}
	cmd.AddCommand(pluginsListCmd())
	return cmd
}

func pluginsListCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List plugins and their states",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Get(addr + "/api/plugins")
			if err != nil {
				return fmt.Errorf("failed to reach %s: %w", addr, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("unexpected status %s from %s", resp.Status, addr)
			}

			var body struct {
				Plugins []struct {
					ID           string   `json:"id"`
					Version      string   `json:"version"`
					Source       string   `json:"source"`
					State        string   `json:"state"`
					Dependencies []string `json:"dependencies"`
					Error        string   `json:"error"`
				} `json:"plugins"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"ID", "Version", "Source", "State", "Deps", "Error"})
			for _, p := range body.Plugins {
				deps := ""
				for i, d := range p.Dependencies {
					if i > 0 {
						deps += ", "
					}
					deps += d
				}
				table.Append([]string{p.ID, p.Version, p.Source, p.State, deps, p.Error})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "base URL of the running instance")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the castbot version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "castbot", version)
		},
	}
}
