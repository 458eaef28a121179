package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Strob0t/conductor/internal/domain/agent"
)

func newAgentCommand(opts *clientOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage registered agents",
	}
	cmd.AddCommand(newAgentListCommand(opts))
	cmd.AddCommand(newAgentRegisterCommand(opts))
	cmd.AddCommand(&cobra.Command{
		Use:   "deregister <id>",
		Short: "Remove an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().do(cmd.Context(), http.MethodDelete, "/agents/"+url.PathEscape(args[0]), nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Agent %s deregistered\n", args[0])
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "heartbeat <id>",
		Short: "Send a heartbeat on behalf of an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var d agent.Descriptor
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/agents/"+url.PathEscape(args[0])+"/heartbeat", nil, &d); err != nil {
				return err
			}
			if !opts.asJSON {
				fmt.Printf("%s %s\n", d.ID, d.Status)
			}
			return nil
		},
	})
	return cmd
}

func newAgentListCommand(opts *clientOptions) *cobra.Command {
	var status, capability string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if status != "" {
				q.Set("status", status)
			}
			if capability != "" {
				q.Set("capability", capability)
			}
			path := "/agents"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			var agents []agent.Descriptor
			if err := opts.client().do(cmd.Context(), http.MethodGet, path, nil, &agents); err != nil {
				return err
			}
			if opts.asJSON {
				return nil
			}
			w := newTable()
			_, _ = fmt.Fprintln(w, "ID\tSTATUS\tSCORE\tTRANSPORT\tCAPABILITIES\tIN_FLIGHT\tLAST_HEARTBEAT")
			for _, d := range agents {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%s\t%s\t%s\n",
					d.ID, d.Status, d.PerformanceScore, d.Transport, strings.Join(d.Capabilities, ","),
					d.InFlight, d.LastHeartbeat.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (available, busy, offline)")
	cmd.Flags().StringVar(&capability, "capability", "", "filter by capability")
	return cmd
}

func newAgentRegisterCommand(opts *clientOptions) *cobra.Command {
	var d agent.Descriptor
	var transport string
	cmd := &cobra.Command{
		Use:     "register",
		Short:   "Register or refresh an agent",
		Example: `  conductor agent register --id git-1 --capability create_branch --capability create_pr --endpoint http://git-agent:9000`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d.Transport = agent.Transport(transport)
			var out agent.Descriptor
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/agents", d, &out); err != nil {
				return err
			}
			if !opts.asJSON {
				fmt.Printf("Agent %s registered (%s, score %.2f)\n", out.ID, out.Status, out.PerformanceScore)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&d.ID, "id", "", "agent id (required)")
	cmd.Flags().StringVar(&d.Name, "name", "", "display name")
	cmd.Flags().StringArrayVar(&d.Capabilities, "capability", nil, "task type the agent executes (repeatable)")
	cmd.Flags().StringVar(&transport, "transport", string(agent.TransportHTTP), "transport: http, mcp or nats")
	cmd.Flags().StringVar(&d.Endpoint, "endpoint", "", "agent endpoint URL or NATS subject id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
