package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	cfhttp "github.com/Strob0t/conductor/internal/adapter/http"
	"github.com/Strob0t/conductor/internal/domain/alert"
	"github.com/Strob0t/conductor/internal/service"
)

func newAlertCommand(opts *clientOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alert",
		Short: "Manage alert rules, alerts and notification channels",
	}
	cmd.AddCommand(newAlertRulesCommand(opts))
	cmd.AddCommand(newAlertAddRuleCommand(opts))
	cmd.AddCommand(&cobra.Command{
		Use:   "remove-rule <id>",
		Short: "Remove an alert rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().do(cmd.Context(), http.MethodDelete, "/alert-rules/"+url.PathEscape(args[0]), nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Rule %s removed\n", args[0])
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "test <rule-id>",
		Short: "Fire a test alert for a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var a alert.Alert
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/alert-rules/"+url.PathEscape(args[0])+"/test", nil, &a); err != nil {
				return err
			}
			if !opts.asJSON {
				fmt.Printf("Alert %s sent via [%s]\n", a.ID, strings.Join(a.ChannelsSent, ", "))
			}
			return nil
		},
	})
	cmd.AddCommand(newAlertListCommand(opts))
	cmd.AddCommand(&cobra.Command{
		Use:   "resolve <alert-id>",
		Short: "Mark an alert resolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var a alert.Alert
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/alerts/"+url.PathEscape(args[0])+"/resolve", nil, &a); err != nil {
				return err
			}
			if !opts.asJSON {
				fmt.Printf("Alert %s resolved\n", a.ID)
			}
			return nil
		},
	})
	cmd.AddCommand(newAlertChannelsCommand(opts))
	cmd.AddCommand(&cobra.Command{
		Use:   "test-channels",
		Short: "Send a test notification through every channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var results []service.ChannelResult
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/channels/test", nil, &results); err != nil {
				return err
			}
			if opts.asJSON {
				return nil
			}
			failed := 0
			w := newTable()
			_, _ = fmt.Fprintln(w, "CHANNEL\tRESULT\tERROR")
			for _, r := range results {
				result := "ok"
				if !r.OK {
					result = "failed"
					failed++
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", r.Channel, result, r.Error)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d channels failed", failed, len(results))
			}
			return nil
		},
	})
	cmd.AddCommand(newStatusCommand(opts))
	return cmd
}

func newAlertRulesCommand(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List alert rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var rules []alert.Rule
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/alert-rules", nil, &rules); err != nil {
				return err
			}
			if opts.asJSON {
				return nil
			}
			w := newTable()
			_, _ = fmt.Fprintln(w, "ID\tSEVERITY\tENABLED\tCOOLDOWN\tCHANNELS\tEVENTS")
			for _, r := range rules {
				events := make([]string, len(r.Condition.Events))
				for i, e := range r.Condition.Events {
					events[i] = string(e)
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%t\t%dm\t%s\t%s\n",
					r.ID, r.Severity, r.Enabled, r.CooldownMinutes, strings.Join(r.Channels, ","), strings.Join(events, ","))
			}
			return w.Flush()
		},
	}
}

func newAlertAddRuleCommand(opts *clientOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "add-rule",
		Short: "Add alert rules from a JSON, YAML or TOML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rules, err := alert.LoadRulesFromFile(file)
			if err != nil {
				return err
			}
			if len(rules) == 0 {
				return fmt.Errorf("no rules in %s", file)
			}
			c := opts.client()
			var errs []error
			for i := range rules {
				if err := c.do(cmd.Context(), http.MethodPost, "/alert-rules", rules[i].Request(), nil); err != nil {
					errs = append(errs, fmt.Errorf("rule %s: %w", rules[i].ID, err))
					continue
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Rule %s added\n", rules[i].ID)
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "rule file (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newAlertListCommand(opts *clientOptions) *cobra.Command {
	var (
		ruleID, severity string
		unresolved       bool
		limit            int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show alert history, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if ruleID != "" {
				q.Set("rule_id", ruleID)
			}
			if severity != "" {
				q.Set("severity", severity)
			}
			if unresolved {
				q.Set("unresolved", "true")
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			var alerts []alert.Alert
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/alerts?"+q.Encode(), nil, &alerts); err != nil {
				return err
			}
			if opts.asJSON {
				return nil
			}
			w := newTable()
			_, _ = fmt.Fprintln(w, "ID\tTIME\tRULE\tSEVERITY\tRESOLVED\tSENT\tMESSAGE")
			for _, a := range alerts {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
					a.ID, a.Timestamp.Format("2006-01-02 15:04:05"), a.RuleID, a.Severity, a.Resolved,
					strings.Join(a.ChannelsSent, ","), a.Message)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&ruleID, "rule", "", "filter by rule id")
	cmd.Flags().StringVar(&severity, "severity", "", "filter by severity")
	cmd.Flags().BoolVar(&unresolved, "unresolved", false, "only unresolved alerts")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum alerts to show")
	return cmd
}

func newAlertChannelsCommand(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "channels",
		Short: "List notification channels and their breaker state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var channels []cfhttp.ChannelInfo
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/channels", nil, &channels); err != nil {
				return err
			}
			if opts.asJSON {
				return nil
			}
			w := newTable()
			_, _ = fmt.Fprintln(w, "CHANNEL\tBREAKER")
			for _, c := range channels {
				_, _ = fmt.Fprintf(w, "%s\t%s\n", c.Channel, c.Breaker)
			}
			return w.Flush()
		},
	}
}

func newStatusCommand(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show engine status: workflows, agents, rules and alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var st cfhttp.StatusResponse
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/status", nil, &st); err != nil {
				return err
			}
			if opts.asJSON {
				return nil
			}
			fmt.Printf("Workflows:  %v\n", st.Workflows)
			fmt.Printf("Agents:     %v\n", st.Agents)
			fmt.Printf("Rules:      %d (%d enabled)\n", st.Alerts.Rules, st.Alerts.EnabledRules)
			fmt.Printf("Alerts:     %d fired, %d suppressed, %d unresolved\n", st.Alerts.Fired, st.Alerts.Suppressed, st.Alerts.Unresolved)
			fmt.Printf("Channels:   %s\n", strings.Join(st.Channels, ", "))
			if st.Alerts.LastError != "" {
				fmt.Printf("Last error: %s\n", st.Alerts.LastError)
			}
			return nil
		},
	}
}
