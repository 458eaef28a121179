package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	cfhttp "github.com/Strob0t/conductor/internal/adapter/http"
	"github.com/Strob0t/conductor/internal/domain/event"
	"github.com/Strob0t/conductor/internal/domain/workflow"
)

func newWorkflowCommand(opts *clientOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workflow",
		Aliases: []string{"wf"},
		Short:   "Create and inspect workflows",
	}
	cmd.AddCommand(newWorkflowCreateCommand(opts))
	cmd.AddCommand(&cobra.Command{
		Use:   "status <id>",
		Short: "Show a workflow and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var st cfhttp.WorkflowStatus
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/workflows/"+url.PathEscape(args[0]), nil, &st); err != nil {
				return err
			}
			if !opts.asJSON {
				printWorkflow(st)
			}
			return nil
		},
	})
	cmd.AddCommand(newWorkflowListCommand(opts))
	cmd.AddCommand(&cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a running workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var st cfhttp.WorkflowStatus
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/workflows/"+url.PathEscape(args[0])+"/cancel", nil, &st); err != nil {
				return err
			}
			if !opts.asJSON {
				printWorkflow(st)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "templates",
		Short: "List workflow templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var templates []workflow.Template
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/templates", nil, &templates); err != nil {
				return err
			}
			if opts.asJSON {
				return nil
			}
			w := newTable()
			_, _ = fmt.Fprintln(w, "NAME\tTASKS\tBUILTIN\tDESCRIPTION")
			for _, t := range templates {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", t.Name, strings.Join(t.TaskTypes(), ","), t.Builtin, t.Description)
			}
			return w.Flush()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "events <id>",
		Short: "Show the event history of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var events []event.Event
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/workflows/"+url.PathEscape(args[0])+"/events", nil, &events); err != nil {
				return err
			}
			if opts.asJSON {
				return nil
			}
			w := newTable()
			_, _ = fmt.Fprintln(w, "TIME\tTYPE\tTASK\tAGENT\tMESSAGE")
			for _, ev := range events {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", ev.Timestamp.Format("15:04:05.000"), ev.Type, ev.TaskID, ev.AgentID, ev.Message)
			}
			return w.Flush()
		},
	})
	return cmd
}

func newWorkflowCreateCommand(opts *clientOptions) *cobra.Command {
	var (
		intent   string
		params   []string
		priority int
	)
	cmd := &cobra.Command{
		Use:   "create [type]",
		Short: "Create a workflow from a template or an intent",
		Example: `  conductor workflow create pr_with_review -p repo=acme/api -p title="Fix login"
  conductor workflow create --intent branch_and_pr -p branch=feature/x`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseParams(params)
			if err != nil {
				return err
			}
			req := cfhttp.CreateWorkflowRequest{Intent: workflow.Intent(intent), Parameters: p, Priority: priority}
			if len(args) == 1 {
				req.WorkflowType = args[0]
			}
			if req.WorkflowType == "" && req.Intent == "" {
				return fmt.Errorf("a workflow type or --intent is required")
			}
			var st cfhttp.WorkflowStatus
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/workflows", req, &st); err != nil {
				return err
			}
			if !opts.asJSON {
				printWorkflow(st)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&intent, "intent", "", "classified intent instead of a workflow type")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "workflow parameter key=value (repeatable)")
	cmd.Flags().IntVar(&priority, "priority", 0, "dispatch priority, higher first")
	return cmd
}

func newWorkflowListCommand(opts *clientOptions) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows held by the engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := "/workflows"
			if status != "" {
				path += "?status=" + url.QueryEscape(status)
			}
			var list []cfhttp.WorkflowStatus
			if err := opts.client().do(cmd.Context(), http.MethodGet, path, nil, &list); err != nil {
				return err
			}
			if opts.asJSON {
				return nil
			}
			w := newTable()
			_, _ = fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tPROGRESS\tCREATED")
			for _, st := range list {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\n",
					st.Workflow.ID, st.Workflow.Type, workflowStatus(st.Workflow), st.Completed, st.Total,
					st.Workflow.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, running, completed, failed)")
	return cmd
}

func workflowStatus(wf workflow.Workflow) string {
	if wf.Stalled {
		return string(wf.Status) + " (stalled)"
	}
	return string(wf.Status)
}

func printWorkflow(st cfhttp.WorkflowStatus) {
	wf := st.Workflow
	fmt.Printf("Workflow %s (%s)\n", wf.ID, wf.Type)
	fmt.Printf("Status:   %s\n", workflowStatus(wf))
	fmt.Printf("Progress: %d/%d (%.0f%%)\n", st.Completed, st.Total, st.Progress*100)
	if wf.Error != nil {
		fmt.Printf("Error:    %s\n", wf.Error.Error())
	}
	fmt.Println()

	w := newTable()
	_, _ = fmt.Fprintln(w, "TASK\tTYPE\tSTATUS\tAGENT\tATTEMPTS\tERROR")
	for _, t := range st.Tasks {
		errText := ""
		if t.Error != nil {
			errText = t.Error.Error()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", t.ID, t.Type, t.Status, t.AssignedAgent, t.Attempts, errText)
	}
	_ = w.Flush()
}
