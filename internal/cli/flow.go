package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// NewFlowCmd создаёт группу команд для управления flows.
func NewFlowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flow",
		Short: "Manage flows",
	}

	cmd.AddCommand(
		newFlowListCmd(clientFn, outputFn),
		newFlowApplyCmd(clientFn, outputFn),
		newFlowShowCmd(clientFn, outputFn),
		newFlowDeleteCmd(clientFn, outputFn),
		newFlowGraphCmd(clientFn, outputFn),
	)

	return cmd
}

func flowRow(f *FlowResponse) []string {
	return []string{f.Name, strconv.FormatBool(f.IsActive), f.CronExpr, f.NextDueAt, f.CreatedAt}
}

var flowHeaders = []string{"NAME", "ACTIVE", "CRON", "NEXT_DUE", "CREATED"}

func newFlowListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all flows",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			flows, err := client.ListFlows()
			if err != nil {
				return err
			}

			rows := make([][]string, len(flows))
			for i := range flows {
				rows[i] = flowRow(&flows[i])
			}

			out.Print(flowHeaders, rows, flows)
			return nil
		},
	}
}

func newFlowApplyCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var docFile string
	var cronExpr string
	var active bool

	cmd := &cobra.Command{
		Use:   "apply NAME",
		Short: "Create or update a flow from a document file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()
			name := args[0]

			document, err := os.ReadFile(docFile)
			if err != nil {
				return fmt.Errorf("failed to read document file: %w", err)
			}
			doc := string(document)

			_, err = client.GetFlow(name)
			var apiErr *APIError
			notFound := errors.As(err, &apiErr) && apiErr.IsNotFound()
			if err != nil && !notFound {
				return err
			}

			var flow *FlowResponse
			if notFound {
				// Flow не существует — создаём
				flow, err = client.CreateFlow(CreateFlowRequest{
					Name:     name,
					Document: doc,
					CronExpr: cronExpr,
					IsActive: active,
				})
				if err != nil {
					return err
				}
				out.Success(fmt.Sprintf("Flow created: %s", flow.Name))
			} else {
				req := UpdateFlowRequest{Document: &doc}
				if cmd.Flags().Changed("cron") {
					req.CronExpr = &cronExpr
				}
				if cmd.Flags().Changed("active") {
					req.IsActive = &active
				}
				flow, err = client.UpdateFlow(name, req)
				if err != nil {
					return err
				}
				out.Success(fmt.Sprintf("Flow updated: %s", flow.Name))
			}

			out.Print(flowHeaders, [][]string{flowRow(flow)}, flow)
			return nil
		},
	}

	cmd.Flags().StringVarP(&docFile, "file", "f", "", "Path to flow document (YAML or JSON, required)")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "Cron expression for scheduled runs")
	cmd.Flags().BoolVar(&active, "active", false, "Activate the flow")
	cmd.MarkFlagRequired("file")

	return cmd
}

func newFlowShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var showDocument bool

	cmd := &cobra.Command{
		Use:   "show NAME",
		Short: "Show flow details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			flow, err := client.GetFlow(args[0])
			if err != nil {
				return err
			}

			if showDocument {
				fmt.Fprintln(cmd.OutOrStdout(), flow.Document)
				return nil
			}

			out.Print(flowHeaders, [][]string{flowRow(flow)}, flow)
			return nil
		},
	}

	cmd.Flags().BoolVar(&showDocument, "document", false, "Print the raw flow document")

	return cmd
}

func newFlowDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteFlow(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Flow deleted: %s", args[0]))
			return nil
		},
	}
}

func newFlowGraphCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "graph NAME",
		Short: "Show the step graph of a flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			graph, err := client.GetGraph(args[0])
			if err != nil {
				return err
			}

			headers := []string{"STEP", "TRIGGER", "ROUTER"}
			rows := make([][]string, len(graph))
			for i, entry := range graph {
				rows[i] = []string{
					entry.StepID,
					formatTrigger(entry.Trigger),
					strconv.FormatBool(entry.IsRouter),
				}
			}

			out.Print(headers, rows, graph)
			return nil
		},
	}
}

// formatTrigger собирает человекочитаемое описание trigger'а
// из его JSON-представления.
func formatTrigger(trigger map[string]any) string {
	kind, _ := trigger["kind"].(string)
	switch kind {
	case "after":
		if steps, ok := trigger["steps"].([]any); ok && len(steps) == 1 {
			return fmt.Sprintf("after %v", steps[0])
		}
	case "any_of":
		return fmt.Sprintf("any_of %v", trigger["steps"])
	case "all_of":
		return fmt.Sprintf("all_of %v", trigger["steps"])
	case "on_branch":
		return fmt.Sprintf("on_branch %v=%v", trigger["router"], trigger["label"])
	}
	if kind == "" {
		return "start"
	}
	return kind
}
