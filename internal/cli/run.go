package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewRunCmd создаёт группу команд для управления runs.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Manage runs",
	}

	cmd.AddCommand(
		newRunListCmd(clientFn, outputFn),
		newRunStartCmd(clientFn, outputFn),
		newRunShowCmd(clientFn, outputFn),
	)

	return cmd
}

func newRunListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var flowName string
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.ListRuns(ListRunsOpts{
				Flow:   flowName,
				Status: status,
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			headers := []string{"ID", "FLOW", "STATUS", "CREATED"}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{r.ID, r.FlowName, r.Status, r.CreatedAt}
			}

			out.Print(headers, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&flowName, "flow", "", "Filter by flow name")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (PENDING, RUNNING, COMPLETED, DEADLOCKED, FAILED)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newRunStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var state []string
	var idempotencyKey string

	cmd := &cobra.Command{
		Use:   "start FLOW_NAME",
		Short: "Start a new run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := CreateRunRequest{
				IdempotencyKey: idempotencyKey,
			}

			if len(state) > 0 {
				req.InitialState = make(map[string]any)
				for _, kv := range state {
					parts := strings.SplitN(kv, "=", 2)
					if len(parts) != 2 {
						return fmt.Errorf("invalid state format %q, expected KEY=VALUE", kv)
					}
					req.InitialState[parts[0]] = parts[1]
				}
			}

			run, err := client.CreateRun(args[0], req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run started: %s", run.ID))
			out.Print(
				[]string{"ID", "FLOW", "STATUS", "CREATED"},
				[][]string{{run.ID, run.FlowName, run.Status, run.CreatedAt}},
				run,
			)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&state, "state", nil, "Initial state values as KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "Idempotency key to avoid duplicate runs")

	return cmd
}

func newRunShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var showTrace bool

	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show run details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.GetRun(args[0])
			if err != nil {
				return err
			}

			if showTrace {
				headers := []string{"ROUND", "STEP", "BRANCH", "COMPLETED"}
				rows := make([][]string, len(run.Trace))
				for i, entry := range run.Trace {
					rows[i] = []string{
						strconv.Itoa(entry.Round),
						entry.StepID,
						entry.BranchLabel,
						entry.CompletedAt,
					}
				}
				out.Print(headers, rows, run.Trace)
				return nil
			}

			out.Print(
				[]string{"ID", "FLOW", "STATUS", "ERROR", "CREATED"},
				[][]string{{run.ID, run.FlowName, run.Status, run.Error, run.CreatedAt}},
				run,
			)

			// DEADLOCKED runs сопровождаем диагностикой
			if run.Status == "DEADLOCKED" && len(run.Unreached) > 0 && !out.jsonMode {
				out.Success("")
				out.Success("Unreached steps:")
				for _, u := range run.Unreached {
					if u.Pruned {
						continue
					}
					out.Success(fmt.Sprintf("  %s (waiting for: %s)", u.StepID, strings.Join(u.Missing, ", ")))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showTrace, "trace", false, "Show the completion trace")

	return cmd
}
