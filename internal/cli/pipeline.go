package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewPipelineCmd создаёт группу команд для управления pipelines.
func NewPipelineCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Manage pipelines",
	}

	cmd.AddCommand(
		newPipelineStartCmd(clientFn, outputFn),
		newPipelineStatusCmd(clientFn, outputFn),
		newPipelineUpdateCmd(clientFn, outputFn),
		newPipelineHistoryCmd(clientFn, outputFn),
		newPipelineStepsCmd(clientFn, outputFn),
	)

	return cmd
}

func newPipelineStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var name string
	var steps []string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a new pipeline",
		Example: `  conductor pipeline start --name churn-model \
    --steps data-preparer,model-selector,trainer,evaluator,deployer`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			id, err := client.StartPipeline(name, steps)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Pipeline started: %s", id))
			out.Print([]string{"PIPELINE_ID"}, [][]string{{id}}, map[string]string{"pipelineId": id})
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Pipeline name (required)")
	cmd.Flags().StringSliceVar(&steps, "steps", nil, "Ordered step names, comma separated (required)")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("steps")

	return cmd
}

func newPipelineStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status ID",
		Short: "Show pipeline status and steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			p, err := client.GetPipeline(args[0])
			if err != nil {
				return err
			}

			if !out.jsonMode {
				out.Success(fmt.Sprintf("%s (%s): %s, step %d/%d",
					p.ID, p.Name, p.Status, min(p.CurrentStep+1, len(p.Steps)), len(p.Steps)))
			}

			headers := []string{"#", "STEP", "STATUS", ""}
			rows := make([][]string, len(p.Steps))
			for i, s := range p.Steps {
				marker := ""
				if i == p.CurrentStep {
					marker = "<- current"
				}
				rows[i] = []string{strconv.Itoa(i), s.Name, s.Status, marker}
			}

			out.Print(headers, rows, p)
			return nil
		},
	}
}

func newPipelineUpdateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var step string
	var status string

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Report completion of the current step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			msg, err := client.UpdateStep(StepUpdateRequest{
				PipelineID: args[0],
				StepName:   step,
				Status:     strings.ToUpper(status),
			})
			if err != nil {
				return err
			}

			out.Success(msg)
			return nil
		},
	}

	cmd.Flags().StringVar(&step, "step", "", "Step name (required)")
	cmd.Flags().StringVar(&status, "status", "SUCCESS", "Completion status: SUCCESS or FAILED")
	cmd.MarkFlagRequired("step")

	return cmd
}

func newPipelineHistoryCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "history ID",
		Short: "Show pipeline transition history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			events, err := client.History(args[0])
			if err != nil {
				return err
			}

			headers := []string{"ID", "TYPE", "STEP", "INDEX", "AT"}
			rows := make([][]string, len(events))
			for i, e := range events {
				rows[i] = []string{strconv.FormatInt(e.ID, 10), e.Type, e.Step, strconv.Itoa(e.StepIndex), e.CreatedAt}
			}

			out.Print(headers, rows, events)
			return nil
		},
	}
}

func newPipelineStepsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List known steps",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			cat, err := client.Steps()
			if err != nil {
				return err
			}

			headers := []string{"STEP", "DESCRIPTION"}
			rows := make([][]string, len(cat.Steps))
			for i, s := range cat.Steps {
				rows[i] = []string{s.Name, s.Description}
			}

			out.Print(headers, rows, cat)
			return nil
		},
	}
}
