package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mautops/turk-gin/internal/container"
	"github.com/mautops/turk-gin/internal/tasks"
	"github.com/spf13/cobra"
)

// batchCmd 批次管理命令
var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Create and cancel batches",
}

var batchCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a batch and upload one HIT per input",
	Long: `Create a batch for a registered task.
The inputs file holds a YAML or JSON list; every element becomes the
input of one HIT.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		taskName, _ := cmd.Flags().GetString("task")
		inputsPath, _ := cmd.Flags().GetString("inputs")

		file, err := os.Open(inputsPath)
		if err != nil {
			return fmt.Errorf("failed to open inputs: %w", err)
		}
		defer file.Close()
		inputs, err := tasks.LoadInputs(file)
		if err != nil {
			return err
		}

		return withContainer(cmd, func(ctx context.Context, ctr *container.Container) error {
			batch, err := ctr.Manager().CreateBatch(ctx, taskName, inputs)
			if batch != nil {
				// 上传中途失败时批次已经存在, 仍然输出以便后续同步或取消
				if printErr := printJSON(cmd, batch); printErr != nil {
					return printErr
				}
			}
			return err
		})
	},
}

var batchCancelCmd = &cobra.Command{
	Use:   "cancel <batch-id>",
	Short: "Cancel every HIT of a batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, func(ctx context.Context, ctr *container.Container) error {
			batch, err := ctr.Manager().CancelBatch(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, batch)
		})
	},
}

// withContainer 加载配置并初始化容器后执行 fn
func withContainer(cmd *cobra.Command, fn func(ctx context.Context, ctr *container.Container) error) error {
	cfg, _, err := LoadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctr, err := container.NewContainer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize container: %w", err)
	}
	defer ctr.Close()
	go ctr.Hub().Run(ctx)

	return fn(ctx, ctr)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.AddCommand(batchCreateCmd)
	batchCmd.AddCommand(batchCancelCmd)

	batchCreateCmd.Flags().String("task", "", "Registered task name")
	batchCreateCmd.Flags().String("inputs", "", "YAML or JSON file with one entry per HIT")
	_ = batchCreateCmd.MarkFlagRequired("task")
	_ = batchCreateCmd.MarkFlagRequired("inputs")
}
