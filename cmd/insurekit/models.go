package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var latestNext bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect the model registry",
}

var modelsLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Print the latest model version directory and artifact paths",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		resolver, closeResolver, err := newResolver(ctx)
		if err != nil {
			return err
		}
		defer closeResolver()

		if latestNext {
			paths, err := resolver.LatestSavePaths(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), paths.Dir)
			return nil
		}
		paths, err := resolver.LatestPaths(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, paths.Dir)
		fmt.Fprintln(out, "  transformer:   ", paths.Transformer)
		fmt.Fprintln(out, "  target encoder:", paths.TargetEncoder)
		fmt.Fprintln(out, "  model:         ", paths.Model)
		return nil
	},
}

var modelsPromoteCmd = &cobra.Command{
	Use:   "promote [version]",
	Short: "Point the latest pointer at an existing version (redis backend only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := strconv.Atoi(args[0])
		if err != nil || version < 0 {
			return fmt.Errorf("invalid version %q", args[0])
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		resolver, closeResolver, err := newResolver(ctx)
		if err != nil {
			return err
		}
		defer closeResolver()

		if err := resolver.Promote(ctx, version); err != nil {
			return err
		}
		logger.Info("promoted model version", zap.Int("version", version), zap.String("registry", resolver.Registry()))
		return nil
	},
}

func init() {
	modelsLatestCmd.Flags().BoolVar(&latestNext, "next", false, "Print the directory the next training run should save to")
	modelsCmd.AddCommand(modelsLatestCmd)
	modelsCmd.AddCommand(modelsPromoteCmd)
}
