package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cardinal-app/magiclink/cognito"
	"github.com/cardinal-app/magiclink/internal/config"
	"github.com/cardinal-app/magiclink/internal/factory"
	"github.com/cardinal-app/magiclink/internal/logging"
)

func lambdaCmd() *cobra.Command {
	var trigger string
	cmd := &cobra.Command{
		Use:   "lambda",
		Short: "Run as a Cognito user pool trigger",
		Long: `Run as an AWS Lambda handler for one Cognito user pool trigger:
  define     Define auth challenge
  create     Create auth challenge
  verify     Verify auth challenge response
  pre-auth   Pre authentication
  pre-token  Pre token generation`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateLambda(); err != nil {
				return err
			}
			logger, err := logging.New(cfg.Env, cfg.LogLevel, "json")
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := context.Background()
			f, err := factory.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer f.Close(ctx)

			h, err := cognito.New(f.MagicLink(), logger.Named("cognito")).Handler(trigger)
			if err != nil {
				return err
			}
			logger.Info("starting lambda handler", zap.String("trigger", trigger))
			lambda.Start(h)
			return nil
		},
	}
	cmd.Flags().StringVar(&trigger, "trigger", "", "trigger to handle (define|create|verify|pre-auth|pre-token)")
	cmd.MarkFlagRequired("trigger")
	return cmd
}
