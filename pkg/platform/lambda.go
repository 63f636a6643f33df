package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
)

// Lambda implements API against AWS Lambda.
type Lambda struct {
	Client *lambda.Client

	// SettleTimeout bounds the wait for a function update to leave the
	// InProgress state before the next update is allowed.
	SettleTimeout time.Duration
}

func NewLambda(cfg aws.Config) *Lambda {
	return &Lambda{
		Client:        lambda.NewFromConfig(cfg),
		SettleTimeout: 2 * time.Minute,
	}
}

func (l *Lambda) PublishLayer(ctx context.Context, in PublishLayerInput) (PublishLayerOutput, error) {
	out, err := l.Client.PublishLayerVersion(ctx, &lambda.PublishLayerVersionInput{
		LayerName:          aws.String(in.Name),
		Description:        aws.String(in.Description),
		CompatibleRuntimes: []types.Runtime{types.Runtime(in.Runtime)},
		Content:            &types.LayerVersionContentInput{ZipFile: in.Archive},
	})
	if err != nil {
		return PublishLayerOutput{}, fmt.Errorf("failed to publish layer %s: %w", in.Name, err)
	}

	return PublishLayerOutput{
		Version: out.Version,
		ARN:     aws.ToString(out.LayerVersionArn),
	}, nil
}

func (l *Lambda) UpdateFunction(ctx context.Context, in UpdateFunctionInput) error {
	_, err := l.Client.UpdateFunctionCode(ctx, &lambda.UpdateFunctionCodeInput{
		FunctionName: aws.String(in.FunctionName),
		ZipFile:      in.Archive,
	})
	if err != nil {
		return fmt.Errorf("failed to update code for %s: %w", in.FunctionName, err)
	}

	// Lambda rejects configuration updates while the code update is still
	// propagating, so settle before pinning the layer.
	if err := l.waitSettled(ctx, in.FunctionName); err != nil {
		return err
	}

	if in.LayerARN == "" {
		return nil
	}

	_, err = l.Client.UpdateFunctionConfiguration(ctx, &lambda.UpdateFunctionConfigurationInput{
		FunctionName: aws.String(in.FunctionName),
		Layers:       []string{in.LayerARN},
	})
	if err != nil {
		return fmt.Errorf("failed to pin layer on %s: %w", in.FunctionName, err)
	}
	return l.waitSettled(ctx, in.FunctionName)
}

func (l *Lambda) waitSettled(ctx context.Context, name string) error {
	deadline := time.Now().Add(l.SettleTimeout)

	for {
		out, err := l.Client.GetFunctionConfiguration(ctx, &lambda.GetFunctionConfigurationInput{
			FunctionName: aws.String(name),
		})
		if err != nil {
			return fmt.Errorf("failed to poll update status for %s: %w", name, err)
		}

		switch out.LastUpdateStatus {
		case types.LastUpdateStatusSuccessful, "":
			return nil
		case types.LastUpdateStatusFailed:
			return fmt.Errorf("update of %s failed: %s", name, aws.ToString(out.LastUpdateStatusReason))
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for %s to settle", name)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}
