package cmd

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// newNATSConnection opens the NATS connection the event bus publishes
// on, using a credentials file only. groupad has no workload-identity or
// IAM-runtime deployment target, unlike the richer multi-mode auth the
// teacher's pkg/configs supported.
func newNATSConnection(_ context.Context, v *viper.Viper) (*nats.Conn, error) {
	credsFile := v.GetString("nats.creds-file")
	if credsFile == "" {
		return nil, ErrMissingNATSCreds
	}

	url := v.GetString("nats.url")

	logger.Desugar().Debug(
		"creating NATS connection",
		zap.String("creds-file", credsFile),
		zap.String("url", url),
	)

	return nats.Connect(url, nats.Name(appName), nats.UserCredentials(credsFile))
}
