// Package secrets resolves runtime secrets that should not live in flags or env.
package secrets

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/splash-api/internal/log"
	"github.com/keithlinneman/splash-api/internal/xerrors"
)

// ParameterAPI is the slice of the SSM client used here
type ParameterAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type SSMOptions struct {
	Logger log.Logger

	// Client overrides the SSM client, built from the default AWS config when nil
	Client ParameterAPI

	// AWSConfig is used when Client is nil (default chain if also nil)
	AWSConfig *aws.Config

	// Timeout bounds a single fetch, 0 means 5s
	Timeout time.Duration
}

type SSM struct {
	client  ParameterAPI
	logger  log.Logger
	timeout time.Duration
}

func NewSSM(ctx context.Context, opts SSMOptions) (*SSM, error) {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	client := opts.Client
	if client == nil {
		var awsCfg aws.Config
		var err error
		if opts.AWSConfig != nil {
			awsCfg = *opts.AWSConfig
		} else {
			awsCfg, err = config.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, xerrors.Wrap(err, "load AWS config")
			}
		}
		client = ssm.NewFromConfig(awsCfg)
	}

	return &SSM{client: client, logger: opts.Logger, timeout: opts.Timeout}, nil
}

// Get returns the decrypted, trimmed value of a SecureString parameter
func (s *SSM) Get(ctx context.Context, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", xerrors.New("ssm parameter name is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", name)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", name)
	}

	v := strings.TrimSpace(*out.Parameter.Value)
	if v == "" {
		return "", xerrors.Newf("SSM parameter %s is empty", name)
	}

	s.logger.Info(ctx, "loaded secret from ssm", "param", name, "version", out.Parameter.Version)
	return v, nil
}

// ResolveAdminKey returns the static key when set, otherwise fetches param.
// Both empty is not an error, the admin routes then answer 500 until configured.
func ResolveAdminKey(ctx context.Context, static, param string, newSSM func(context.Context) (*SSM, error)) (string, error) {
	if static != "" || param == "" {
		return static, nil
	}
	s, err := newSSM(ctx)
	if err != nil {
		return "", err
	}
	return s.Get(ctx, param)
}
