package secrets

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

type fakeSSM struct {
	value   *string
	err     error
	calls   int
	lastIn  *ssm.GetParameterInput
	hasDeadline bool
}

func (f *fakeSSM) GetParameter(ctx context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.calls++
	f.lastIn = in
	_, f.hasDeadline = ctx.Deadline()
	if f.err != nil {
		return nil, f.err
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: in.Name, Value: f.value, Version: 3}}, nil
}

func newTestSSM(t *testing.T, f *fakeSSM) *SSM {
	t.Helper()
	s, err := NewSSM(context.Background(), SSMOptions{Client: f})
	if err != nil {
		t.Fatalf("NewSSM: %v", err)
	}
	return s
}

func TestSSM_Get(t *testing.T) {
	f := &fakeSSM{value: aws.String("  s3cret\n")}
	s := newTestSSM(t, f)

	got, err := s.Get(context.Background(), "/app/splash-api/admin-key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "s3cret" {
		t.Errorf("Get = %q, want trimmed value", got)
	}
	if aws.ToString(f.lastIn.Name) != "/app/splash-api/admin-key" {
		t.Errorf("name = %q", aws.ToString(f.lastIn.Name))
	}
	if !aws.ToBool(f.lastIn.WithDecryption) {
		t.Error("WithDecryption should be set")
	}
	if !f.hasDeadline {
		t.Error("fetch should run with a deadline")
	}
}

func TestSSM_GetErrors(t *testing.T) {
	tests := []struct {
		name string
		f    *fakeSSM
		want string
	}{
		{"api error", &fakeSSM{err: errors.New("AccessDenied")}, "AccessDenied"},
		{"nil value", &fakeSSM{}, "has no value"},
		{"blank value", &fakeSSM{value: aws.String("   ")}, "is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestSSM(t, tt.f).Get(context.Background(), "/p")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestSSM_GetEmptyName(t *testing.T) {
	f := &fakeSSM{value: aws.String("x")}
	if _, err := newTestSSM(t, f).Get(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty name")
	}
	if f.calls != 0 {
		t.Errorf("calls = %d, want 0", f.calls)
	}
}

func TestNewSSM_DefaultTimeout(t *testing.T) {
	s := newTestSSM(t, &fakeSSM{})
	if s.timeout != 5*time.Second {
		t.Errorf("timeout = %s, want 5s", s.timeout)
	}
}

func TestResolveAdminKey(t *testing.T) {
	ctx := context.Background()
	f := &fakeSSM{value: aws.String("from-ssm")}
	factory := func(ctx context.Context) (*SSM, error) {
		return NewSSM(ctx, SSMOptions{Client: f})
	}

	got, err := ResolveAdminKey(ctx, "static", "", factory)
	if err != nil || got != "static" {
		t.Fatalf("static: %q %v", got, err)
	}

	got, err = ResolveAdminKey(ctx, "", "", factory)
	if err != nil || got != "" {
		t.Fatalf("unset: %q %v", got, err)
	}
	if f.calls != 0 {
		t.Fatalf("ssm should not be called, calls = %d", f.calls)
	}

	got, err = ResolveAdminKey(ctx, "", "/app/key", factory)
	if err != nil || got != "from-ssm" {
		t.Fatalf("ssm: %q %v", got, err)
	}

	boom := errors.New("no credentials")
	_, err = ResolveAdminKey(ctx, "", "/app/key", func(context.Context) (*SSM, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("factory error: %v", err)
	}
}
