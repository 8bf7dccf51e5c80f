package secrets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/seabucks/dealer/evm"
)

var (
	_ evm.SecretSource = (*AWSProvider)(nil)
	_ evm.SecretSource = (*CachedProvider)(nil)
)

type fakeSM struct {
	values map[string]*string
	calls  int
}

func (f *fakeSM) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	v, ok := f.values[aws.ToString(in.SecretId)]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: v}, nil
}

func TestAWSProvider_GetSecret(t *testing.T) {
	sm := &fakeSM{values: map[string]*string{
		"dealer/key":    aws.String(`{"private_key":"0xabc"}`),
		"dealer/broken": aws.String(`not-json`),
		"dealer/binary": nil,
	}}
	p := &AWSProvider{client: sm}

	tests := []struct {
		name    string
		key     string
		want    string
		wantErr bool
	}{
		{name: "json secret", key: "dealer/key", want: "0xabc"},
		{name: "missing secret", key: "dealer/missing", wantErr: true},
		{name: "malformed secret", key: "dealer/broken", wantErr: true},
		{name: "binary-only secret", key: "dealer/binary", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.GetSecret(context.Background(), tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("GetSecret() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got["private_key"] != tt.want {
				t.Errorf("private_key = %q, want %q", got["private_key"], tt.want)
			}
		})
	}
}

func TestCachedProvider(t *testing.T) {
	sm := &fakeSM{values: map[string]*string{"dealer/key": aws.String(`{"private_key":"0xabc"}`)}}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCachedProvider(&AWSProvider{client: sm}, time.Minute)
	c.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if _, err := c.GetSecret(context.Background(), "dealer/key"); err != nil {
			t.Fatalf("GetSecret failed: %v", err)
		}
	}
	if sm.calls != 1 {
		t.Errorf("expected 1 upstream call, got %d", sm.calls)
	}

	now = now.Add(2 * time.Minute)
	if _, err := c.GetSecret(context.Background(), "dealer/key"); err != nil {
		t.Fatalf("GetSecret failed: %v", err)
	}
	if sm.calls != 2 {
		t.Errorf("expected refetch after ttl, got %d calls", sm.calls)
	}

	c.Bust("dealer/key")
	if _, err := c.GetSecret(context.Background(), "dealer/key"); err != nil {
		t.Fatalf("GetSecret failed: %v", err)
	}
	if sm.calls != 3 {
		t.Errorf("expected refetch after bust, got %d calls", sm.calls)
	}
}

func TestCachedProvider_ErrorsNotCached(t *testing.T) {
	sm := &fakeSM{values: map[string]*string{}}
	c := NewCachedProvider(&AWSProvider{client: sm}, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := c.GetSecret(context.Background(), "dealer/missing"); err == nil {
			t.Fatal("expected error")
		}
	}
	if sm.calls != 2 {
		t.Errorf("expected 2 upstream calls, got %d", sm.calls)
	}
}

func TestCachedProvider_ReturnsCopy(t *testing.T) {
	sm := &fakeSM{values: map[string]*string{"k": aws.String(`{"a":"1"}`)}}
	c := NewCachedProvider(&AWSProvider{client: sm}, time.Minute)

	first, _ := c.GetSecret(context.Background(), "k")
	first["a"] = "mutated"

	second, _ := c.GetSecret(context.Background(), "k")
	if second["a"] != "1" {
		t.Errorf("cache entry was mutated through returned map: %q", second["a"])
	}
}

func TestSecretFeedsDealerKey(t *testing.T) {
	const hardhatKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	sm := &fakeSM{values: map[string]*string{"dealer/key": aws.String(`{"private_key":"` + hardhatKey + `"}`)}}

	key, err := evm.NewDealerKey(evm.WithSecret(context.Background(), &AWSProvider{client: sm}, "dealer/key", "private_key"))
	if err != nil {
		t.Fatalf("NewDealerKey failed: %v", err)
	}
	if got := key.Address().Hex(); got != "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266" {
		t.Errorf("address = %s", got)
	}
}
