package aws

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAWSConfig_LocalEndpoint(t *testing.T) {
	t.Setenv("AWS_ENDPOINT", "http://localhost:4566")
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")
	t.Setenv("AWS_PROFILE", "")

	cfg, err := LoadAWSConfig(context.Background(), "ap-southeast-2")
	require.NoError(t, err)
	assert.Equal(t, "ap-southeast-2", cfg.Region)
	assert.True(t, usesCustomEndpoint(cfg))

	creds, err := cfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test", creds.AccessKeyID)
}

func TestLoadAWSConfig_NoEndpoint(t *testing.T) {
	t.Setenv("AWS_ENDPOINT", "")

	cfg, err := LoadAWSConfig(context.Background(), "ap-southeast-2")
	require.NoError(t, err)
	assert.False(t, usesCustomEndpoint(cfg))
}
