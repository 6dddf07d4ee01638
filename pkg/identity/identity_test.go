package identity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cardano-forge/forgeguard/pkg/identity"
)

func TestDerivePoolIDShort(t *testing.T) {
	cases := map[string]string{
		"":                         "",
		"pool1abcdefgh1234567890":  "abcdefgh",
		"poolzzzzzzzz":             "zzzzzzzz",
		"ab":                       "ab",
	}
	for in, want := range cases {
		assert.Equal(t, want, identity.DerivePoolIDShort(in), "input %q", in)
	}
}

func TestLeaseNameLegacyVsMultiTenant(t *testing.T) {
	legacy := identity.New("pod-0", "ns", "", "", "", "")
	assert.False(t, legacy.MultiTenant())
	assert.Equal(t, "cardano-leader-election", legacy.LeaseName())

	tenant := identity.New("pod-0", "ns", "mainnet", "pool1abcdefgh1234567890", "us-east-1", "cardano-node")
	assert.True(t, tenant.MultiTenant())
	assert.Equal(t, "cardano-leader-mainnet-abcdefgh", tenant.LeaseName())
	assert.Equal(t, "mainnet-abcdefgh-us-east-1", tenant.ClusterStateName())
}
