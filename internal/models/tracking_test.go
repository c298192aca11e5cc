package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeReference(t *testing.T) {
	ref, err := NormalizeReference("AB-12345")
	require.NoError(t, err)
	require.Equal(t, "AB-12345", ref)

	ref, err = NormalizeReference("  CBEL001  ")
	require.NoError(t, err)
	require.Equal(t, "CBEL001", ref)

	_, err = NormalizeReference("AB")
	require.ErrorIs(t, err, ErrReferenceLength)

	_, err = NormalizeReference(strings.Repeat("A", 31))
	require.ErrorIs(t, err, ErrReferenceLength)

	_, err = NormalizeReference(strings.Repeat("A", 30))
	require.NoError(t, err)

	_, err = NormalizeReference("AB 123")
	require.ErrorIs(t, err, ErrReferenceCharset)

	_, err = NormalizeReference("   ")
	require.ErrorIs(t, err, ErrReferenceRequired)
}

func TestSourceKind(t *testing.T) {
	require.True(t, SourceOfficial.IsOfficial())
	require.False(t, SourceOfficial.IsFallback())

	k := FallbackSource("B")
	require.Equal(t, SourceKind("fallback:B"), k)
	require.True(t, k.IsFallback())
	require.Equal(t, "B", k.TenantID())
	require.Equal(t, "", SourceOfficial.TenantID())
}

func TestTenant_Usable(t *testing.T) {
	require.True(t, Tenant{Enabled: true, AppKey: "k", AppToken: "t"}.Usable())
	require.False(t, Tenant{Enabled: false, AppKey: "k", AppToken: "t"}.Usable())
	require.False(t, Tenant{Enabled: true, AppKey: "", AppToken: "t"}.Usable())
	require.False(t, Tenant{Enabled: true, AppKey: "k"}.Usable())
}
