package tool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRejectsZeroTimeout(t *testing.T) {
	r := NewRegistry(time.Second)
	zero := time.Duration(0)
	err := r.Register(Declaration{Name: "x", Timeout: &zero}, PlainFunc(func(args map[string]any) (string, error) {
		return "ok", nil
	}))
	require.Error(t, err)
}

func TestRegisterRejectsNegativeTimeout(t *testing.T) {
	r := NewRegistry(time.Second)
	err := r.Register(Declaration{Name: "x", Timeout: Timeout(-time.Second)}, PlainFunc(func(args map[string]any) (string, error) {
		return "ok", nil
	}))
	require.Error(t, err)
}

func TestRegisterAbsentTimeoutDefaultsToRegistryDefault(t *testing.T) {
	r := NewRegistry(42 * time.Second)
	require.NoError(t, r.Register(Declaration{Name: "x"}, PlainFunc(func(args map[string]any) (string, error) {
		return "ok", nil
	})))
	e, ok := r.Get("x")
	require.True(t, ok)
	require.NotNil(t, e.Timeout)
	assert.Equal(t, 42*time.Second, *e.Timeout)
}

func TestRegisterReplacesExistingName(t *testing.T) {
	r := NewRegistry(time.Second)
	require.NoError(t, r.Register(Declaration{Name: "x"}, PlainFunc(func(args map[string]any) (string, error) {
		return "first", nil
	})))
	require.NoError(t, r.Register(Declaration{Name: "x"}, PlainFunc(func(args map[string]any) (string, error) {
		return "second", nil
	})))
	assert.Equal(t, 1, r.Len())
}

func TestRegisterEmptyNameRejected(t *testing.T) {
	r := NewRegistry(time.Second)
	err := r.Register(Declaration{}, PlainFunc(func(args map[string]any) (string, error) {
		return "ok", nil
	}))
	require.Error(t, err)
}

func TestRegisterUnsupportedImplRejected(t *testing.T) {
	r := NewRegistry(time.Second)
	err := r.Register(Declaration{Name: "x"}, "not a function")
	require.Error(t, err)
}
