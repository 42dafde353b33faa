package container

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yezhh-pz/MediaFlow-sub000/internal/apperrors"
)

type fakeService struct {
	shutdowns *[]string
	name      string
}

func (f *fakeService) Shutdown() error {
	*f.shutdowns = append(*f.shutdowns, f.name)
	return nil
}

func TestGetMissingServiceIsNotFound(t *testing.T) {
	c := New(nil)
	_, err := c.Get("missing")
	require.True(t, apperrors.IsNotFound(err))
}

func TestGetCachesInstanceAfterFirstCall(t *testing.T) {
	c := New(nil)
	calls := 0
	c.Register("svc", func() (interface{}, error) {
		calls++
		return "instance", nil
	})

	first, err := c.Get("svc")
	require.NoError(t, err)
	second, err := c.Get("svc")
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, 1, calls)
}

func TestOverrideBypassesFactory(t *testing.T) {
	c := New(nil)
	c.Register("svc", func() (interface{}, error) {
		return nil, errors.New("should not be called")
	})
	c.Override("svc", "overridden")

	got, err := c.Get("svc")
	require.NoError(t, err)
	require.Equal(t, "overridden", got)
}

func TestResetDropsCachedInstances(t *testing.T) {
	c := New(nil)
	calls := 0
	c.Register("svc", func() (interface{}, error) {
		calls++
		return calls, nil
	})
	first, _ := c.Get("svc")
	c.Reset()
	second, _ := c.Get("svc")

	require.Equal(t, 1, first)
	require.Equal(t, 2, second)
}

func TestShutdownStopsServicesInReverseOrder(t *testing.T) {
	c := New(nil)
	var order []string
	c.Register("a", func() (interface{}, error) { return &fakeService{shutdowns: &order, name: "a"}, nil })
	c.Register("b", func() (interface{}, error) { return &fakeService{shutdowns: &order, name: "b"}, nil })

	_, err := c.Get("a")
	require.NoError(t, err)
	_, err = c.Get("b")
	require.NoError(t, err)

	require.NoError(t, c.Shutdown())
	require.Equal(t, []string{"b", "a"}, order)
}
