package main

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/star/skywatch/internal/ephem"
	"github.com/star/skywatch/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New(slog.New(slog.NewJSONHandler(io.Discard, nil)))
	require.NoError(t, reg.LoadStatic("", []string{"Spica", "Regulus"}))
	return reg
}

func TestParseAt(t *testing.T) {
	got, err := parseAt("2026-03-20T12:00:00Z")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)))

	now, err := parseAt("")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), now, time.Second)

	_, err = parseAt("tomorrow")
	assert.Error(t, err)
}

func TestResolvePairs(t *testing.T) {
	reg := testRegistry(t)
	found, _ := reg.Select([]string{"Sun", "Moon", "Mars", "Jupiter", "Spica"})
	var bodies []ephem.Body
	for _, tg := range found {
		bodies = append(bodies, tg.(ephem.Body))
	}

	def, err := resolvePairs(reg, nil, bodies)
	require.NoError(t, err)
	require.Len(t, def, 2, "moon paired with each planet")
	for _, p := range def {
		assert.Equal(t, "Moon", p.A.Name())
	}

	explicit, err := resolvePairs(reg, []string{"Spica, Regulus"}, bodies)
	require.NoError(t, err)
	require.Len(t, explicit, 1)
	assert.Equal(t, "Regulus", explicit[0].B.Name())

	for _, bad := range []string{"Spica", "Spica,Nibiru"} {
		_, err := resolvePairs(reg, []string{bad}, bodies)
		assert.Error(t, err, bad)
	}

	noMoon, err := resolvePairs(reg, nil, bodies[2:])
	require.NoError(t, err)
	assert.Empty(t, noMoon)
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{{"watch"}, {"events"}, {"sky"}, {"passes"}, {"catalog", "refresh"}, {"catalog", "list"}} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
	watch, _, _ := root.Find([]string{"watch"})
	assert.NotNil(t, watch.Flags().Lookup("http-addr"))
	assert.NotNil(t, watch.Flags().Lookup("tui"))
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}
