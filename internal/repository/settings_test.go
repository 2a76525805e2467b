package repository

import (
	"context"
	"testing"

	"github.com/berrythewa/clipsync/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings(t *testing.T) {
	ctx := context.Background()
	r := newTestRepository(t, false)

	_, err := r.GetSetting(ctx, "theme")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, r.SetSetting(ctx, "theme", "dark"))
	require.NoError(t, r.SetSetting(ctx, "theme", "light"))
	require.NoError(t, r.SetSetting(ctx, "page_size", "20"))

	v, err := r.GetSetting(ctx, "theme")
	require.NoError(t, err)
	assert.Equal(t, "light", v)

	require.NoError(t, r.TouchDevice(ctx, "dev-1", "laptop"))

	all, err := r.ListSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"theme": "light", "page_size": "20"}, all)

	ok, err := r.DeleteSetting(ctx, "theme")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.DeleteSetting(ctx, "theme")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Error(t, r.SetSetting(ctx, "", "x"))
	assert.Error(t, r.SetSetting(ctx, "device:spoof", "x"))
}

func TestListDevices(t *testing.T) {
	ctx := context.Background()
	r := newTestRepository(t, false)

	require.NoError(t, r.TouchDevice(ctx, "A", "laptop"))
	require.NoError(t, r.TouchDevice(ctx, "idle", "tablet"))
	mustAdd(t, r, textItem("one", "A", 1))
	mustAdd(t, r, textItem("two", "A", 2))
	mustAdd(t, r, textItem("three", "B", 3))

	devices, err := r.ListDevices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 3)

	byID := make(map[string]int)
	names := make(map[string]string)
	for _, d := range devices {
		byID[d.ID] = d.Items
		names[d.ID] = d.Name
	}
	assert.Equal(t, map[string]int{"A": 2, "B": 1, "idle": 0}, byID)
	assert.Equal(t, "laptop", names["A"])
	assert.Equal(t, "Device B", names["B"])
}
