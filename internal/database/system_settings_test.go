package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetAndUpsertSystemSetting(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))
	ctx := context.Background()

	value, err := GetSystemSetting(ctx, db, "missing")
	require.NoError(t, err)
	require.Equal(t, "", value)

	require.NoError(t, UpsertSystemSetting(ctx, db, "sample", "value1"))
	value, err = GetSystemSetting(ctx, db, "sample")
	require.NoError(t, err)
	require.Equal(t, "value1", value)

	require.NoError(t, UpsertSystemSetting(ctx, db, "sample", "value2"))
	value, err = GetSystemSetting(ctx, db, "sample")
	require.NoError(t, err)
	require.Equal(t, "value2", value)

	require.Error(t, UpsertSystemSetting(ctx, db, "  ", "x"))
}

func TestEnsureSystemSettingKeepsFirstValue(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))
	ctx := context.Background()

	value, err := EnsureSystemSetting(ctx, db, JWTSecretSetting, "generated-1")
	require.NoError(t, err)
	require.Equal(t, "generated-1", value)

	value, err = EnsureSystemSetting(ctx, db, JWTSecretSetting, "generated-2")
	require.NoError(t, err)
	require.Equal(t, "generated-1", value)

	_, err = EnsureSystemSetting(ctx, db, "empty", "")
	require.Error(t, err)
}
