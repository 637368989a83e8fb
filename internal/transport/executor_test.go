package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rise-fleet/rise/internal/model"
)

func TestDecodeEnvelope_Success(t *testing.T) {
	env, err := decodeEnvelope([]byte(`{"status":"success","api_version":"1.0","ok":true}`))
	require.NoError(t, err)
	assert.Equal(t, "1.0", env.APIVersion)
}

func TestDecodeEnvelope_MissingAPIVersion(t *testing.T) {
	_, err := decodeEnvelope([]byte(`{"status":"success"}`))
	require.Error(t, err)
	var merr *model.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, model.KindProtocol, merr.Kind)
}

func TestDecodeEnvelope_RemoteError(t *testing.T) {
	_, err := decodeEnvelope([]byte(`{"status":"error","api_version":"1.0","code":"ERR_LOCKED","message":"busy"}`))
	require.Error(t, err)
	var merr *model.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, model.KindLocked, merr.Kind)
}

func TestCheckCompat_MajorMismatchIsIncompatible(t *testing.T) {
	e := &Executor{}
	_, err := e.checkCompat(&envelope{APIVersion: "2.0"})
	require.Error(t, err)
	var merr *model.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, model.KindApiIncompatible, merr.Kind)
}

func TestCheckCompat_MinorDriftWarns(t *testing.T) {
	e := &Executor{}
	res, err := e.checkCompat(&envelope{APIVersion: "1.5"})
	require.NoError(t, err)
	require.NotNil(t, res.Warning)
	assert.Equal(t, model.KindApiDrift, res.Warning.Kind)
}

func TestCheckCompat_WithinDriftToleranceNoWarning(t *testing.T) {
	e := &Executor{}
	res, err := e.checkCompat(&envelope{APIVersion: "1.2"})
	require.NoError(t, err)
	assert.Nil(t, res.Warning)
}

func TestCategoryDeadlines_MatchSpecTable(t *testing.T) {
	assert.Equal(t, categoryDeadlines[CategoryQuick].Seconds(), 10.0)
	assert.Equal(t, categoryDeadlines[CategoryMedium].Seconds(), 30.0)
	assert.Equal(t, categoryDeadlines[CategoryLong].Seconds(), 120.0)
	assert.Equal(t, categoryDeadlines[CategoryUpdateCheck].Seconds(), 220.0)
	assert.Equal(t, categoryDeadlines[CategoryUpgrade].Seconds(), 660.0)
}

func TestIsLockedError(t *testing.T) {
	assert.True(t, isLockedError(model.RemoteError("ERR_LOCKED", "busy")))
	assert.False(t, isLockedError(model.RemoteError("ERR_DEPENDENCY", "missing")))
	assert.False(t, isLockedError(assert.AnError))
}
