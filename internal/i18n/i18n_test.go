package i18n_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rise-fleet/rise/internal/i18n"
	"github.com/rise-fleet/rise/internal/model"
)

func TestManager_LoadAndTranslate(t *testing.T) {
	m := i18n.NewManager()
	err := m.LoadBundle(model.LocalizationBundle{
		Lang:      "de",
		Version:   "1",
		KeyValues: map[string]string{"hello": "Hallo"},
	})
	require.NoError(t, err)

	m.SetLang("de")
	assert.Equal(t, "Hallo", m.T("hello"))
	assert.Contains(t, m.AvailableLocales(), "de")
}

func TestManager_FallsBackToMessageID(t *testing.T) {
	m := i18n.NewManager()
	assert.Equal(t, "missing.key", m.T("missing.key"))
}
