// Copyright (c) 2026 RISE Team
// RISE - remote infrastructure service engine
// This source code is licensed under the MIT license found in the LICENSE file.

// Package i18n renders localized CLI strings from bundles fetched by the
// cache engine (C6). Unlike an embedded-bundle UI, RISE's bundles arrive
// over the network, so Manager loads them at runtime instead of from an
// embed.FS.
package i18n

import (
	"fmt"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"

	"github.com/rise-fleet/rise/internal/model"
)

// Manager owns the live go-i18n bundle and the currently selected language.
// It is explicit-DI friendly: callers construct one and pass it around
// instead of reaching for a package-level singleton (SPEC_FULL §9 design
// note on ambient global state).
type Manager struct {
	mu          sync.RWMutex
	bundle      *i18n.Bundle
	localizer   *i18n.Localizer
	currentLang string
	available   map[string]bool
}

// NewManager returns a Manager with English registered as the fallback.
func NewManager() *Manager {
	m := &Manager{
		bundle:    i18n.NewBundle(language.English),
		available: map[string]bool{},
	}
	m.SetLang("en")
	return m
}

// LoadBundle registers a fetched localization bundle's key/value pairs with
// the underlying go-i18n bundle, making it selectable via SetLang.
func (m *Manager) LoadBundle(b model.LocalizationBundle) error {
	tag, err := language.Parse(b.Lang)
	if err != nil {
		return fmt.Errorf("i18n: parse language tag %q: %w", b.Lang, err)
	}
	msgs := make([]*i18n.Message, 0, len(b.KeyValues))
	for id, val := range b.KeyValues {
		msgs = append(msgs, &i18n.Message{ID: id, Other: val})
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.bundle.AddMessages(tag, msgs...); err != nil {
		return fmt.Errorf("i18n: add messages for %q: %w", b.Lang, err)
	}
	m.available[b.Lang] = true
	return nil
}

// SetLang switches the active language. The English fallback is always
// available even if no bundle has been explicitly loaded for it.
func (m *Manager) SetLang(lang string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentLang = lang
	m.localizer = i18n.NewLocalizer(m.bundle, lang, "en")
}

// GetLang returns the currently selected language code.
func (m *Manager) GetLang() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentLang
}

// AvailableLocales returns the set of language codes with a loaded bundle.
func (m *Manager) AvailableLocales() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.available))
	for lang := range m.available {
		out = append(out, lang)
	}
	return out
}

// T translates messageID, falling back to the ID itself when no
// translation is registered for the active language or English.
func (m *Manager) T(messageID string, templateData ...interface{}) string {
	m.mu.RLock()
	localizer := m.localizer
	m.mu.RUnlock()

	var data map[string]interface{}
	var pluralCount interface{}
	if len(templateData) > 0 {
		if mp, ok := templateData[0].(map[string]interface{}); ok {
			data = mp
			if c, ok := mp["Count"]; ok {
				pluralCount = c
			}
		}
	}

	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
		PluralCount:  pluralCount,
	})
	if err != nil {
		msg = messageID
	}

	if len(templateData) > 0 {
		if _, isMap := templateData[0].(map[string]interface{}); !isMap {
			return fmt.Sprintf(msg, templateData...)
		}
	}
	return msg
}
