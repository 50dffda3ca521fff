// Package i18n carries the localization hook for validation messages.
// Messages are translated at the point they are built, before any
// parameters are substituted, so a translator receives stable catalog
// keys (the untranslated format strings).
package i18n

import (
	"fmt"
	"sync/atomic"
)

// Translator converts a message key into a localized string.
// The key is the untranslated English message, gettext style.
type Translator func(key string) string

var translator atomic.Pointer[Translator]

// SetTranslator installs the process-wide translator.
// Passing nil restores the identity translator.
func SetTranslator(t Translator) {
	if t == nil {
		translator.Store(nil)
		return
	}
	translator.Store(&t)
}

// T translates a message key. Without an installed translator the key
// is returned unchanged.
func T(key string) string {
	t := translator.Load()
	if t == nil {
		return key
	}
	return (*t)(key)
}

// Tf translates a format string, then substitutes its arguments.
func Tf(format string, args ...any) string {
	return fmt.Sprintf(T(format), args...)
}
