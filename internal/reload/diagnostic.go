// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package reload

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Diagnostic returns a short human-readable message for err.
//
// It walks the cause chain and returns the message of the deepest error
// that says something beyond its own type name. A wrapping error
// contributes only the text it adds in front of its cause.
func Diagnostic(err error) string {
	if err == nil {
		return ""
	}

	var chain []error
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, e)
	}

	for i := len(chain) - 1; i >= 0; i-- {
		msg := ownMessage(chain[i])
		if !isGeneric(chain[i], msg) {
			return msg
		}
	}

	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return typeName(err)
}

func ownMessage(err error) string {
	msg := err.Error()
	if inner := errors.Unwrap(err); inner != nil {
		msg = strings.TrimSuffix(msg, inner.Error())
		msg = strings.TrimSuffix(strings.TrimSpace(msg), ":")
	}
	return strings.TrimSpace(msg)
}

func isGeneric(err error, msg string) bool {
	if msg == "" {
		return true
	}
	return msg == fmt.Sprintf("%T", err) || msg == typeName(err)
}

func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}
