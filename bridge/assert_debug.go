//go:build bridgedebug

package bridge

const debugAsserts = true
