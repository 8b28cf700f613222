//go:build !bridgedebug

package bridge

// debugAsserts turns misuse of a Context into a panic. Release builds
// refuse the operation instead.
const debugAsserts = false
