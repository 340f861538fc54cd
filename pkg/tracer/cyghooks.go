//go:build cgo

package tracer

import "C"

import (
	"unsafe"
)

// The two symbol names below are dictated by the compiler contract: code
// built with -finstrument-functions calls them at every function entry and
// exit. Building this package with -buildmode=c-shared or -buildmode=c-archive
// exports them with C linkage so an instrumented host can link against the
// tracer directly.

//export __cyg_profile_func_enter
func __cyg_profile_func_enter(thisFn, callSite unsafe.Pointer) {
	Enter(uintptr(thisFn), uintptr(callSite))
}

//export __cyg_profile_func_exit
func __cyg_profile_func_exit(thisFn, callSite unsafe.Pointer) {
	Exit(uintptr(thisFn), uintptr(callSite))
}
