package shell

import "strings"

// Output fragments that identify transient failures.
//
// A crashed or killed compiler and a handful of known toolchain flakes fail
// a build without anything being wrong with the sources.
var spuriousSignatures = []string{
	"Segmentation fault",
	"Bus error",
	"Abort trap",
	"Killed: 9",
	"Illegal instruction",
	"internal compiler error: Killed",
	"Text file busy",
	"Resource temporarily unavailable",
	"clang: error: unable to execute command",
}

// Whether output contains a known transient failure signature.
func isSpurious(output string) bool {
	for _, sig := range spuriousSignatures {
		if strings.Contains(output, sig) {
			return true
		}
	}
	return false
}
