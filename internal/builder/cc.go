package builder

import (
	"os"
	"os/exec"
)

// compilers that take MSVC style switches
var commonMSVCCompilers = []string{"cl", "clang-cl"}

// findCompiler returns $CC, the first MSVC style compiler on PATH, or "cl"
// so that a missing toolchain fails at the first compile
func findCompiler() string {
	if cc := os.Getenv("CC"); cc != "" {
		return cc
	}

	for _, compiler := range commonMSVCCompilers {
		path, err := exec.LookPath(compiler)
		if err == nil {
			return path
		}
	}

	return commonMSVCCompilers[0]
}
