package potluck

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/davecgh/go-spew/spew"
)

var dumpConfig = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

// Dump prints v to stderr prefixed with the caller's file and line.
func Dump(v ...any) {
	_, file, line, _ := runtime.Caller(1)
	Fdump(os.Stderr, append([]any{fmt.Sprintf("%s:%d:", file, line)}, v...)...)
}

// Fdump writes a spew dump of v to w.
func Fdump(w io.Writer, v ...any) {
	dumpConfig.Fdump(w, v...)
}
