package rootranger

import (
	"log"
	"os"
)

// logger is the package's sole ambient logging sink (SPEC_FULL.md
// AMBIENT STACK "Logging"), matching the teacher's own minimal use of the
// standard library log package rather than introducing an external
// logging dependency. AlignmentAmbiguous warnings and, when enabled, the
// per-job debug trace both go through it.
var logger = log.New(os.Stderr, "rootranger: ", log.LstdFlags)
