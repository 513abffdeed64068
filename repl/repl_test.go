package repl_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chakravyuha/repl"
)

const sample = `
define i32 @main() {
entry:
  ret i32 0
}
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.chakir")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	return path
}

func TestLoadPrintQuit(t *testing.T) {
	path := writeSample(t)
	input := strings.NewReader("load " + path + "\nprint\nquit\n")
	var out bytes.Buffer

	repl.Start(input, &out)

	transcript := out.String()
	assert.Contains(t, transcript, "loaded")
	assert.Contains(t, transcript, "1 functions")
	assert.Contains(t, transcript, "define i32 @main()")
}

func TestRunWithoutLoadedModuleReportsError(t *testing.T) {
	input := strings.NewReader("run chakravyuha-control-flow-flatten\nquit\n")
	var out bytes.Buffer

	repl.Start(input, &out)

	assert.Contains(t, out.String(), "no module loaded")
}

func TestUnknownCommandIsReported(t *testing.T) {
	input := strings.NewReader("frobnicate\nquit\n")
	var out bytes.Buffer

	repl.Start(input, &out)

	assert.Contains(t, out.String(), `unknown command "frobnicate"`)
}

func TestRunPassOverLoadedModule(t *testing.T) {
	path := writeSample(t)
	input := strings.NewReader("load " + path + "\nrun chakravyuha-fake-code-insertion\nreport\nquit\n")
	var out bytes.Buffer

	repl.Start(input, &out)

	transcript := out.String()
	assert.Contains(t, transcript, "ran: chakravyuha-fake-code-insertion")
}
