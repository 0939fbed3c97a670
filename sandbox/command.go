package sandbox

import (
	"fmt"
	"strings"
	"time"

	"github.com/isdmx/coderunner/language"
	"github.com/isdmx/coderunner/workspace"
)

// BuildCommand returns the in-sandbox command line for recipe: an optional
// compile step chained with && to the run step, each wrapped in timeout(1).
// The run step reads stdin from the input file only when one was written.
func BuildCommand(recipe language.Recipe, hasInput bool) []string {
	var b strings.Builder
	if recipe.Compiled() {
		fmt.Fprintf(&b, "timeout %s %s && ", seconds(CompileTimeout), recipe.CompileCmd)
	}
	fmt.Fprintf(&b, "timeout %s %s", seconds(RunTimeout), recipe.RunCmd)
	if hasInput {
		b.WriteString(" < ")
		b.WriteString(workspace.InputFilename)
	}
	return []string{Shell, "-c", b.String()}
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%ds", int(d.Seconds()))
}
