package probe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// selfCase is one builtin toolchain check. Positive cases must compile and
// exit zero; negative cases must fail at the stated stage. A toolchain
// that cannot tell these apart would turn every later probe failure into a
// header hunt.
type selfCase struct {
	name     string
	source   string
	compiles bool
	exitZero bool
}

var selfCases = []selfCase{
	{
		name:     "hello",
		source:   "#include <cstdio>\nint main() { std::printf(\"hello\\n\"); return 0; }\n",
		compiles: true,
		exitZero: true,
	},
	{
		name:     "assert-pass",
		source:   "static_assert(2 + 2 == 4, \"arithmetic\");\nint main() { return 0; }\n",
		compiles: true,
		exitZero: true,
	},
	{
		name:     "syntax-error",
		source:   "int main() { not a program\n",
		compiles: false,
	},
	{
		name:     "assert-fail",
		source:   "static_assert(2 + 2 == 5, \"arithmetic\");\nint main() { return 0; }\n",
		compiles: false,
	},
	{
		name:     "exit-code",
		source:   "int main() { return 3; }\n",
		compiles: true,
		exitZero: false,
	},
}

// selfCheck verifies the toolchain itself before any header gets blamed.
func (p *Prober) selfCheck(ctx context.Context) error {
	for i, c := range selfCases {
		srcPath := filepath.Join(p.WorkDir, "check_"+strconv.Itoa(i)+".cpp")
		binPath := filepath.Join(p.WorkDir, "check_"+strconv.Itoa(i))
		if err := os.WriteFile(srcPath, []byte(c.source), 0o644); err != nil {
			return fmt.Errorf("write check source: %w", err)
		}
		_, err := p.Runner.Compile(ctx, p.Toolchain, srcPath, binPath)
		if c.compiles != (err == nil) {
			if c.compiles {
				return fmt.Errorf("check %q did not compile: %w", c.name, err)
			}
			return fmt.Errorf("check %q compiled but must not", c.name)
		}
		if err != nil {
			continue
		}
		if _, err := p.Runner.Execute(ctx, binPath); c.exitZero != (err == nil) {
			if c.exitZero {
				return fmt.Errorf("check %q failed to run: %w", c.name, err)
			}
			return fmt.Errorf("check %q exited zero but must not", c.name)
		}
	}
	p.logger().Debug("Toolchain self-check passed", "cases", len(selfCases))
	return nil
}
