// package svmcmd implements the shroud command line tool.
package svmcmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"go.brendoncarroll.net/star"
	"go.brendoncarroll.net/stdctx/logctx"

	"shroudvm.org/shroud/svm"
	"shroudvm.org/shroud/svmconfig"
)

func Root() star.Command {
	return root
}

var root = star.NewDir(star.Metadata{
	Short: "Shroud obfuscated stack VM",
}, map[star.Symbol]star.Command{
	"asm":    asmCmd,
	"disasm": disasmCmd,
	"ops":    opsCmd,

	"run":   runCmd,
	"bench": benchCmd,

	"store": storeCmd,
})

var ConfigParam = star.Param[*svmconfig.Config]{
	Name:    "config",
	Default: star.Ptr(""),
	Parse: func(x string) (*svmconfig.Config, error) {
		if x == "" {
			cfg := svmconfig.Default()
			return &cfg, nil
		}
		return svmconfig.Load(x)
	},
}

// DBParam overrides store.db from the config.
var DBParam = star.Param[string]{
	Name:    "db",
	Default: star.Ptr(""),
	Parse:   star.ParseString,
}

var fileParam = star.Param[*os.File]{
	Name: "f",
	Parse: func(x string) (*os.File, error) {
		return os.Open(x)
	},
}

var outputFileParam = star.Param[*os.File]{
	Name:  "o",
	Parse: os.Create,
}

var nameParam = star.Param[string]{
	Name:  "name",
	Parse: star.ParseString,
}

var localsParam = star.Param[svm.Word]{
	Name:     "local",
	Repeated: true,
	Parse: func(x string) (svm.Word, error) {
		n, err := strconv.ParseInt(x, 0, 64)
		return svm.Word(n), err
	},
}

var jitParam = star.Param[bool]{
	Name:    "jit",
	Default: star.Ptr("false"),
	Parse:   strconv.ParseBool,
}

var encodeParam = star.Param[bool]{
	Name:    "encode",
	Default: star.Ptr("true"),
	Parse:   strconv.ParseBool,
}

var callsParam = star.Param[int]{
	Name:    "n",
	Default: star.Ptr("1"),
	Parse:   parsePositive,
}

var workersParam = star.Param[int]{
	Name:    "workers",
	Default: star.Ptr("4"),
	Parse:   parsePositive,
}

func parsePositive(x string) (int, error) {
	n, err := strconv.Atoi(x)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("must be at least 1, have %d", n)
	}
	return n, nil
}

// setup loads the config and returns a context carrying the configured logger.
func setup(c star.Context) (context.Context, *svmconfig.Config, error) {
	cfg := ConfigParam.Load(c)
	l, err := cfg.NewLogger()
	if err != nil {
		return nil, nil, err
	}
	return logctx.NewContext(c.Context, l), cfg, nil
}
