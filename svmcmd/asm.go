package svmcmd

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"go.brendoncarroll.net/star"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"shroudvm.org/shroud/scramble"
	"shroudvm.org/shroud/spec"
	"shroudvm.org/shroud/svmasm"
	"shroudvm.org/shroud/svmconfig"
	"shroudvm.org/shroud/svmimage"
)

var asmCmd = star.Command{
	Metadata: star.Metadata{
		Short: "assemble a program into an image",
	},
	Flags: []star.IParam{ConfigParam, encodeParam},
	Pos:   []star.IParam{fileParam, outputFileParam},
	F: func(c star.Context) error {
		ctx, cfg, err := setup(c)
		if err != nil {
			return err
		}
		src := fileParam.Load(c)
		defer src.Close()
		out := outputFileParam.Load(c)
		data, img, err := assemble(src, cfg, encodeParam.Load(c))
		if err != nil {
			return err
		}
		if _, err := out.Write(data); err != nil {
			return err
		}
		logctx.Info(ctx, "assembled", zap.Int("len", len(img.Program)), zap.Bool("encoded", img.Encoded))
		c.Printf("%v\n", svmimage.ID(data))
		return out.Close()
	},
}

var disasmCmd = star.Command{
	Metadata: star.Metadata{
		Short: "print an image as assembly",
	},
	Flags: []star.IParam{ConfigParam},
	Pos:   []star.IParam{fileParam},
	F: func(c star.Context) error {
		_, cfg, err := setup(c)
		if err != nil {
			return err
		}
		f := fileParam.Load(c)
		defer f.Close()
		img, err := readImage(f)
		if err != nil {
			return err
		}
		return disassemble(c.StdOut, img, cfg)
	},
}

var opsCmd = star.Command{
	Metadata: star.Metadata{
		Short: "list the instruction set",
	},
	F: func(c star.Context) error {
		return printOps(c.StdOut)
	},
}

// assemble reads assembly from src and returns the marshaled image.
// When encode is set the program is scrambled under the configured secret.
func assemble(src io.Reader, cfg *svmconfig.Config, encode bool) ([]byte, *svmimage.Image, error) {
	img, err := svmasm.Assemble(src)
	if err != nil {
		return nil, nil, err
	}
	if encode {
		if cfg.Encoding.Secret == "" {
			return nil, nil, errors.New("encoding an image requires encoding.secret")
		}
		if err := img.Encode(scramble.New(cfg.ScrambleConfig())); err != nil {
			return nil, nil, err
		}
	}
	data, err := svmimage.Marshal(img)
	if err != nil {
		return nil, nil, err
	}
	return data, img, nil
}

func readImage(r io.Reader) (*svmimage.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return svmimage.Unmarshal(data)
}

func disassemble(w io.Writer, img *svmimage.Image, cfg *svmconfig.Config) error {
	prog, err := img.Plain(scramble.New(cfg.ScrambleConfig()))
	if err != nil {
		return err
	}
	return svmasm.Disassemble(w, img, prog)
}

func printOps(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "CODE\tNAME\tCLASS\tJIT\n")
	for _, op := range spec.All() {
		fmt.Fprintf(tw, "%d\t%v\t%v\t%v\n", uint8(op), op, op.Class(), op.IsJITable())
	}
	return tw.Flush()
}
