// Command hintspec inspects type hints: it parses a hint expression,
// prints its canonical forms and compiled check program, and optionally
// checks a YAML-encoded value against it.
//
//	hintspec 'int | list[str]'
//	echo '[1, 2, "x"]' | hintspec -value - -linear 'list[int]'
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	yaml "github.com/itchyny/go-yaml"
	"github.com/mattn/go-isatty"

	"github.com/typegate-dev/typegate/hint"
	"github.com/typegate-dev/typegate/hintexec"
	"github.com/typegate-dev/typegate/pkg/hintfmt"
)

const name = "hintspec"

var (
	valuePath  = flag.String("value", "", "YAML file holding the value to check, or - for stdin")
	configPath = flag.String("config", "", "YAML engine configuration file")
	linear     = flag.Bool("linear", false, "use the linear checking strategy")
	quiet      = flag.Bool("quiet", false, "print only the verdict")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <hint expression>\n", name)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(1)
	}
}

func run(expr string) error {
	conf, err := loadConf()
	if err != nil {
		return err
	}

	h, err := hint.Parse(expr, hintexec.DefaultRegistry.Lookup)
	if err != nil {
		return fmt.Errorf("parse %q: %w", expr, err)
	}

	s, err := hintexec.SanifyLoose(h, conf)
	if err != nil {
		return err
	}
	prog, err := hintexec.Synthesize(s, conf)
	if err != nil {
		return err
	}

	if !*quiet {
		fmt.Printf("hint:     %s\n", hintfmt.Format(h))
		fmt.Printf("repr:     %s\n", hint.Repr(hint.Coerce(h)))
		fmt.Printf("strategy: %s\n", conf.Strategy())
		fmt.Printf("program:\n%s", prog.Text())
	}
	if *valuePath == "" {
		return nil
	}

	v, err := loadValue(*valuePath)
	if err != nil {
		return err
	}
	verr := hintexec.Die(v, h, conf)
	if verr == nil {
		fmt.Printf("verdict:  %s\n", colorize("pass", 32))
		return nil
	}
	fmt.Printf("verdict:  %s\n", colorize("fail", 31))
	fmt.Printf("why:      %v\n", verr)
	os.Exit(1)
	return nil
}

func loadConf() (*hintexec.Config, error) {
	var conf *hintexec.Config
	if *configPath != "" {
		c, err := hintexec.LoadConfig(*configPath)
		if err != nil {
			return nil, err
		}
		conf = c
	} else {
		conf = hintexec.DefaultConfig()
	}
	if *linear {
		spec := conf.Spec()
		spec.Strategy = hintexec.StrategyLinear
		return hintexec.NewConfig(spec)
	}
	return conf, nil
}

func loadValue(path string) (any, error) {
	var src []byte
	var err error
	if path == "-" {
		src, err = io.ReadAll(os.Stdin)
	} else {
		src, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	var v any
	if err := yaml.Unmarshal(src, &v); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return v, nil
}

func colorize(s string, code int) string {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return s
	}
	return fmt.Sprintf("\x1b[%dm%s\x1b[0m", code, s)
}
