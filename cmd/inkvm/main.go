package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/funvibe/inkvm/internal/config"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "load options from `FILE` instead of the nearest " + config.ConfigFileName,
	}
	noOptFlag = &cli.BoolFlag{
		Name:  "no-opt",
		Usage: "run the generated code without optimization",
	}
	cacheFlag = &cli.StringFlag{
		Name:  "cache",
		Usage: "keep compiled programs in the sqlite database at `PATH`",
	}
	verboseFlag = &cli.BoolFlag{
		Name:  "verbose",
		Usage: "log compiler, optimizer and VM events to stderr",
	}
	printFlag = &cli.BoolFlag{
		Name:    "print",
		Aliases: []string{"p"},
		Usage:   "print the value of the program",
	}
)

func newApp() *cli.App {
	return &cli.App{
		Name:        "inkvm",
		Usage:       "compile and run Ink programs on a register VM",
		Version:     config.Version,
		HideVersion: true,
		Flags:       []cli.Flag{configFlag, noOptFlag, cacheFlag, verboseFlag},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "run a program file",
				ArgsUsage: "<file" + config.SourceFileExt + ">",
				Flags:     []cli.Flag{printFlag},
				Action:    runCommand,
			},
			{
				Name:      "eval",
				Usage:     "run the program given as an argument",
				ArgsUsage: "<program>",
				Flags:     []cli.Flag{printFlag},
				Action:    evalCommand,
			},
			{
				Name:   "repl",
				Usage:  "start an interactive session",
				Action: replCommand,
			},
			{
				Name:      "disasm",
				Usage:     "print the bytecode of a program file",
				ArgsUsage: "<file" + config.SourceFileExt + ">",
				Action:    disasmCommand,
			},
			{
				Name:  "version",
				Usage: "print the inkvm version",
				Action: func(c *cli.Context) error {
					fmt.Fprintf(c.App.Writer, "inkvm v%s\n", config.Version)
					return nil
				},
			},
		},
		// `inkvm file.ink` runs the file; no arguments start the REPL
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return replCommand(c)
			}
			return runCommand(c)
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "inkvm:", err)
		os.Exit(1)
	}
}
