package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/pan-thu/lets-talk-sub000/core/course"
	"github.com/pan-thu/lets-talk-sub000/core/enrollment"
	"github.com/pan-thu/lets-talk-sub000/core/user"
)

var (
	isTerminalFunc = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) } // mockable

	errHelp    = errors.New("help provided")
	errAborted = errors.New("aborted")
)

// cliAdmin is the actor recorded for reviews done from the command line.
var cliAdmin = user.User{ID: "cli:admin", Username: "admin", Roles: []string{user.RoleAdmin}}

type commandLine struct {
	out       io.Writer
	in        io.Reader
	migrator  migrator
	courseSvc *course.Service
	enrSvc    *enrollment.Service
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate up|down|status|version|up-to VERSION|down-to VERSION - manage the database schema")
	fmt.Fprintln(cli.out, "  addcourse -title TITLE -teacher ID [-price CENTS] [-currency CUR] [-publish] - create a course")
	fmt.Fprintln(cli.out, "  addlesson -course ID -title TITLE [-position N] - add a lesson to a course")
	fmt.Fprintln(cli.out, "  payments [-status STATUS[,STATUS]] [-course ID] - list payments awaiting review")
	fmt.Fprintln(cli.out, "  approve -payment ID - confirm a payment and activate its enrollment")
	fmt.Fprintln(cli.out, "  reject -payment ID [-reason REASON] - refuse a payment")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(ctx, args[2:])
	case "addcourse":
		return cli.addCourse(ctx, args[2:])
	case "addlesson":
		return cli.addLesson(ctx, args[2:])
	case "payments":
		return cli.payments(ctx, args[2:])
	case "approve", "reject":
		return cli.review(ctx, args[1], args[2:])
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

// confirm asks for a y/N answer when attached to a terminal; scripted runs proceed.
func (cli *commandLine) confirm(question string) error {
	if !isTerminalFunc() {
		return nil
	}
	fmt.Fprintf(cli.out, "%s [y/N]: ", question)
	answer, _ := bufio.NewReader(cli.in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return nil
	}
	return errAborted
}
