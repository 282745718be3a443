package main

import (
	"fmt"
	"os"

	"gni.dev/xbox/internal/dbg"
)

const usage = `Usage: xbtool <command> [flags]

Commands:
  shell   interactive debug shell
  info    print kernel, modules, threads and drives
  dump    dump the kernel image
  mirror  copy every drive to a local directory`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "shell":
		dbg.RunShell(os.Args[2:])
	case "info":
		dbg.RunInfo(os.Args[2:])
	case "dump":
		dbg.RunDump(os.Args[2:])
	case "mirror":
		dbg.RunMirror(os.Args[2:])
	case "help", "-h", "-help", "--help":
		fmt.Println(usage)
	default:
		fmt.Fprintln(os.Stderr, "Unknown command:", os.Args[1])
		os.Exit(1)
	}
}
