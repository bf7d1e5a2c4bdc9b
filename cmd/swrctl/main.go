package main

import (
	"context"
	"fmt"
	"os"

	"github.com/unkn0wn-root/swrcache/internal/command"
	mylog "github.com/unkn0wn-root/swrcache/internal/log"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	mylog.InitLogger()

	app := command.InitApp(os.Stdout, os.Stderr)
	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
