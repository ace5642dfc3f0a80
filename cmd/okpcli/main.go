package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/okpass/mobilecore/internal/buildinfo"
	"github.com/okpass/mobilecore/internal/devcli"
	"github.com/okpass/mobilecore/internal/flagx"
)

func main() {
	buildinfo.PrintBuildData(os.Stdout)

	home := flagx.StringFlag("home", "d", "data directory (default ~/.okpass)")

	passphrase, err := devcli.GetPassword(bufio.NewReader(os.Stdin), "Dev passphrase: ", os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading passphrase: %v\n", err)
		os.Exit(1)
	}

	app, err := devcli.NewApp(home, passphrase)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error starting app: %v\n", err)
		os.Exit(1)
	}

	app.Run(context.Background())
}
