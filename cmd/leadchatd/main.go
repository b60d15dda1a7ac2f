package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/leadchat/internal/daemon"
	"github.com/matheus3301/leadchat/internal/session"
	"go.uber.org/fx"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	ownerFlag := flag.String("owner", "", "owner id (overrides config owner_id)")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *ownerFlag != "" {
		if err := session.ValidateOwnerID(*ownerFlag); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}

	app := fx.New(
		daemon.Module(daemon.Params{SessionName: sessionName, OwnerID: *ownerFlag}),
	)

	app.Run()
}
