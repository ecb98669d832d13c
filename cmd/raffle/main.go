package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var version = "dev"

var (
	urlFlag = &cli.StringFlag{
		Name:    "url",
		Usage:   "the url of the raffle daemon",
		Value:   "http://localhost:7171",
		EnvVars: []string{"RAFFLE_URL"},
	}
	callerFlag = &cli.StringFlag{
		Name:    "caller",
		Usage:   "the identity to act as",
		EnvVars: []string{"RAFFLE_CALLER"},
	}
	tlsCertFlag = &cli.StringFlag{
		Name:  "tls-cert-path",
		Usage: "the path of the daemon TLS certificate",
	}
)

func main() {
	app := cli.NewApp()

	app.Version = version
	app.Name = "raffle CLI"
	app.Usage = "Command line interface for the raffle daemon"
	app.Flags = []cli.Flag{urlFlag, callerFlag, tlsCertFlag}
	app.Commands = append(
		app.Commands,
		openCmd,
		buyCmd,
		roundCmd,
		roundsCmd,
		remainingCmd,
		balanceCmd,
		historyCmd,
		drawCmd,
		retryCmd,
		operatorCmd,
	)

	if err := app.Run(os.Args); err != nil {
		fmt.Println(fmt.Errorf("error: %v", err))
		os.Exit(1)
	}
}
