package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
)

var (
	app = kingpin.New("ledgerpub", "Publisher identity ruleset service")

	serveCmd = app.Command("serve", "Run the HTTP API").Default()

	validateCmd  = app.Command("validate", "Validate a ruleset file (JSON or YAML)")
	validateFile = validateCmd.Arg("file", "Ruleset file").Required().ExistingFile()
	validateDiff = validateCmd.Flag("diff", "Print a unified diff against the built-in default").Bool()

	identifyCmd     = app.Command("identify", "Resolve the publisher identity of a URL")
	identifyURL     = identifyCmd.Arg("url", "URL to resolve").Required().String()
	identifyRuleset = identifyCmd.Flag("ruleset", "Resolve with this ruleset file instead of the stored one").ExistingFile()

	sessionCmd          = app.Command("session", "Session management")
	sessionIssueCmd     = sessionCmd.Command("issue", "Issue a bearer token")
	sessionIssueSubject = sessionIssueCmd.Flag("subject", "Who the token is for").Required().String()
	sessionIssueScopes  = sessionIssueCmd.Flag("scope", "Granted scope (repeatable)").Default("ledger").Strings()
	sessionIssueTTL     = sessionIssueCmd.Flag("ttl", "Token lifetime; defaults to LEDGERPUB_SESSION_TTL").Duration()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	var err error
	switch command {
	case serveCmd.FullCommand():
		err = runServe()
	case validateCmd.FullCommand():
		err = runValidate(os.Stdout, *validateFile, *validateDiff)
	case identifyCmd.FullCommand():
		err = runIdentify(os.Stdout, *identifyURL, *identifyRuleset)
	case sessionIssueCmd.FullCommand():
		err = runSessionIssue(os.Stdout, *sessionIssueSubject, *sessionIssueScopes, *sessionIssueTTL)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "ledgerpub: %v\n", err)
		os.Exit(1)
	}
}
