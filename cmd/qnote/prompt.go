package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// confirm asks a yes/no question on the terminal. With --yes it returns
// true without asking. Without a terminal and without --yes it refuses.
func confirm(cmd *cobra.Command, question string) (bool, error) {
	if yes, _ := cmd.Flags().GetBool("yes"); yes {
		return true, nil
	}
	if !stdinIsTerminal() {
		return false, fmt.Errorf("stdin is not a terminal: pass --yes to confirm")
	}

	fmt.Fprintf(os.Stderr, "%s [y/N]: ", question)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("reading answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// readPassphrase reads a passphrase from the terminal without echo.
func readPassphrase(prompt string) (string, error) {
	if !stdinIsTerminal() {
		return "", fmt.Errorf("stdin is not a terminal: cannot read passphrase")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

// readNewPassphrase asks twice and requires both answers to match.
func readNewPassphrase() (string, error) {
	p1, err := readPassphrase("New passphrase: ")
	if err != nil {
		return "", err
	}
	p2, err := readPassphrase("Repeat passphrase: ")
	if err != nil {
		return "", err
	}
	if p1 != p2 {
		return "", fmt.Errorf("passphrases do not match")
	}
	return p1, nil
}
