package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/MrCodeEU/lpad/pkg/admin"
)

// askFunc reads one answer for prompt.
type askFunc func(prompt string) (string, error)

var errPasswordMismatch = errors.New("passwords do not match")

// terminalAsk reads without echo from a terminal and falls back to a plain
// line read when stdin is piped.
func terminalAsk(in *os.File, out io.Writer) askFunc {
	reader := bufio.NewReader(in)
	return func(prompt string) (string, error) {
		fmt.Fprint(out, prompt)
		fd := int(in.Fd())
		if term.IsTerminal(fd) {
			b, err := term.ReadPassword(fd)
			fmt.Fprintln(out)
			if err != nil {
				return "", err
			}
			return string(b), nil
		}
		line, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
}

// choosePassword asks for a new password twice and stores it.
func choosePassword(store *admin.Store, ask askFunc) error {
	first, err := ask("New admin password: ")
	if err != nil {
		return err
	}
	second, err := ask("Repeat admin password: ")
	if err != nil {
		return err
	}
	if first != second {
		return errPasswordMismatch
	}
	return store.Set(first)
}

// authorize checks the admin password. Without a configured password the
// user is asked to choose one first.
func authorize(store *admin.Store, ask askFunc, out io.Writer) error {
	if !store.Exists() {
		fmt.Fprintln(out, "No admin password set yet. Choose one now.")
		return choosePassword(store, ask)
	}
	password, err := ask("Admin password: ")
	if err != nil {
		return err
	}
	return store.Verify(password)
}

func authorizeAdmin() error {
	store := admin.NewStore(cfg.Admin.SecretFile)
	return authorize(store, terminalAsk(os.Stdin, os.Stdout), os.Stdout)
}

func cmdPasswd(args []string) error {
	store := admin.NewStore(cfg.Admin.SecretFile)
	ask := terminalAsk(os.Stdin, os.Stdout)

	if store.Exists() {
		current, err := ask("Current admin password: ")
		if err != nil {
			return err
		}
		if err := store.Verify(current); err != nil {
			return err
		}
	}
	if err := choosePassword(store, ask); err != nil {
		return err
	}

	fmt.Println("Admin password updated.")
	return nil
}
