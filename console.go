package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Dragonsize/TDTUmes/p2p"
	"github.com/chzyer/readline"
	"github.com/manifoldco/promptui"
)

type lineReader interface {
	Readline() (string, error)
}

// chatLoop sends every non-empty line until "quit", Ctrl-C, end of input,
// or the reader being closed.
func chatLoop(lines lineReader, send func(string) error, errOut io.Writer) {
	for {
		line, err := lines.Readline()
		if err != nil {
			return
		}

		if strings.EqualFold(line, "quit") {
			return
		}
		if line == "" {
			continue
		}

		if err := send(line); err != nil {
			fmt.Fprintln(errOut, "[CLIENT] Failed to send message")
			if errors.Is(err, errNotConnected) || errors.Is(err, p2p.ErrClosed) {
				return
			}
		}
	}
}

func promptUsername(stdin io.ReadCloser) (string, error) {
	prompt := promptui.Prompt{
		Label: "Enter your username",
		Stdin: stdin,
	}

	name, err := prompt.Run()
	if err != nil {
		return "", err
	}
	return normalizeUsername(name), nil
}

// runClient is the interactive console: it connects, prints forwarded
// messages above the "You: " prompt and sends typed lines.
func runClient(cfg *RelayConfig, username string, stdout, stderr io.Writer) error {
	if username == "" {
		name, err := promptUsername(os.Stdin)
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				return nil
			}
			return err
		}
		username = name
	}

	client := NewMessageClient(MessageClientOpts{
		ServerAddr:   cfg.Addr(),
		Username:     username,
		ChunkSize:    cfg.ChunkSize,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Connect(); err != nil {
		if errors.Is(err, p2p.ErrConnectionRefused) {
			fmt.Fprintln(stderr, "[CLIENT] Connection refused. Is the server running?")
		} else {
			fmt.Fprintf(stderr, "[CLIENT] Connection error: %v\n", err)
		}
		return err
	}
	defer func() {
		client.Disconnect()
		fmt.Fprintln(stdout, "[CLIENT] Disconnected")
	}()

	fmt.Fprintf(stdout, "[CLIENT] Connected to server at %s\n", cfg.Addr())

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "You: ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	go func() {
		for msg := range client.Messages() {
			fmt.Fprintf(rl.Stdout(), "%s\n", msg)
		}

		select {
		case <-client.quitch:
		default:
			fmt.Fprintln(rl.Stderr(), "[CLIENT] Disconnected from server")
			rl.Close()
		}
	}()

	fmt.Fprintln(stdout, "Type your messages (type 'quit' to exit):")
	chatLoop(rl, client.SendMessage, rl.Stderr())
	return nil
}
