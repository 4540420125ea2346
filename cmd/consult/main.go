// consult is an interactive terminal client for the conversation backend.
// It opens one session over the authenticated websocket channel and renders
// the reconstructed message stream as it arrives.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lumenhealth/consult/internal/channel"
	"github.com/lumenhealth/consult/internal/config"
	"github.com/lumenhealth/consult/internal/credstore"
	"github.com/lumenhealth/consult/internal/session"
)

func main() {
	server := flag.String("server", config.GetServerURL(), "Backend server URL")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := resolveCredentials(ctx, *server)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ch := channel.New(*server, store)
	sess := session.New(ch)
	ch.Connect(ctx, sess.Handlers())
	defer ch.Disconnect()

	if !ch.IsConnected() {
		fmt.Fprintln(os.Stderr, "Error: could not connect (check CONSULT_TOKEN or the server URL)")
		os.Exit(1)
	}

	fmt.Printf("consult connected to %s\n", *server)
	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	if err := run(ctx, sess); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

// resolveCredentials prefers an externally supplied token and falls back to
// minting a development token from the reference backend.
func resolveCredentials(ctx context.Context, server string) (credstore.Store, error) {
	envStore := credstore.EnvStore{}
	if token, _ := envStore.AccessToken(ctx); token != "" {
		return envStore, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/token", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("minting dev token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("parsing token response: %w", err)
	}
	return credstore.NewMemoryStore(tokenResp.AccessToken), nil
}

func run(ctx context.Context, sess *session.Session) error {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")

		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)

		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else {
				if err := scanner.Err(); err != nil {
					errCh <- err
				} else {
					errCh <- io.EOF
				}
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		switch {
		case input == "/quit" || input == "/exit" || input == "/q":
			return nil
		case input == "/clear":
			sess.ClearMessages()
			fmt.Println("Session cleared")
			fmt.Println()
			continue
		case input == "/history":
			printHistory(sess)
			fmt.Println()
			continue
		case input == "/status":
			fmt.Printf("Connection: %s, streaming: %v\n\n", sess.Status(), sess.IsStreaming())
			continue
		case input == "/help":
			printHelp()
			fmt.Println()
			continue
		}

		sess.SendMessage(input)
		streamResponse(ctx, sess)
		fmt.Println()
	}
}

// streamResponse prints the assistant response incrementally as the session
// folds events into the tail message.
func streamResponse(ctx context.Context, sess *session.Session) {
	var printed int
	var printedLabel string

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(30 * time.Millisecond):
		}

		msgs := sess.Messages()
		if len(msgs) == 0 {
			return
		}

		tail := msgs[len(msgs)-1]
		if tail.Role == session.RoleAssistant && !tail.IsThinking() {
			if tail.ToolCall != "" && tail.ToolCall != printedLabel {
				printedLabel = tail.ToolCall
				fmt.Printf("\033[2m[%s]\033[0m\n", printedLabel)
			}
			if len(tail.Content) > printed {
				fmt.Print(tail.Content[printed:])
				printed = len(tail.Content)
			} else if len(tail.Content) < printed {
				// A completion or error replaced the accumulated content
				// wholesale; reprint it.
				fmt.Printf("\n%s", tail.Content)
				printed = len(tail.Content)
			}
		}

		if !sess.IsStreaming() {
			fmt.Println()
			return
		}
	}
}

func printHistory(sess *session.Session) {
	msgs := sess.Messages()
	if len(msgs) == 0 {
		fmt.Println("No messages in this session")
		return
	}

	for _, m := range msgs {
		prefix := "\033[34m>\033[0m"
		if m.Role == session.RoleAssistant {
			prefix = "\033[32m<\033[0m"
		}
		content := m.Content
		if m.IsThinking() {
			content = "(thinking)"
		}
		fmt.Printf("%s %s\n", prefix, content)
	}
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /history       Show the current session transcript")
	fmt.Println("  /clear         Clear the session on both ends")
	fmt.Println("  /status        Show connection and streaming state")
	fmt.Println("  /help          Show this help")
	fmt.Println("  /quit          Exit")
}
