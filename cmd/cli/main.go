package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dvloznov/bank-assistant/internal/app"
	"github.com/dvloznov/bank-assistant/internal/archive"
	"github.com/dvloznov/bank-assistant/internal/config"
	"github.com/dvloznov/bank-assistant/internal/intent"
	"github.com/dvloznov/bank-assistant/internal/logger"
	"github.com/dvloznov/bank-assistant/internal/session"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "chat":
		runChat(log)
	case "ask":
		runAsk(log)
	case "classify":
		runClassify()
	case "transcript":
		runTranscript(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Bank Assistant CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  chat        Start an interactive conversation")
	fmt.Println("  ask         Answer a single query")
	fmt.Println("  classify    Show the intent detected for a query")
	fmt.Println("  transcript  Print an archived session")
	fmt.Println("  help        Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// load parses the shared configuration flags plus any extra ones the
// command registered on fs, then builds and starts the assistant.
func load(fs *flag.FlagSet, log zerolog.Logger) (*app.App, zerolog.Logger) {
	cfg, err := config.Load(fs, os.Args[2:])
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	// Log to stderr at warn by default so responses stay readable.
	level := cfg.LogLevel
	if !flagSet(fs, "log-level") && os.Getenv("LOG_LEVEL") == "" {
		level = "warn"
	}
	log, err = logger.NewWithLevel(os.Stderr, level, cfg.LogFormat)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create logger")
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize assistant")
	}
	if err := a.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start background workers")
	}
	return a, log
}

func flagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func shutdown(a *app.App, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Error flushing archive")
	}
}

func runChat(log zerolog.Logger) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	userID := fs.String("user", "", "Account id to answer for (empty uses the default account)")
	a, log := load(fs, log)
	defer shutdown(a, log)

	sess := session.New(fmt.Sprintf("cli-%d", time.Now().UnixNano()))
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		fmt.Println("Bank Assistant. Type 'exit' to quit.")
	}
	chatLoop(context.Background(), os.Stdin, os.Stdout, interactive, func(ctx context.Context, query string) string {
		return a.Assistant.Respond(ctx, query, *userID, sess)
	})
}

// chatLoop reads queries line by line until EOF or an exit command. The
// prompt is only printed when prompt is set, so piped input produces
// answers alone.
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, prompt bool, respond func(context.Context, string) string) {
	scanner := bufio.NewScanner(in)
	for {
		if prompt {
			fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			if prompt {
				fmt.Fprintln(out)
			}
			return
		}
		query := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(query) {
		case "":
			continue
		case "exit", "quit":
			return
		}
		fmt.Fprintln(out, respond(ctx, query))
		fmt.Fprintln(out)
	}
}

func runAsk(log zerolog.Logger) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	userID := fs.String("user", "", "Account id to answer for (empty uses the default account)")
	query := fs.String("q", "", "Query to answer")
	a, log := load(fs, log)
	defer shutdown(a, log)

	if strings.TrimSpace(*query) == "" {
		log.Fatal().Msg("Usage: cli ask -q QUERY [-user ID]")
	}

	fmt.Println(a.Assistant.Respond(context.Background(), *query, *userID, nil))
}

func runClassify() {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	query := strings.Join(fs.Args(), " ")
	if query == "" {
		fmt.Fprintln(os.Stderr, "Usage: cli classify QUERY...")
		os.Exit(1)
	}

	fmt.Println(describeIntent(intent.NewDefault(), query))
}

func describeIntent(c *intent.Classifier, query string) string {
	in, ok := c.Classify(query)
	if !ok {
		return "no intent (generative fallback)"
	}
	return string(in)
}

func runTranscript(log zerolog.Logger) {
	fs := flag.NewFlagSet("transcript", flag.ExitOnError)
	sessionID := fs.String("session", "", "Session id to print")
	a, log := load(fs, log)
	defer shutdown(a, log)

	if *sessionID == "" {
		log.Fatal().Msg("Usage: cli transcript -session ID [-project P -dataset D | -database-url URL]")
	}
	if a.Archive == nil {
		log.Fatal().Msg("No archive is configured (set -project and -dataset, or -database-url)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	rows, err := a.Archive.ListTurns(ctx, *sessionID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read transcript")
	}
	printTranscript(os.Stdout, rows)
}

func printTranscript(out io.Writer, rows []*archive.TurnRow) {
	if len(rows) == 0 {
		fmt.Fprintln(out, "No turns found.")
		return
	}
	for _, r := range rows {
		fmt.Fprintf(out, "[%d] %s (%s)\n%s\n\n", r.TurnIndex, r.Role, r.CreatedTS.Format(time.RFC3339), r.Content)
	}
}
