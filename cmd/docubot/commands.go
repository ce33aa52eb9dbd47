package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mike-a-ellis/docubot/internal/docubot"
	ghclient "github.com/mike-a-ellis/docubot/internal/github"
	"github.com/mike-a-ellis/docubot/internal/indexer"
	"github.com/mike-a-ellis/docubot/internal/tui"
	"github.com/mike-a-ellis/docubot/internal/watcher"
)

var (
	githubRepo string
	githubPath string
	githubRef  string
	githubList bool
	debounce   time.Duration
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Index a document, replacing the one indexed before",
	Long: `Saves the document to the documents directory, splits it into chunks, embeds the
chunks and replaces the contents of the vector index with them.

With --github the document is downloaded from a repository instead:
  docubot ingest --github owner/repo --path docs/handbook.pdf [--ref main]

--list prints the ingestible files under --path (the repository root by default)
without indexing anything:
  docubot ingest --github owner/repo --list [--path docs]`,
	Args: func(cmd *cobra.Command, args []string) error {
		if githubRepo != "" || githubList {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: runIngest,
}

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Answer a question about the indexed document",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var chatCmd = &cobra.Command{
	Use:   "chat [file]",
	Short: "Chat about a document in the terminal",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runChat,
}

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Index documents as they are written to a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the vector index state",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	ingestCmd.Flags().StringVar(&githubRepo, "github", "", "fetch the document from GitHub repository owner/repo")
	ingestCmd.Flags().StringVar(&githubPath, "path", "", "file path within the GitHub repository")
	ingestCmd.Flags().StringVar(&githubRef, "ref", "", "branch, tag or commit (default: repository default branch)")
	ingestCmd.Flags().BoolVar(&githubList, "list", false, "with --github, list ingestible files under --path instead of indexing")
	watchCmd.Flags().DurationVar(&debounce, "debounce", watcher.DefaultDebounce, "quiet period before a changed file is indexed")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if githubList {
		return listGitHubDocuments(ctx)
	}

	a, _, done, err := setup(ctx, "ingest", false)
	if err != nil {
		return err
	}
	defer done()

	var res *indexer.IngestResult
	if githubRepo != "" {
		if githubPath == "" {
			return errors.New("--path is required with --github")
		}
		fetcher, err := newGitHubFetcher()
		if err != nil {
			return err
		}

		fmt.Printf("Fetching %s from %s...\n", githubPath, githubRepo)
		file, err := fetcher.FetchFile(ctx, githubPath)
		if err != nil {
			return fmt.Errorf("%s: %w", docubot.UserMessage(err), err)
		}
		res, err = a.Service.Ingest(ctx, file.Name, bytes.NewReader(file.Content))
		if err != nil {
			return errors.New(docubot.UserMessage(err))
		}
	} else {
		fmt.Printf("Indexing %s...\n", args[0])
		res, err = a.Pipeline.IngestFile(ctx, args[0])
		if err != nil {
			return errors.New(docubot.UserMessage(err))
		}
	}

	fmt.Println()
	fmt.Println("Ingestion complete")
	fmt.Printf("Saved to:  %s\n", res.Path)
	fmt.Printf("Documents: %d\n", res.Documents)
	fmt.Printf("Chunks:    %d\n", res.Chunks)
	fmt.Printf("Duration:  %s\n", res.Duration.Round(time.Millisecond))
	return nil
}

func newGitHubFetcher() (*ghclient.Fetcher, error) {
	owner, repo, err := ghclient.ParseRepo(githubRepo)
	if err != nil {
		return nil, err
	}
	client, err := ghclient.NewClient(os.Getenv("GITHUB_TOKEN"))
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}
	return ghclient.NewFetcher(client, owner, repo, githubRef), nil
}

func listGitHubDocuments(ctx context.Context) error {
	if githubRepo == "" {
		return errors.New("--list requires --github")
	}
	fetcher, err := newGitHubFetcher()
	if err != nil {
		return err
	}
	paths, err := fetcher.ListDocuments(ctx, githubPath)
	if err != nil {
		return fmt.Errorf("%s: %w", docubot.UserMessage(err), err)
	}
	if len(paths) == 0 {
		fmt.Println("No ingestible files found.")
		return nil
	}
	for _, p := range paths {
		fmt.Println(p)
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, _, done, err := setup(cmd.Context(), "ask", false)
	if err != nil {
		return err
	}
	defer done()

	answer, err := a.Service.Ask(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return errors.New(docubot.UserMessage(err))
	}
	fmt.Println(answer)
	return nil
}

func runChat(cmd *cobra.Command, args []string) error {
	a, _, done, err := setup(cmd.Context(), "chat", true)
	if err != nil {
		return err
	}
	defer done()

	var file string
	if len(args) == 1 {
		file = args[0]
	}
	return tui.Run(cmd.Context(), a.Service, file)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, logger, done, err := setup(ctx, "watch", false)
	if err != nil {
		return err
	}
	defer done()

	if err := a.CheckWatchDir(args[0]); err != nil {
		return err
	}

	w, err := watcher.New(a.Pipeline, debounce, logger)
	if err != nil {
		return err
	}
	defer w.Close()

	events, err := w.Watch(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Watching %s (Ctrl+C to stop)\n", args[0])
	for ev := range events {
		if ev.Err != nil {
			fmt.Printf("%s: %s\n", ev.Path, docubot.UserMessage(ev.Err))
			continue
		}
		fmt.Printf("%s: indexed %d chunks\n", ev.Path, ev.Result.Chunks)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, _, done, err := setup(cmd.Context(), "status", false)
	if err != nil {
		return err
	}
	defer done()

	st, err := a.Service.Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("vector index unhealthy: %w", err)
	}
	fmt.Printf("Backend: %s\n", a.Config.Index.Backend)
	fmt.Printf("Index:   %s\n", st.Name)
	fmt.Printf("State:   %s\n", st.State)
	return nil
}
