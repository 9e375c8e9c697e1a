package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/elsanchez/imagine-gateway/internal/ssoimport"
	"github.com/elsanchez/imagine-gateway/internal/tui/pool"
	"github.com/elsanchez/imagine-gateway/pkg/client"
)

const version = "2.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	c := client.NewDefaultClient()

	switch os.Args[1] {
	case "generate", "gen":
		handleGenerate(c, os.Args[2:])
	case "status":
		handleStatus(c)
	case "reload":
		handleReload(c)
	case "reset-usage":
		handleResetUsage(c)
	case "history":
		handleHistory(c, os.Args[2:])
	case "images":
		handleImages(c, os.Args[2:])
	case "sso":
		handleSSO(c, os.Args[2:])
	case "version":
		fmt.Printf("igw v%s\n", version)
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Imagine Gateway CLI (igw) v` + version + `

Usage: igw <command> [args]

Commands:
  generate <prompt>    Generate images
  status               Show credential pool status
  reload               Reload the credential file
  reset-usage          Reset daily usage counters
  history [limit]      Show recent generations (default: 20)
  images [limit]       List stored images (default: 20)
  images clear         Delete all stored images
  sso                  Open the pool monitor TUI
  sso import           Import sso cookies from browsers
  version              Show version
  help                 Show this help

Generate Options:
  --n <count>          Number of images (1-4)
  --size <size>        Image size (1024x1024, 1024x1536, 1536x1024)
  --stream             Show progress while generating
  --b64                Print base64 payloads instead of URLs

Import Options:
  --browser <name>     Only read from one browser (chrome, firefox, ...)
  --domain <domain>    Cookie domain (default: grok.com)
  --file <path>        Credential file to update (default: key.txt)
  --reload             Ask the gateway to reload after importing

Environment:
  IGW_BASE_URL         Gateway address (default: http://127.0.0.1:9563)
  IGW_API_KEY          API key if the gateway requires one

Examples:
  igw generate "a red fox in the snow"
  igw generate "a red fox" --n 2 --stream
  igw status
  igw sso import --browser firefox`)
}

func handleGenerate(c *client.Client, args []string) {
	flags := flag.NewFlagSet("generate", flag.ExitOnError)
	n := flags.Int("n", 0, "Number of images (1-4)")
	size := flags.String("size", "", "Image size")
	stream := flags.Bool("stream", false, "Show progress while generating")
	b64 := flags.Bool("b64", false, "Print base64 payloads instead of URLs")

	if len(args) == 0 || args[0] == "" {
		fmt.Println("Error: prompt is required")
		os.Exit(1)
	}
	prompt := args[0]
	if len(args) > 1 {
		flags.Parse(args[1:])
	}

	req := client.GenerateRequest{
		Prompt: prompt,
		N:      *n,
		Size:   *size,
	}
	if *b64 {
		req.ResponseFormat = "b64_json"
	}

	ctx := context.Background()
	start := time.Now()

	var resp *client.GenerateResponse
	var err error
	if *stream {
		fmt.Printf("Generating: %s\n", prompt)
		resp, err = c.GenerateStream(ctx, req, func(p client.ProgressUpdate) {
			fmt.Printf("  %s → %s (%s)\n", short(p.ImageID), p.Stage, p.Progress)
		})
	} else {
		fmt.Println("Generating... (this can take a minute)")
		resp, err = c.Generate(ctx, req)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n✓ %d images in %s\n", len(resp.Data), time.Since(start).Round(time.Second))
	for i, img := range resp.Data {
		if img.B64JSON != "" {
			fmt.Printf("  [%d] %s\n", i+1, img.B64JSON)
		} else {
			fmt.Printf("  [%d] %s\n", i+1, img.URL)
		}
	}
}

func handleStatus(c *client.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status, err := c.Status(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	p := status.Pool
	fmt.Printf("Credential pool: %d total, %d available, %d exhausted, %d failed\n",
		p.Total, p.Available, p.Exhausted, p.Failed)
	fmt.Printf("Strategy: %s  Daily limit: %d\n", p.Strategy, p.DailyLimit)
	if !p.NextReset.IsZero() {
		fmt.Printf("Next reset: %s\n", p.NextReset.Local().Format("2006-01-02 15:04"))
	}
	fmt.Println()
	for _, cred := range p.Credentials {
		state := "ok"
		if cred.Failed {
			state = "failed"
		} else if cred.Remaining <= 0 {
			state = "exhausted"
		}
		age := " "
		if cred.AgeVerified {
			age = "✓"
		}
		fmt.Printf("  %-14s %2d/%-2d age:%s %s\n",
			cred.Key, cred.UsageCount, cred.DailyLimit, age, state)
	}
}

func handleReload(c *client.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count, err := c.Reload(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Reloaded: %d credentials\n", count)
}

func handleResetUsage(c *client.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.ResetUsage(ctx); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✓ Daily usage counters reset")
}

func handleHistory(c *client.Client, args []string) {
	limit := parseLimit(args, 20)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	records, err := c.History(ctx, limit)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if len(records) == 0 {
		fmt.Println("No generations recorded")
		return
	}

	for _, rec := range records {
		mark := "✓"
		detail := fmt.Sprintf("%d images, %s", rec.Produced, rec.Duration.Round(time.Second))
		if rec.Status != "completed" {
			mark = "✗"
			detail = rec.ErrorCode
		}
		fmt.Printf("%s %s  %-40s %s\n",
			mark, rec.CreatedAt.Local().Format("01-02 15:04"), truncate(rec.Prompt, 40), detail)
	}
}

func handleImages(c *client.Client, args []string) {
	if len(args) > 0 && args[0] == "clear" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		deleted, err := c.ClearImages(ctx)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✓ Deleted %d images\n", deleted)
		return
	}

	limit := parseLimit(args, 20)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	images, err := c.ListImages(ctx, limit)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if len(images) == 0 {
		fmt.Println("No images stored")
		return
	}
	for _, img := range images {
		fmt.Printf("%s  %8d  %s\n", img.ModTime.Local().Format("01-02 15:04"), img.Size, img.URL)
	}
}

func handleSSO(c *client.Client, args []string) {
	if len(args) > 0 && args[0] == "import" {
		handleSSOImport(c, args[1:])
		return
	}

	p := tea.NewProgram(pool.NewModel(c), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func handleSSOImport(c *client.Client, args []string) {
	flags := flag.NewFlagSet("sso import", flag.ExitOnError)
	browser := flags.String("browser", "", "Only read from one browser")
	domain := flags.String("domain", ssoimport.DefaultDomain, "Cookie domain")
	file := flags.String("file", "key.txt", "Credential file to update")
	reload := flags.Bool("reload", false, "Ask the gateway to reload after importing")
	flags.Parse(args)

	fmt.Printf("Reading sso cookies for %s...\n", *domain)
	tokens, err := ssoimport.Extract(context.Background(), ssoimport.Options{
		Browser: *browser,
		Domain:  *domain,
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		fmt.Printf("Supported browsers: %v\n", ssoimport.SupportedBrowsers())
		os.Exit(1)
	}
	fmt.Printf("Found %d tokens\n", len(tokens))

	added, err := ssoimport.MergeIntoFile(*file, tokens)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if added == 0 {
		fmt.Println("Nothing new: all tokens were already present")
		return
	}
	fmt.Printf("✓ Added %d tokens to %s\n", added, *file)

	if *reload {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		count, err := c.Reload(ctx)
		if err != nil {
			fmt.Printf("Import done, but reload failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✓ Gateway reloaded: %d credentials\n", count)
		return
	}
	fmt.Println("Run 'igw reload' so the gateway picks them up")
}

func parseLimit(args []string, fallback int) int {
	if len(args) == 0 {
		return fallback
	}
	if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
		return n
	}
	return fallback
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
