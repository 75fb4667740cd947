package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/tendant/simple-docstore/pkg/docstore"
	"github.com/tendant/simple-docstore/pkg/docstore/config"
	pgevents "github.com/tendant/simple-docstore/pkg/docstore/events/postgres"
	"github.com/tendant/simple-docstore/pkg/docstore/scan"
)

const usage = `Document Store Admin CLI

Inspects and edits the configured document store directly.

USAGE:
  docstore-admin [--config=<file>] <command> [options] <args>

COMMANDS:
  list                              List available documents
  annotations <document-id>         List annotation layers of a document
  get <document-id>                 Write a document to stdout (or --out)
  put <document-id> <file>          Save a file over a document
  create <document-id> <file>       Create a document
  sparse <document-id>              Fetch a window of a sparse document
  delete-annotation <id> <layer>    Delete an annotation layer
  inventory [--match=<glob>]        Summarize annotation layers (--pages adds TIFF page counts)
  events <document-id>              List recorded events (postgres event sink)

ENVIRONMENT VARIABLES:
  DOCSTORE_BACKEND                  memory, fs or s3 (default: memory)
  DOCSTORE_FOLDER                   Key folder inside the store
  DOCSTORE_FS_BASE_DIR              Base directory of the fs backend
  DOCSTORE_S3_BUCKET, DOCSTORE_S3_REGION,
  DOCSTORE_S3_ACCESS_KEY_ID, DOCSTORE_S3_SECRET_ACCESS_KEY
  DOCSTORE_EVENT_SINK               noop, log or postgres
  DOCSTORE_EVENTS_DATABASE_URL      PostgreSQL connection string for events

  Configuration can be loaded from a .env file in the current directory.
  Command line environment variables override .env file values.

EXAMPLES:
  docstore-admin list --json
  docstore-admin create "Attachment.pdf" ./a.pdf --attachment --parent=mail.eml
  docstore-admin sparse SparseDocument:scan42 --start=10 --count=5
  docstore-admin delete-annotation contract.pdf signatures
  docstore-admin inventory --match="*.tif" --pages --json
`

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	configFile := flag.String("config", "", "YAML, JSON or TOML configuration file")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Println(usage)
		os.Exit(1)
	}

	command := flag.Arg(0)
	if command == "help" {
		fmt.Println(usage)
		os.Exit(0)
	}

	opts := []config.Option{config.WithEnv()}
	if *configFile != "" {
		opts = append(opts, config.WithFile(*configFile))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	ctx := context.Background()
	args := flag.Args()[1:]

	if command == "events" {
		handleEvents(ctx, cfg, args)
		return
	}

	svc, cleanup, err := cfg.BuildService(ctx, logger, nil)
	if err != nil {
		log.Fatalf("Failed to create document store service: %v", err)
	}
	defer cleanup()

	switch command {
	case "list":
		handleList(ctx, svc, args)
	case "annotations":
		handleAnnotations(ctx, svc, args)
	case "get":
		handleGet(ctx, svc, args)
	case "put":
		handlePut(ctx, svc, args)
	case "create":
		handleCreate(ctx, svc, args)
	case "sparse":
		handleSparse(ctx, svc, args)
	case "delete-annotation":
		handleDeleteAnnotation(ctx, svc, args)
	case "inventory":
		handleInventory(ctx, svc, logger, args)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Println(usage)
		os.Exit(1)
	}
}

// parseArgs parses command flags and checks the positional argument count
func parseArgs(fs *flag.FlagSet, args []string, want int) []string {
	if err := fs.Parse(reorder(args)); err != nil {
		os.Exit(2)
	}
	if fs.NArg() != want {
		fmt.Fprintf(os.Stderr, "%s: expected %d argument(s), got %d\n\n", fs.Name(), want, fs.NArg())
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	return fs.Args()
}

// reorder moves flags ahead of positional arguments so both orders work
func reorder(args []string) []string {
	var flags, positional []string
	for _, arg := range args {
		if len(arg) > 1 && arg[0] == '-' {
			flags = append(flags, arg)
		} else {
			positional = append(positional, arg)
		}
	}
	return append(flags, positional...)
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

func handleList(ctx context.Context, svc docstore.Service, args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	useJSON := fs.Bool("json", false, "output as JSON")
	parseArgs(fs, args, 0)

	ids, err := svc.ListDocuments(ctx)
	if err != nil {
		log.Fatalf("Failed to list documents: %v", err)
	}

	if *useJSON {
		printJSON(ids)
		return
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	fmt.Printf("\nTotal: %d\n", len(ids))
}

func handleAnnotations(ctx context.Context, svc docstore.Service, args []string) {
	fs := flag.NewFlagSet("annotations", flag.ExitOnError)
	useJSON := fs.Bool("json", false, "output as JSON")
	pos := parseArgs(fs, args, 1)

	layers, err := svc.GetAllAnnotations(ctx, docstore.AnnotationRequest{DocumentID: pos[0]})
	if err != nil {
		log.Fatalf("Failed to list annotations: %v", err)
	}

	if *useJSON {
		printJSON(layers)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "LAYER\tBYTES\tPERMISSION\tREDACTION\n")
	for _, layer := range layers {
		permission, redaction := "-", "-"
		if layer.Properties != nil {
			permission = layer.Properties.PermissionLevel.String()
			redaction = fmt.Sprintf("%t", layer.Properties.RedactionFlag)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", layer.LayerID, len(layer.Data), permission, redaction)
	}
	w.Flush()
}

func handleGet(ctx context.Context, svc docstore.Service, args []string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	out := fs.String("out", "", "write to this file instead of stdout")
	pos := parseArgs(fs, args, 1)

	doc, err := svc.OpenDocument(ctx, pos[0])
	if err != nil {
		log.Fatalf("Failed to open document: %v", err)
	}
	defer doc.Reader.Close()

	var w io.Writer = os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatalf("Failed to create %s: %v", *out, err)
		}
		defer f.Close()
		w = f
	}
	if _, err := io.Copy(w, doc.Reader); err != nil {
		log.Fatalf("Failed to read document: %v", err)
	}
}

func handlePut(ctx context.Context, svc docstore.Service, args []string) {
	fs := flag.NewFlagSet("put", flag.ExitOnError)
	pos := parseArgs(fs, args, 2)

	content, err := os.ReadFile(pos[1])
	if err != nil {
		log.Fatalf("Failed to read %s: %v", pos[1], err)
	}
	res, err := svc.SaveDocument(ctx, docstore.SaveDocumentRequest{DocumentID: pos[0], Content: content})
	if err != nil {
		log.Fatalf("Failed to save document: %v", err)
	}
	fmt.Printf("Saved %s (%d bytes)\n", res.Key, len(content))
}

func handleCreate(ctx context.Context, svc docstore.Service, args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	attachment := fs.Bool("attachment", false, "create an email attachment")
	parent := fs.String("parent", "", "parent document id of the attachment")
	pos := parseArgs(fs, args, 2)

	content, err := os.ReadFile(pos[1])
	if err != nil {
		log.Fatalf("Failed to read %s: %v", pos[1], err)
	}
	res, err := svc.CreateDocument(ctx, docstore.SaveDocumentRequest{
		DocumentID:        pos[0],
		Content:           content,
		IsEmailAttachment: *attachment,
		ParentDocumentID:  *parent,
	})
	if err != nil {
		log.Fatalf("Failed to create document: %v", err)
	}
	if res.Existing {
		fmt.Printf("Attachment already exists: %s\n", res.ReloadDocumentID)
		return
	}
	fmt.Printf("Created %s\n", res.ReloadDocumentID)
}

func handleSparse(ctx context.Context, svc docstore.Service, args []string) {
	fs := flag.NewFlagSet("sparse", flag.ExitOnError)
	start := fs.Int("start", 0, "first page")
	count := fs.Int("count", 0, "number of pages, 0 for all remaining")
	pos := parseArgs(fs, args, 1)

	doc, err := svc.GetDocument(ctx, docstore.GetDocumentRequest{
		DocumentID: pos[0],
		Window:     docstore.SparseWindow{StartPage: *start, PageCount: *count},
	})
	if err != nil {
		log.Fatalf("Failed to fetch sparse document: %v", err)
	}
	if doc.Sparse == nil {
		log.Fatalf("%s is a %s document, not sparse", pos[0], doc.Mode)
	}

	fmt.Printf("Sparse document %s: pages %d..%d\n", doc.Sparse.Name, doc.Sparse.StartPage, doc.Sparse.StartPage+doc.Sparse.ReturnedCount)
	for i, page := range doc.Sparse.Pages {
		fmt.Printf("  page %d: %d bytes\n", doc.Sparse.StartPage+i, len(page))
	}
	for _, f := range doc.Sparse.Failures {
		fmt.Printf("  failed %s: %v\n", f.Item, f.Err)
	}
}

func handleDeleteAnnotation(ctx context.Context, svc docstore.Service, args []string) {
	fs := flag.NewFlagSet("delete-annotation", flag.ExitOnError)
	pos := parseArgs(fs, args, 2)

	if err := svc.DeleteAnnotation(ctx, docstore.AnnotationRequest{DocumentID: pos[0], LayerID: pos[1]}); err != nil {
		log.Fatalf("Failed to delete annotation: %v", err)
	}
	fmt.Printf("Deleted layer %s of %s\n", pos[1], pos[0])
}

func handleEvents(ctx context.Context, cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	limit := fs.Int("limit", 50, "maximum events")
	useJSON := fs.Bool("json", false, "output as JSON")
	pos := parseArgs(fs, args, 1)

	if cfg.Events.DatabaseURL == "" {
		log.Fatalf("DOCSTORE_EVENTS_DATABASE_URL is required to list events")
	}
	pool, err := pgevents.Connect(ctx, cfg.Events.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	records, err := pgevents.NewWithPool(pool).ListByDocument(ctx, pos[0], *limit)
	if err != nil {
		log.Fatalf("Failed to list events: %v", err)
	}

	if *useJSON {
		printJSON(records)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "TIME\tTYPE\tKIND\tKEY\n")
	for _, r := range records {
		kind := r.ArtifactKind
		if kind == "" {
			kind = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.OccurredAt.Format(time.RFC3339), r.Type, kind, r.Key)
	}
	w.Flush()
}

func handleInventory(ctx context.Context, svc docstore.Service, logger *slog.Logger, args []string) {
	fs := flag.NewFlagSet("inventory", flag.ExitOnError)
	match := fs.String("match", "", "glob applied to document ids")
	dryRun := fs.Bool("dry-run", false, "list matching documents without reading annotations")
	pages := fs.Bool("pages", false, "read each document and count TIFF pages")
	useJSON := fs.Bool("json", false, "output as JSON")
	parseArgs(fs, args, 0)

	inventory := scan.NewAnnotationInventory(svc)
	if *pages {
		inventory.WithPageCounts(svc)
	}
	result, err := scan.New(svc, logger).Scan(ctx, scan.ScanOptions{
		Pattern:   *match,
		Processor: inventory,
		DryRun:    *dryRun,
		OnProgress: func(processed, total int64) {
			logger.Info("Inventory progress", "processed", processed, "total", total)
		},
	})
	if err != nil {
		log.Fatalf("Failed to scan documents: %v", err)
	}

	if *useJSON {
		printJSON(map[string]interface{}{
			"documents": inventory.Entries(),
			"found":     result.TotalFound,
			"failed":    result.FailedIDs,
		})
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "DOCUMENT\tLAYERS\tPAGE LAYERS\tPAGES\n")
	for _, entry := range inventory.Entries() {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", entry.DocumentID, len(entry.Layers), entry.PageLayers, entry.Pages)
	}
	w.Flush()
	fmt.Printf("\nFound: %d  Processed: %d  Failed: %d\n", result.TotalFound, result.TotalProcessed, result.TotalFailed)
	for _, id := range result.FailedIDs {
		fmt.Printf("  failed: %s\n", id)
	}
}
