// swmrtool is an operator REPL for manually driving a shadow-file SWMR
// attachment: step ticks, dirty pages, inspect the published index, watch
// the reclaim queue and delayed-write oracle, and attach a second process
// as a reader against the same file.
//
// Usage:
//
//	swmrtool --path shadow.mdf --role writer [--config swmrtool.jsonc]
//	swmrtool --path shadow.mdf --role reader
//
// Commands (in REPL):
//
//	tick                         Run one EOT
//	dirty <page> <bytes>         Stage a raw-data write for <page> (writer only)
//	get <page>                   Show the published entry for <page>
//	index                        List all published entries
//	reclaim                      Show the deferred-reclamation queue
//	oracle <page>                Show the delayed-write deadline for <page> (writer only)
//	scheduler                    Show the EOT dispatch order
//	info                         Show config and current tick
//	open reader|writer           Attach as the other role against the same file
//	help                         Show this help
//	exit / quit / q              Exit
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/pflag"
	"github.com/tailscale/hujson"

	"github.com/jwsblokland/vfdswmr/pkg/fs"
	"github.com/jwsblokland/vfdswmr/pkg/swmr"
)

// fileConfig is the subset of swmr.Config an operator can annotate in a
// JSONC config file. CLI flags parsed with pflag take precedence over any
// value set here.
type fileConfig struct {
	TickLen       int    `json:"tick_len,omitempty"`
	MaxLag        uint64 `json:"max_lag,omitempty"`
	PageSize      uint32 `json:"page_size,omitempty"`
	PagesReserved uint32 `json:"pages_reserved,omitempty"`
	FlushRawData  bool   `json:"flush_raw_data,omitempty"`
}

func loadFileConfig(path string) (fileConfig, error) {
	if path == "" {
		return fileConfig{}, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is operator-supplied, not attacker-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return fileConfig{}, nil
		}

		return fileConfig{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fileConfig{}, fmt.Errorf("invalid JSONC in %s: %w", path, err)
	}

	var fc fileConfig
	if err := json.Unmarshal(standardized, &fc); err != nil {
		return fileConfig{}, fmt.Errorf("invalid config JSON in %s: %w", path, err)
	}

	return fc, nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("swmrtool", pflag.ExitOnError)

	path := flags.String("path", "", "shadow file path (required)")
	role := flags.String("role", "writer", "attach role: writer or reader")
	configPath := flags.String("config", "", "optional JSONC config file")
	tickLen := flags.Int("tick-len", 0, "tick length in tenths of a second (0 = use config/default)")
	maxLag := flags.Uint64("max-lag", 0, "ticks between supersession and reclaim (0 = use config/default)")
	pageSize := flags.Uint32("page-size", 0, "shadow-file page size in bytes (0 = use config/default)")
	pagesReserved := flags.Uint32("pages-reserved", 0, "shadow-file pages truncated at init (0 = use config/default)")
	flushRawData := flags.Bool("flush-raw-data", false, "flush raw-data caches during EOT step 1")

	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	if *path == "" {
		flags.Usage()
		return errors.New("--path is required")
	}

	fc, err := loadFileConfig(*configPath)
	if err != nil {
		return err
	}

	cfg := swmr.Config{
		Path:          *path,
		TickLen:       firstNonZeroInt(*tickLen, fc.TickLen, 1),
		MaxLag:        firstNonZeroU64(*maxLag, fc.MaxLag, 3),
		PageSize:      firstNonZeroU32(*pageSize, fc.PageSize, 0),
		PagesReserved: firstNonZeroU32(*pagesReserved, fc.PagesReserved, 2),
		FlushRawData:  *flushRawData || fc.FlushRawData,
	}

	switch *role {
	case "writer":
		cfg.Writer = true
	case "reader":
		cfg.Writer = false
	default:
		return fmt.Errorf("unknown --role %q (want writer or reader)", *role)
	}

	t := &tool{cfg: cfg, fsys: fs.NewReal(), pages: newDemoPageBuffer(), metadata: newDemoMetadataCache(), sched: swmr.NewScheduler()}
	if err := t.attach(cfg.Writer); err != nil {
		return err
	}
	defer t.closeCurrent()

	return t.runREPL()
}

func firstNonZeroInt(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstNonZeroU64(vals ...uint64) uint64 {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstNonZeroU32(vals ...uint32) uint32 {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

// tool holds the REPL's live attachment plus whichever collaborators are
// in play; exactly one of writer/reader is non-nil at a time.
type tool struct {
	cfg      swmr.Config
	fsys     fs.FS
	pages    *demoPageBuffer
	metadata *demoMetadataCache
	sched    *swmr.Scheduler

	writer     *swmr.Writer
	writerLock *fs.Lock
	reader     *swmr.Reader

	liner *liner.State
}

func (t *tool) attach(asWriter bool) error {
	t.cfg.Writer = asWriter

	if asWriter {
		w, lock, err := swmr.OpenFile(t.cfg, t.fsys, t.pages, t.metadata, t.sched)
		if err != nil {
			return fmt.Errorf("attach writer: %w", err)
		}

		t.writer, t.writerLock = w, lock

		return nil
	}

	r, err := swmr.OpenFileReader(t.cfg, t.fsys, t.pages, t.metadata, t.sched)
	if err != nil {
		return fmt.Errorf("attach reader: %w", err)
	}

	t.reader = r

	return nil
}

func (t *tool) closeCurrent() {
	if t.writer != nil {
		_ = t.writer.Close()

		if t.writerLock != nil {
			_ = t.writerLock.Close()
		}

		t.writer, t.writerLock = nil, nil
	}

	if t.reader != nil {
		_ = t.reader.Close()
		t.reader = nil
	}
}

func (t *tool) isWriter() bool { return t.writer != nil }

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".swmrtool_history")
}

func (t *tool) runREPL() error {
	t.liner = liner.NewLiner()
	defer t.liner.Close()

	t.liner.SetCtrlCAborts(true)
	t.liner.SetCompleter(t.completer)

	if f, err := os.Open(historyFile()); err == nil {
		t.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("swmrtool - shadow-file SWMR CLI (path=%s role=%s tick_len=%d max_lag=%d)\n",
		t.cfg.Path, t.roleName(), t.cfg.TickLen, t.cfg.MaxLag)
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := t.liner.Prompt("swmrtool> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println("\nBye!")
				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		t.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			t.saveHistory()

			return nil

		case "help", "?":
			t.printHelp()

		case "tick":
			t.cmdTick()

		case "dirty":
			t.cmdDirty(args)

		case "get":
			t.cmdGet(args)

		case "index":
			t.cmdIndex()

		case "reclaim":
			t.cmdReclaim()

		case "oracle":
			t.cmdOracle(args)

		case "scheduler":
			t.cmdScheduler()

		case "info":
			t.cmdInfo()

		case "open":
			t.cmdOpen(args)

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	t.saveHistory()

	return nil
}

func (t *tool) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			t.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (t *tool) completer(line string) []string {
	commands := []string{
		"tick", "dirty", "get", "index", "reclaim", "oracle",
		"scheduler", "info", "open", "help", "exit", "quit", "q",
	}

	var out []string

	lower := strings.ToLower(line)
	for _, c := range commands {
		if strings.HasPrefix(c, lower) {
			out = append(out, c)
		}
	}

	return out
}

func (t *tool) roleName() string {
	if t.isWriter() {
		return "writer"
	}

	return "reader"
}

func (t *tool) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  tick                    Run one EOT")
	fmt.Println("  dirty <page> <bytes>   Stage a raw-data write for <page> (writer only)")
	fmt.Println("  get <page>             Show the published entry for <page>")
	fmt.Println("  index                  List all published entries")
	fmt.Println("  reclaim                Show the deferred-reclamation queue")
	fmt.Println("  oracle <page>          Show the delayed-write deadline for <page> (writer only)")
	fmt.Println("  scheduler              Show the EOT dispatch order")
	fmt.Println("  info                   Show config and current tick")
	fmt.Println("  open reader|writer     Attach as the other role against the same file")
	fmt.Println("  help                   Show this help")
	fmt.Println("  exit / quit / q        Exit")
}

func (t *tool) cmdTick() {
	if t.isWriter() {
		if err := t.writer.RunEOT(); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}

		fmt.Printf("OK: writer tick now %d\n", t.writer.Tick())

		return
	}

	if err := t.reader.RunEOT(); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Printf("OK: reader tick now %d\n", t.reader.Tick())
}

func (t *tool) cmdDirty(args []string) {
	if !t.isWriter() {
		fmt.Println("Error: dirty requires the writer role (use 'open writer')")
		return
	}

	if len(args) < 2 {
		fmt.Println("Usage: dirty <page> <bytes>")
		return
	}

	page, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Printf("Error parsing page: %v\n", err)
		return
	}

	t.pages.stage(uint32(page), []byte(args[1]))
	fmt.Printf("OK: staged %d bytes for page %d (will apply on next tick)\n", len(args[1]), page)
}

func (t *tool) cmdGet(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: get <page>")
		return
	}

	page, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Printf("Error parsing page: %v\n", err)
		return
	}

	var idx *swmr.IndexStore
	if t.isWriter() {
		idx = t.writer.Index()
	} else {
		idx = t.reader.Index()
	}

	e, ok := idx.Find(uint32(page))
	if !ok {
		fmt.Println("(not found)")
		return
	}

	fmt.Printf("Page:   %d\n", e.P)
	fmt.Printf("Addr:   %d\n", e.S)
	fmt.Printf("Length: %d\n", e.Length)
}

func (t *tool) cmdIndex() {
	var idx *swmr.IndexStore
	if t.isWriter() {
		idx = t.writer.Index()
	} else {
		idx = t.reader.Index()
	}

	entries := idx.Snapshot()
	if len(entries) == 0 {
		fmt.Println("(empty)")
		return
	}

	for _, e := range entries {
		fmt.Printf("page=%-8d addr=%-10d length=%d\n", e.P, e.S, e.Length)
	}
}

func (t *tool) cmdReclaim() {
	if !t.isWriter() {
		fmt.Println("Error: reclaim is a writer-side concern (use 'open writer')")
		return
	}

	records := t.writer.ReclaimSnapshot()
	if len(records) == 0 {
		fmt.Println("(empty)")
		return
	}

	for _, r := range records {
		fmt.Printf("offset=%-10d length=%-8d deferred_at_tick=%d\n", r.Offset, r.Length, r.Tick)
	}
}

func (t *tool) cmdOracle(args []string) {
	if !t.isWriter() {
		fmt.Println("Error: oracle is a writer-side concern (use 'open writer')")
		return
	}

	if len(args) < 1 {
		fmt.Println("Usage: oracle <page>")
		return
	}

	page, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Printf("Error parsing page: %v\n", err)
		return
	}

	until, err := t.writer.DelayUntil(uint32(page))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	if until == 0 {
		fmt.Println("No delay: the raw-data write may be flushed immediately.")
		return
	}

	fmt.Printf("Delay write until tick %d (current tick %d)\n", until, t.writer.Tick())
}

func (t *tool) cmdScheduler() {
	snap := t.sched.Snapshot()
	if len(snap) == 0 {
		fmt.Println("(empty)")
		return
	}

	for i, s := range snap {
		fmt.Printf("%2d. role=%-7s end_of_tick=%s\n", i+1, s.Role, s.EndOfTick.Format("15:04:05.000"))
	}
}

func (t *tool) cmdInfo() {
	fmt.Printf("Path:           %s\n", t.cfg.Path)
	fmt.Printf("Role:           %s\n", t.roleName())
	fmt.Printf("Tick length:    %d (tenths of a second)\n", t.cfg.TickLen)
	fmt.Printf("Max lag:        %d ticks\n", t.cfg.MaxLag)
	fmt.Printf("Pages reserved: %d\n", t.cfg.PagesReserved)
	fmt.Printf("Flush raw data: %v\n", t.cfg.FlushRawData)

	if t.isWriter() {
		fmt.Printf("Current tick:   %d\n", t.writer.Tick())
	} else {
		fmt.Printf("Current tick:   %d\n", t.reader.Tick())
	}
}

func (t *tool) cmdOpen(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: open reader|writer")
		return
	}

	wantWriter := false

	switch args[0] {
	case "writer":
		wantWriter = true
	case "reader":
		wantWriter = false
	default:
		fmt.Println("Usage: open reader|writer")
		return
	}

	if wantWriter == t.isWriter() {
		fmt.Printf("Already attached as %s.\n", t.roleName())
		return
	}

	t.closeCurrent()

	if err := t.attach(wantWriter); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Printf("OK: now attached as %s.\n", t.roleName())
}
