package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jessevdk/go-flags"

	"gorow/internal/formats/rws"
	"gorow/internal/migrations"
	"gorow/internal/session"
)

var stdout io.Writer = os.Stdout

func printJSON(v interface{}) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type statsCommand struct {
	Args struct {
		File string `positional-arg-name:"FILE" description:"Session file (.rws)"`
	} `positional-args:"yes" required:"yes"`
}

func (c *statsCommand) Execute([]string) error {
	stats, err := session.HistoricalStats(c.Args.File)
	if err != nil {
		return err
	}
	if stats == nil {
		return fmt.Errorf("session '%s' not found", c.Args.File)
	}
	return printJSON(stats)
}

type compareCommand struct {
	Args struct {
		First  string `positional-arg-name:"FIRST" description:"Baseline session file"`
		Second string `positional-arg-name:"SECOND" description:"Session file compared to the baseline"`
	} `positional-args:"yes" required:"yes"`
}

func (c *compareCommand) Execute([]string) error {
	comparison, err := session.Compare(c.Args.First, c.Args.Second)
	if err != nil {
		return err
	}
	if comparison == nil {
		return fmt.Errorf("both sessions need recorded strokes")
	}
	return printJSON(comparison)
}

type migrateCommand struct {
	Output string `short:"o" long:"output" description:"Output file (default: overwrite the input)"`
	Args   struct {
		File string `positional-arg-name:"FILE" description:"Session file (.rws)"`
	} `positional-args:"yes" required:"yes"`
}

func (c *migrateCommand) Execute([]string) error {
	original, err := rws.Read(c.Args.File)
	if err != nil {
		return err
	}
	from, err := original.SchemaVersion()
	if err != nil {
		return err
	}

	table, err := session.LoadSession(c.Args.File, true)
	if err != nil {
		return err
	}

	table.SetSchemaVersion(migrations.CurrentSchemaVersion)

	output := c.Output
	if output == "" {
		output = c.Args.File
	}
	if err := rws.Write(output, table); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s: schema v%d -> v%d, %d rows written to %s\n",
		c.Args.File, from, migrations.CurrentSchemaVersion, table.Len(), output)
	return nil
}

type migrationsCommand struct{}

func (c *migrationsCommand) Execute([]string) error {
	fmt.Fprintf(stdout, "current schema version: v%d\n", migrations.CurrentSchemaVersion)
	for _, m := range migrations.Default.List() {
		fmt.Fprintf(stdout, "v%d -> v%d: %s\n", m.From, m.To, m.Description)
	}
	return nil
}

func newParser() *flags.Parser {
	parser := flags.NewParser(nil, flags.Default)
	parser.AddCommand("stats", "Session statistics", "Print the statistics of a session file as JSON.", &statsCommand{})
	parser.AddCommand("compare", "Compare two sessions", "Print how the second session differs from the first.", &compareCommand{})
	parser.AddCommand("migrate", "Upgrade a session file", "Rewrite a session file in the current schema version.", &migrateCommand{})
	parser.AddCommand("migrations", "List schema migrations", "List the registered schema migrations.", &migrationsCommand{})
	return parser
}

func main() {
	// flags.Default already prints the error
	if _, err := newParser().Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(1)
	}
}
