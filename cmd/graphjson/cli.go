package main

import (
	"bytes"
	"cmp"
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"

	"github.com/kykrueger/openbis-sub009/application"
	"github.com/kykrueger/openbis-sub009/internal/json"
	"github.com/kykrueger/openbis-sub009/pkg/graphjson"
	"github.com/kykrueger/openbis-sub009/pkg/util/merr"
)

const usage = `graphjson - encode, decode and inspect @type/@id graph documents.

Usage:
  graphjson [--config FILE] decode    [--schema FILE] [--type EXPR] DOC
  graphjson [--config FILE] roundtrip [--schema FILE] [--type EXPR] DOC
  graphjson tags DOC

DOC is a path, or "-" for stdin.

Options:
`

type options struct {
	configPath string
	command    string
	schema     string
	declared   *graphjson.FieldType
	doc        string
}

type command func(ctx context.Context, in io.Reader, out io.Writer, opts *options) error

var commands = map[string]command{
	"decode":    runDecode,
	"roundtrip": runRoundTrip,
	"tags":      runTags,
}

// parseGlobal parses global flags and the subcommand flags. A nil result means exit cleanly.
func parseGlobal(out io.Writer, args []string) (*options, error) {
	fs := flag.NewFlagSet("graphjson", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprint(out, usage)
		fs.PrintDefaults()
	}
	configPath := fs.String("config", "", "config file, defaults to $"+application.ConfigPathEnv+" or "+application.DefaultConfigPath)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, nil
		}
		return nil, &exitError{code: 2, err: err}
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return nil, usageError("missing command")
	}

	opts := &options{configPath: *configPath, command: fs.Arg(0)}
	sub := flag.NewFlagSet(opts.command, flag.ContinueOnError)
	sub.SetOutput(out)
	schema := sub.String("schema", "", "type schema file (yaml or json)")
	typeExpr := sub.String("type", "", "declared root type, e.g. as.dto.sample.Sample or List<as.dto.sample.Sample>")
	if err := sub.Parse(fs.Args()[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, nil
		}
		return nil, &exitError{code: 2, err: err}
	}
	if sub.NArg() != 1 {
		return nil, usageError("%s: expected exactly one document, got %d", opts.command, sub.NArg())
	}
	opts.schema = *schema
	opts.doc = sub.Arg(0)
	if *typeExpr != "" {
		declared, err := graphjson.ParseFieldType(*typeExpr)
		if err != nil {
			return nil, &exitError{code: 2, err: err}
		}
		opts.declared = declared
	}
	return opts, nil
}

func readDocument(in io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(in)
	}
	return os.ReadFile(path)
}

func newApplication(opts *options) (*application.Application, error) {
	path := opts.configPath
	if path == "" {
		var err error
		if path, err = application.ConfigPathFromArgs(nil); err != nil {
			return nil, err
		}
	}
	cfg, err := application.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if opts.schema != "" {
		cfg.Set("registry.schemaFile", opts.schema)
	}
	app := application.New()
	if err := app.Init(cfg); err != nil {
		return nil, err
	}
	return app, nil
}

// runDecode hydrates the document and prints it re-encoded, ids renumbered in visit order.
func runDecode(ctx context.Context, in io.Reader, out io.Writer, opts *options) error {
	data, err := readDocument(in, opts.doc)
	if err != nil {
		return err
	}
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	defer app.Close()

	graph, err := app.Decoder().Unmarshal(ctx, data, opts.declared)
	if err != nil {
		return err
	}
	encoded, err := app.Encoder().Marshal(graph)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s\n", encoded)
	return err
}

// runRoundTrip hydrates the document, sends it through a framed codec and compares both graphs.
func runRoundTrip(ctx context.Context, in io.Reader, out io.Writer, opts *options) error {
	data, err := readDocument(in, opts.doc)
	if err != nil {
		return err
	}
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	defer app.Close()

	first, err := app.Decoder().Unmarshal(ctx, data, opts.declared)
	if err != nil {
		return err
	}
	c, err := app.NewCodec(opts.declared)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := c.Encode(&buf, first); err != nil {
		return err
	}
	framed := buf.Len()
	var second any
	if err := c.Decode(ctx, &buf, &second); err != nil {
		return err
	}

	want, err := app.Encoder().Marshal(first)
	if err != nil {
		return err
	}
	got, err := app.Encoder().Marshal(second)
	if err != nil {
		return err
	}
	if !bytes.Equal(want, got) {
		return merr.WrapErrMalformedDocument("$", "graph changed after round trip", string(got))
	}
	_, err = fmt.Fprintf(out, "ok: %d bytes document, %d bytes framed\n", len(want), framed)
	return err
}

// runTags prints the sorted set of type tags found in the document.
func runTags(_ context.Context, in io.Reader, out io.Writer, opts *options) error {
	data, err := readDocument(in, opts.doc)
	if err != nil {
		return err
	}
	var doc any
	if err := json.UnmarshalNumber(data, &doc); err != nil {
		return merr.WrapErrMalformedDocument("$", "invalid json", err.Error())
	}
	tags, err := graphjson.DiscoverTags(doc)
	if err != nil {
		return err
	}
	for _, tag := range tags.Sorted(cmp.Compare[graphjson.TypeTag]) {
		if _, err := fmt.Fprintln(out, tag); err != nil {
			return err
		}
	}
	return nil
}
