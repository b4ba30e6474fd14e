package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/galeview/pkg/broker"
	"github.com/dshills/galeview/pkg/storage"
)

// Output formats accepted by --format
const (
	FormatTree = "tree"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

const maxInputSize = 1 << 20

// newBrokerClient creates a client for the configured broker. The token is
// resolved per request from GALEVIEW_TOKEN or the keyring.
func newBrokerClient() (*broker.Client, error) {
	app := GlobalConfig.App
	if app == nil {
		app = DefaultAppConfig()
	}
	return broker.NewClient(broker.Config{
		BaseURL:     app.Broker.Endpoint,
		Timeout:     time.Duration(app.Broker.Timeout),
		TokenSource: storage.BrokerTokenSource{Store: credentialStore},
		Logger:      GlobalConfig.Logger,
	})
}

// experimentStore keeps playground experiments
type experimentStore interface {
	ListExperiments(ctx context.Context, agentID string) ([]broker.Experiment, error)
	SaveExperiment(ctx context.Context, exp *broker.Experiment) (string, error)
}

// openExperiments returns the configured playground service, or the local
// database when none is configured. The returned func releases it.
func openExperiments() (experimentStore, func(), error) {
	app := GlobalConfig.App
	if app == nil {
		app = DefaultAppConfig()
	}
	if app.Playground.Endpoint != "" {
		client, err := broker.NewExperimentClient(broker.Config{
			BaseURL:     app.Playground.Endpoint,
			Timeout:     time.Duration(app.Broker.Timeout),
			TokenSource: storage.BrokerTokenSource{Store: credentialStore},
			Logger:      GlobalConfig.Logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, func() {}, nil
	}

	repo, err := openSnapshots()
	if err != nil {
		return nil, nil, err
	}
	return repo, func() { _ = repo.Close() }, nil
}

// openSnapshots opens the snapshot database in the configuration directory
func openSnapshots() (*storage.SQLiteSnapshotRepository, error) {
	repo, err := storage.NewSQLiteSnapshotRepository(GetConfigDir())
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}
	return repo, nil
}

func checkFormat(format string, allowed ...string) error {
	for _, a := range allowed {
		if format == a {
			return nil
		}
	}
	return fmt.Errorf("unsupported format %q (use %s)", format, strings.Join(allowed, ", "))
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printRawJSON indents a JSON document without decoding it
func printRawJSON(w io.Writer, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return printJSON(w, v)
}

func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return enc.Close()
}

// readInputArg returns a JSON argument verbatim, or the content of the file
// it names when prefixed with "@". "-" reads stdin.
func readInputArg(arg string, stdin io.Reader) ([]byte, error) {
	switch {
	case arg == "-":
		data, err := io.ReadAll(io.LimitReader(stdin, maxInputSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		if len(data) > maxInputSize {
			return nil, fmt.Errorf("input exceeds maximum size of %d bytes", maxInputSize)
		}
		return data, nil
	case strings.HasPrefix(arg, "@"):
		data, err := os.ReadFile(strings.TrimPrefix(arg, "@"))
		if err != nil {
			return nil, fmt.Errorf("failed to read input file: %w", err)
		}
		return data, nil
	}
	return []byte(arg), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
